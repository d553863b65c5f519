package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8081", cfg.HTTPAddr)
	assert.Equal(t, "postgres", cfg.StoreDriver)
	assert.Equal(t, []string{"kafka:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 2*time.Minute, cfg.LeaseTTL)
	assert.Equal(t, cfg.LeaseTTL, cfg.LeaseWait, "concurrent completions wait for the lease holder")
	assert.Equal(t, 5*time.Minute, cfg.PriceTTL)
	assert.True(t, cfg.ChargeTaxes)
	assert.True(t, cfg.DefaultTaxRate.IsZero())
	assert.Equal(t, 8, cfg.WorkerConcurrency)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", " k1:9092, ,k2:9092 ")
	t.Setenv("STORE_DRIVER", "Memory")
	t.Setenv("CHECKOUT_LEASE_TTL", "30s")
	t.Setenv("ALLOW_UNPAID_ORDERS", "true")
	t.Setenv("DEFAULT_TAX_RATE", "23")
	t.Setenv("WORKER_CONCURRENCY", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "memory", cfg.StoreDriver)
	assert.Equal(t, 30*time.Second, cfg.LeaseTTL)
	assert.Equal(t, 30*time.Second, cfg.LeaseWait)
	assert.True(t, cfg.AllowUnpaidOrders)
	assert.Equal(t, "23", cfg.DefaultTaxRate.String())
	assert.Equal(t, 2, cfg.WorkerConcurrency)
}

func TestLoad_ReportsEveryBadValue(t *testing.T) {
	t.Setenv("CHECKOUT_PRICE_TTL", "soon")
	t.Setenv("CHARGE_TAXES", "maybe")
	t.Setenv("WORKER_CONCURRENCY", "-1")
	t.Setenv("STORE_DRIVER", "sqlite")

	_, err := Load()
	require.Error(t, err)
	for _, key := range []string{"CHECKOUT_PRICE_TTL", "CHARGE_TAXES", "WORKER_CONCURRENCY", "STORE_DRIVER"} {
		assert.ErrorContains(t, err, key)
	}
}
