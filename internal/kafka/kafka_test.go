package kafka

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	mu     sync.Mutex
	msgs   []kafka.Message
	fail   bool
	closed bool
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fail {
		return errors.New("broker unavailable")
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func TestProducer_FlushesOnClose(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 8, nil)
	p.Start(context.Background())

	p.Publish([]byte("k1"), []byte("v1"), Header("x-event-type", "order.created"))
	p.Publish([]byte("k2"), []byte("v2"))
	p.Close()
	p.WaitClosed()

	require.Len(t, w.msgs, 2)
	assert.Equal(t, "k1", string(w.msgs[0].Key))
	assert.Equal(t, "order.created", HeaderValue(w.msgs[0], "x-event-type"))
	assert.Empty(t, HeaderValue(w.msgs[1], "x-event-type"))
	assert.True(t, w.closed)
}

func TestProducer_FlushesOnCancel(t *testing.T) {
	w := &fakeWriter{}
	p := NewProducerWithWriter(w, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())

	p.Publish([]byte("k"), []byte("v"))
	p.Start(ctx)
	cancel()
	p.WaitClosed()

	assert.Len(t, w.msgs, 1)
	assert.True(t, w.closed)
	assert.NotPanics(t, p.Close, "close after shutdown is a no-op")
}

func TestProducer_WriteErrorDoesNotStopLoop(t *testing.T) {
	w := &fakeWriter{fail: true}
	p := NewProducerWithWriter(w, 8, nil)
	p.Start(context.Background())

	p.Publish([]byte("k"), []byte("v"))
	p.Close()
	p.WaitClosed()

	assert.Empty(t, w.msgs)
	assert.True(t, w.closed)
}

func TestDecode(t *testing.T) {
	type payload struct {
		ID string `json:"id"`
	}
	got, err := Decode[payload]([]byte(`{"id":"42"}`))
	require.NoError(t, err)
	assert.Equal(t, "42", got.ID)

	_, err = Decode[payload]([]byte(`{`))
	assert.ErrorContains(t, err, "decode")
}
