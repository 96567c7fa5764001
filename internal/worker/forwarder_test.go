package worker_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-relay/internal/domain"
	"github.com/notifyhub/notification-relay/internal/queue"
	"github.com/notifyhub/notification-relay/internal/worker"
)

// recordingProvider stores delivered events; err, when set, fails every call.
type recordingProvider struct {
	mu     sync.Mutex
	events []domain.StatusEvent
	err    error
}

func (p *recordingProvider) Deliver(_ context.Context, e domain.StatusEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.events = append(p.events, e)
	return nil
}

func (p *recordingProvider) delivered() []domain.StatusEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.StatusEvent(nil), p.events...)
}

func statusDelivery(t *testing.T, body []byte) (*queue.Delivery, *atomic.Int32, *atomic.Int32) {
	t.Helper()
	var acks, nacks atomic.Int32
	return queue.NewDelivery(status, body,
		func() error { acks.Add(1); return nil },
		func() error { nacks.Add(1); return nil },
	), &acks, &nacks
}

func TestStatusForwarder_Handle(t *testing.T) {
	event, err := json.Marshal(domain.StatusEvent{ID: "a1", Status: domain.StatusSuccess, Timestamp: time.Now().UTC()})
	require.NoError(t, err)

	tests := []struct {
		name      string
		body      []byte
		err       error
		wantAck   int32
		wantNack  int32
		wantOK    bool
		delivered int
	}{
		{name: "delivered", body: event, wantAck: 1, wantOK: true, delivered: 1},
		{name: "provider failure", body: event, err: errors.New("webhook down"), wantNack: 1},
		{name: "malformed json", body: []byte("{"), wantNack: 1},
		{name: "missing id", body: []byte(`{"status":"PROCESSADO_SUCESSO"}`), wantNack: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prov := &recordingProvider{err: tt.err}
			var results []bool
			fwd := worker.NewStatusForwarder(queue.NewMemoryBroker(1, status), status, prov, zap.NewNop(),
				func(ok bool) { results = append(results, ok) })

			d, acks, nacks := statusDelivery(t, tt.body)
			fwd.Handle(context.Background(), d)

			assert.Equal(t, tt.wantAck, acks.Load())
			assert.Equal(t, tt.wantNack, nacks.Load())
			assert.Equal(t, []bool{tt.wantOK}, results)
			assert.Len(t, prov.delivered(), tt.delivered)
		})
	}
}

func TestStatusForwarder_RunDrainsQueue(t *testing.T) {
	broker := queue.NewMemoryBroker(8, status)
	prov := &recordingProvider{}
	fwd := worker.NewStatusForwarder(broker, status, prov, zap.NewNop(), nil)

	for _, id := range []string{"a1", "a2"} {
		body, err := json.Marshal(domain.StatusEvent{ID: id, Status: domain.StatusFailure, Timestamp: time.Now().UTC()})
		require.NoError(t, err)
		require.NoError(t, broker.Publish(context.Background(), status, body))
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		fwd.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(prov.delivered()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done

	got := prov.delivered()
	assert.Equal(t, "a1", got[0].ID)
	assert.Equal(t, "a2", got[1].ID)
	acks, _ := broker.Settled()
	assert.EqualValues(t, 2, acks)
}
