package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/notifyhub/notification-relay/internal/queue"
	"github.com/notifyhub/notification-relay/internal/ratelimiter"
	"github.com/notifyhub/notification-relay/internal/repository"
)

// Pool manages the lifecycle of all inbound-queue workers.
// Every worker subscribes to the same queue; the broker spreads deliveries
// between them and the shared limiter caps their combined throughput.
type Pool struct {
	workers []*Worker
	wg      sync.WaitGroup
}

// NewPool creates count identical workers.
func NewPool(
	count int,
	broker queue.Broker,
	store repository.StatusStore,
	limiter *ratelimiter.Limiter,
	opts Options,
	logger *zap.Logger,
	hooks MetricHooks,
) *Pool {
	workers := make([]*Worker, count)
	for i := range workers {
		workers[i] = NewWorker(
			i, broker, store, limiter, opts,
			logger.With(zap.Int("worker_id", i)),
			hooks,
		)
	}
	return &Pool{workers: workers}
}

// Start launches all workers as goroutines.
// Cancelling ctx triggers a graceful shutdown of the entire pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		p.wg.Add(1)
		go func(w *Worker) {
			defer p.wg.Done()
			w.Run(ctx)
		}(w)
	}
}

// Wait blocks until every worker has returned after ctx is cancelled.
// In-flight messages finish before their worker returns.
func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) Size() int {
	return len(p.workers)
}
