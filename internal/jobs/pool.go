package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/vrsandeep/litpush/internal/logging"
	"github.com/vrsandeep/litpush/internal/models"
)

var (
	// ErrQueueFull is returned by Submit when the tier's buffer is full.
	ErrQueueFull = errors.New("job queue is full")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("job pool is stopped")
)

// Task is one unit of work for a subscription.
type Task struct {
	SubscriptionID int64
	Key            string
	Priority       models.Priority
	Run            func(ctx context.Context)
}

// Pool runs tasks on a fixed number of workers. Higher priority tiers are
// drained first and tasks of the same subscription never run concurrently.
type Pool struct {
	workers int
	queues  [3]chan Task
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	stopped bool
	started bool
	locks   map[int64]*sync.Mutex
}

func NewPool(workers, queueSize int, logger *slog.Logger) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 64
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		workers: workers,
		logger:  logging.OrDiscard(logger).With("component", "pool"),
		ctx:     ctx,
		cancel:  cancel,
		locks:   make(map[int64]*sync.Mutex),
	}
	for i := range p.queues {
		p.queues[i] = make(chan Task, queueSize)
	}
	return p
}

// Start launches the workers. Tasks submitted before Start wait in their queues.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.work(i)
	}
	p.logger.Info("worker pool started", "workers", p.workers)
}

// Stop refuses new tasks, lets running tasks finish and waits for the workers.
// Queued tasks are dropped.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.mu.Unlock()
	p.cancel()
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

// Submit queues t in its priority tier without blocking.
func (p *Pool) Submit(t Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrPoolStopped
	}
	tier := int(t.Priority)
	if tier < 0 || tier >= len(p.queues) {
		tier = int(models.PriorityDefault)
	}
	select {
	case p.queues[tier] <- t:
		return nil
	default:
		return ErrQueueFull
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()
	for {
		t, ok := p.next()
		if !ok {
			return
		}
		p.run(id, t)
	}
}

// next returns the highest priority task available, blocking when all tiers
// are empty.
func (p *Pool) next() (Task, bool) {
	immediate, normal, low := p.queues[0], p.queues[1], p.queues[2]
	if p.ctx.Err() != nil {
		return Task{}, false
	}
	select {
	case t := <-immediate:
		return t, true
	default:
	}
	select {
	case t := <-immediate:
		return t, true
	case t := <-normal:
		return t, true
	default:
	}
	select {
	case <-p.ctx.Done():
		return Task{}, false
	case t := <-immediate:
		return t, true
	case t := <-normal:
		return t, true
	case t := <-low:
		return t, true
	}
}

func (p *Pool) subscriptionLock(id int64) *sync.Mutex {
	p.mu.Lock()
	defer p.mu.Unlock()
	l, ok := p.locks[id]
	if !ok {
		l = &sync.Mutex{}
		p.locks[id] = l
	}
	return l
}

func (p *Pool) run(worker int, t Task) {
	lock := p.subscriptionLock(t.SubscriptionID)
	lock.Lock()
	defer lock.Unlock()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task panicked", "worker", worker, "subscription_id", t.SubscriptionID, "job_key", t.Key, "panic", r)
		}
	}()
	t.Run(p.ctx)
}
