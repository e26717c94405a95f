package notify

import (
	"context"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/kart-checkout/internal/domain/order"
)

type kind string

const (
	kindConfirmed kind = "order_confirmed"
	kindStatus    kind = "order_status"
)

type job struct {
	kind  kind
	order order.Order
}

// Options tune a Dispatcher. Zero values select defaults.
type Options struct {
	QueueSize int
	Workers   int
	Timeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = 256
	}
	if o.Workers <= 0 {
		o.Workers = 4
	}
	if o.Timeout <= 0 {
		o.Timeout = 10 * time.Second
	}
	return o
}

// Dispatcher queues order events and hands them to a Notifier on worker
// goroutines. Enqueueing never blocks: when the queue is full the event is
// dropped and logged.
type Dispatcher struct {
	notifier Notifier
	lg       *zap.Logger
	opts     Options
	queue    chan job

	mu     sync.RWMutex
	closed bool
	start  sync.Once
	wg     sync.WaitGroup
}

var _ order.Notifications = (*Dispatcher)(nil)

// NewDispatcher creates a stopped Dispatcher; call Start to run workers.
func NewDispatcher(n Notifier, lg *zap.Logger, opts Options) *Dispatcher {
	opts = opts.withDefaults()
	return &Dispatcher{
		notifier: n,
		lg:       lg.Named("notify"),
		opts:     opts,
		queue:    make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. It is safe to call more than once.
func (d *Dispatcher) Start() {
	d.start.Do(func() {
		for range d.opts.Workers {
			d.wg.Add(1)
			go d.worker()
		}
		d.lg.Info("Notification dispatcher started", zap.Int("workers", d.opts.Workers))
	})
}

// Close stops accepting events and waits for queued ones to be delivered,
// or for ctx to expire.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "drain notifications")
	}
}

func (d *Dispatcher) OrderConfirmed(ctx context.Context, o order.Order) {
	d.enqueue(ctx, job{kind: kindConfirmed, order: o})
}

func (d *Dispatcher) OrderStatusChanged(ctx context.Context, o order.Order) {
	d.enqueue(ctx, job{kind: kindStatus, order: o})
}

func (d *Dispatcher) enqueue(ctx context.Context, j job) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	lg := zctx.From(ctx)
	if d.closed {
		lg.Warn("Notification dropped: dispatcher closed",
			zap.String("kind", string(j.kind)),
			zap.String("order", j.order.Number),
		)
		return
	}
	select {
	case d.queue <- j:
	default:
		lg.Warn("Notification dropped: queue full",
			zap.String("kind", string(j.kind)),
			zap.String("order", j.order.Number),
		)
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	lg := d.lg.With(
		zap.String("kind", string(j.kind)),
		zap.String("order", j.order.Number),
	)
	defer func() {
		if r := recover(); r != nil {
			lg.Error("Notifier panic",
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(zctx.Base(context.Background(), lg), d.opts.Timeout)
	defer cancel()

	to := RecipientOf(j.order)
	var res Result
	switch j.kind {
	case kindConfirmed:
		res = d.notifier.NotifyOrderConfirmed(ctx, j.order, to)
	case kindStatus:
		res = d.notifier.NotifyOrderStatus(ctx, j.order, to)
	}
	if !res.Success {
		lg.Warn("Notification failed", zap.Error(res.Err))
		return
	}
	lg.Debug("Notification sent")
}
