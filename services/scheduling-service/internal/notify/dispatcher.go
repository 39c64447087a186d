package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/legalaid-connect/legalaid/services/scheduling-service/internal/model"
)

type DispatcherConfig struct {
	QueueSize int
	// Timeout bounds one delivery attempt.
	Timeout time.Duration
}

// Dispatcher queues deliveries on a bounded channel drained by Run. Enqueue
// never blocks: a full queue drops the job, and so does a dispatcher whose
// Run has returned.
type Dispatcher struct {
	sink     Sink
	mailer   Mailer
	contacts ContactResolver
	logger   *slog.Logger
	timeout  time.Duration
	queue    chan job

	mu     sync.RWMutex
	closed bool

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
}

var _ Emitter = (*Dispatcher)(nil)

type job struct {
	kind string
	ctx  context.Context
	run  func(ctx context.Context) error
}

func NewDispatcher(sink Sink, mailer Mailer, contacts ContactResolver, logger *slog.Logger, cfg DispatcherConfig) *Dispatcher {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sink:     sink,
		mailer:   mailer,
		contacts: contacts,
		logger:   logger,
		timeout:  cfg.Timeout,
		queue:    make(chan job, cfg.QueueSize),
	}
}

func (d *Dispatcher) Notify(ctx context.Context, n Notification) {
	d.enqueue(ctx, "notification:"+string(n.Type), func(ctx context.Context) error {
		return d.sink.Notify(ctx, n)
	})
}

func (d *Dispatcher) AppointmentEmail(ctx context.Context, e AppointmentEmail) {
	d.enqueue(ctx, "email:appointment", func(ctx context.Context) error {
		c, err := d.resolve(ctx, e.To, e.Contact)
		if err != nil {
			return err
		}
		e.Contact = c
		return d.mailer.SendAppointmentEmail(ctx, e)
	})
}

func (d *Dispatcher) CancellationEmail(ctx context.Context, e CancellationEmail) {
	d.enqueue(ctx, "email:cancellation", func(ctx context.Context) error {
		c, err := d.resolve(ctx, e.To, e.Contact)
		if err != nil {
			return err
		}
		e.Contact = c
		return d.mailer.SendCancellationEmail(ctx, e)
	})
}

func (d *Dispatcher) resolve(ctx context.Context, p model.Party, known model.Contact) (model.Contact, error) {
	if known.Email != "" {
		return known, nil
	}
	if d.contacts == nil {
		return model.Contact{}, fmt.Errorf("no email address for %s", p)
	}
	c, err := d.contacts.Lookup(ctx, p)
	if err != nil {
		return model.Contact{}, fmt.Errorf("resolve %s: %w", p, err)
	}
	if c.Email == "" {
		return model.Contact{}, fmt.Errorf("no email address for %s", p)
	}
	return c, nil
}

// enqueue detaches the job from the request's cancellation but keeps its
// values, so trace context reaches the sink.
func (d *Dispatcher) enqueue(ctx context.Context, kind string, run func(context.Context) error) {
	j := job{kind: kind, ctx: context.WithoutCancel(ctx), run: run}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		d.logger.WarnContext(ctx, "notification dispatcher stopped, dropping", "kind", kind)
		return
	}
	select {
	case d.queue <- j:
	default:
		d.dropped.Add(1)
		d.logger.WarnContext(ctx, "notification queue full, dropping", "kind", kind)
	}
}

// Run delivers queued jobs until ctx is done, then drains what is left.
// Jobs enqueued after Run returns are dropped and counted.
func (d *Dispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.mu.Lock()
			d.closed = true
			d.mu.Unlock()
			d.drain()
			return
		case j := <-d.queue:
			d.exec(j)
		}
	}
}

func (d *Dispatcher) drain() {
	for {
		select {
		case j := <-d.queue:
			d.exec(j)
		default:
			return
		}
	}
}

func (d *Dispatcher) exec(j job) {
	ctx, cancel := context.WithTimeout(j.ctx, d.timeout)
	defer cancel()

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return j.run(ctx)
	}()
	if err != nil {
		d.failed.Add(1)
		level := slog.LevelError
		if errors.Is(err, context.DeadlineExceeded) {
			level = slog.LevelWarn
		}
		d.logger.Log(ctx, level, "notification delivery failed", "kind", j.kind, "err", err)
		return
	}
	d.delivered.Add(1)
}

type Stats struct {
	Delivered int64
	Failed    int64
	Dropped   int64
	Queued    int
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Delivered: d.delivered.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.queue),
	}
}
