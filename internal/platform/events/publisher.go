package events

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/sony/gobreaker"

	"github.com/GScandelari/curva-mestra-system-sub005/internal/platform/apperr"
)

var (
	ErrBufferFull = apperr.New(apperr.CategoryNetwork, "event buffer full")
	ErrClosed     = apperr.New(apperr.CategoryNetwork, "event publisher closed")
)

// Sink is the write side of a broker. *kafka.Writer satisfies it.
type Sink interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func NewKafkaSink(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
	}
}

type Options struct {
	BufferSize   int
	WriteTimeout time.Duration
	FlushTimeout time.Duration
	Retry        apperr.RetryPolicy
	// FailureThreshold consecutive failed deliveries open the breaker for
	// OpenTimeout.
	FailureThreshold uint32
	OpenTimeout      time.Duration
}

func DefaultOptions() Options {
	return Options{
		BufferSize:       256,
		WriteTimeout:     5 * time.Second,
		FlushTimeout:     10 * time.Second,
		Retry:            apperr.DefaultRetryPolicy(),
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// AsyncPublisher queues events in memory and writes them from Run. Delivery
// goes through a circuit breaker so a broker outage costs one fast failure
// per event instead of a full retry cycle.
type AsyncPublisher struct {
	sink       Sink
	dispatcher *apperr.Dispatcher
	logger     zerolog.Logger
	opts       Options
	breaker    *gobreaker.CircuitBreaker
	queue      chan Event

	mu     sync.RWMutex
	closed bool
}

func NewAsyncPublisher(sink Sink, dispatcher *apperr.Dispatcher, logger zerolog.Logger, opts Options) *AsyncPublisher {
	def := DefaultOptions()
	if opts.BufferSize <= 0 {
		opts.BufferSize = def.BufferSize
	}
	if opts.FailureThreshold == 0 {
		opts.FailureThreshold = def.FailureThreshold
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = def.WriteTimeout
	}
	if opts.FlushTimeout <= 0 {
		opts.FlushTimeout = def.FlushTimeout
	}
	logger = logger.With().Str("component", "events").Logger()

	p := &AsyncPublisher{
		sink:       sink,
		dispatcher: dispatcher,
		logger:     logger,
		opts:       opts,
		queue:      make(chan Event, opts.BufferSize),
	}
	p.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "event-broker",
		MaxRequests: 1,
		Timeout:     opts.OpenTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= opts.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	})
	return p
}

// Publish never blocks on the broker. It fails when the buffer is full or
// the publisher has shut down.
func (p *AsyncPublisher) Publish(ctx context.Context, evt Event) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrClosed
	}
	select {
	case p.queue <- prepare(ctx, evt):
		return nil
	default:
		return ErrBufferFull
	}
}

// Run delivers queued events until ctx is done, then flushes what is left
// within FlushTimeout and closes the sink. An event picked from the queue
// after ctx is done goes to the flush instead of a cancelled write.
func (p *AsyncPublisher) Run(ctx context.Context) error {
	for {
		select {
		case evt := <-p.queue:
			if ctx.Err() != nil {
				return p.shutdown(evt)
			}
			p.deliver(ctx, evt)
		case <-ctx.Done():
			return p.shutdown()
		}
	}
}

func (p *AsyncPublisher) shutdown(pending ...Event) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), p.opts.FlushTimeout)
	defer cancel()
	for _, evt := range pending {
		p.deliver(ctx, evt)
	}
	for {
		select {
		case evt := <-p.queue:
			p.deliver(ctx, evt)
		default:
			return p.sink.Close()
		}
	}
}

func (p *AsyncPublisher) deliver(ctx context.Context, evt Event) {
	msg, err := encode(evt)
	if err != nil {
		p.logger.Error().Err(err).Str("event_type", evt.Type).Msg("encode event")
		return
	}

	_, err = p.breaker.Execute(func() (interface{}, error) {
		return nil, p.dispatcher.Retry(ctx, p.opts.Retry, func(ctx context.Context) error {
			wctx, cancel := context.WithTimeout(ctx, p.opts.WriteTimeout)
			defer cancel()
			return p.sink.WriteMessages(wctx, msg)
		})
	})
	if err != nil {
		p.logger.Warn().Err(err).
			Str("event_id", evt.ID).
			Str("event_type", evt.Type).
			Str("breaker_state", p.breaker.State().String()).
			Msg("event dropped")
		return
	}
	p.logger.Debug().Str("event_id", evt.ID).Str("event_type", evt.Type).Msg("event published")
}
