package events

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"storefront-be/internal/logger"
	"storefront-be/internal/metrics"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher queues envelopes in memory and writes them from a single
// goroutine, so a slow broker never holds up a checkout request.
type KafkaPublisher struct {
	w            messageWriter
	inbox        chan kafka.Message
	writeTimeout time.Duration

	once    sync.Once
	closeCh chan struct{}

	published metrics.Counter
	failed    metrics.Counter
	dropped   metrics.Counter
}

// Stats is a point-in-time view of the publisher's delivery counters.
type Stats struct {
	Published uint64 `json:"published"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
}

func NewKafkaPublisher(brokers []string, topic string, buf int) *KafkaPublisher {
	return newKafkaPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}, buf)
}

func newKafkaPublisher(w messageWriter, buf int) *KafkaPublisher {
	return &KafkaPublisher{
		w:            w,
		inbox:        make(chan kafka.Message, buf),
		writeTimeout: 10 * time.Second,
		closeCh:      make(chan struct{}),
	}
}

// Start runs the write loop until Close is called.
func (p *KafkaPublisher) Start() {
	go func() {
		defer close(p.closeCh)
		for m := range p.inbox {
			p.write(m)
		}
		if err := p.w.Close(); err != nil {
			logger.L().Warn("kafka writer close failed", zap.Error(err))
		}
		st := p.Stats()
		logger.L().Info("event publisher stopped",
			zap.Uint64("published", st.Published),
			zap.Uint64("failed", st.Failed),
			zap.Uint64("dropped", st.Dropped),
		)
	}()
}

func (p *KafkaPublisher) write(m kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
	defer cancel()

	if err := p.w.WriteMessages(ctx, m); err != nil {
		p.failed.Inc()
		logger.L().Error("failed to publish event",
			zap.String("key", string(m.Key)),
			zap.Error(err),
		)
		return
	}
	p.published.Inc()
}

// Publish enqueues ev. When the queue is full the event is dropped and
// logged rather than blocking.
func (p *KafkaPublisher) Publish(ctx context.Context, ev Envelope) {
	value, err := json.Marshal(ev)
	if err != nil {
		logger.FromCtx(ctx).Error("failed to marshal event", zap.String("event_type", ev.EventType), zap.Error(err))
		return
	}

	msg := kafka.Message{
		Key:   []byte(ev.CorrelationID),
		Value: value,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-event-type", Value: []byte(ev.EventType)},
			{Key: "x-event-version", Value: []byte(strconv.Itoa(ev.EventVersion))},
		},
	}

	select {
	case p.inbox <- msg:
	default:
		p.dropped.Inc()
		logger.FromCtx(ctx).Warn("event queue full, dropping event",
			zap.String("event_type", ev.EventType),
			zap.String("event_id", ev.EventID),
		)
	}
}

func (p *KafkaPublisher) Stats() Stats {
	return Stats{
		Published: p.published.Load(),
		Failed:    p.failed.Load(),
		Dropped:   p.dropped.Load(),
	}
}

// Close flushes queued events and waits for the writer to shut down.
func (p *KafkaPublisher) Close() {
	p.once.Do(func() { close(p.inbox) })
	<-p.closeCh
}
