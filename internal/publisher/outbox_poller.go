package publisher

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/metrics"
	"github.com/fjod/storefront/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const DefaultTopic = "checkout-outbox"

// MessageWriter is the part of *kafka.Writer the poller uses.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// StaleRecoverer resolves checkout attempts abandoned mid-payment.
type StaleRecoverer interface {
	RecoverStale(ctx context.Context) (int, error)
}

type OutboxPoller struct {
	timeout      time.Duration
	eventTick    time.Duration
	recoveryTick time.Duration
	batchSize    int
	repo         repository.OutboxStore
	recoverer    StaleRecoverer
	writer       MessageWriter
	logger       *zap.Logger
}

func NewOutboxPoller(repo repository.OutboxStore, recoverer StaleRecoverer, logger *zap.Logger, topic string, brokers ...string) *OutboxPoller {
	if topic == "" {
		topic = DefaultTopic
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		timeout:      time.Second * 5,
		eventTick:    time.Second,
		recoveryTick: time.Second * 30,
		batchSize:    100,
		repo:         repo,
		recoverer:    recoverer,
		writer:       w,
		logger:       logger,
	}
}

// Run polls until ctx is cancelled, then closes the writer.
func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	defer func() {
		if err := p.writer.Close(); err != nil {
			p.logger.Warn("failed to close kafka writer", zap.Error(err))
		}
	}()

	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStaleAttempts(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, p.batchSize)
	if err != nil {
		p.logger.Error("failed to fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.logger.Warn("failed to publish event",
				zap.String("event_id", event.ID.String()),
				zap.String("event_type", event.EventType),
				zap.Error(err))
			metrics.RecordOutboxPublish("failed")
			continue
		}

		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Warn("failed to mark event as processed",
				zap.String("event_id", event.ID.String()),
				zap.Error(err))
			continue
		}
		metrics.RecordOutboxPublish("published")
	}
}

func (p *OutboxPoller) recoverStaleAttempts(ctx context.Context) {
	if p.recoverer == nil {
		return
	}
	n, err := p.recoverer.RecoverStale(ctx)
	if err != nil {
		p.logger.Error("failed to recover stale checkout attempts", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Info("stale checkout attempts recovered", zap.Int("count", n))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // attempt id keeps one checkout's events ordered
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "event_id", Value: []byte(event.ID.String())},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
