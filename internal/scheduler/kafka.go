package scheduler

import (
	"context"
	"time"

	"github.com/cimillas/stockhold/internal/app"
	"github.com/cimillas/stockhold/internal/clock"
	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("github.com/cimillas/stockhold/internal/scheduler")

// Reclaimer is the operation the consumer invokes once a hold is due.
type Reclaimer interface {
	ReclaimExpiredHold(ctx context.Context, holdID string) (app.ReclaimResult, error)
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaScheduler publishes one message per hold, keyed by hold ID so all
// deliveries for a hold land on the same partition.
type KafkaScheduler struct {
	writer messageWriter
}

func NewKafkaScheduler(brokers []string, topic string) *KafkaScheduler {
	return &KafkaScheduler{
		writer: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Topic:                  topic,
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (s *KafkaScheduler) ScheduleReclaim(ctx context.Context, holdID string, at time.Time) error {
	msg, err := encodeMessage(holdID, at)
	if err != nil {
		return err
	}
	otel.GetTextMapPropagator().Inject(ctx, headerCarrier{headers: &msg.Headers})
	return errors.Wrap(s.writer.WriteMessages(ctx, msg), "publish reclaim")
}

func (s *KafkaScheduler) Close() error {
	return s.writer.Close()
}

// KafkaConsumer waits for each message's due time, reclaims the hold and
// only then commits the offset. A failed reclaim is retried in place, so
// the partition does not advance past it.
type KafkaConsumer struct {
	reader     messageReader
	reclaimer  Reclaimer
	clock      clock.Clock
	logger     *zap.Logger
	retryDelay time.Duration
}

func NewKafkaConsumer(brokers []string, topic, groupID string, reclaimer Reclaimer, clk clock.Clock, logger *zap.Logger) *KafkaConsumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
		MaxWait:  time.Second,
	})
	return newKafkaConsumer(reader, reclaimer, clk, logger)
}

func newKafkaConsumer(reader messageReader, reclaimer Reclaimer, clk clock.Clock, logger *zap.Logger) *KafkaConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &KafkaConsumer{
		reader:     reader,
		reclaimer:  reclaimer,
		clock:      clk,
		logger:     logger,
		retryDelay: time.Second,
	}
}

// Run consumes until ctx is cancelled. It returns nil on cancellation.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	defer func() {
		if err := c.reader.Close(); err != nil {
			c.logger.Warn("close reclaim reader", zap.Error(err))
		}
	}()

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "fetch reclaim message")
		}
		if err := c.handle(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *KafkaConsumer) handle(ctx context.Context, msg kafka.Message) error {
	m, err := decodeMessage(msg)
	if err != nil {
		c.logger.Error("dropping malformed reclaim message",
			zap.Int("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)
		return c.commit(ctx, msg)
	}

	if err := c.waitUntil(ctx, m.DueAt); err != nil {
		return err
	}

	msgCtx := otel.GetTextMapPropagator().Extract(ctx, headerCarrier{headers: &msg.Headers})
	msgCtx, span := tracer.Start(msgCtx, "scheduler.Reclaim", trace.WithAttributes(
		attribute.String("hold.id", m.HoldID),
		attribute.String("reclaim.due_at", m.DueAt.Format(time.RFC3339)),
	))
	defer span.End()

	for {
		res, err := c.reclaimer.ReclaimExpiredHold(msgCtx, m.HoldID)
		if err == nil {
			span.SetAttributes(attribute.String("reclaim.reason", string(res.Reason)))
			break
		}
		span.RecordError(err)
		c.logger.Warn("reclaim failed, retrying", zap.String("hold_id", m.HoldID), zap.Error(err))
		if err := sleep(ctx, c.retryDelay); err != nil {
			span.SetStatus(codes.Error, "cancelled before reclaim succeeded")
			return err
		}
	}
	return c.commit(ctx, msg)
}

func (c *KafkaConsumer) commit(ctx context.Context, msg kafka.Message) error {
	return errors.Wrap(c.reader.CommitMessages(ctx, msg), "commit reclaim message")
}

func (c *KafkaConsumer) waitUntil(ctx context.Context, dueAt time.Time) error {
	return sleep(ctx, dueAt.Sub(c.clock.Now()))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
