package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/Shopify/sarama"
	"go.uber.org/zap"

	"energyiq/internal/observability/metrics"
	"energyiq/internal/telemetry/application"
)

// Config configures the reading consumer group.
type Config struct {
	Brokers       []string
	Topic         string
	GroupID       string
	BatchSize     int
	FlushInterval time.Duration
}

// Ingester stores decoded batches.
type Ingester interface {
	Ingest(ctx context.Context, batch application.Batch) (application.IngestResult, error)
}

// Consumer feeds readings from a Kafka topic into the reading store.
// Offsets are marked only after the batch holding them is stored.
type Consumer struct {
	cfg    Config
	group  sarama.ConsumerGroup
	ingest Ingester
	logger *zap.Logger
}

// NewConsumer connects a consumer group.
func NewConsumer(cfg Config, ingest Ingester, logger *zap.Logger) (*Consumer, error) {
	if len(cfg.Brokers) == 0 || cfg.Topic == "" || cfg.GroupID == "" {
		return nil, errors.New("reading consumer: brokers, topic and group required")
	}
	if ingest == nil {
		return nil, errors.New("reading consumer: nil ingester")
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	saramaConfig.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	saramaConfig.Consumer.Fetch.Default = 1024 * 1024
	saramaConfig.Consumer.MaxWaitTime = 250 * time.Millisecond

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}
	return newConsumer(cfg, group, ingest, logger), nil
}

func newConsumer(cfg Config, group sarama.ConsumerGroup, ingest Ingester, logger *zap.Logger) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 500
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Consumer{cfg: cfg, group: group, ingest: ingest, logger: logger}
}

// Run consumes until ctx is cancelled or the group fails.
func (c *Consumer) Run(ctx context.Context) error {
	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("reading consumer error", zap.Error(err))
		}
	}()

	handler := c.handler()
	for {
		if err := c.group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) handler() *claimHandler {
	return &claimHandler{
		ingest:        c.ingest,
		logger:        c.logger,
		batchSize:     c.cfg.BatchSize,
		flushInterval: c.cfg.FlushInterval,
	}
}

// claimHandler implements sarama.ConsumerGroupHandler.
type claimHandler struct {
	ingest        Ingester
	logger        *zap.Logger
	batchSize     int
	flushInterval time.Duration
}

func (h *claimHandler) Setup(_ sarama.ConsumerGroupSession) error   { return nil }
func (h *claimHandler) Cleanup(_ sarama.ConsumerGroupSession) error { return nil }

type pendingMessage struct {
	msg   *sarama.ConsumerMessage
	batch application.Batch
}

func (p pendingMessage) empty() bool {
	return len(p.batch.Devices) == 0 && len(p.batch.Readings) == 0
}

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ticker := time.NewTicker(h.flushInterval)
	defer ticker.Stop()

	var pending []pendingMessage
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if err := h.store(session, pending); err != nil {
			return err
		}
		last := pending[len(pending)-1].msg
		if !last.Timestamp.IsZero() {
			metrics.ObserveConsumerLag("kafka", time.Since(last.Timestamp))
		}
		pending = pending[:0]
		return nil
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return flush()
			}
			decoded, err := application.DecodeBatch(msg.Value)
			if err != nil {
				h.logger.Warn("reading consumer: dropping undecodable message",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
				metrics.IncIngestError("kafka_decode")
				pending = append(pending, pendingMessage{msg: msg})
				continue
			}
			pending = append(pending, pendingMessage{msg: msg, batch: decoded})
			if len(pending) >= h.batchSize {
				if err := flush(); err != nil {
					return err
				}
			}
		case <-ticker.C:
			if err := flush(); err != nil {
				return err
			}
		case <-session.Context().Done():
			return nil
		}
	}
}

// store ingests pending as one batch and marks every message. When the batch
// is rejected as invalid, messages are retried one by one so that only the
// offending ones are dropped. Store failures leave the remaining offsets
// unmarked for redelivery.
func (h *claimHandler) store(session sarama.ConsumerGroupSession, pending []pendingMessage) error {
	var combined application.Batch
	for _, p := range pending {
		combined.Devices = append(combined.Devices, p.batch.Devices...)
		combined.Readings = append(combined.Readings, p.batch.Readings...)
	}
	if len(combined.Devices) == 0 && len(combined.Readings) == 0 {
		markAll(session, pending)
		return nil
	}

	err := h.ingestBatch(session.Context(), combined)
	if err == nil {
		markAll(session, pending)
		return nil
	}
	if !application.IsValidation(err) {
		return err
	}

	h.logger.Warn("reading consumer: batch rejected, isolating messages", zap.Int("messages", len(pending)), zap.Error(err))
	for _, p := range pending {
		if !p.empty() {
			if err := h.ingestBatch(session.Context(), p.batch); err != nil {
				if !application.IsValidation(err) {
					return err
				}
				h.logger.Warn("reading consumer: dropping rejected message",
					zap.String("topic", p.msg.Topic),
					zap.Int32("partition", p.msg.Partition),
					zap.Int64("offset", p.msg.Offset),
					zap.Error(err),
				)
				metrics.IncIngestError("kafka_rejected")
			}
		}
		session.MarkMessage(p.msg, "")
	}
	return nil
}

func (h *claimHandler) ingestBatch(ctx context.Context, batch application.Batch) error {
	start := time.Now()
	result, err := h.ingest.Ingest(ctx, batch)
	if err != nil {
		metrics.IncIngestError("kafka_store")
		metrics.ObserveIngest(metrics.ResultError, time.Since(start), 0)
		return err
	}
	metrics.ObserveIngest(metrics.ResultSuccess, time.Since(start), result.Inserted)
	return nil
}

func markAll(session sarama.ConsumerGroupSession, pending []pendingMessage) {
	for _, p := range pending {
		session.MarkMessage(p.msg, "")
	}
}
