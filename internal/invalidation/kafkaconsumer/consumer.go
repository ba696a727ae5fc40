// Package kafkaconsumer evicts capabilities cache entries on invalidation
// events read from a Kafka topic.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"

	"github.com/mohammed-shakir/ogcapi-resolver/internal/core/observability"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/invalidation"
	"github.com/mohammed-shakir/ogcapi-resolver/internal/logger"
)

type Invalidator interface {
	Invalidate(ctx context.Context, serviceURL string) error
	InvalidateAll(ctx context.Context) error
}

type Consumer struct {
	cfg      Config
	logger   *slog.Logger
	cache    Invalidator
	seq      *seqDedupe
	assigned atomic.Bool
	wg       sync.WaitGroup
	cancel   context.CancelFunc
}

func New(cfg Config, logger *slog.Logger, c Invalidator) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{
		cfg:    cfg,
		logger: logger,
		cache:  c,
		seq:    newSeqDedupe(cfg.DedupeSize),
	}
}

// Start joins the consumer group and consumes in the background until ctx is
// cancelled or Stop is called.
func (c *Consumer) Start(ctx context.Context) error {
	if c.cache == nil {
		return errors.New("kafkaconsumer: cache dependency is required")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		cancel()
		return fmt.Errorf("create consumer group: %w", err)
	}

	h := &groupHandler{
		setup:   func(sarama.ConsumerGroupSession) { c.assigned.Store(true) },
		cleanup: func(sarama.ConsumerGroupSession) { c.assigned.Store(false) },
		process: c.ProcessOne,
	}

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		defer func() {
			if err := group.Close(); err != nil {
				c.logger.Error("kafka consumer group close", "err", err)
			}
		}()
		for {
			if err := group.Consume(ctx, []string{c.cfg.Topic}, h); err != nil {
				c.logger.Error("kafka consume error", "err", err)
				select {
				case <-time.After(2 * time.Second):
				case <-ctx.Done():
					return
				}
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()
	go func() {
		defer c.wg.Done()
		for err := range group.Errors() {
			c.logger.Error("kafka group error", "err", err)
		}
	}()

	c.logger.Info("kafka invalidation consumer started",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)
	return nil
}

func (c *Consumer) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	c.logger.Info("kafka invalidation consumer stopped")
}

// Ready reports whether the consumer currently holds a group session.
func (c *Consumer) Ready() bool { return c.assigned.Load() }

// ProcessOne applies one message. Undecodable or invalid events are logged and
// skipped; only cache failures are returned so the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	ctx = logger.WithComponent(ctx, "kafka_consumer")

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		observability.ObserveInvalidation("invalid", err)
		c.logger.WarnContext(ctx, "invalidation event undecodable",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if err := ev.Validate(); err != nil {
		observability.ObserveInvalidation("invalid", err)
		c.logger.WarnContext(ctx, "invalidation event rejected",
			"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "err", err)
		return nil
	}
	if !c.seq.shouldApply(ev.DedupeKey(), ev.Seq) {
		c.logger.DebugContext(ctx, "stale invalidation skipped", "service_url", ev.ServiceURL, "seq", ev.Seq)
		return nil
	}

	var err error
	switch ev.Scope {
	case invalidation.ScopeAll:
		err = c.cache.InvalidateAll(ctx)
	default:
		err = c.cache.Invalidate(logger.WithService(ctx, ev.ServiceURL), ev.ServiceURL)
	}
	observability.ObserveInvalidation(string(ev.Scope), err)
	if err != nil {
		c.seq.forget(ev.DedupeKey(), ev.Seq)
		return fmt.Errorf("invalidate %s: %w", ev.Scope, err)
	}
	c.logger.InfoContext(ctx, "capabilities invalidated",
		"scope", ev.Scope, "service_url", ev.ServiceURL, "partition", msg.Partition, "offset", msg.Offset)
	return nil
}

type groupHandler struct {
	setup   func(sarama.ConsumerGroupSession)
	cleanup func(sarama.ConsumerGroupSession)
	process func(context.Context, *sarama.ConsumerMessage) error
}

func (h *groupHandler) Setup(sess sarama.ConsumerGroupSession) error {
	if h.setup != nil {
		h.setup(sess)
	}
	return nil
}

func (h *groupHandler) Cleanup(sess sarama.ConsumerGroupSession) error {
	if h.cleanup != nil {
		h.cleanup(sess)
	}
	return nil
}

// ConsumeClaim marks each message only after it was applied.
func (h *groupHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	ctx := sess.Context()
	for msg := range claim.Messages() {
		if err := h.process(ctx, msg); err != nil {
			return err
		}
		sess.MarkMessage(msg, "")
	}
	return nil
}
