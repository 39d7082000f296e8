// Package kafkaconsumer applies invalidation events read from a Kafka topic.
package kafkaconsumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/IBM/sarama"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog"

	"github.com/mohammed-shakir/tile-gateway/internal/core/model"
	obs "github.com/mohammed-shakir/tile-gateway/internal/core/observability"
	"github.com/mohammed-shakir/tile-gateway/internal/invalidation"
	mylog "github.com/mohammed-shakir/tile-gateway/internal/logger"
)

type Consumer struct {
	cfg    Config
	logger *slog.Logger
	target invalidation.Target
	zlog   *zerolog.Logger

	mu         sync.Mutex
	seen       *lru.Cache[string, struct{}]
	partitions []int32
}

func New(cfg Config, logger *slog.Logger, target invalidation.Target) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DedupeSize <= 0 {
		cfg.DedupeSize = 4096
	}
	seen, _ := lru.New[string, struct{}](cfg.DedupeSize)

	base := mylog.WithComponent(context.Background(), "kafka_consumer")
	zl := mylog.Build(mylog.Config{Level: cfg.LogLevel, Service: "tile-gateway", Component: "kafka_consumer"}, nil)

	return &Consumer{
		cfg:    cfg,
		logger: logger,
		target: target,
		zlog:   mylog.FromContext(base, &zl),
		seen:   seen,
	}
}

// Start consumes invalidation events until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	if c.target == nil {
		return errors.New("kafkaconsumer: missing invalidation target")
	}
	if len(c.cfg.Brokers) == 0 {
		return errors.New("kafkaconsumer: no brokers configured")
	}

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_1_0_0
	cfg.Consumer.Group.Session.Timeout = c.cfg.SessionTimeout
	cfg.Consumer.Group.Heartbeat.Interval = c.cfg.Heartbeat
	cfg.Consumer.Group.Rebalance.Timeout = c.cfg.RebalanceTimeout
	if c.cfg.InitialOffsetOldest {
		cfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		cfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}
	cfg.Consumer.Offsets.AutoCommit.Enable = true

	group, err := sarama.NewConsumerGroup(c.cfg.Brokers, c.cfg.GroupID, cfg)
	if err != nil {
		return fmt.Errorf("create consumer group: %w", err)
	}
	defer func() { _ = group.Close() }()

	handler := &groupHandler{topic: c.cfg.Topic, process: c.ProcessOne, assigned: c.setPartitions}

	c.logger.Info("kafka invalidation consumer starting",
		"brokers", c.cfg.Brokers, "topic", c.cfg.Topic, "group", c.cfg.GroupID)

	for {
		if err := group.Consume(ctx, []string{c.cfg.Topic}, handler); err != nil {
			c.zlog.Error().Err(err).
				Strs("brokers", c.cfg.Brokers).
				Str("topic", c.cfg.Topic).
				Msg("kafka consumer error")
			select {
			case <-ctx.Done():
			case <-time.After(2 * time.Second):
			}
		}
		if ctx.Err() != nil {
			c.logger.Info("kafka invalidation consumer shutting down")
			return nil
		}
	}
}

func (c *Consumer) setPartitions(p []int32) {
	c.mu.Lock()
	c.partitions = append([]int32(nil), p...)
	c.mu.Unlock()
}

// Readiness reports whether the consumer currently holds partitions of the
// invalidation topic.
func (c *Consumer) Readiness() (bool, []int32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.partitions) > 0, append([]int32(nil), c.partitions...)
}

// ProcessOne applies a single message. Malformed events and events naming
// unknown endpoints are logged and skipped; other failures are returned so
// the message is redelivered.
func (c *Consumer) ProcessOne(ctx context.Context, msg *sarama.ConsumerMessage) error {
	start := time.Now()
	zl := mylog.FromContext(ctx, c.zlog)

	var ev invalidation.Event
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		obs.IncInvalidation("unknown", "invalid")
		zl.Error().
			Str("kind", "decode").
			Str("topic", msg.Topic).
			Int32("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Err(err).
			Msg("skipping undecodable event")
		return nil
	}
	if err := ev.Validate(); err != nil {
		obs.IncInvalidation(ev.Op, "invalid")
		zl.Warn().Str("op", ev.Op).Int64("offset", msg.Offset).Err(err).Msg("skipping invalid event")
		return nil
	}

	key := ev.DedupeKey()
	c.mu.Lock()
	dup := c.seen.Contains(key)
	c.mu.Unlock()
	if dup {
		obs.IncInvalidation(ev.Op, "duplicate")
		c.logger.Debug("duplicate invalidation event", "op", ev.Op, "endpoint", ev.Endpoint)
		return nil
	}

	if err := invalidation.Apply(ctx, c.target, ev); err != nil {
		if errors.Is(err, model.ErrUnknownEndpoint) {
			obs.IncInvalidation(ev.Op, "invalid")
			zl.Warn().Str("op", ev.Op).Str("endpoint", ev.Endpoint).Msg("skipping event for unknown endpoint")
			return nil
		}
		obs.IncInvalidation(ev.Op, "error")
		return fmt.Errorf("apply %s: %w", ev.Op, err)
	}

	c.mu.Lock()
	c.seen.Add(key, struct{}{})
	c.mu.Unlock()

	obs.IncInvalidation(ev.Op, "ok")
	obs.ObserveUpstreamLatency("kafka_apply", time.Since(start).Seconds())
	zl.Info().
		Str("event", "invalidation").
		Str("op", ev.Op).
		Str("endpoint", ev.Endpoint).
		Str("source", ev.Source).
		Msg("invalidation applied")
	return nil
}
