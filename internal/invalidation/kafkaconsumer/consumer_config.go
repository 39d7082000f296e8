package kafkaconsumer

import (
	"time"

	"github.com/mohammed-shakir/tile-gateway/internal/core/config"
)

type Config struct {
	Brokers             []string
	Topic               string
	GroupID             string
	SessionTimeout      time.Duration
	Heartbeat           time.Duration
	RebalanceTimeout    time.Duration
	InitialOffsetOldest bool
	// DedupeSize bounds the set of recently applied events.
	DedupeSize int
	LogLevel   string
}

func FromGateway(c config.InvalidationCfg, logLevel string) Config {
	return Config{
		Brokers:          c.BrokerList(),
		Topic:            c.Topic,
		GroupID:          c.GroupID,
		SessionTimeout:   30 * time.Second,
		Heartbeat:        3 * time.Second,
		RebalanceTimeout: 30 * time.Second,
		// admin events only matter for the running process
		InitialOffsetOldest: false,
		DedupeSize:          4096,
		LogLevel:            logLevel,
	}
}
