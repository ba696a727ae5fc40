package invalidation

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/IBM/sarama"
)

// Publisher broadcasts events so every resolver instance drops the same entries.
type Publisher struct {
	logger  *slog.Logger
	topic   string
	events  chan Event
	prod    sarama.AsyncProducer
	stopped chan struct{}
	once    sync.Once
}

func NewPublisher(brokers []string, topic string, logger *slog.Logger) (*Publisher, error) {
	cfg := sarama.NewConfig()
	cfg.Version = sarama.V2_5_0_0
	cfg.Producer.Return.Errors = true
	cfg.Producer.Return.Successes = false

	prod, err := sarama.NewAsyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("invalidation: create async producer: %w", err)
	}
	return NewPublisherWith(prod, topic, 256, logger), nil
}

// NewPublisherWith publishes through an existing producer.
func NewPublisherWith(prod sarama.AsyncProducer, topic string, queueSize int, logger *slog.Logger) *Publisher {
	if queueSize <= 0 {
		queueSize = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Publisher{
		logger:  logger,
		topic:   topic,
		events:  make(chan Event, queueSize),
		prod:    prod,
		stopped: make(chan struct{}),
	}

	go func() {
		defer close(p.stopped)
		for ev := range p.events {
			b, err := json.Marshal(ev)
			if err != nil {
				p.logger.Error("invalidation marshal failed", "err", err)
				continue
			}
			msg := &sarama.ProducerMessage{Topic: p.topic, Value: sarama.ByteEncoder(b)}
			if ev.ServiceURL != "" {
				// one partition per service keeps its events ordered
				msg.Key = sarama.StringEncoder(ev.ServiceURL)
			}
			p.prod.Input() <- msg
		}
	}()

	go func() {
		for err := range p.prod.Errors() {
			if err != nil {
				p.logger.Error("invalidation publish failed", "err", err)
			}
		}
	}()
	return p
}

// Publish queues ev. A full queue drops the event rather than block the caller.
func (p *Publisher) Publish(ev Event) {
	select {
	case p.events <- ev:
	default:
		p.logger.Warn("invalidation queue full, event dropped", "scope", ev.Scope, "service_url", ev.ServiceURL)
	}
}

func (p *Publisher) Close() error {
	var err error
	p.once.Do(func() {
		close(p.events)
		<-p.stopped
		if cerr := p.prod.Close(); cerr != nil {
			err = fmt.Errorf("invalidation: close producer: %w", cerr)
		}
	})
	return err
}
