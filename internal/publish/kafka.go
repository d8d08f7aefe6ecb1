// Package publish pushes run findings onto a Kafka topic for downstream
// consumers. Publishing is best effort: a broker outage never fails a run.
package publish

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"authwatch/internal/config"
	"authwatch/internal/model"
)

// message is the wire envelope. Exactly one of Alert or Anomaly is set,
// discriminated by Kind.
type message struct {
	Kind    string               `json:"kind"`
	Alert   *model.Alert         `json:"alert,omitempty"`
	Anomaly *model.AnomalyResult `json:"anomaly,omitempty"`
}

const (
	kindAlert   = "bruteforce_alert"
	kindAnomaly = "anomalous_source"
)

type Publisher struct {
	writer *kafka.Writer
	logger *slog.Logger
}

// NewPublisher returns nil when publishing is disabled; callers tolerate a
// nil publisher.
func NewPublisher(cfg config.KafkaConfig, logger *slog.Logger) *Publisher {
	if !cfg.Enabled {
		return nil
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	}
	if logger != nil {
		logger.Info("kafka publisher enabled", "brokers", cfg.Brokers, "topic", cfg.Topic)
	}
	return &Publisher{writer: w, logger: logger}
}

func (p *Publisher) Close() error {
	if p == nil || p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// PublishRun emits one message per alert and one per anomalous source, keyed
// so records for the same address or account land on the same partition.
func (p *Publisher) PublishRun(ctx context.Context, res model.RunResult) {
	if p == nil || p.writer == nil {
		return
	}
	msgs := make([]kafka.Message, 0, len(res.Alerts))
	for i := range res.Alerts {
		a := res.Alerts[i]
		value, _ := json.Marshal(message{Kind: kindAlert, Alert: &a})
		msgs = append(msgs, kafka.Message{Key: []byte(a.Key), Value: value})
	}
	for i := range res.Anomalies {
		an := res.Anomalies[i]
		if !an.Anomalous {
			continue
		}
		value, _ := json.Marshal(message{Kind: kindAnomaly, Anomaly: &an})
		msgs = append(msgs, kafka.Message{Key: []byte(an.SourceAddr), Value: value})
	}
	if len(msgs) == 0 {
		return
	}
	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		if p.logger != nil {
			p.logger.Warn("kafka publish error", "err", err)
		}
		return
	}
	if p.logger != nil {
		p.logger.Info("run findings published", "messages", len(msgs))
	}
}
