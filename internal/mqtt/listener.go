package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/sensor-bridge/internal/config"
	"github.com/lucaslui/hems/sensor-bridge/internal/metrics"
	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

type Ingester interface {
	Ingest(ctx context.Context, topic string, r *model.Reading) error
}

// Listener decodes broker messages and drives the ingest pipeline. At most one
// message is processed at a time and the broker callback does not return
// before that run finishes.
type Listener struct {
	mu       sync.Mutex
	ctx      context.Context
	ingester Ingester
	maxDepth int
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewListener(ctx context.Context, ing Ingester, maxDepth int, m *metrics.Metrics, logger zerolog.Logger) *Listener {
	return &Listener{
		ctx:      ctx,
		ingester: ing,
		maxDepth: maxDepth,
		metrics:  m,
		logger:   logger.With().Str("component", "listener").Logger(),
	}
}

// HandleMessage is the paho message handler.
func (l *Listener) HandleMessage(_ mqtt.Client, msg mqtt.Message) {
	_ = l.Process(msg.Topic(), msg.Payload())
}

// Process handles one payload and returns the error it reported, if any.
// Errors never escape to the broker client.
func (l *Listener) Process(topic string, payload []byte) (err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic while handling message: %v", p)
			l.logger.Error().Err(err).Str("topic", topic).Msg("message dropped")
		}
	}()

	l.metrics.MessageReceived()

	r, err := model.DecodeReading(payload, l.maxDepth)
	if err != nil {
		reason := metrics.ReasonInvalidMessage
		if errors.Is(err, model.ErrInvalidShape) {
			reason = metrics.ReasonInvalidShape
		}
		l.metrics.MessageRejected(reason)
		l.logger.Warn().Err(err).
			Str("topic", topic).
			Int("bytes", len(payload)).
			Str("payload", config.Truncate(payload, 256)).
			Msg("message dropped")
		return &model.IngestError{Stage: model.StageDecode, Err: err}
	}

	if err := l.ingester.Ingest(l.ctx, topic, r); err != nil {
		l.logger.Error().Err(err).Str("topic", topic).Msg("ingest failed")
		return err
	}
	return nil
}
