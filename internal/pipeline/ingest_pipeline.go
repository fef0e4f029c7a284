package pipeline

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/sensor-bridge/internal/metrics"
	"github.com/lucaslui/hems/sensor-bridge/internal/model"
	"github.com/lucaslui/hems/sensor-bridge/internal/processing"
)

type SnapshotStore interface {
	Set(topic string, r *model.Reading)
}

type RecordWriter interface {
	Persist(ctx context.Context, rec model.Record) error
}

// Pipeline runs one decoded reading through cache update, flatten, coerce and
// persist. It holds no per-message state and is driven by a single listener.
type Pipeline struct {
	latest      SnapshotStore
	writer      RecordWriter
	measurement string
	metrics     *metrics.Metrics
	logger      zerolog.Logger
}

func New(latest SnapshotStore, writer RecordWriter, measurement string, m *metrics.Metrics, logger zerolog.Logger) *Pipeline {
	if measurement == "" {
		measurement = model.DefaultMeasurement
	}
	return &Pipeline{
		latest:      latest,
		writer:      writer,
		measurement: measurement,
		metrics:     m,
		logger:      logger.With().Str("component", "pipeline").Logger(),
	}
}

// Ingest updates the latest snapshot first and unconditionally, then writes
// the flattened record. A failure after the snapshot update is returned as
// *model.IngestError and leaves the snapshot in place.
func (p *Pipeline) Ingest(ctx context.Context, topic string, r *model.Reading) error {
	if r == nil {
		p.metrics.IngestFailed()
		return &model.IngestError{Stage: model.StageFlatten, Err: model.ErrInvalidShape}
	}
	p.latest.Set(topic, r)

	flat, err := processing.Flatten(r)
	if err != nil {
		p.metrics.IngestFailed()
		return &model.IngestError{Stage: model.StageFlatten, Err: err}
	}

	rec := BuildRecord(p.measurement, flat)

	start := time.Now()
	err = p.writer.Persist(ctx, rec)
	p.metrics.ObserveWrite(time.Since(start), err)
	if err != nil {
		p.metrics.IngestFailed()
		return &model.IngestError{Stage: model.StagePersist, Err: err}
	}

	p.logger.Debug().Str("topic", topic).Int("fields", len(rec.Fields)).Msg("record written")
	return nil
}

// BuildRecord coerces every flattened field. Null leaves are dropped, the
// store has no null field value.
func BuildRecord(measurement string, flat model.FlatFields) model.Record {
	fields := flat.Fields()
	rec := model.Record{
		Measurement: measurement,
		Fields:      make([]model.TypedField, 0, len(fields)),
	}
	for _, f := range fields {
		if f.Value == nil {
			continue
		}
		rec.Fields = append(rec.Fields, model.TypedField{Key: f.Key, Value: processing.Coerce(f.Value)})
	}
	return rec
}
