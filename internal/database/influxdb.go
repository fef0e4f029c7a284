package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog"

	"github.com/lucaslui/hems/sensor-bridge/internal/config"
	"github.com/lucaslui/hems/sensor-bridge/internal/model"
)

// ErrEmptyRecord is returned for a record without fields; InfluxDB rejects
// points that carry none.
var ErrEmptyRecord = errors.New("record has no fields")

type InfluxDB struct {
	Client       influxdb2.Client
	WriteAPI     api.WriteAPIBlocking
	Measurement  string
	WriteTimeout time.Duration
	logger       zerolog.Logger
}

func NewInfluxDB(cfg config.InfluxConfig, logger zerolog.Logger) *InfluxDB {
	opts := influxdb2.DefaultOptions()
	if cfg.WriteTimeout > 0 {
		opts.SetHTTPRequestTimeout(uint((cfg.WriteTimeout + time.Second - 1) / time.Second))
	}
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	db := NewWriter(client.WriteAPIBlocking(cfg.Org, cfg.Bucket), cfg.Measurement, cfg.WriteTimeout, logger)
	db.Client = client
	return db
}

// NewWriter builds an InfluxDB writer on top of an existing blocking write API.
func NewWriter(w api.WriteAPIBlocking, measurement string, timeout time.Duration, logger zerolog.Logger) *InfluxDB {
	if measurement == "" {
		measurement = model.DefaultMeasurement
	}
	return &InfluxDB{
		WriteAPI:     w,
		Measurement:  measurement,
		WriteTimeout: timeout,
		logger:       logger.With().Str("component", "influxdb").Logger(),
	}
}

// Ping reports whether the server answers. Only used for the boot log.
func (db *InfluxDB) Ping(ctx context.Context) error {
	if db.Client == nil {
		return nil
	}
	ok, err := db.Client.Ping(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("influxdb ping failed")
	}
	return nil
}

func (db *InfluxDB) Close() {
	if db != nil && db.Client != nil {
		db.Client.Close()
		db.logger.Info().Msg("influxdb client closed")
	}
}

// Persist writes rec as one point with a single blocking call. Any failure,
// including the write timeout, is wrapped in model.ErrWrite. Nothing is
// retried.
func (db *InfluxDB) Persist(ctx context.Context, rec model.Record) error {
	if len(rec.Fields) == 0 {
		return fmt.Errorf("%w: %w", model.ErrWrite, ErrEmptyRecord)
	}
	if db.WriteTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.WriteTimeout)
		defer cancel()
	}

	point := db.buildPoint(rec)
	if err := db.WriteAPI.WritePoint(ctx, point); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: timed out after %s: %w", model.ErrWrite, db.WriteTimeout, err)
		}
		return fmt.Errorf("%w: %w", model.ErrWrite, err)
	}
	return nil
}

// no timestamp: the server stamps the point on arrival
func (db *InfluxDB) buildPoint(rec model.Record) *write.Point {
	measurement := rec.Measurement
	if measurement == "" {
		measurement = db.Measurement
	}
	p := write.NewPointWithMeasurement(measurement)
	for _, f := range rec.Fields {
		p.AddField(f.Key, f.Value.Interface())
	}
	return p
}
