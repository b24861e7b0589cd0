// Package ingest feeds raw telemetry and tracker uplinks into the position
// service.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"assettracker/internal/decoder"
	"assettracker/internal/estimator"
	"assettracker/internal/model"
	"assettracker/internal/observability"
)

// Sink accepts decoded updates
type Sink interface {
	Ingest(ctx context.Context, u model.PositionUpdate) error
}

var ErrUnresolved = errors.New("uplink carries no resolvable position")

// Pipeline decodes incoming payloads and hands them to the sink
type Pipeline struct {
	sink      Sink
	estimator estimator.Estimator
	logger    *slog.Logger
}

func NewPipeline(sink Sink, est estimator.Estimator, logger *slog.Logger) *Pipeline {
	if est == nil {
		est = estimator.Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{sink: sink, estimator: est, logger: logger.With("component", "ingest")}
}

// HandleMessage decodes one telemetry document. Decode failures are counted
// per field and returned; the caller drops the message.
func (p *Pipeline) HandleMessage(ctx context.Context, payload []byte) (model.PositionUpdate, error) {
	u, err := decoder.DecodeJSON(payload)
	if err != nil {
		observability.DecodeErrors.WithLabelValues(decoder.FieldOf(err)).Inc()
		return model.PositionUpdate{}, err
	}
	observability.PositionsDecoded.Inc()

	if err := p.sink.Ingest(ctx, u); err != nil {
		return u, fmt.Errorf("failed to ingest %s: %w", u.DeviceID, err)
	}
	return u, nil
}

// UplinkResult reports what became of a tracker uplink
type UplinkResult struct {
	Uplink   decoder.Uplink
	Position *model.PositionUpdate
}

// HandleUplink decodes a tracker frame. Single Wi-Fi scans are resolved
// through the estimator and ingested; other frames are decoded and
// reported without a position.
func (p *Pipeline) HandleUplink(ctx context.Context, env decoder.UplinkEnvelope, receivedAt time.Time) (UplinkResult, error) {
	up, err := decoder.DecodeUplink(env, receivedAt)
	if err != nil {
		observability.DecodeErrors.WithLabelValues(decoder.FieldOf(err)).Inc()
		return UplinkResult{}, err
	}
	observability.UplinksDecoded.WithLabelValues(string(up.Kind)).Inc()
	res := UplinkResult{Uplink: up}

	aps, ok := up.PositionRequest()
	if !ok {
		p.logger.Debug("uplink without position", "device", up.DeviceID, "kind", up.Kind, "frag", up.FragNum)
		return res, nil
	}

	est, err := p.estimator.Estimate(ctx, aps)
	if err != nil {
		return res, fmt.Errorf("%w: %v", ErrUnresolved, err)
	}

	u, err := decoder.Decode(up.ToTelemetry(est))
	if err != nil {
		observability.DecodeErrors.WithLabelValues(decoder.FieldOf(err)).Inc()
		return res, err
	}
	observability.PositionsDecoded.Inc()

	if err := p.sink.Ingest(ctx, u); err != nil {
		return res, fmt.Errorf("failed to ingest %s: %w", u.DeviceID, err)
	}
	res.Position = &u
	return res, nil
}
