// Package estimator resolves Wi-Fi access point scans to a position through
// an external position estimate service.
package estimator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/ratelimit"

	"assettracker/internal/decoder"
	"assettracker/internal/model"
)

var (
	ErrNoAccessPoints = errors.New("no access points to resolve")
	ErrNoPosition     = errors.New("estimate has no point position")
	ErrDisabled       = errors.New("position estimator not configured")
)

// Estimator turns an access point scan into coordinates
type Estimator interface {
	Estimate(ctx context.Context, aps []decoder.AccessPoint) (decoder.Estimate, error)
}

// maxResponseBytes caps how much of an estimate response is read
const maxResponseBytes = 1 << 20

type estimateRequest struct {
	WiFiAccessPoints []decoder.AccessPoint `json:"WiFiAccessPoints"`
	Timestamp        float64               `json:"Timestamp"`
}

type estimateProperties struct {
	HorizontalAccuracy *float64 `json:"horizontalAccuracy"`
}

// estimateEnvelope accepts a Point geometry carrying properties, a Feature,
// or either of those wrapped in a "location" member
type estimateEnvelope struct {
	Type       string              `json:"type"`
	Properties *estimateProperties `json:"properties"`
	Location   json.RawMessage     `json:"location"`
}

// HTTPEstimator posts scans as JSON and parses the GeoJSON answer
type HTTPEstimator struct {
	url     string
	client  *http.Client
	limiter ratelimit.Limiter
	now     func() time.Time
}

type Option func(*HTTPEstimator)

// WithRate limits outgoing requests to perSecond
func WithRate(perSecond int) Option {
	return func(e *HTTPEstimator) {
		if perSecond > 0 {
			e.limiter = ratelimit.New(perSecond)
		}
	}
}

func NewHTTPEstimator(url string, timeout time.Duration, opts ...Option) *HTTPEstimator {
	e := &HTTPEstimator{
		url:     url,
		client:  &http.Client{Timeout: timeout},
		limiter: ratelimit.NewUnlimited(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *HTTPEstimator) Estimate(ctx context.Context, aps []decoder.AccessPoint) (decoder.Estimate, error) {
	if len(aps) == 0 {
		return decoder.Estimate{}, ErrNoAccessPoints
	}

	body, err := json.Marshal(estimateRequest{
		WiFiAccessPoints: aps,
		Timestamp:        float64(e.now().UnixMilli()) / 1000,
	})
	if err != nil {
		return decoder.Estimate{}, fmt.Errorf("failed to encode estimate request: %w", err)
	}

	e.limiter.Take()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(body))
	if err != nil {
		return decoder.Estimate{}, fmt.Errorf("failed to build estimate request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return decoder.Estimate{}, fmt.Errorf("failed to request estimate: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return decoder.Estimate{}, fmt.Errorf("HTTP %d from position estimator", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return decoder.Estimate{}, fmt.Errorf("failed to read estimate: %w", err)
	}
	return ParseEstimate(data)
}

// ParseEstimate reads a GeoJSON position estimate. Coordinates are
// [longitude, latitude]; properties.horizontalAccuracy is optional.
func ParseEstimate(data []byte) (decoder.Estimate, error) {
	var env estimateEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return decoder.Estimate{}, fmt.Errorf("failed to parse estimate: %w", err)
	}
	if len(env.Location) > 0 && string(env.Location) != "null" {
		return ParseEstimate(env.Location)
	}

	var (
		geom  orb.Geometry
		props *estimateProperties
	)
	if env.Type == "Feature" {
		f, err := geojson.UnmarshalFeature(data)
		if err != nil {
			return decoder.Estimate{}, fmt.Errorf("failed to parse estimate feature: %w", err)
		}
		geom = f.Geometry
		if v, ok := f.Properties["horizontalAccuracy"].(float64); ok {
			props = &estimateProperties{HorizontalAccuracy: &v}
		}
	} else {
		g, err := geojson.UnmarshalGeometry(data)
		if err != nil {
			return decoder.Estimate{}, fmt.Errorf("failed to parse estimate geometry: %w", err)
		}
		geom = g.Geometry()
		props = env.Properties
	}

	p, ok := geom.(orb.Point)
	if !ok {
		return decoder.Estimate{}, ErrNoPosition
	}
	coords := model.Coordinates{Lat: p.Lat(), Lng: p.Lon()}
	if !coords.Valid() {
		return decoder.Estimate{}, fmt.Errorf("estimate out of range: %v", p)
	}

	est := decoder.Estimate{Coordinates: coords, Accuracy: model.UnknownAccuracy}
	if props != nil && props.HorizontalAccuracy != nil && *props.HorizontalAccuracy >= 0 {
		est.Accuracy = model.KnownAccuracy(*props.HorizontalAccuracy)
	}
	return est, nil
}

// Disabled rejects every scan; used when no estimator URL is configured
type Disabled struct{}

func (Disabled) Estimate(context.Context, []decoder.AccessPoint) (decoder.Estimate, error) {
	return decoder.Estimate{}, ErrDisabled
}
