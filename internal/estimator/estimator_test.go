package estimator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"assettracker/internal/decoder"
)

func TestParseEstimate(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		lat, lng float64
		accuracy float64
		known    bool
	}{
		{
			name: "point with properties",
			body: `{"type":"Point","coordinates":[13.4,52.5],"properties":{"horizontalAccuracy":25}}`,
			lat:  52.5, lng: 13.4, accuracy: 25, known: true,
		},
		{
			name: "feature",
			body: `{"type":"Feature","geometry":{"type":"Point","coordinates":[-0.1,51.5]},"properties":{"horizontalAccuracy":8.5}}`,
			lat:  51.5, lng: -0.1, accuracy: 8.5, known: true,
		},
		{
			name: "wrapped in location",
			body: `{"location":{"type":"Point","coordinates":[2.35,48.85],"properties":{}}}`,
			lat:  48.85, lng: 2.35,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			est, err := ParseEstimate([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseEstimate: %v", err)
			}
			if est.Coordinates.Lat != tt.lat || est.Coordinates.Lng != tt.lng {
				t.Errorf("coordinates = %+v", est.Coordinates)
			}
			if est.Accuracy.Known != tt.known || (tt.known && est.Accuracy.Meters != tt.accuracy) {
				t.Errorf("accuracy = %+v", est.Accuracy)
			}
		})
	}
}

func TestParseEstimateRejects(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"type":"LineString","coordinates":[[0,0],[1,1]]}`,
		`{"type":"Point","coordinates":[0,95]}`,
	} {
		if _, err := ParseEstimate([]byte(body)); err == nil {
			t.Errorf("%s: expected error", body)
		}
	}
}

func TestHTTPEstimator(t *testing.T) {
	var got estimateRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte(`{"type":"Point","coordinates":[13.4,52.5],"properties":{"horizontalAccuracy":30}}`))
	}))
	defer srv.Close()

	e := NewHTTPEstimator(srv.URL, time.Second, WithRate(100))
	aps := []decoder.AccessPoint{{MacAddress: "aa:bb:cc:dd:ee:ff", Rss: -60}, {MacAddress: "11:22:33:44:55:66", Rss: -75}}

	est, err := e.Estimate(context.Background(), aps)
	if err != nil {
		t.Fatalf("Estimate: %v", err)
	}
	if est.Coordinates.Lat != 52.5 || !est.Accuracy.Known || est.Accuracy.Meters != 30 {
		t.Errorf("estimate = %+v", est)
	}
	if len(got.WiFiAccessPoints) != 2 || got.WiFiAccessPoints[1].Rss != -75 || got.Timestamp <= 0 {
		t.Errorf("request = %+v", got)
	}
}

func TestHTTPEstimatorErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	e := NewHTTPEstimator(srv.URL, time.Second)
	if _, err := e.Estimate(context.Background(), nil); !errors.Is(err, ErrNoAccessPoints) {
		t.Errorf("empty scan err = %v", err)
	}
	if _, err := e.Estimate(context.Background(), []decoder.AccessPoint{{MacAddress: "aa", Rss: -1}}); err == nil {
		t.Error("expected error for 502")
	}
	if _, err := (Disabled{}).Estimate(context.Background(), nil); !errors.Is(err, ErrDisabled) {
		t.Errorf("disabled err = %v", err)
	}
}
