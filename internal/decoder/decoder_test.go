package decoder

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeJSON(t *testing.T) {
	u, err := DecodeJSON([]byte(`{
		"deviceId": "tracker-1",
		"latitude": 47.6062,
		"longitude": -122.3321,
		"sampleTime": "2024-03-01T12:00:00Z",
		"accuracy": {"horizontal": 25.5},
		"positionProperties": {"batteryLevel": 85},
		"firmware": "1.2.0"
	}`))
	if err != nil {
		t.Fatalf("DecodeJSON: %v", err)
	}
	if u.DeviceID != "tracker-1" {
		t.Errorf("DeviceID = %q", u.DeviceID)
	}
	if u.Lat != 47.6062 || u.Lng != -122.3321 {
		t.Errorf("coords = %v,%v", u.Lat, u.Lng)
	}
	if want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC); !u.SampleTime.Equal(want) {
		t.Errorf("SampleTime = %v, want %v", u.SampleTime, want)
	}
	if !u.Accuracy.Known || u.Accuracy.Meters != 25.5 {
		t.Errorf("Accuracy = %+v", u.Accuracy)
	}
	if u.Metadata["batteryLevel"] != float64(85) {
		t.Errorf("batteryLevel = %v", u.Metadata["batteryLevel"])
	}
	if u.Metadata["firmware"] != "1.2.0" {
		t.Errorf("unknown top-level key not preserved: %v", u.Metadata)
	}
}

func TestDecodeAliases(t *testing.T) {
	tests := []struct {
		name string
		raw  map[string]any
		lat  float64
		lng  float64
		ts   time.Time
	}{
		{
			name: "short names and epoch millis",
			raw:  map[string]any{"device_id": "d", "lat": 10.0, "lng": 20.0, "timestamp": int64(1700000000000)},
			lat:  10, lng: 20, ts: time.UnixMilli(1700000000000),
		},
		{
			name: "lon alias and numeric strings",
			raw:  map[string]any{"deviceId": "d", "lat": "-33.5", "lon": "151.25", "sampleTime": "1700000000000"},
			lat:  -33.5, lng: 151.25, ts: time.UnixMilli(1700000000000),
		},
		{
			name: "geojson position array",
			raw:  map[string]any{"deviceId": "d", "position": []any{100.0, -45.0}, "sampleTime": "2024-01-01T00:00:00.5Z"},
			lat:  -45, lng: 100, ts: time.Date(2024, 1, 1, 0, 0, 0, 5e8, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if u.Lat != tt.lat || u.Lng != tt.lng {
				t.Errorf("coords = %v,%v want %v,%v", u.Lat, u.Lng, tt.lat, tt.lng)
			}
			if !u.SampleTime.Equal(tt.ts) {
				t.Errorf("SampleTime = %v want %v", u.SampleTime, tt.ts)
			}
		})
	}
}

func TestDecodeAccuracy(t *testing.T) {
	base := func(acc any) map[string]any {
		m := map[string]any{"deviceId": "d", "lat": 1.0, "lng": 2.0, "sampleTime": "2024-01-01T00:00:00Z"}
		if acc != nil {
			m["accuracy"] = acc
		}
		return m
	}

	tests := []struct {
		name   string
		acc    any
		known  bool
		meters float64
	}{
		{"absent", nil, false, 0},
		{"plain number", 12.0, true, 12},
		{"zero is known", 0.0, true, 0},
		{"horizontal", map[string]any{"horizontal": 30.0}, true, 30},
		{"horizontal null", map[string]any{"horizontal": nil}, false, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Decode(base(tt.acc))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if u.Accuracy.Known != tt.known || u.Accuracy.Meters != tt.meters {
				t.Errorf("Accuracy = %+v, want known=%v meters=%v", u.Accuracy, tt.known, tt.meters)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	valid := func() map[string]any {
		return map[string]any{"deviceId": "d", "latitude": 1.0, "longitude": 2.0, "sampleTime": "2024-01-01T00:00:00Z"}
	}
	with := func(key string, v any) map[string]any {
		m := valid()
		m[key] = v
		return m
	}
	without := func(key string) map[string]any {
		m := valid()
		delete(m, key)
		return m
	}

	tests := []struct {
		name  string
		raw   map[string]any
		kind  error
		field string
	}{
		{"missing latitude", without("latitude"), ErrMissingField, FieldLatitude},
		{"missing longitude", without("longitude"), ErrMissingField, FieldLongitude},
		{"missing device", without("deviceId"), ErrMissingField, FieldDeviceID},
		{"missing sample time", without("sampleTime"), ErrMissingField, FieldSampleTime},
		{"latitude out of range", with("latitude", 95.0), ErrInvalidValue, FieldLatitude},
		{"longitude out of range", with("longitude", -180.5), ErrInvalidValue, FieldLongitude},
		{"latitude not a number", with("latitude", "north"), ErrInvalidValue, FieldLatitude},
		{"latitude bool", with("latitude", true), ErrInvalidValue, FieldLatitude},
		{"empty device", with("deviceId", " "), ErrInvalidValue, FieldDeviceID},
		{"device not string", with("deviceId", 7.0), ErrInvalidValue, FieldDeviceID},
		{"bad time", with("sampleTime", "yesterday"), ErrInvalidValue, FieldSampleTime},
		{"negative epoch", with("sampleTime", -5.0), ErrInvalidValue, FieldSampleTime},
		{"epoch overflows", with("sampleTime", 1e25), ErrInvalidValue, FieldSampleTime},
		{"epoch just past int64", with("sampleTime", 9.3e21), ErrInvalidValue, FieldSampleTime},
		{"epoch far future", with("sampleTime", 1e16), ErrInvalidValue, FieldSampleTime},
		{"epoch string far future", with("sampleTime", "10000000000000000"), ErrInvalidValue, FieldSampleTime},
		{"rfc3339 far future", with("sampleTime", "3024-01-01T00:00:00Z"), ErrInvalidValue, FieldSampleTime},
		{"negative accuracy", with("accuracy", -1.0), ErrInvalidValue, FieldAccuracy},
		{"nested metadata", with("metadata", map[string]any{"nested": map[string]any{"a": 1.0}}), ErrInvalidValue, "metadata.nested"},
		{"metadata not object", with("metadata", "x"), ErrInvalidValue, FieldMetadata},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.raw)
			if !errors.Is(err, tt.kind) {
				t.Fatalf("err = %v, want %v", err, tt.kind)
			}
			if got := FieldOf(err); got != tt.field {
				t.Errorf("field = %q, want %q", got, tt.field)
			}
		})
	}
}

func TestDecodeJSONRejectsNonObject(t *testing.T) {
	for _, in := range []string{`[1,2]`, `null`, `"x"`, `{`} {
		_, err := DecodeJSON([]byte(in))
		if !errors.Is(err, ErrInvalidValue) || FieldOf(err) != FieldPayload {
			t.Errorf("DecodeJSON(%s) err = %v", in, err)
		}
	}
}

func TestDecodeDoesNotClamp(t *testing.T) {
	_, err := Decode(map[string]any{"deviceId": "d", "latitude": 90.0000001, "longitude": 0.0, "sampleTime": "2024-01-01T00:00:00Z"})
	if !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected rejection, got %v", err)
	}

	u, err := Decode(map[string]any{"deviceId": "d", "latitude": 90.0, "longitude": -180.0, "sampleTime": "2024-01-01T00:00:00Z"})
	if err != nil {
		t.Fatalf("boundary values rejected: %v", err)
	}
	if u.Lat != 90 || u.Lng != -180 {
		t.Errorf("coords = %v,%v", u.Lat, u.Lng)
	}
}

func TestDecodeSampleTimeClockSkew(t *testing.T) {
	fixed := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	now = func() time.Time { return fixed }
	defer func() { now = time.Now }()

	raw := func(v any) map[string]any {
		return map[string]any{"deviceId": "d", "latitude": 1.0, "longitude": 2.0, "sampleTime": v}
	}

	inside := fixed.Add(MaxClockSkew - time.Minute)
	u, err := Decode(raw(float64(inside.UnixMilli())))
	if err != nil {
		t.Fatalf("sample inside the skew window rejected: %v", err)
	}
	if !u.SampleTime.Equal(inside) {
		t.Errorf("sampleTime = %v, want %v", u.SampleTime, inside)
	}

	outside := fixed.Add(MaxClockSkew + time.Minute)
	for _, v := range []any{float64(outside.UnixMilli()), outside.Format(time.RFC3339)} {
		_, err := Decode(raw(v))
		if !errors.Is(err, ErrInvalidValue) || FieldOf(err) != FieldSampleTime {
			t.Errorf("Decode(%v) err = %v, want invalid sampleTime", v, err)
		}
	}
}
