package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// GeofenceEventType is the direction of a geofence crossing
type GeofenceEventType string

const (
	GeofenceEnter GeofenceEventType = "ENTER"
	GeofenceExit  GeofenceEventType = "EXIT"
)

var ErrInvalidGeofenceEvent = errors.New("invalid geofence event")

// ParseGeofenceEventType accepts ENTER/EXIT in any case
func ParseGeofenceEventType(s string) (GeofenceEventType, error) {
	switch GeofenceEventType(strings.ToUpper(strings.TrimSpace(s))) {
	case GeofenceEnter:
		return GeofenceEnter, nil
	case GeofenceExit:
		return GeofenceExit, nil
	}
	return "", fmt.Errorf("%w: event type %q", ErrInvalidGeofenceEvent, s)
}

// GeofenceEvent is emitted by the external geofence evaluator. Immutable once built.
type GeofenceEvent struct {
	DeviceID   string            `json:"deviceId"`
	GeofenceID string            `json:"geofenceId"`
	EventType  GeofenceEventType `json:"eventType"`
	SampleTime time.Time         `json:"sampleTime"`
}

func NewGeofenceEvent(deviceID, geofenceID string, eventType GeofenceEventType, sampleTime time.Time) (GeofenceEvent, error) {
	if deviceID == "" {
		return GeofenceEvent{}, fmt.Errorf("%w: deviceId is empty", ErrInvalidGeofenceEvent)
	}
	if geofenceID == "" {
		return GeofenceEvent{}, fmt.Errorf("%w: geofenceId is empty", ErrInvalidGeofenceEvent)
	}
	if eventType != GeofenceEnter && eventType != GeofenceExit {
		return GeofenceEvent{}, fmt.Errorf("%w: event type %q", ErrInvalidGeofenceEvent, eventType)
	}
	if sampleTime.IsZero() {
		return GeofenceEvent{}, fmt.Errorf("%w: sampleTime is zero", ErrInvalidGeofenceEvent)
	}
	return GeofenceEvent{
		DeviceID:   deviceID,
		GeofenceID: geofenceID,
		EventType:  eventType,
		SampleTime: sampleTime,
	}, nil
}
