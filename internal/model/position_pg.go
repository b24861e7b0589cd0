package model

import (
	"time"
)

// PositionPG is the GORM model for one row of device position history
type PositionPG struct {
	ID             uint64         `gorm:"primaryKey;autoIncrement"`
	DeviceID       string         `gorm:"size:128;not null;index:idx_position_device_time,priority:1"`
	Lat            float64        `gorm:"not null"`
	Lng            float64        `gorm:"not null"`
	SampleTime     time.Time      `gorm:"not null;index:idx_position_device_time,priority:2"`
	AccuracyMeters *float64       `gorm:"column:accuracy_meters"`
	Metadata       map[string]any `gorm:"serializer:json;type:jsonb"`

	CreatedAt time.Time `gorm:"column:created_at"`
}

// TableName overrides the table name
func (PositionPG) TableName() string {
	return "position_history"
}

// ToPG converts the canonical update to its history row
func (u PositionUpdate) ToPG() *PositionPG {
	row := &PositionPG{
		DeviceID:   u.DeviceID,
		Lat:        u.Lat,
		Lng:        u.Lng,
		SampleTime: u.SampleTime.UTC(),
		Metadata:   u.Metadata.Clone(),
	}
	if u.Accuracy.Known {
		m := u.Accuracy.Meters
		row.AccuracyMeters = &m
	}
	return row
}

// PositionFromPG converts a history row back to the canonical update
func PositionFromPG(row *PositionPG) PositionUpdate {
	acc := UnknownAccuracy
	if row.AccuracyMeters != nil {
		acc = KnownAccuracy(*row.AccuracyMeters)
	}
	return NewPositionUpdate(
		row.DeviceID,
		Coordinates{Lat: row.Lat, Lng: row.Lng},
		row.SampleTime,
		acc,
		row.Metadata,
	)
}
