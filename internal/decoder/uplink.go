package decoder

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"assettracker/internal/model"
)

// FieldPayloadData names the uplink payload in decode errors
const FieldPayloadData = "PayloadData"

// UplinkType is the message class carried in the top two bits of byte 0
type UplinkType int

const (
	UplinkConfig UplinkType = iota
	UplinkNoLoc
	UplinkWiFi
	UplinkGNSS
)

func (t UplinkType) String() string {
	switch t {
	case UplinkConfig:
		return "CONFIG"
	case UplinkNoLoc:
		return "NOLOC"
	case UplinkWiFi:
		return "WIFI"
	case UplinkGNSS:
		return "GNSS"
	}
	return "unknown"
}

// FrameKind refines the type for fragmented messages
type FrameKind string

const (
	FrameConfig  FrameKind = "CONFIG"
	FrameNoLoc   FrameKind = "NOLOC"
	FrameWiFi    FrameKind = "WIFI"
	FrameWiFiF   FrameKind = "WIFI_F"
	FrameWiFiEnd FrameKind = "WIFI_END"
	FrameGNSS    FrameKind = "GNSS"
	FrameGNSSF   FrameKind = "GNSS_F"
	FrameGNSSEnd FrameKind = "GNSS_END"
)

// lastGNSSFragment marks the closing fragment of a GNSS nav message
const lastGNSSFragment = 7

// UplinkEnvelope is the at_uplink object delivered by the LoRaWAN network server
type UplinkEnvelope struct {
	WirelessDeviceID string           `json:"WirelessDeviceId" binding:"required"`
	WirelessMetadata WirelessMetadata `json:"WirelessMetadata"`
	PayloadData      string           `json:"PayloadData" binding:"required"`
}

type WirelessMetadata struct {
	Seq int64 `json:"Seq"`
}

// SensorReading is the environmental block shared by most frame layouts
type SensorReading struct {
	BatteryPercent  int     `json:"batteryPercent"`
	TemperatureC    int     `json:"temperatureC"`
	HumidityPercent int     `json:"humidityPercent"`
	Motion          bool    `json:"motion"`
	MaxAccelG       float64 `json:"maxAccelG"`
}

// AccessPoint is one Wi-Fi observation used for position estimation
type AccessPoint struct {
	MacAddress string `json:"MacAddress"`
	Rss        int    `json:"Rss"`
}

// Uplink is a decoded tracker frame
type Uplink struct {
	DeviceID     string         `json:"deviceId"`
	Seq          int64          `json:"seq"`
	ReceivedAt   time.Time      `json:"receivedAt"`
	Type         UplinkType     `json:"-"`
	Kind         FrameKind      `json:"kind"`
	FragCount    int            `json:"fragCount"`
	FragNum      int            `json:"fragNum"`
	Sensors      *SensorReading `json:"sensors,omitempty"`
	AccessPoints []AccessPoint  `json:"accessPoints,omitempty"`
	NavSize      int            `json:"navSize,omitempty"`
	CaptureTime  uint64         `json:"captureTime,omitempty"`
	NavFragment  string         `json:"navFragment,omitempty"`
}

// Estimate is a resolved position for an uplink
type Estimate struct {
	Coordinates model.Coordinates
	Accuracy    model.Accuracy
}

// PositionRequest returns the access points to resolve, or false when the
// frame cannot be resolved on its own
func (u Uplink) PositionRequest() ([]AccessPoint, bool) {
	if u.Kind != FrameWiFi || len(u.AccessPoints) == 0 {
		return nil, false
	}
	out := make([]AccessPoint, len(u.AccessPoints))
	copy(out, u.AccessPoints)
	return out, true
}

// ToTelemetry builds the raw tracker payload for Decode
func (u Uplink) ToTelemetry(est Estimate) map[string]any {
	raw := map[string]any{
		"deviceId":  u.DeviceID,
		"timestamp": u.ReceivedAt.UnixMilli(),
		"latitude":  est.Coordinates.Lat,
		"longitude": est.Coordinates.Lng,
	}
	if est.Accuracy.Known {
		raw["accuracy"] = map[string]any{"horizontal": est.Accuracy.Meters}
	}
	if u.Sensors != nil {
		raw["positionProperties"] = map[string]any{
			"batteryLevel": float64(u.Sensors.BatteryPercent),
			"temperature":  float64(u.Sensors.TemperatureC),
			"humidity":     float64(u.Sensors.HumidityPercent),
			"motion":       u.Sensors.Motion,
		}
	}
	return raw
}

// DecodeUplink unpacks a base64(hex) tracker frame
func DecodeUplink(env UplinkEnvelope, receivedAt time.Time) (Uplink, error) {
	if strings.TrimSpace(env.WirelessDeviceID) == "" {
		return Uplink{}, missing("WirelessDeviceId")
	}
	if env.PayloadData == "" {
		return Uplink{}, missing(FieldPayloadData)
	}

	ascii, err := base64.StdEncoding.DecodeString(env.PayloadData)
	if err != nil {
		return Uplink{}, invalid(FieldPayloadData, "bad base64: %v", err)
	}
	payload := strings.TrimSpace(string(ascii))
	b, err := hex.DecodeString(payload)
	if err != nil {
		return Uplink{}, invalid(FieldPayloadData, "bad hex: %v", err)
	}
	if len(b) == 0 {
		return Uplink{}, invalid(FieldPayloadData, "empty frame")
	}

	u := Uplink{
		DeviceID:   env.WirelessDeviceID,
		Seq:        env.WirelessMetadata.Seq,
		ReceivedAt: receivedAt.UTC(),
		Type:       UplinkType((b[0] & 0xC0) >> 6),
		FragCount:  int((b[0] & 0x38) >> 3),
		FragNum:    int(b[0] & 0x07),
	}

	switch u.Type {
	case UplinkConfig:
		u.Kind = FrameConfig
	case UplinkNoLoc:
		u.Kind = FrameNoLoc
		if u.Sensors, err = readSensors(b); err != nil {
			return Uplink{}, err
		}
	case UplinkWiFi:
		err = decodeWiFi(&u, b)
	case UplinkGNSS:
		err = decodeGNSS(&u, b, payload)
	}
	if err != nil {
		return Uplink{}, err
	}
	return u, nil
}

func decodeWiFi(u *Uplink, b []byte) error {
	var err error
	if u.FragCount == 1 || u.FragNum == 0 {
		u.Kind = FrameWiFi
		if u.FragCount != 1 {
			u.Kind = FrameWiFiF
		}
		if err = need(b, 19); err != nil {
			return err
		}
		if u.Sensors, err = readSensors(b); err != nil {
			return err
		}
		u.AccessPoints = []AccessPoint{
			readAccessPoint(b, 5),
			readAccessPoint(b, 12),
		}
		return nil
	}

	u.Kind = FrameWiFiEnd
	if err = need(b, 8); err != nil {
		return err
	}
	u.AccessPoints = []AccessPoint{readAccessPoint(b, 1)}
	if len(b) >= 15 {
		u.AccessPoints = append(u.AccessPoints, readAccessPoint(b, 8))
	}
	return nil
}

func decodeGNSS(u *Uplink, b []byte, payload string) error {
	var err error
	if u.Sensors, err = readSensors(b); err != nil {
		return err
	}
	if u.FragNum == 0 {
		u.Kind = FrameGNSS
		if err = need(b, 12); err != nil {
			return err
		}
		u.NavSize = int(b[5])
		var ts [8]byte
		copy(ts[2:], b[6:12])
		u.CaptureTime = binary.BigEndian.Uint64(ts[:])
		return nil
	}

	u.Kind = FrameGNSSF
	if u.FragNum == lastGNSSFragment {
		u.Kind = FrameGNSSEnd
	}
	u.NavFragment = strings.ToLower(payload[2:])
	return nil
}

func readSensors(b []byte) (*SensorReading, error) {
	if err := need(b, 5); err != nil {
		return nil, err
	}
	return &SensorReading{
		BatteryPercent:  int(b[1]),
		TemperatureC:    int(int8(b[2])),
		HumidityPercent: int(b[3]),
		Motion:          b[4]&0x80 != 0,
		MaxAccelG:       float64(b[4]&0x7F) / 10,
	}, nil
}

func readAccessPoint(b []byte, at int) AccessPoint {
	return AccessPoint{
		Rss:        int(int8(b[at])),
		MacAddress: formatMAC(b[at+1 : at+7]),
	}
}

func formatMAC(b []byte) string {
	parts := make([]string, len(b))
	for i, x := range b {
		parts[i] = fmt.Sprintf("%02x", x)
	}
	return strings.Join(parts, ":")
}

func need(b []byte, n int) error {
	if len(b) < n {
		return invalid(FieldPayloadData, "frame too short: %d bytes, need %d", len(b), n)
	}
	return nil
}
