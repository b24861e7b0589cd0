package routes

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"assettracker/internal/history"
	"assettracker/internal/model"
	"assettracker/internal/tracker"
)

const (
	defaultHistoryWindow = 24 * time.Hour
	defaultNearest       = 10
	maxNearest           = 500
)

// SetupDeviceHandlers registers the read side of the tracker
func (h *Handlers) SetupDeviceHandlers(router *gin.RouterGroup) {
	devices := router.Group("/devices")

	devices.GET("", h.ListDevices)
	devices.GET("/:id", h.GetDevice)
	devices.GET("/:id/history", h.GetHistory)
	devices.GET("/:id/track", h.GetTrack)
	devices.GET("/:id/stream", h.StreamDevice)
}

// ListDevices returns the latest fixes as GeoJSON points. bbox filters by
// minLng,minLat,maxLng,maxLat; near=lat,lng returns the k closest.
func (h *Handlers) ListDevices(c *gin.Context) {
	var (
		updates []model.PositionUpdate
		err     error
	)
	switch {
	case c.Query("bbox") != "":
		var b orb.Bound
		if b, err = parseBBox(c.Query("bbox")); err == nil {
			updates = h.deps.Fleet.InBounds(b)
		}
	case c.Query("near") != "":
		var center model.Coordinates
		if center, err = parseLatLng(c.Query("near")); err == nil {
			k := defaultNearest
			if raw := c.Query("k"); raw != "" {
				if k, err = strconv.Atoi(raw); err == nil && (k < 1 || k > maxNearest) {
					err = fmt.Errorf("k must be between 1 and %d", maxNearest)
				}
			}
			if err == nil {
				updates = h.deps.Fleet.Nearest(center, k)
			}
		}
	default:
		updates = h.deps.Positions.AllLatest()
		sort.Slice(updates, func(i, j int) bool { return updates[i].DeviceID < updates[j].DeviceID })
	}
	if err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}

	fc := geojson.NewFeatureCollection()
	for _, u := range updates {
		fc.Append(tracker.View{DeviceID: u.DeviceID, State: tracker.StateTracked, Position: &u}.Feature())
	}
	c.JSON(http.StatusOK, fc)
}

// GetDevice renders the latest fix with its accuracy polygon
func (h *Handlers) GetDevice(c *gin.Context) {
	id := c.Param("id")
	u, ok := h.deps.Positions.Latest(id)
	if !ok {
		writeError(c, http.StatusNotFound, "unknown device")
		return
	}
	views := history.ReplayUpdates(id, []model.PositionUpdate{u}, h.deps.Segments)
	view := views[len(views)-1]

	receivedAt, _ := h.deps.Positions.ReceivedAt(id)
	c.JSON(http.StatusOK, gin.H{
		"view":       view,
		"geojson":    view.FeatureCollection(),
		"receivedAt": receivedAt,
	})
}

// GetHistory returns stored updates between start and end. view=true
// replays them into the states a live map would have shown.
func (h *Handlers) GetHistory(c *gin.Context) {
	id := c.Param("id")
	start, end, ok := h.historyRange(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if c.Query("view") == "true" {
		views, err := h.deps.History.Replay(ctx, id, start, end)
		if err != nil {
			h.writeHistoryError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"deviceId": id, "start": start, "end": end, "views": views})
		return
	}

	updates, err := h.deps.History.QueryHistory(ctx, id, start, end)
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deviceId": id, "start": start, "end": end, "updates": updates})
}

// GetTrack returns the path between start and end as a line and a polyline
func (h *Handlers) GetTrack(c *gin.Context) {
	start, end, ok := h.historyRange(c)
	if !ok {
		return
	}
	track, err := h.deps.History.Track(c.Request.Context(), c.Param("id"), start, end)
	if err != nil {
		h.writeHistoryError(c, err)
		return
	}
	c.JSON(http.StatusOK, track)
}

func (h *Handlers) writeHistoryError(c *gin.Context, err error) {
	if errors.Is(err, history.ErrInvalidQuery) {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	h.deps.Logger.Error("history query failed", "device", c.Param("id"), "error", err)
	writeError(c, http.StatusBadGateway, "history store unavailable")
}

// historyRange reads start and end (RFC 3339 or epoch milliseconds). The
// default window is the last day; wider windows than the configured
// maximum are refused.
func (h *Handlers) historyRange(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now().UTC()
	if raw := c.Query("end"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid end: "+err.Error())
			return time.Time{}, time.Time{}, false
		}
		end = t
	}
	start := end.Add(-defaultHistoryWindow)
	if raw := c.Query("start"); raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			writeError(c, http.StatusBadRequest, "invalid start: "+err.Error())
			return time.Time{}, time.Time{}, false
		}
		start = t
	}
	if end.Sub(start) > h.deps.HistoryMaxRange {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("range exceeds %s", h.deps.HistoryMaxRange))
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseTime(raw string) (time.Time, error) {
	if ms, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseFloats(raw string, n int) ([]float64, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated numbers", n)
	}
	out := make([]float64, n)
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", p)
		}
		out[i] = v
	}
	return out, nil
}

func parseBBox(raw string) (orb.Bound, error) {
	v, err := parseFloats(raw, 4)
	if err != nil {
		return orb.Bound{}, fmt.Errorf("bbox: %w", err)
	}
	minC := model.Coordinates{Lat: v[1], Lng: v[0]}
	maxC := model.Coordinates{Lat: v[3], Lng: v[2]}
	if !minC.Valid() || !maxC.Valid() || v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, errors.New("bbox: corners out of range or inverted")
	}
	return orb.Bound{Min: minC.Point(), Max: maxC.Point()}, nil
}

func parseLatLng(raw string) (model.Coordinates, error) {
	v, err := parseFloats(raw, 2)
	if err != nil {
		return model.Coordinates{}, fmt.Errorf("near: %w", err)
	}
	c := model.Coordinates{Lat: v[0], Lng: v[1]}
	if !c.Valid() {
		return model.Coordinates{}, errors.New("near: coordinates out of range")
	}
	return c, nil
}
