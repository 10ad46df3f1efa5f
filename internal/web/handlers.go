package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/cjeanneret/pansweep/internal/logic/orientation"
	"github.com/cjeanneret/pansweep/internal/panorama"
)

// MaxRequestBodyBytes bounds JSON request bodies.
const MaxRequestBodyBytes = 1 << 20

// ShutterDebounce is the minimum spacing between two accepted shutter presses.
const ShutterDebounce = 250 * time.Millisecond

// Session is the capture session driven by the HTTP routes.
type Session interface {
	Resume()
	Pause()
	Shutter()
	Cancel()
	Orientation(raw int)
	DisplayRotation(deg int)
	Snapshot() panorama.Snapshot
}

// Overrides holds sweep parameters that can override config defaults.
// Zero means "use the configured value".
type Overrides struct {
	SweepAngleDeg    float64 `json:"sweep_angle_deg"`
	HorizontalFOVDeg float64 `json:"horizontal_fov_deg"`
}

// ValidateOverrides checks that non-zero overrides are within valid ranges.
func ValidateOverrides(o Overrides) error {
	if o.SweepAngleDeg != 0 {
		v := o.SweepAngleDeg
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v > 360 {
			return fmt.Errorf("sweep_angle_deg must be in (0, 360], got %g", v)
		}
	}
	if o.HorizontalFOVDeg != 0 {
		v := o.HorizontalFOVDeg
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 || v >= 180 {
			return fmt.Errorf("horizontal_fov_deg must be in (0, 180), got %g", v)
		}
	}
	return nil
}

// SweepDefaults is the sweep setup shown by the page (from config).
type SweepDefaults struct {
	SweepAngleDeg        float64 `json:"sweep_angle_deg"`
	HorizontalFOVDeg     float64 `json:"horizontal_fov_deg"`
	VerticalFOVDeg       float64 `json:"vertical_fov_deg"`
	SpeedThresholdDegSec float64 `json:"speed_threshold_deg_sec"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State         string  `json:"state"`
	Paused        bool    `json:"paused"`
	Job           string  `json:"job,omitempty"`
	Compensation  int     `json:"compensation"`
	HorizontalDeg float64 `json:"horizontal_deg"`
	VerticalDeg   float64 `json:"vertical_deg"`
}

// OrientationRequest is the body of POST /orientation. Absent fields are
// left unchanged.
type OrientationRequest struct {
	Device  *int `json:"device,omitempty"`
	Display *int `json:"display,omitempty"`
}

func (o OrientationRequest) validate() error {
	if o.Device == nil && o.Display == nil {
		return errors.New("device or display is required")
	}
	if o.Device != nil && (*o.Device < orientation.Unknown || *o.Device >= 360) {
		return fmt.Errorf("device must be -1 or in [0, 360), got %d", *o.Device)
	}
	if o.Display != nil {
		switch *o.Display {
		case 0, 90, 180, 270:
		default:
			return fmt.Errorf("display must be 0, 90, 180 or 270, got %d", *o.Display)
		}
	}
	return nil
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	Broadcaster *StatusBroadcaster
	UI          *UI
	Session     Session
	Defaults    SweepDefaults
	Metrics     http.Handler
	staticFS    fs.FS

	shutterMu   sync.Mutex
	lastShutter time.Time
	now         func() time.Time
}

// NewHandlers creates handlers with the given dependencies.
// If session is nil, the control routes return 503 Service Unavailable.
func NewHandlers(broadcaster *StatusBroadcaster, ui *UI, session Session, defaults SweepDefaults, metrics http.Handler, staticFS fs.FS) *Handlers {
	if metrics == nil {
		metrics = http.NotFoundHandler()
	}
	return &Handlers{
		Broadcaster: broadcaster,
		UI:          ui,
		Session:     session,
		Defaults:    defaults,
		Metrics:     metrics,
		staticFS:    staticFS,
		now:         time.Now,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func accepted(w http.ResponseWriter, action string) {
	writeJSON(w, http.StatusAccepted, map[string]string{"status": action})
}

func (h *Handlers) requireSession(w http.ResponseWriter) bool {
	if h.Session == nil {
		http.Error(w, "session not configured", http.StatusServiceUnavailable)
		return false
	}
	return true
}

// HandleConfig returns the sweep defaults (from config) as JSON.
func (h *Handlers) HandleConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Defaults)
}

// ServeIndex serves the main HTML page (root path only).
func (h *Handlers) ServeIndex(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(h.staticFS, "index.html")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

// HandleStatus handles GET /status.
func (h *Handlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	s := h.Session.Snapshot()
	writeJSON(w, http.StatusOK, StatusResponse{
		State:         s.State.String(),
		Paused:        s.Paused,
		Job:           s.Job,
		Compensation:  s.Compensation,
		HorizontalDeg: s.Progress.HorizontalDeg,
		VerticalDeg:   s.Progress.VerticalDeg,
	})
}

// HandleShutter handles POST /shutter: start a sweep, or stop the running one.
func (h *Handlers) HandleShutter(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	s := h.Session.Snapshot()
	if s.Paused {
		http.Error(w, "session paused", http.StatusConflict)
		return
	}
	if s.Job != "" {
		http.Error(w, "panorama still being created", http.StatusConflict)
		return
	}

	h.shutterMu.Lock()
	now := h.now()
	if !h.lastShutter.IsZero() && now.Sub(h.lastShutter) < ShutterDebounce {
		h.shutterMu.Unlock()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	h.lastShutter = now
	h.shutterMu.Unlock()

	h.Session.Shutter()
	accepted(w, "shutter")
}

// HandleCancel handles POST /cancel.
func (h *Handlers) HandleCancel(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	h.Session.Cancel()
	accepted(w, "cancel")
}

// HandlePause handles POST /pause.
func (h *Handlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	h.Session.Pause()
	accepted(w, "pause")
}

// HandleResume handles POST /resume.
func (h *Handlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	h.Session.Resume()
	accepted(w, "resume")
}

// HandleOrientation handles POST /orientation with an OrientationRequest body.
func (h *Handlers) HandleOrientation(w http.ResponseWriter, r *http.Request) {
	if !h.requireSession(w) {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodyBytes)
	var req OrientationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}
	if err := req.validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Display != nil {
		h.Session.DisplayRotation(*req.Display)
	}
	if req.Device != nil {
		h.Session.Orientation(*req.Device)
	}
	accepted(w, "orientation")
}

// HandleDismiss handles POST /dismiss, acknowledging the error dialog.
func (h *Handlers) HandleDismiss(w http.ResponseWriter, r *http.Request) {
	if !h.UI.Dismiss() {
		http.Error(w, "no error to dismiss", http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleImage handles GET /images/{name}.
func (h *Handlers) HandleImage(w http.ResponseWriter, r *http.Request) {
	data, ok := h.UI.Image(r.PathValue("name"))
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// HandleStatusStream handles GET /status/stream for SSE.
func (h *Handlers) HandleStatusStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // nginx

	ch, unsub := h.Broadcaster.Subscribe()
	defer unsub()

	w.Write([]byte(": connected\n\n"))
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			w.Write([]byte("data: " + msg + "\n\n"))
			flusher.Flush()

		case <-ticker.C:
			w.Write([]byte(": heartbeat\n\n"))
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}
