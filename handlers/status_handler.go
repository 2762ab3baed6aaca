package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"csi-motion-monitor/analytics"
	"csi-motion-monitor/models"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	requestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_duration_seconds",
			Help:    "Request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)
)

// StatusStore is the read side of the status cache.
type StatusStore interface {
	GetStatus(ctx context.Context, sensorID string) (*models.Status, error)
	RecentEvents(ctx context.Context, count int64) ([]models.Detection, error)
}

type ProfileLister interface {
	Profiles() []*analytics.ReferenceProfile
}

type StatusHandler struct {
	sensorID string
	store    StatusStore
	profiles ProfileLister
}

// NewStatusHandler accepts a nil store when no cache is configured.
func NewStatusHandler(sensorID string, store StatusStore, profiles ProfileLister) *StatusHandler {
	return &StatusHandler{sensorID: sensorID, store: store, profiles: profiles}
}

// Register mounts the status routes on r.
func (h *StatusHandler) Register(r *mux.Router) {
	r.HandleFunc("/health", h.instrument("/health", HealthCheck)).Methods("GET")
	r.HandleFunc("/status", h.instrument("/status", h.HandleStatus)).Methods("GET")
	r.HandleFunc("/events", h.instrument("/events", h.HandleEvents)).Methods("GET")
	r.HandleFunc("/profiles", h.instrument("/profiles", h.HandleProfiles)).Methods("GET")
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (h *StatusHandler) instrument(endpoint string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		requestDurationSeconds.WithLabelValues(r.Method, endpoint).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(r.Method, endpoint, strconv.Itoa(rec.status)).Inc()
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (h *StatusHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "status cache is disabled", http.StatusServiceUnavailable)
		return
	}

	sensorID := r.URL.Query().Get("sensor_id")
	if sensorID == "" {
		sensorID = h.sensorID
	}

	status, err := h.store.GetStatus(r.Context(), sensorID)
	if err != nil {
		http.Error(w, "Failed to get status: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if status == nil {
		http.Error(w, "no status for sensor "+sensorID, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *StatusHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		http.Error(w, "status cache is disabled", http.StatusServiceUnavailable)
		return
	}

	count := int64(20)
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n <= 0 || n > 1000 {
			http.Error(w, "count must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		count = n
	}

	events, err := h.store.RecentEvents(r.Context(), count)
	if err != nil {
		http.Error(w, "Failed to read events: "+err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type profileSummary struct {
	Label          string  `json:"label"`
	Subcarriers    int     `json:"subcarriers"`
	Antennas       int     `json:"antennas"`
	Frames         int     `json:"frames"`
	BaselineEnergy float64 `json:"baseline_energy"`
}

func (h *StatusHandler) HandleProfiles(w http.ResponseWriter, r *http.Request) {
	out := []profileSummary{}
	if h.profiles != nil {
		for _, p := range h.profiles.Profiles() {
			rows, cols := p.MeanAmplitude.Dims()
			out = append(out, profileSummary{
				Label:          p.Label,
				Subcarriers:    rows,
				Antennas:       cols,
				Frames:         p.Frames,
				BaselineEnergy: p.BaselineEnergy,
			})
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
