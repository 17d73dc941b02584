package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/locator-project/locator/internal/locate"
	"github.com/locator-project/locator/internal/radio"
	"github.com/locator-project/locator/internal/store"
)

const (
	LocatePath    = "/api/v1/locate"
	ReportPath    = "/api/v1/report"
	GeosubmitPath = "/v2/geosubmit"
	HealthzPath   = "/healthz"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// Locator answers position queries.
type Locator interface {
	Locate(ctx context.Context, rep *radio.Report) (locate.Position, error)
}

// ReportLog appends raw submissions durably.
type ReportLog interface {
	AppendReport(ctx context.Context, q store.Querier, p store.AppendParams) (int64, error)
}

type Handler struct {
	log    *slog.Logger
	cfg    Config
	auth   *Authenticator
	engine Locator
	logDB  ReportLog
	db     store.Querier
}

func NewHandler(log *slog.Logger, cfg Config, engine Locator, logDB ReportLog, db store.Querier) (*Handler, error) {
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if engine == nil {
		return nil, errors.New("locate engine is required")
	}
	if logDB == nil {
		return nil, errors.New("report log is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("handler config validation failed: %w", err)
	}
	return &Handler{
		log:    log,
		cfg:    cfg,
		auth:   &Authenticator{Token: cfg.AuthToken},
		engine: engine,
		logDB:  logDB,
		db:     db,
	}, nil
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc(LocatePath, h.locateHandler)
	mux.HandleFunc(ReportPath, h.reportHandler)
	mux.HandleFunc(GeosubmitPath, h.geosubmitHandler)
	mux.HandleFunc(HealthzPath, h.healthzHandler)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (h *Handler) writeJSONError(w http.ResponseWriter, status int, msg string) {
	h.writeJSON(w, status, ErrorResponse{Error: msg, Code: status})
}

func (h *Handler) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxBodySize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			h.writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return nil, false
		}
		h.writeJSONError(w, http.StatusBadRequest, "failed to read body")
		return nil, false
	}
	return body, true
}

func (h *Handler) requireAuth(w http.ResponseWriter, r *http.Request) bool {
	if err := h.auth.Authenticate(r); err != nil {
		h.writeJSONError(w, http.StatusUnauthorized, err.Error())
		return false
	}
	return true
}

// locationResponse is the wire shape of a successful locate. Coordinates are
// rounded to six decimals, roughly 11cm, below any accuracy this service can
// claim.
type locationResponse struct {
	Location struct {
		Latitude  float64  `json:"latitude"`
		Longitude float64  `json:"longitude"`
		Altitude  *float64 `json:"altitude,omitempty"`
	} `json:"location"`
	Accuracy float64 `json:"accuracy"`
	Source   string  `json:"source"`
}

func round6(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}

func (h *Handler) locateHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.requireAuth(w, r) {
		return
	}
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	rep, err := radio.ParseReport(body)
	if err != nil {
		h.writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	pos, err := h.engine.Locate(r.Context(), rep)
	switch {
	case errors.Is(err, locate.ErrNoCoverage):
		h.writeJSONError(w, http.StatusNotFound, "no_coverage")
		return
	case store.IsTransient(err):
		h.writeJSONError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
		return
	case err != nil:
		h.log.Error("locate query failed", "error", err)
		h.writeJSONError(w, http.StatusInternalServerError, "internal error")
		return
	}

	var resp locationResponse
	resp.Location.Latitude = round6(pos.Lat)
	resp.Location.Longitude = round6(pos.Lon)
	resp.Location.Altitude = pos.Altitude
	resp.Accuracy = math.Round(pos.Accuracy)
	resp.Source = string(pos.Source)
	h.writeJSON(w, http.StatusOK, resp)
}

// submission is the shared request envelope of both submission routes.
type submission struct {
	Items []json.RawMessage `json:"items"`
}

func (h *Handler) reportHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !h.requireAuth(w, r) {
		return
	}
	h.ingest(w, r)
}

// geosubmitHandler accepts the legacy submission shape with no
// authentication. Fielded devices predate the token scheme; the report
// parser understands both wire formats.
func (h *Handler) geosubmitHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	h.ingest(w, r)
}

func (h *Handler) ingest(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var sub submission
	if err := json.Unmarshal(body, &sub); err != nil {
		h.writeJSONError(w, http.StatusBadRequest, "malformed submission")
		return
	}
	if len(sub.Items) == 0 {
		h.writeJSONError(w, http.StatusBadRequest, "submission lists no items")
		return
	}

	now := h.cfg.Clock.Now().UTC()
	userAgent := r.UserAgent()
	accepted := 0
	for _, raw := range sub.Items {
		rep, err := radio.ParseReport(raw)
		if err != nil {
			metricReportsDropped.WithLabelValues("malformed").Inc()
			continue
		}
		if rep.GNSS == nil {
			metricReportsDropped.WithLabelValues("no_position").Inc()
			continue
		}
		// Fixes around (0, 0) are GPS chipset junk, not the Gulf of Guinea.
		if math.Abs(rep.GNSS.Latitude) <= 1 && math.Abs(rep.GNSS.Longitude) <= 1 {
			metricReportsDropped.WithLabelValues("null_island").Inc()
			continue
		}

		_, err = h.logDB.AppendReport(r.Context(), h.db, store.AppendParams{
			Raw:       raw,
			Timestamp: rep.Time(now),
			Latitude:  rep.GNSS.Latitude,
			Longitude: rep.GNSS.Longitude,
			UserAgent: userAgent,
		})
		if err != nil {
			if store.IsTransient(err) {
				h.writeJSONError(w, http.StatusServiceUnavailable, "storage temporarily unavailable")
			} else {
				h.log.Error("failed to append report", "error", err)
				h.writeJSONError(w, http.StatusInternalServerError, "internal error")
			}
			return
		}
		accepted++
	}

	metricReportsAccepted.Add(float64(accepted))
	h.writeJSON(w, http.StatusAccepted, map[string]int{"accepted": accepted})
}

func (h *Handler) healthzHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
