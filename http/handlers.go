// Package http serves the prediction API.
package http

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"incomeserve/db"
	"incomeserve/monitoring"
	"incomeserve/observation"
)

// Pipeline scores a validated observation. The probability refers to
// the positive class (label 1).
type Pipeline interface {
	Score(obs *observation.Observation) (prediction int, proba float64, err error)
}

// App carries the shared collaborators into every handler: the store,
// the model pipeline, counters, and the optional event feed. It is
// built once at startup; handlers keep no other state.
type App struct {
	Store    *db.Store
	Pipeline Pipeline
	Stats    *monitoring.Stats
	Feed     *monitoring.Feed
}

// Register attaches all routes to the mux.
func (a *App) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /predict", a.handlePredict)
	mux.HandleFunc("POST /update", a.handleUpdate)
	mux.HandleFunc("GET /record/{id}", a.handleRecord)
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("GET /api/stats", a.handleStats)
	if a.Feed != nil {
		mux.HandleFunc("GET /api/ws/feed", a.Feed.HandleWS)
	}
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func (a *App) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, a.Stats.Snapshot())
}

// handlePredict runs the validate -> infer -> persist sequence.
// Validation failures are answered as 200 with an error body; a
// duplicate id still returns the freshly computed prediction alongside
// the error; only store and pipeline faults become 500s.
func (a *App) handlePredict(w http.ResponseWriter, r *http.Request) {
	a.Stats.IncPredictRequests()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		serverError(w, fmt.Errorf("read body: %w", err))
		return
	}

	req, err := observation.ParseRequest(body)
	if err != nil {
		a.Stats.IncValidationFailures()
		writeJSON(w, map[string]string{"error": err.Error()})
		return
	}

	obs, err := observation.Validate(req.Data)
	if err != nil {
		a.Stats.IncValidationFailures()
		writeJSON(w, map[string]string{"error": err.Error()})
		return
	}

	prediction, proba, err := a.Pipeline.Score(obs)
	if err != nil {
		serverError(w, fmt.Errorf("score observation %d: %w", req.ObservationID, err))
		return
	}

	response := map[string]interface{}{
		"observation_id": req.ObservationID,
		"prediction":     prediction == 1,
		"probability":    proba,
	}

	rec := &db.Record{
		ObservationID: req.ObservationID,
		Observation:   req.RawData,
		Proba:         proba,
	}
	switch err := a.Store.Insert(rec); err {
	case nil:
		a.Stats.IncPredictions()
		a.publishPrediction(req.ObservationID, prediction == 1, proba)
	case db.ErrDuplicateID:
		// The prediction is still returned; the stored record is not
		// overwritten.
		a.Stats.IncDuplicates()
		msg := fmt.Sprintf("ERROR: Observation ID: '%d' already exists", req.ObservationID)
		response["error"] = msg
		zap.S().Warnw("duplicate observation id", "observation_id", req.ObservationID)
	default:
		serverError(w, fmt.Errorf("persist observation %d: %w", req.ObservationID, err))
		return
	}

	writeJSON(w, response)
}

type updateRequest struct {
	ObservationID *int64 `json:"observation_id"`
	TrueClass     *int64 `json:"true_class"`
}

// handleUpdate attaches the true label to a stored record.
func (a *App) handleUpdate(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		serverError(w, fmt.Errorf("read body: %w", err))
		return
	}

	var req updateRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, map[string]string{"error": fmt.Sprintf("Request is not a JSON object: %s", body)})
		return
	}
	if req.ObservationID == nil {
		writeJSON(w, map[string]string{"error": fmt.Sprintf("Field `observation_id` missing from request: %s", body)})
		return
	}
	if req.TrueClass == nil {
		writeJSON(w, map[string]string{"error": fmt.Sprintf("Field `true_class` missing from request: %s", body)})
		return
	}

	rec, err := a.Store.SetTrueClass(*req.ObservationID, *req.TrueClass)
	switch err {
	case nil:
	case db.ErrNotFound:
		a.Stats.IncUpdateMisses()
		msg := fmt.Sprintf("Observation ID: \"%d\" does not exist", *req.ObservationID)
		writeJSON(w, map[string]string{"error": msg})
		return
	default:
		serverError(w, fmt.Errorf("update observation %d: %w", *req.ObservationID, err))
		return
	}

	a.Stats.IncUpdates()
	a.publishLabel(rec.ObservationID, *req.TrueClass)
	writeJSON(w, rec)
}

// handleRecord is the inspection endpoint: it returns a stored record
// as-is, including both the probability and any attached label.
func (a *App) handleRecord(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		http.Error(w, `{"error":"id must be an integer"}`, http.StatusBadRequest)
		return
	}

	rec, err := a.Store.Get(id)
	switch err {
	case nil:
		writeJSON(w, rec)
	case db.ErrNotFound:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": fmt.Sprintf("Observation ID: \"%d\" does not exist", id),
		})
	default:
		serverError(w, fmt.Errorf("get observation %d: %w", id, err))
	}
}

func (a *App) publishPrediction(id int64, prediction bool, proba float64) {
	if a.Feed == nil {
		return
	}
	a.Feed.Publish(monitoring.Event{
		Type:          monitoring.EventPrediction,
		ObservationID: id,
		Prediction:    &prediction,
		Probability:   &proba,
	})
}

func (a *App) publishLabel(id int64, trueClass int64) {
	if a.Feed == nil {
		return
	}
	a.Feed.Publish(monitoring.Event{
		Type:          monitoring.EventLabel,
		ObservationID: id,
		TrueClass:     &trueClass,
	})
}

func writeJSON(w http.ResponseWriter, value interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(value); err != nil {
		zap.S().Errorw("encode response", "err", err)
	}
}

func serverError(w http.ResponseWriter, err error) {
	zap.S().Errorw("internal fault", "err", err)
	http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
}
