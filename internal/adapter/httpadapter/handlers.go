package httpadapter

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/couchcryptid/skycastle-service/internal/domain"
)

const maxBodyBytes = 64 << 10

// historyRow is the JSON form of one history row. NULL columns are null.
type historyRow struct {
	Date              string     `json:"date"`
	Temp              *float64   `json:"temp"`
	Humidity          *float64   `json:"humidity"`
	Wind              *float64   `json:"wind"`
	Cloud             *float64   `json:"cloud"`
	Rain              *float64   `json:"rain"`
	FogProbability    *float64   `json:"fog_probability"`
	CastleProbability *float64   `json:"castle_probability"`
	EventProbability  *float64   `json:"castle_event_probability"`
	FogScore          *float64   `json:"fog_score"`
	CastleScore       *float64   `json:"castle_score"`
	DewPoint          *float64   `json:"dew_point"`
	DewSpread         *float64   `json:"dew_spread"`
	Event             *string    `json:"event"`
	FogObserved       bool       `json:"fog_observed"`
	CastleVisible     bool       `json:"castle_visible"`
	Note              string     `json:"note"`
	UpdatedAt         *time.Time `json:"updated_at"`
}

func newHistoryRow(r domain.HistoryRecord) historyRow {
	row := historyRow{
		Date:              domain.FormatDate(r.Date),
		Temp:              r.Temp,
		Humidity:          r.Humidity,
		Wind:              r.Wind,
		Cloud:             r.Cloud,
		Rain:              r.Rain,
		FogProbability:    r.FogProbability,
		CastleProbability: r.CastleProbability,
		EventProbability:  r.EventProbability,
		FogScore:          r.FogScore,
		CastleScore:       r.CastleScore,
		DewPoint:          r.DewPoint,
		DewSpread:         r.DewSpread,
		FogObserved:       r.FogObserved,
		CastleVisible:     r.CastleVisible,
		Note:              r.Note,
	}
	if r.Event != "" {
		e := string(r.Event)
		row.Event = &e
	}
	if !r.UpdatedAt.IsZero() {
		t := r.UpdatedAt
		row.UpdatedAt = &t
	}
	return row
}

func (s *Server) handleFeed(w http.ResponseWriter, _ *http.Request) {
	feed, err := s.artifacts.Feed()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (s *Server) handleForecast(w http.ResponseWriter, _ *http.Request) {
	fp, err := s.artifacts.Predictions()
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, fp)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	records, err := s.history.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	rows := make([]historyRow, len(records))
	for i, rec := range records {
		rows[i] = newHistoryRow(rec)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (s *Server) handleHistoryDay(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}
	rec, found, err := s.history.Get(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !found {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "no history for " + domain.FormatDate(date)})
		return
	}
	writeJSON(w, http.StatusOK, newHistoryRow(rec))
}

func (s *Server) handlePutObservation(w http.ResponseWriter, r *http.Request) {
	date, ok := s.dateParam(w, r)
	if !ok {
		return
	}

	var obs domain.ObservedFields
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&obs); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: fmt.Sprintf("invalid body: %v", err)})
		return
	}

	if err := s.recorder.Record(r.Context(), date, obs); err != nil {
		var malformed *domain.MalformedRecordError
		if errors.As(err, &malformed) {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		s.writeError(w, err)
		return
	}

	rec, _, err := s.history.Get(r.Context(), date)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newHistoryRow(rec))
}

func (s *Server) dateParam(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	date, err := domain.ParseDate(chi.URLParam(r, "date"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
		return time.Time{}, false
	}
	return date, true
}

type errorBody struct {
	Error string `json:"error"`
}

// writeError maps missing inputs to 404 and everything else to 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var missing *domain.MissingInputError
	if errors.As(err, &missing) {
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
		return
	}
	s.logger.Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
