package hydro

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
)

// ValidationResponse describes the JSON body of a validation result
type ValidationResponse struct {
	Valid  bool         `json:"valid"`
	Errors []FieldError `json:"errors,omitempty"`
}

// ErrorResponse describes the JSON body of a failed request
type ErrorResponse struct {
	Error  string       `json:"error"`
	Step   string       `json:"step,omitempty"`
	Fields []FieldError `json:"fields,omitempty"`
}

// Server exposes the pipelines over HTTP. Runs are not coordinated: two
// requests writing to the same workspace may race on output paths.
type Server struct {
	Deps Deps
}

// Router mounts the API routes.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/bulk", s.HandleBulk).Methods(http.MethodPost)
	r.HandleFunc("/watershed", s.HandleWatershed).Methods(http.MethodPost)
	r.HandleFunc("/validate/watershed", s.HandleValidateWatershed).Methods(http.MethodPost)
	r.HandleFunc("/health", s.HandleHealth).Methods(http.MethodGet)
	return r
}

func (s *Server) HandleBulk(w http.ResponseWriter, r *http.Request) {
	var in BulkInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := RunBulk(r.Context(), s.Deps, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) HandleWatershed(w http.ResponseWriter, r *http.Request) {
	var in WatershedInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	result, err := RunWatershed(r.Context(), s.Deps, in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleValidateWatershed runs the field validation only, the way a form
// checks its fields while they are edited.
func (s *Server) HandleValidateWatershed(w http.ResponseWriter, r *http.Request) {
	var in WatershedInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid request body: " + err.Error()})
		return
	}
	errs := ValidateWatershed(in)
	writeJSON(w, http.StatusOK, ValidationResponse{Valid: len(errs) == 0, Errors: errs})
}

func (s *Server) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func writeError(w http.ResponseWriter, err error) {
	var verr *ValidationError
	var serr *StepError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: err.Error(), Fields: verr.Fields})
	case errors.Is(err, ErrCapabilityUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: err.Error()})
	case errors.As(err, &serr):
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Step: serr.Step})
	default:
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
