package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"assetcore/internal/blob"
	"assetcore/internal/infra/idempotency"
	"assetcore/internal/logging"
	"assetcore/pkg/domain"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Kind       string             `json:"kind"`
	Message    string             `json:"message"`
	Fields     map[string]string  `json:"fields,omitempty"`
	Violations []domain.Violation `json:"violations,omitempty"`
}

// errorKinds maps domain error kinds to a status and a stable kind string,
// checked in order.
var errorKinds = []struct {
	err    error
	status int
	kind   string
}{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrInvalidInput, http.StatusBadRequest, "invalid_input"},
	{domain.ErrSessionAlreadyOpen, http.StatusConflict, "session_already_open"},
	{domain.ErrDuplicateCode, http.StatusConflict, "duplicate_code"},
	{domain.ErrDuplicateOpenAssignment, http.StatusConflict, "duplicate_open_assignment"},
	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{domain.ErrIncompleteForActivation, http.StatusUnprocessableEntity, "incomplete_for_activation"},
	{domain.ErrInvalidLedgerAction, http.StatusUnprocessableEntity, "invalid_ledger_action"},
	{domain.ErrFutureDatedAction, http.StatusUnprocessableEntity, "future_dated_action"},
	{domain.ErrNotInExpectedSet, http.StatusUnprocessableEntity, "not_in_expected_set"},
	{domain.ErrIneligible, http.StatusUnprocessableEntity, "ineligible"},
	{domain.ErrSessionClosed, http.StatusUnprocessableEntity, "session_closed"},
	{domain.ErrLedgerImmutable, http.StatusUnprocessableEntity, "ledger_immutable"},
	{domain.ErrConcurrentUpdate, http.StatusConflict, "concurrent_update"},
	{blob.ErrUnsupported, http.StatusNotImplemented, "unsupported"},
	{idempotency.ErrInFlight, http.StatusConflict, "idempotency_in_flight"},
	{idempotency.ErrMismatch, http.StatusUnprocessableEntity, "idempotency_mismatch"},
}

func classify(err error) (int, errorDetail) {
	detail := errorDetail{Kind: "internal", Message: err.Error()}
	var rv domain.RuleViolationError
	if errors.As(err, &rv) {
		detail.Kind = "rule_violation"
		detail.Violations = rv.Result.Violations
		return http.StatusUnprocessableEntity, detail
	}
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		detail.Kind = "invalid_input"
		detail.Fields = make(map[string]string, len(ve))
		for _, fe := range ve {
			detail.Fields[fe.Field()] = fe.Tag()
		}
		return http.StatusBadRequest, detail
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		detail.Kind = "too_large"
		return http.StatusRequestEntityTooLarge, detail
	}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			detail.Kind = k.kind
			return k.status, detail
		}
	}
	return http.StatusInternalServerError, detail
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, funcName string, err error) {
	status, detail := classify(err)
	if status >= http.StatusInternalServerError && status != http.StatusNotImplemented {
		logging.LogError(s.logger, "httpapi", funcName, err, logrus.Fields{"path": r.URL.Path})
		detail.Message = http.StatusText(status)
	}
	writeJSON(w, status, errorBody{Error: detail})
}

// badRequest wraps a decoding failure as an input error.
type badRequest struct{ cause error }

func (e badRequest) Error() string { return "malformed request body: " + e.cause.Error() }
func (e badRequest) Unwrap() []error { return []error{domain.ErrInvalidInput, e.cause} }

// decode reads a JSON body into dst and validates its tags. An empty body
// leaves dst at its zero value before validation.
func (s *Server) decode(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		return badRequest{cause: err}
	}
	if err := s.validate.Struct(dst); err != nil {
		return fmt.Errorf("validate request: %w", err)
	}
	return nil
}

var errKeyTooLong = errors.New(IdempotencyHeader + " longer than 255 characters")
