package gateway

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"reflect"
	"strconv"

	"github.com/tasked-labs/tasked/internal/errors"
	"github.com/tasked-labs/tasked/internal/observability"
	"github.com/tasked-labs/tasked/pkg/api"
	"github.com/tasked-labs/tasked/pkg/models"
)

const validationMessage = "The given data was invalid."

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set(api.HeaderContentType, api.ContentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("gateway: failed to encode response: %v", err)
	}
}

func errorBody(r *http.Request, message, reason, suggestion string) models.ErrorResponse {
	return models.ErrorResponse{
		Message:    message,
		Reason:     reason,
		Suggestion: suggestion,
		RequestID:  observability.RequestIDFromContext(r.Context()),
	}
}

// writeValidation renders field errors Laravel-style with status 422.
func writeValidation(w http.ResponseWriter, errs []*errors.ErrValidation) {
	body := models.ValidationErrorResponse{
		Message: validationMessage,
		Errors:  make(map[string][]string, len(errs)),
	}
	for _, e := range errs {
		body.Errors[e.Field] = append(body.Errors[e.Field], e.Detail)
	}
	writeJSON(w, http.StatusUnprocessableEntity, body)
}

// writeError maps a service error onto a status code and body.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation  *errors.ErrValidation
		exists      *errors.ErrAlreadyExists
		authFailed  *errors.ErrAuthFailed
		denied      *errors.ErrAccessDenied
		notFound    *errors.ErrNotFound
		bootstrap   *errors.ErrBootstrap
		unavailable *errors.ErrDatabaseUnavailable
	)

	switch {
	case stderrors.As(err, &validation):
		writeValidation(w, []*errors.ErrValidation{validation})

	case stderrors.As(err, &exists):
		writeJSON(w, http.StatusUnprocessableEntity, models.ValidationErrorResponse{
			Message: validationMessage,
			Errors: map[string][]string{
				exists.Field: {fmt.Sprintf("The %s has already been taken.", exists.Field)},
			},
		})

	case stderrors.As(err, &authFailed):
		writeJSON(w, http.StatusUnauthorized, errorBody(r, authFailed.Message, authFailed.Reason, authFailed.Suggestion))

	case stderrors.As(err, &denied):
		body := errorBody(r, denied.Message, denied.Reason, "")
		body.Denial = denied.Denial
		writeJSON(w, http.StatusForbidden, body)

	case stderrors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errorBody(r, notFound.Message, notFound.Reason, ""))

	case stderrors.As(err, &bootstrap):
		writeJSON(w, http.StatusConflict, errorBody(r, bootstrap.Message, bootstrap.Reason, bootstrap.Suggestion))

	case stderrors.As(err, &unavailable):
		log.Printf("gateway: %s %s (request %s): %v",
			r.Method, r.URL.Path, observability.RequestIDFromContext(r.Context()), err)
		writeJSON(w, http.StatusServiceUnavailable, errorBody(r, unavailable.Message, "", unavailable.Suggestion))

	default:
		log.Printf("gateway: %s %s (request %s): %v",
			r.Method, r.URL.Path, observability.RequestIDFromContext(r.Context()), err)
		writeJSON(w, http.StatusInternalServerError, errorBody(r, "internal server error", "", ""))
	}
}

// errMalformedBody is rendered as 400.
var errMalformedBody = stderrors.New("malformed JSON body")

// decodeJSON decodes the request body into dst. An empty body leaves dst
// untouched. Type mismatches become field validation errors.
func (g *Gateway) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, g.cfg.MaxBodyBytes)
	err := json.NewDecoder(body).Decode(dst)
	if err == nil || stderrors.Is(err, io.EOF) {
		return nil
	}

	var (
		typeErr  *json.UnmarshalTypeError
		tooLarge *http.MaxBytesError
	)
	switch {
	case stderrors.Is(err, models.ErrInvalidID):
		return errors.NewValidation("assignedTo", "must be an integer id or null")
	case stderrors.As(err, &typeErr) && typeErr.Field != "":
		return errors.NewValidation(typeErr.Field, "must be "+jsonKind(typeErr))
	case stderrors.As(err, &tooLarge):
		return fmt.Errorf("%w: body exceeds %d bytes", errMalformedBody, tooLarge.Limit)
	default:
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
}

func jsonKind(e *json.UnmarshalTypeError) string {
	switch e.Type.Kind() {
	case reflect.String:
		return "a string"
	case reflect.Int, reflect.Int32, reflect.Int64:
		return "an integer"
	case reflect.Bool:
		return "a boolean"
	default:
		return "a " + e.Type.String()
	}
}

// writeDecodeError renders an error returned by decodeJSON.
func writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	if stderrors.Is(err, errMalformedBody) {
		writeJSON(w, http.StatusBadRequest, errorBody(r, "malformed request", err.Error(), "send a JSON object"))
		return
	}
	writeError(w, r, err)
}

// taskID parses the {id} path segment. Anything but a positive integer is
// reported as a missing task.
func taskID(r *http.Request) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.NewNotFound("task", raw)
	}
	return id, nil
}
