// Package handlers contains HTTP request handlers for the citizen report API.
// Handlers parse requests, call services, and return JSON responses.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/aawaaz/citizen-report-server/internal/middleware"
	"github.com/aawaaz/citizen-report-server/internal/models"
	"github.com/aawaaz/citizen-report-server/internal/services"
)

const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// report field names the way clients send them
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and runs its validate tags.
// It writes the 400 response itself and reports whether to continue.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}

	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, describeField(fe))
			}
			respondError(w, http.StatusBadRequest, strings.Join(msgs, "; "))
			return false
		}
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func describeField(fe validator.FieldError) string {
	// drop the top-level struct name, keep the JSON path below it
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s needs at least %s items", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}

// respondServiceError maps the service error taxonomy onto HTTP statuses.
func respondServiceError(w http.ResponseWriter, logger *zap.SugaredLogger, action string, err error) {
	switch {
	case errors.Is(err, services.ErrValidation):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrPermission):
		respondError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, services.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, services.ErrInvalidState), errors.Is(err, services.ErrConflict):
		respondError(w, http.StatusConflict, err.Error())
	default:
		logger.Errorw("Request failed", "action", action, "error", err)
		respondError(w, http.StatusInternalServerError, "Failed to "+action)
	}
}

// actorFrom returns the authenticated caller; RequireAuth guarantees one.
func actorFrom(r *http.Request) models.Actor {
	actor, _ := middleware.ActorFrom(r.Context())
	return actor
}

// pageParams reads ?page and ?limit.
func pageParams(r *http.Request) (int, int) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return page, limit
}

// reportFilter reads the listing query string shared by citizen and police
// report lists.
func reportFilter(r *http.Request) (models.ReportFilter, error) {
	q := r.URL.Query()
	page, limit := pageParams(r)
	f := models.ReportFilter{
		Search:        strings.TrimSpace(q.Get("search")),
		Status:        models.ReportStatus(strings.ToUpper(q.Get("status"))),
		ViolationType: models.ViolationType(strings.ToUpper(q.Get("violationType"))),
		Page:          page,
		Limit:         limit,
	}

	var err error
	if f.DateFrom, err = parseDate(q.Get("dateFrom"), false); err != nil {
		return f, err
	}
	if f.DateTo, err = parseDate(q.Get("dateTo"), true); err != nil {
		return f, err
	}
	return f, nil
}

// parseDate accepts RFC 3339 or a bare date; a bare end date covers the
// whole day.
func parseDate(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// Helper: respond with JSON
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Helper: respond with error
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
