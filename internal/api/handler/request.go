package handler

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/cardlens/internal/analysis"
	"github.com/kiranshivaraju/cardlens/internal/api/response"
	"github.com/kiranshivaraju/cardlens/internal/store"
)

const maxBodyBytes = 1 << 20

const defaultPageLimit = 50

// enqueueRequest is the optional body of the card and deck triggers.
type enqueueRequest struct {
	Priority int `json:"priority" validate:"min=0,max=100"`
}

// reanalyzeRequest selects cards by their current analysis. Every set field
// must match.
type reanalyzeRequest struct {
	Domain     string     `json:"domain"      validate:"omitempty,known_domain"`
	Before     *time.Time `json:"before"`
	MinVersion *int       `json:"min_version" validate:"omitempty,min=1"`
	Limit      int        `json:"limit"       validate:"omitempty,min=1,max=50000"`
	Priority   int        `json:"priority"    validate:"min=0,max=100"`
}

// pageRequest holds the page and limit query parameters of a listing.
type pageRequest struct {
	Page  int `json:"page"  validate:"min=1"`
	Limit int `json:"limit" validate:"min=1,max=200"`
}

func (p pageRequest) storePage() store.Page {
	return store.Page{Offset: (p.Page - 1) * p.Limit, Limit: p.Limit}
}

type createKeyRequest struct {
	Name   string   `json:"name"   validate:"required,max=100"`
	Scopes []string `json:"scopes" validate:"required,min=1,dive,oneof=read admin"`
}

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	// Registration only fails for an empty tag or nil func.
	_ = v.RegisterValidation("known_domain", func(fl validator.FieldLevel) bool {
		return analysis.IsKnownDomain(fl.Field().String())
	})
	return v
}

// decodeAndValidate reads a JSON body into dst and validates it. An empty
// body is allowed when optional is set and leaves dst at its zero value.
// On failure the error response has already been written.
func decodeAndValidate(w http.ResponseWriter, r *http.Request, v *validator.Validate, dst any, optional bool) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, "Invalid JSON body", nil)
			return false
		}
	}

	if err := v.Struct(dst); err != nil {
		writeValidationError(w, err)
		return false
	}
	return true
}

// writeValidationError maps each failed field to the tag that rejected it.
func writeValidationError(w http.ResponseWriter, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, err.Error(), nil)
		return
	}
	details := make(map[string]any, len(verrs)+1)
	for _, fe := range verrs {
		details[fe.Field()] = fe.Tag()
		if fe.Tag() == "known_domain" {
			details["allowed_domains"] = append(analysis.Domains(), analysis.DomainUnknown)
		}
	}
	response.Error(w, http.StatusBadRequest, response.CodeValidationFailed, "Request validation failed", details)
}

// parsePage reads page and limit from the query string, defaulting to the
// first page of defaultPageLimit. On failure a 400 has been written.
func parsePage(w http.ResponseWriter, r *http.Request, v *validator.Validate) (pageRequest, bool) {
	req := pageRequest{Page: 1, Limit: defaultPageLimit}
	q := r.URL.Query()
	for name, dst := range map[string]*int{"page": &req.Page, "limit": &req.Limit} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			response.Error(w, http.StatusBadRequest, response.CodeInvalidRequest, name+" must be an integer", nil)
			return pageRequest{}, false
		}
		*dst = n
	}

	if err := v.Struct(&req); err != nil {
		writeValidationError(w, err)
		return pageRequest{}, false
	}
	return req, true
}

// uuidParam parses a chi URL parameter. On failure a 400 with code has been
// written.
func uuidParam(w http.ResponseWriter, r *http.Request, name string, code response.Code) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		response.Error(w, http.StatusBadRequest, code, "Invalid "+name+" format", nil)
		return uuid.Nil, false
	}
	return id, true
}
