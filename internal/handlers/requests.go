package handlers

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nfrund/scriptdesk/internal/domain"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// ScriptForm is the DTO for save and run. List and map fields arrive as JSON
// documents inside form values.
type ScriptForm struct {
	ID                  string `form:"id" validate:"max=64"`
	Name                string `form:"name" validate:"max=255"`
	Script              string `form:"script"`
	Parameters          string `form:"parameters"`
	Resources           string `form:"resources"`
	HadoopProperties    string `form:"hadoopProperties"`
	Language            string `form:"language" validate:"max=128"`
	SubmissionVariables string `form:"submissionVariables"`
}

// IDForm is the DTO for endpoints acting on one script.
type IDForm struct {
	ID string `form:"id" validate:"required,max=64"`
}

// DeleteForm is the DTO for the bulk delete endpoint.
type DeleteForm struct {
	IDs    string `form:"ids" validate:"required"`
	Detail string `form:"detail"`
}

// SplitIDs returns the comma separated ids in request order.
func (f DeleteForm) SplitIDs() []string {
	return strings.Split(f.IDs, ",")
}

// WantDetail reports whether per-id results were requested.
func (f DeleteForm) WantDetail() bool {
	ok, _ := strconv.ParseBool(f.Detail)
	return ok
}

// Attrs converts the form into a partial update. present holds the submitted
// form keys; a key that was not submitted leaves the stored field untouched.
func (f ScriptForm) Attrs(present url.Values) (domain.ScriptAttrs, error) {
	const op = "handlers.ScriptForm"
	has := func(key string) bool {
		_, ok := present[key]
		return ok
	}

	attrs := domain.ScriptAttrs{ID: strings.TrimSpace(f.ID)}
	if has("name") {
		attrs.Name = &f.Name
	}
	if has("script") {
		attrs.Body = &f.Script
	}
	if has("language") {
		lang := decodeLanguage(f.Language)
		attrs.Language = &lang
	}

	var err error
	if has("parameters") {
		if attrs.Parameters, err = decodeList(f.Parameters); err != nil {
			return attrs, domain.NewError(domain.ErrInvalidRequest, op, "parameters must be a JSON list", err)
		}
	}
	if has("resources") {
		if attrs.Resources, err = decodeList(f.Resources); err != nil {
			return attrs, domain.NewError(domain.ErrInvalidRequest, op, "resources must be a JSON list", err)
		}
	}
	if has("hadoopProperties") {
		if attrs.Properties, err = decodeProperties(f.HadoopProperties); err != nil {
			return attrs, domain.NewError(domain.ErrInvalidRequest, op, "hadoopProperties must be a JSON object or a list of name/value pairs", err)
		}
	}
	return attrs, nil
}

// Variables decodes the submission variables of a run.
func (f ScriptForm) Variables() (map[string]string, error) {
	vars, err := decodeProperties(f.SubmissionVariables)
	if err != nil {
		return nil, domain.NewError(domain.ErrInvalidRequest, "handlers.ScriptForm", "submissionVariables must be a JSON object or a list of name/value pairs", err)
	}
	return vars, nil
}

// decodeLanguage accepts a JSON string or a bare value.
func decodeLanguage(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return s
	}
	return raw
}

// namedValue is one entry of a list-encoded field, e.g. {"name":"k","value":"v"}
// or {"type":"argument","value":"-n"}.
type namedValue struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// decodeList reads a JSON list of strings or of objects with a value.
func decodeList(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for i, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var nv namedValue
		if err := json.Unmarshal(item, &nv); err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		out = append(out, nv.Value)
	}
	return out, nil
}

// decodeProperties reads a JSON object or a list of name/value pairs.
func decodeProperties(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	if strings.HasPrefix(raw, "{") {
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	var pairs []namedValue
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if p.Name == "" {
			continue
		}
		out[p.Name] = p.Value
	}
	return out, nil
}
