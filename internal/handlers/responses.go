package handlers

import (
	"sort"

	"github.com/nfrund/scriptdesk/internal/domain"
)

// ErrorResponse is the standard format for API error responses.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Property is one hadoop property in list form.
type Property struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ScriptResponse is the DTO for a script.
type ScriptResponse struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Script           string     `json:"script"`
	Parameters       []string   `json:"parameters"`
	Resources        []string   `json:"resources"`
	HadoopProperties []Property `json:"hadoopProperties"`
	Language         string     `json:"language"`
	IsDesign         *bool      `json:"isDesign,omitempty"`
}

// NewScriptResponse maps a domain script to its DTO. withDesign controls
// whether the isDesign flag is included.
func NewScriptResponse(s *domain.Script, withDesign bool) *ScriptResponse {
	r := &ScriptResponse{
		ID:               s.ID,
		Name:             s.Name,
		Script:           s.Body,
		Parameters:       nonNil(s.Parameters),
		Resources:        nonNil(s.Resources),
		HadoopProperties: properties(s.Properties),
		Language:         s.Language,
	}
	if withDesign {
		design := s.IsDesign
		r.IsDesign = &design
	}
	return r
}

// IDResponse is returned by save.
type IDResponse struct {
	ID string `json:"id"`
}

// InstallResult is returned by install_examples.
type InstallResult struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func properties(m map[string]string) []Property {
	out := make([]Property, 0, len(m))
	for k, v := range m {
		out = append(out, Property{Name: k, Value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
