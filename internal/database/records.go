package database

import (
	"fmt"
	"time"

	"github.com/nfrund/scriptdesk/internal/domain"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

const (
	scriptTable   = "script"
	documentTable = "document"
)

// scriptRecord is the stored shape of a domain.Script.
type scriptRecord struct {
	ID         *surrealmodels.RecordID       `json:"id,omitempty"`
	Owner      string                        `json:"owner"`
	Name       string                        `json:"name"`
	Body       string                        `json:"body"`
	Language   string                        `json:"language"`
	Parameters []string                      `json:"parameters"`
	Resources  []string                      `json:"resources"`
	Properties map[string]string             `json:"properties"`
	IsDesign   bool                          `json:"is_design"`
	JobID      string                        `json:"job_id"`
	DocumentID string                        `json:"document_id"`
	CreatedAt  *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
	UpdatedAt  *surrealmodels.CustomDateTime `json:"updated_at,omitempty"`
}

func scriptContent(s *domain.Script) map[string]any {
	return map[string]any{
		"owner":       s.Owner,
		"name":        s.Name,
		"body":        s.Body,
		"language":    s.Language,
		"parameters":  nonNil(s.Parameters),
		"resources":   nonNil(s.Resources),
		"properties":  nonNilMap(s.Properties),
		"is_design":   s.IsDesign,
		"job_id":      s.JobID,
		"document_id": s.DocumentID,
		"created_at":  dateTime(s.CreatedAt),
		"updated_at":  dateTime(s.UpdatedAt),
	}
}

func (r *scriptRecord) toDomain() *domain.Script {
	return &domain.Script{
		ID:         recordKey(r.ID),
		Owner:      r.Owner,
		Name:       r.Name,
		Body:       r.Body,
		Language:   r.Language,
		Parameters: nonNil(r.Parameters),
		Resources:  nonNil(r.Resources),
		Properties: nonNilMap(r.Properties),
		IsDesign:   r.IsDesign,
		JobID:      r.JobID,
		DocumentID: r.DocumentID,
		CreatedAt:  timeOf(r.CreatedAt),
		UpdatedAt:  timeOf(r.UpdatedAt),
	}
}

// documentRecord is the stored shape of a domain.Document.
type documentRecord struct {
	ID           *surrealmodels.RecordID       `json:"id,omitempty"`
	Owner        string                        `json:"owner"`
	ScriptID     string                        `json:"script_id"`
	Name         string                        `json:"name"`
	SharedUsers  []string                      `json:"shared_users"`
	SharedGroups []string                      `json:"shared_groups"`
	CreatedAt    *surrealmodels.CustomDateTime `json:"created_at,omitempty"`
}

func documentContent(d *domain.Document) map[string]any {
	return map[string]any{
		"owner":         d.Owner,
		"script_id":     d.ScriptID,
		"name":          d.Name,
		"shared_users":  nonNil(d.SharedUsers),
		"shared_groups": nonNil(d.SharedGroups),
		"created_at":    dateTime(d.CreatedAt),
	}
}

func (r *documentRecord) toDomain() *domain.Document {
	return &domain.Document{
		ID:           recordKey(r.ID),
		Owner:        r.Owner,
		ScriptID:     r.ScriptID,
		Name:         r.Name,
		SharedUsers:  r.SharedUsers,
		SharedGroups: r.SharedGroups,
		CreatedAt:    timeOf(r.CreatedAt),
	}
}

// recordKey returns the key part of a record id, e.g. "abc" for script:abc.
func recordKey(id *surrealmodels.RecordID) string {
	if id == nil || id.ID == nil {
		return ""
	}
	if s, ok := id.ID.(string); ok {
		return s
	}
	return fmt.Sprint(id.ID)
}

func dateTime(t time.Time) *surrealmodels.CustomDateTime {
	return &surrealmodels.CustomDateTime{Time: t.UTC()}
}

func timeOf(dt *surrealmodels.CustomDateTime) time.Time {
	if dt == nil {
		return time.Time{}
	}
	return dt.Time.UTC()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
