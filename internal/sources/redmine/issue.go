package redmine

import (
	"bytes"
	"encoding/json"
	"strings"
)

// issueEnvelope is the body of GET /issues/<id>.json
type issueEnvelope struct {
	Issue *Issue `json:"issue"`
}

// namedRef is the {id, name} shape Redmine uses for every association.
type namedRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Issue is the subset of a Redmine issue the preview is built from.
//
// Scalar attributes keep their raw JSON so that numbers are rendered exactly
// as Redmine sent them (ex: "0.0" hours, "30" percent).
type Issue struct {
	ID          int       `json:"id"`
	Project     *namedRef `json:"project"`
	Tracker     *namedRef `json:"tracker"`
	Status      *namedRef `json:"status"`
	Priority    *namedRef `json:"priority"`
	Author      *namedRef `json:"author"`
	Subject     string    `json:"subject"`
	Description *string   `json:"description"`
	IsPrivate   bool      `json:"is_private"`

	StartDate           json.RawMessage `json:"start_date"`
	DueDate             json.RawMessage `json:"due_date"`
	DoneRatio           json.RawMessage `json:"done_ratio"`
	EstimatedHours      json.RawMessage `json:"estimated_hours"`
	TotalEstimatedHours json.RawMessage `json:"total_estimated_hours"`
	SpentHours          json.RawMessage `json:"spent_hours"`
	TotalSpentHours     json.RawMessage `json:"total_spent_hours"`

	CustomFields []CustomField `json:"custom_fields"`
}

// CustomField is a project-defined attribute. Value is a string, null,
// or an array of strings for multi-value fields.
type CustomField struct {
	ID    int             `json:"id"`
	Name  string          `json:"name"`
	Value json.RawMessage `json:"value"`
}

// ProjectName returns the project name, or "" when absent.
func (i *Issue) ProjectName() string {
	if i.Project == nil {
		return ""
	}
	return i.Project.Name
}

// scalarText renders a raw JSON scalar. Null, objects and arrays render as "".
func scalarText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case 'n', '{', '[':
		return ""
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return s
	default:
		return string(raw)
	}
}

// customValueText renders a custom field value; arrays are joined with ", ".
func customValueText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] != '[' {
		return scalarText(raw)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return ""
	}
	parts := make([]string, 0, len(items))
	for _, item := range items {
		parts = append(parts, scalarText(item))
	}
	return strings.Join(parts, ", ")
}
