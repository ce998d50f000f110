package redmine

import (
	"encoding/json"
	"strings"

	"github.com/MrSnakeDoc/unfurl/internal/domain"
)

// namedAttributes are shown first, labelled by their key.
var namedAttributes = []struct {
	label string
	ref   func(*Issue) *namedRef
}{
	{"tracker", func(i *Issue) *namedRef { return i.Tracker }},
	{"status", func(i *Issue) *namedRef { return i.Status }},
	{"priority", func(i *Issue) *namedRef { return i.Priority }},
	{"author", func(i *Issue) *namedRef { return i.Author }},
}

// scalarAttributes is the allowlist of plain attributes, in Redmine's order.
// Identifiers, text bodies, timestamps, the privacy flag and nested
// collections are deliberately absent.
var scalarAttributes = []struct {
	key   string
	value func(*Issue) json.RawMessage
}{
	{"start_date", func(i *Issue) json.RawMessage { return i.StartDate }},
	{"due_date", func(i *Issue) json.RawMessage { return i.DueDate }},
	{"done_ratio", func(i *Issue) json.RawMessage { return i.DoneRatio }},
	{"estimated_hours", func(i *Issue) json.RawMessage { return i.EstimatedHours }},
	{"total_estimated_hours", func(i *Issue) json.RawMessage { return i.TotalEstimatedHours }},
	{"spent_hours", func(i *Issue) json.RawMessage { return i.SpentHours }},
	{"total_spent_hours", func(i *Issue) json.RawMessage { return i.TotalSpentHours }},
}

// buildFields renders the card fields of an issue. Labels are unique;
// the first occurrence of a label wins.
func buildFields(issue *Issue, includeCustom bool) []domain.Field {
	fields := make([]domain.Field, 0, len(namedAttributes)+len(scalarAttributes)+len(issue.CustomFields))

	for _, attr := range namedAttributes {
		if ref := attr.ref(issue); ref != nil && ref.Name != "" {
			fields = append(fields, domain.Field{Label: attr.label, Value: ref.Name})
		}
	}

	for _, attr := range scalarAttributes {
		if v := scalarText(attr.value(issue)); v != "" {
			fields = append(fields, domain.Field{
				Label: strings.ReplaceAll(attr.key, "_", " "),
				Value: v,
			})
		}
	}

	if includeCustom {
		for _, cf := range issue.CustomFields {
			v := customValueText(cf.Value)
			if strings.TrimSpace(v) == "" {
				continue
			}
			fields = append(fields, domain.Field{Label: cf.Name, Value: v})
		}
	}

	return uniqueByLabel(fields)
}

func uniqueByLabel(fields []domain.Field) []domain.Field {
	seen := make(map[string]bool, len(fields))
	out := fields[:0]
	for _, f := range fields {
		if seen[f.Label] {
			continue
		}
		seen[f.Label] = true
		out = append(out, f)
	}
	return out
}
