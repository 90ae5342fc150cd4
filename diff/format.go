package diff

import (
	"encoding/json"
	"fmt"
	"strings"
)

// FormatText renders a diff as human-readable text for CLI output.
func (r *Result) FormatText() string {
	var sb strings.Builder

	for _, id := range r.Details.AddedNodes {
		sb.WriteString(fmt.Sprintf("+ node %s\n", id))
	}
	for _, id := range r.Details.RemovedNodes {
		sb.WriteString(fmt.Sprintf("- node %s\n", id))
	}
	for _, c := range r.Details.ChangedNodes {
		sb.WriteString(fmt.Sprintf("~ node %s\n", c.ID))
	}
	for _, key := range r.Details.AddedEdges {
		sb.WriteString(fmt.Sprintf("+ edge %s\n", key))
	}
	for _, key := range r.Details.RemovedEdges {
		sb.WriteString(fmt.Sprintf("- edge %s\n", key))
	}

	sb.WriteString(fmt.Sprintf("\n%s (score %d)\n", r.Summary, r.Score))
	return sb.String()
}

// FormatJSON renders a diff as indented JSON.
func (r *Result) FormatJSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}
