package scheduler

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// SequenceStep is one step in a named follow-up template.
type SequenceStep struct {
	OffsetDays int    `json:"offset_days" yaml:"offset_days"`
	Action     string `json:"action" yaml:"action"`
	Content    string `json:"content" yaml:"content"`
}

// LoadSequencesFile reads named follow-up templates from a YAML file.
// Each top-level key is a template name mapping to a list of steps.
func LoadSequencesFile(path string) (map[string][]SequenceStep, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sequences file: %w", err)
	}

	var templates map[string][]SequenceStep
	if err := yaml.Unmarshal(data, &templates); err != nil {
		return nil, fmt.Errorf("error parsing sequences file %s: %w", path, err)
	}

	for name, steps := range templates {
		if len(steps) == 0 {
			return nil, fmt.Errorf("sequence template %q has no steps", name)
		}
		for i, step := range steps {
			if step.Action == "" {
				return nil, fmt.Errorf("sequence template %q step %d has no action", name, i+1)
			}
			if step.OffsetDays < 0 {
				return nil, fmt.Errorf("sequence template %q step %d has a negative offset", name, i+1)
			}
		}
	}
	return templates, nil
}

// DefaultSequences returns the built-in follow-up templates.
func DefaultSequences() map[string][]SequenceStep {
	return map[string][]SequenceStep{
		"linkedin_connection": {
			{OffsetDays: 0, Action: "connection_request", Content: "Personalized connection request"},
			{OffsetDays: 2, Action: "follow_up_message", Content: "Thanks for connecting, brief intro"},
			{OffsetDays: 5, Action: "value_content", Content: "Share a relevant article or insight"},
		},
		"business_inquiry": {
			{OffsetDays: 0, Action: "acknowledgment", Content: "Confirm receipt, set expectations"},
			{OffsetDays: 1, Action: "detailed_response", Content: "Full response with proposal"},
			{OffsetDays: 7, Action: "check_in", Content: "Follow up if no reply"},
		},
		"content_engagement": {
			{OffsetDays: 0, Action: "like_and_comment", Content: "Engage with the post"},
			{OffsetDays: 3, Action: "share_with_commentary", Content: "Share with added perspective"},
		},
	}
}
