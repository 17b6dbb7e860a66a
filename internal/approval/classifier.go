package approval

import "strings"

// Financial thresholds in whole currency units. Amounts at or above a
// threshold require at least the associated level.
const (
	StandardAmountThreshold  = 1_000
	CriticalAmountThreshold  = 10_000
	ExecutiveAmountThreshold = 100_000
)

// Classifier maps an action and its details onto the minimum approval level.
type Classifier struct {
	// ActionLevels overrides the built-in defaults per action type.
	ActionLevels map[string]Level

	// EscalateKeywords raises the level by one tier when any of these
	// appear in a free-text detail field such as "content" or "message".
	EscalateKeywords []string

	// SensitiveDataTypes raises data_access requests to at least Critical
	// when the "data_type" detail matches.
	SensitiveDataTypes []string
}

// NewClassifier returns a classifier with the built-in action table and
// keyword list.
func NewClassifier() *Classifier {
	return &Classifier{
		ActionLevels: map[string]Level{
			"send_email":           LevelBasic,
			"schedule_meeting":     LevelBasic,
			"linkedin_post":        LevelStandard,
			"linkedin_connection":  LevelBasic,
			"publish_content":      LevelStandard,
			"contract_negotiation": LevelCritical,
			"financial":            LevelBasic,
			"data_access":          LevelStandard,
			"system_change":        LevelExecutive,
			"partnership":          LevelExecutive,
			"legal_agreement":      LevelExecutive,
		},
		EscalateKeywords: []string{
			"contract", "legal", "lawsuit", "acquisition", "partnership",
			"confidential", "exclusive",
		},
		SensitiveDataTypes: []string{
			"financial", "personal", "credentials", "customer",
		},
	}
}

// Classify returns the minimum approval level for an action. The baseline
// comes from the action table (LevelStandard for unknown actions), then
// financial amounts and escalation keywords can only raise it.
func (c *Classifier) Classify(actionType string, details map[string]interface{}) Level {
	level, ok := c.ActionLevels[actionType]
	if !ok {
		level = LevelStandard
	}

	if amount, ok := amountFrom(details); ok {
		if fl := levelForAmount(amount); fl > level {
			level = fl
		}
	}

	if actionType == "data_access" && c.sensitiveDataHit(details) && level < LevelCritical {
		level = LevelCritical
	}

	if c.keywordHit(details) && level < LevelExecutive {
		level++
	}
	return level
}

func (c *Classifier) sensitiveDataHit(details map[string]interface{}) bool {
	dataType, ok := details["data_type"].(string)
	if !ok {
		return false
	}
	lower := strings.ToLower(dataType)
	for _, s := range c.SensitiveDataTypes {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}

func levelForAmount(amount float64) Level {
	switch {
	case amount >= ExecutiveAmountThreshold:
		return LevelExecutive
	case amount >= CriticalAmountThreshold:
		return LevelCritical
	case amount >= StandardAmountThreshold:
		return LevelStandard
	default:
		return LevelBasic
	}
}

func amountFrom(details map[string]interface{}) (float64, bool) {
	for _, key := range []string{"amount", "value", "budget"} {
		v, ok := details[key]
		if !ok {
			continue
		}
		switch n := v.(type) {
		case float64:
			return n, true
		case float32:
			return float64(n), true
		case int:
			return float64(n), true
		case int64:
			return float64(n), true
		}
	}
	return 0, false
}

func (c *Classifier) keywordHit(details map[string]interface{}) bool {
	for _, key := range []string{"content", "message", "description", "subject"} {
		text, ok := details[key].(string)
		if !ok {
			continue
		}
		lower := strings.ToLower(text)
		for _, kw := range c.EscalateKeywords {
			if strings.Contains(lower, kw) {
				return true
			}
		}
	}
	return false
}
