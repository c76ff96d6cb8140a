package providers

import "strings"

// Override is a per-model parameter adjustment applied on top of a
// request's requested temperature/max_tokens.
type Override struct {
	Temperature *float64
	MaxTokens   *int
}

// ModelOverrides maps case-insensitive substring patterns on the model
// name to parameter overrides. Longest matching pattern wins when more
// than one substring matches.
type ModelOverrides struct {
	entries map[string]Override
}

func NewModelOverrides() *ModelOverrides {
	mo := &ModelOverrides{entries: make(map[string]Override)}
	// kimi-k2.5 only samples sanely at temperature 1.0; lower values
	// produce degenerate repetition.
	one := 1.0
	mo.entries["kimi-k2.5"] = Override{Temperature: &one}
	return mo
}

// Set registers or replaces an override pattern.
func (m *ModelOverrides) Set(pattern string, o Override) {
	m.entries[strings.ToLower(pattern)] = o
}

// Resolve returns (temperature, maxTokens) adjusted by the longest
// matching pattern contained in modelName, or the inputs unchanged if no
// pattern matches.
func (m *ModelOverrides) Resolve(modelName string, temperature float64, maxTokens int) (float64, int) {
	lower := strings.ToLower(modelName)
	var best string
	var bestOverride Override
	found := false
	for pattern, o := range m.entries {
		if strings.Contains(lower, pattern) && len(pattern) > len(best) {
			best = pattern
			bestOverride = o
			found = true
		}
	}
	if !found {
		return temperature, maxTokens
	}
	if bestOverride.Temperature != nil {
		temperature = *bestOverride.Temperature
	}
	if bestOverride.MaxTokens != nil {
		maxTokens = *bestOverride.MaxTokens
	}
	return temperature, maxTokens
}
