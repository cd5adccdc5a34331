package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// FlowParams are the onboarding parameters read once from the boot partition.
type FlowParams struct {
	// Skip bypasses the interactive challenges.
	Skip bool `json:"skip"`

	// User presets the username.
	User string `json:"user,omitempty"`
}

// LoadFlowParams reads the boot-time init configuration.
// A missing file yields the fully interactive defaults. The "kano-init" key
// takes priority over the older "kano_init" spelling.
func LoadFlowParams(path string) (FlowParams, error) {
	var params FlowParams

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return params, nil
		}
		return params, fmt.Errorf("failed to read init config: %w", err)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return params, fmt.Errorf("failed to parse init config: %w", err)
	}

	for _, key := range []string{"kano_init", "kano-init"} {
		raw, ok := doc[key]
		if !ok {
			continue
		}
		var p FlowParams
		if err := json.Unmarshal(raw, &p); err != nil {
			return FlowParams{}, fmt.Errorf("failed to parse %q section: %w", key, err)
		}
		params = p
	}

	return params, nil
}
