package run

import (
	"strings"
)

// ValidateInputs checks the supplied inputs against the definition's
// declared input list. All violations are collected and reported together.
//
// Rules:
//   - every required declared input must be supplied and non-empty
//     (asset inputs need at least one reference, text inputs non-blank text)
//   - every supplied name must match a declared input (no silent typos)
//   - a supplied value's kind must be in the declared input's source set
//
// Asset reference existence is checked separately against the vault.
func ValidateInputs(def *Definition, inputs map[string]InputValue) error {
	verr := &ValidationError{}

	for _, declared := range def.Inputs {
		value, supplied := inputs[declared.Name]
		if !supplied {
			if declared.Required {
				verr.add("input %q is required", declared.Name)
			}
			continue
		}

		switch value.Type {
		case InputValueAsset:
			if declared.Required && len(value.AssetIDs) == 0 {
				verr.add("input %q requires at least one asset reference", declared.Name)
			}
		case InputValueText:
			if declared.Required && strings.TrimSpace(value.Text) == "" {
				verr.add("input %q requires non-blank text", declared.Name)
			}
		default:
			verr.add("input %q has unknown value type %q", declared.Name, value.Type)
			continue
		}

		if !declared.Accepts(value.Source()) {
			verr.add("input %q does not accept %s values", declared.Name, value.Source())
		}
	}

	for name := range inputs {
		if def.Input(name) == nil {
			verr.add("unknown input %q", name)
		}
	}

	return verr.orNil()
}
