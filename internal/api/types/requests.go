// Package types defines API request and response types.
package types

import (
	"github.com/bargom/runforge/internal/run"
)

// RunInputPayload is one named input supplied with an initiation request.
type RunInputPayload struct {
	Type     string   `json:"type" validate:"required,oneof=asset text"`
	AssetIDs []string `json:"assetIds" validate:"omitempty,dive,uuid"`
	Text     string   `json:"text" validate:"omitempty,max=65536"`
}

// InitiateRunRequest starts a workflow run from a published template.
type InitiateRunRequest struct {
	TemplateID string                     `json:"templateId" validate:"required,uuid"`
	Inputs     map[string]RunInputPayload `json:"inputs" validate:"required"`
}

// ToRunRequest converts the API payload to the service request.
func (r InitiateRunRequest) ToRunRequest() run.Request {
	inputs := make(map[string]run.InputValue, len(r.Inputs))
	for name, in := range r.Inputs {
		inputs[name] = run.InputValue{
			Type:     run.InputValueType(in.Type),
			AssetIDs: in.AssetIDs,
			Text:     in.Text,
		}
	}
	return run.Request{TemplateID: r.TemplateID, Inputs: inputs}
}

// FileResultRequest is a worker's outcome report for one subject file.
type FileResultRequest struct {
	Completed     bool   `json:"completed"`
	OutputAssetID string `json:"outputAssetId" validate:"omitempty,uuid"`
	ErrorMessage  string `json:"errorMessage" validate:"omitempty,max=4096"`
}

// RunResultRequest is a worker's outcome report for a single-job run.
type RunResultRequest struct {
	Completed    bool   `json:"completed"`
	ErrorMessage string `json:"errorMessage" validate:"omitempty,max=4096"`
}
