package storage

import (
	"encoding/json"
	"io"

	"github.com/foerg/mbsim-env-sub002/internal/dynamo"
)

type ExportData struct {
	RunMetadata
	Times  []float64   `json:"times"`
	States [][]float64 `json:"states"`
	Forces *ForceTable `json:"forces,omitempty"`
}

// ExportJSON writes the run as a single JSON document.
func ExportJSON(w io.Writer, meta RunMetadata, result *dynamo.Result, forces *ForceTable) error {
	data := ExportData{
		RunMetadata: meta,
		Times:       result.Times,
		States:      make([][]float64, len(result.States)),
		Forces:      forces,
	}
	data.Steps = result.StepsTaken
	data.Impacts = result.Impacts
	data.EnergyDrift = result.EnergyDrift
	data.Metrics = result.Metrics
	for i, s := range result.States {
		data.States[i] = s
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
