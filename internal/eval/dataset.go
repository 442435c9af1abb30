package eval

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"safetycopilot/internal/pipeline"
)

// Dataset is the on-disk form of an evaluation batch. A bare list of
// systems is accepted as well and leaves Standard empty.
type Dataset struct {
	// Standard is the profile the batch targets when none is given
	// explicitly.
	Standard string            `yaml:"standard,omitempty"`
	Systems  []pipeline.System `yaml:"systems"`
}

// LoadDataset reads a dataset from a YAML (or JSON) file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	return ParseDataset(data)
}

// ParseDataset decodes either a top-level list of systems or a Dataset.
func ParseDataset(data []byte) (*Dataset, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	ds := &Dataset{}
	if len(node.Content) == 0 {
		return ds, nil
	}

	switch node.Content[0].Kind {
	case yaml.SequenceNode:
		if err := node.Decode(&ds.Systems); err != nil {
			return nil, fmt.Errorf("failed to decode systems: %w", err)
		}
	case yaml.MappingNode:
		if err := node.Decode(ds); err != nil {
			return nil, fmt.Errorf("failed to decode dataset: %w", err)
		}
	default:
		return nil, fmt.Errorf("dataset must be a list of systems or a mapping with a systems key")
	}

	for i, s := range ds.Systems {
		if s.ID == "" {
			return nil, fmt.Errorf("system %d: id is required", i)
		}
		if s.Description == "" {
			return nil, fmt.Errorf("system %s: description is required", s.ID)
		}
	}
	return ds, nil
}

// BuiltinSystems returns the example batch used when no dataset is given.
func BuiltinSystems() []pipeline.System {
	return []pipeline.System{
		{
			ID:     "brake_ecu",
			Name:   "Brake control ECU",
			Domain: "automotive",
			Description: "An automotive brake control ECU that manages hydraulic braking " +
				"for a high-voltage electric powertrain.",
			ExpectedMustHave: []string{"hara", "safety_goals", "safety_requirements", "verification_plan", "safety_case"},
		},
		{
			ID:     "bms",
			Name:   "Battery management system",
			Domain: "automotive",
			Description: "A battery management system (BMS) for an electric vehicle that " +
				"monitors cell voltages and temperatures and opens the contactors on faults.",
			ExpectedMustHave: []string{"hara", "safety_goals", "verification_plan", "safety_case"},
		},
		{
			ID:               "step_tracker",
			Name:             "Step tracker app",
			Domain:           "consumer",
			Description:      "A mobile app for tracking daily steps and showing basic statistics.",
			ExpectedMustHave: []string{"risk_assessment", "testing"},
		},
	}
}
