package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Policy is the tunable table behind the sanitizer heuristics.
type Policy struct {
	// AgentLabels are speaker labels that always mark an agent turn.
	AgentLabels []string `yaml:"agent_labels"`
	// CustomerMarkers are generic speaker labels for the customer side.
	CustomerMarkers []string `yaml:"customer_markers"`
	// AffirmativePattern matches short customer replies (yes/no/okay/thanks).
	AffirmativePattern string `yaml:"affirmative_pattern"`
	// DropUnknownSpeakers drops lines labelled by capitalized words that are
	// not agent labels.
	DropUnknownSpeakers bool `yaml:"drop_unknown_speakers"`
	// MinLength is the shortest unlabelled result accepted before falling back.
	MinLength int `yaml:"min_length"`
	// FallbackTemplate is used when nothing usable survives; {name} is replaced
	// with the customer's first name.
	FallbackTemplate string `yaml:"fallback_template"`
}

// DefaultPolicy returns the built-in policy.
func DefaultPolicy() Policy {
	return Policy{
		AgentLabels: []string{
			"agent", "sales agent", "sales rep", "rep", "representative",
			"caller", "assistant", "ai", "ai agent", "marketing agent", "host",
		},
		CustomerMarkers:     []string{"customer", "client", "recipient", "prospect", "callee"},
		AffirmativePattern:  `(?i)^(yes|yeah|yep|yup|no|nope|ok|okay|sure|thanks|thank you|great|fine|alright|all right|uh-huh|mm-hmm|of course|absolutely)[\s.!?,]*$`,
		DropUnknownSpeakers: true,
		MinLength:           50,
		FallbackTemplate: "Hello {name}, this is a call from our marketing team. " +
			"We'd like to ask you a few quick questions about our recent marketing campaigns.\n" +
			"Have you received any marketing communications from us recently?\n" +
			"How would you rate your experience with our campaigns?\n" +
			"Did any of our campaigns influence your purchasing decisions?\n" +
			"Thank you for your time and feedback!",
	}
}

// LoadPolicy reads a YAML policy file. Keys absent from the file keep their
// default values. An empty path returns the defaults.
func LoadPolicy(path string) (Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Policy{}, fmt.Errorf("script: read policy: %w", err)
	}
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return Policy{}, fmt.Errorf("script: parse policy: %w", err)
	}
	return policy, nil
}
