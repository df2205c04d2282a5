package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Replies holds the fixed, non-technical texts sent to the user when the
// pipeline cannot produce a grounded answer. No internal error text is ever
// relayed to the end user.
type Replies struct {
	// Fallback is sent when generation or delivery of a grounded answer fails.
	Fallback string `yaml:"fallback"`
	// NoGrounding is sent when no grounding document text is available.
	NoGrounding string `yaml:"noGrounding"`
}

func DefaultReplies() Replies {
	return Replies{
		Fallback:    "Sorry, something went wrong while answering your question. Please try again in a moment.",
		NoGrounding: "Sorry, the reference document is currently unavailable. Please try again later.",
	}
}

// LoadReplies reads reply-text overrides from a YAML file. Fields left empty
// in the file keep their defaults.
func LoadReplies(path string) (Replies, error) {
	replies := DefaultReplies()

	data, err := os.ReadFile(path)
	if err != nil {
		return replies, fmt.Errorf("cannot read replies file %s: %w", path, err)
	}

	var overrides Replies
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return replies, fmt.Errorf("cannot parse replies file %s: %w", path, err)
	}

	if overrides.Fallback != "" {
		replies.Fallback = overrides.Fallback
	}
	if overrides.NoGrounding != "" {
		replies.NoGrounding = overrides.NoGrounding
	}
	return replies, nil
}
