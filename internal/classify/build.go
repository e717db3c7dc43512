package classify

import (
	"fmt"

	"chatguard/internal/config"
)

// FromConfig builds the standard pipeline: banned terms first, then links.
// Banned terms win when a message trips both.
func FromConfig(cfg *config.ModerationConfig) (*Pipeline, error) {
	banned, err := NewBannedTermClassifier(cfg.BannedTerms, cfg.BannedPatterns)
	if err != nil {
		return nil, fmt.Errorf("failed to create BannedTermClassifier: %w", err)
	}
	link, err := NewLinkClassifier(cfg.LinkPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to create LinkClassifier: %w", err)
	}
	return NewPipeline(banned, link), nil
}
