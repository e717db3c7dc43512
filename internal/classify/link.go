package classify

import (
	"fmt"
	"regexp"
	"strings"

	"chatguard/internal/config"
)

// DefaultLinkPattern flags the scheme or "www." prefix alone; whatever
// follows it up to the next space is only captured for the match.
const DefaultLinkPattern = config.DefaultLinkPattern

// LinkClassifier flags text containing a URL-like substring.
type LinkClassifier struct {
	regex *regexp.Regexp
}

// NewLinkClassifier compiles pattern case-insensitively. An empty pattern
// uses DefaultLinkPattern.
func NewLinkClassifier(pattern string) (*LinkClassifier, error) {
	if pattern == "" {
		pattern = DefaultLinkPattern
	}
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	rx, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to compile link pattern '%s': %w", pattern, err)
	}
	return &LinkClassifier{regex: rx}, nil
}

func (f *LinkClassifier) Name() string { return "LinkClassifier" }

func (f *LinkClassifier) Classify(text string) Verdict {
	if loc := f.regex.FindStringIndex(text); loc != nil {
		return Flagged(RuleLink, text[loc[0]:loc[1]])
	}
	return Clean()
}
