package classify

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
)

type compiledPattern struct {
	source string
	regex  *regexp.Regexp
}

// BannedTermClassifier flags text containing any configured term anywhere,
// ignoring case, plus any text matching one of the extra patterns.
type BannedTermClassifier struct {
	terms    []string // folded
	sources  []string // as configured, parallel to terms
	patterns []compiledPattern
}

// NewBannedTermClassifier folds terms once up front. Patterns are compiled
// case-insensitively; an invalid pattern is an error.
func NewBannedTermClassifier(terms, patterns []string) (*BannedTermClassifier, error) {
	f := &BannedTermClassifier{}
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		f.terms = append(f.terms, fold(term))
		f.sources = append(f.sources, term)
	}
	for _, rx := range patterns {
		compiled, err := regexp.Compile(`(?i)` + rx)
		if err != nil {
			return nil, fmt.Errorf("failed to compile banned pattern '%s': %w", rx, err)
		}
		f.patterns = append(f.patterns, compiledPattern{source: rx, regex: compiled})
	}
	return f, nil
}

func (f *BannedTermClassifier) Name() string { return "BannedTermClassifier" }

func (f *BannedTermClassifier) Classify(text string) Verdict {
	if len(f.terms) > 0 {
		folded := fold(text)
		for i, term := range f.terms {
			if strings.Contains(folded, term) {
				return Flagged(RuleBannedTerm, f.sources[i])
			}
		}
	}
	for _, p := range f.patterns {
		if p.regex.MatchString(text) {
			return Flagged(RuleBannedTerm, p.source)
		}
	}
	return Clean()
}

// fold applies full Unicode case folding. A Caser carries state, so each call
// gets its own.
func fold(s string) string {
	return cases.Fold().String(s)
}
