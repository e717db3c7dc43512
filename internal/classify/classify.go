// Package classify inspects message text and reports whether it breaks a
// content rule. Classifiers are pure: the same text always yields the same
// verdict, and all of them are safe for concurrent use.
package classify

const (
	RuleBannedTerm = "banned_term"
	RuleLink       = "link"
)

// Verdict is the outcome of one classifier over one piece of text.
type Verdict struct {
	Flagged bool
	// Reason is the short machine-readable cause, e.g. "banned_term".
	Reason string
	// RuleID names the rule that fired.
	RuleID string
	// Match is the term or substring that triggered the rule, for logging.
	Match string
}

// Clean is the verdict of a classifier that found nothing.
func Clean() Verdict { return Verdict{} }

func Flagged(ruleID, match string) Verdict {
	return Verdict{Flagged: true, Reason: ruleID, RuleID: ruleID, Match: match}
}

type Classifier interface {
	Name() string
	Classify(text string) Verdict
}

// Pipeline runs classifiers in order and returns the first flagged verdict.
// Order is policy: put the rule whose reason should win first.
type Pipeline struct {
	classifiers []Classifier
}

func NewPipeline(classifiers ...Classifier) *Pipeline {
	cs := make([]Classifier, 0, len(classifiers))
	for _, c := range classifiers {
		if c != nil {
			cs = append(cs, c)
		}
	}
	return &Pipeline{classifiers: cs}
}

func (p *Pipeline) Name() string { return "Pipeline" }

func (p *Pipeline) Classify(text string) Verdict {
	for _, c := range p.classifiers {
		if v := c.Classify(text); v.Flagged {
			return v
		}
	}
	return Clean()
}

// Names lists the classifiers in evaluation order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.classifiers))
	for i, c := range p.classifiers {
		names[i] = c.Name()
	}
	return names
}
