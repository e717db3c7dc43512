package classify

import (
	"testing"

	"chatguard/internal/config"

	"github.com/stretchr/testify/require"
)

func TestNewBannedTermClassifier(t *testing.T) {
	t.Run("should create classifier with valid patterns", func(t *testing.T) {
		_, err := NewBannedTermClassifier([]string{"gand"}, []string{`fr[e3]{2}\s+nitro`})
		require.NoError(t, err)
	})

	t.Run("should fail with invalid pattern", func(t *testing.T) {
		_, err := NewBannedTermClassifier(nil, []string{`[`})
		require.Error(t, err)
	})
}

func TestBannedTermClassifier_Classify(t *testing.T) {
	f, err := NewBannedTermClassifier([]string{"gand", "Spam Word", "  ", "STRASSE"}, []string{`fr[e3]{2}\s+nitro`})
	require.NoError(t, err)

	testCases := []struct {
		name      string
		text      string
		flagged   bool
		wantMatch string
	}{
		{"clean text", "hello there friend", false, ""},
		{"exact term", "hello gand bro", true, "gand"},
		{"upper case", "HELLO GAND", true, "gand"},
		{"mixed case", "GaNd", true, "gand"},
		{"substring inside a word", "gandalf the grey", true, "gand"},
		{"multi-word term", "this is a spam word here", true, "Spam Word"},
		{"unicode folding", "die straße", true, "STRASSE"},
		{"pattern match", "FREE nitro here", true, `fr[e3]{2}\s+nitro`},
		{"pattern with substitution", "fr33 nitro", true, `fr[e3]{2}\s+nitro`},
		{"blank terms are ignored", "a b c", false, ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := f.Classify(tc.text)
			require.Equal(t, tc.flagged, v.Flagged)
			if tc.flagged {
				require.Equal(t, RuleBannedTerm, v.RuleID)
				require.Equal(t, RuleBannedTerm, v.Reason)
				require.Equal(t, tc.wantMatch, v.Match)
			}
		})
	}
}

func TestLinkClassifier_Classify(t *testing.T) {
	f, err := NewLinkClassifier("")
	require.NoError(t, err)

	testCases := []struct {
		name    string
		text    string
		flagged bool
	}{
		{"plain text", "no links here", false},
		{"https url", "see https://example.com/x", true},
		{"http url upper case", "HTTP://EXAMPLE.COM", true},
		{"bare www", "check www.example.com", true},
		{"bare www upper case", "WWW.EXAMPLE.COM", true},
		{"dotted version string", "upgrade to v2.0 today", false},
		{"scheme without host", "https://", true},
		{"space after www", "go to www. example .com", true},
		{"space after scheme", "visit https:// evil.example", true},
		{"ends with www", "ends with www.", true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			v := f.Classify(tc.text)
			require.Equal(t, tc.flagged, v.Flagged)
			if tc.flagged {
				require.Equal(t, RuleLink, v.RuleID)
			}
		})
	}

	t.Run("prefix alone is captured when the host is split off", func(t *testing.T) {
		v := f.Classify("visit https:// evil.example")
		require.Equal(t, "https://", v.Match)
		v = f.Classify("see www.example.com/a b")
		require.Equal(t, "www.example.com/a", v.Match)
	})

	t.Run("custom pattern is forced case-insensitive", func(t *testing.T) {
		f, err := NewLinkClassifier(`discord\.gg/\w+`)
		require.NoError(t, err)
		require.True(t, f.Classify("join DISCORD.GG/abc").Flagged)
		require.False(t, f.Classify("https://example.com").Flagged)
	})

	t.Run("invalid pattern fails", func(t *testing.T) {
		_, err := NewLinkClassifier(`(`)
		require.Error(t, err)
	})
}

func TestPipeline_Classify(t *testing.T) {
	p, err := FromConfig(&config.ModerationConfig{BannedTerms: []string{"gand"}})
	require.NoError(t, err)
	require.Equal(t, []string{"BannedTermClassifier", "LinkClassifier"}, p.Names())

	t.Run("banned term wins over link", func(t *testing.T) {
		for _, text := range []string{
			"gand https://example.com",
			"https://example.com gand",
			"www.gand.com",
		} {
			v := p.Classify(text)
			require.True(t, v.Flagged, text)
			require.Equal(t, RuleBannedTerm, v.RuleID, text)
		}
	})

	t.Run("link without banned term", func(t *testing.T) {
		v := p.Classify("check www.example.com")
		require.True(t, v.Flagged)
		require.Equal(t, RuleLink, v.RuleID)
		require.Equal(t, "www.example.com", v.Match)
	})

	t.Run("clean", func(t *testing.T) {
		require.Equal(t, Clean(), p.Classify("good morning"))
	})

	t.Run("idempotent", func(t *testing.T) {
		for _, text := range []string{"hello gand bro", "check www.example.com", "hi"} {
			require.Equal(t, p.Classify(text), p.Classify(text))
		}
	})

	t.Run("empty pipeline is always clean", func(t *testing.T) {
		require.False(t, NewPipeline().Classify("gand www.x.com").Flagged)
		require.False(t, NewPipeline(nil).Classify("anything").Flagged)
	})
}

func TestFromConfig_Defaults(t *testing.T) {
	p, err := FromConfig(&config.Default().Moderation)
	require.NoError(t, err)

	for _, text := range []string{"CHUTIYA", "teri maa ke gand yaar", "you Bhanchod"} {
		v := p.Classify(text)
		require.True(t, v.Flagged, text)
		require.Equal(t, RuleBannedTerm, v.RuleID, text)
	}
	require.Equal(t, RuleLink, p.Classify("go to www. example .com").RuleID)
	require.False(t, p.Classify("hello there").Flagged)
}

func TestFromConfig_InvalidPatterns(t *testing.T) {
	_, err := FromConfig(&config.ModerationConfig{BannedPatterns: []string{"["}})
	require.Error(t, err)
	_, err = FromConfig(&config.ModerationConfig{LinkPattern: "("})
	require.Error(t, err)
}
