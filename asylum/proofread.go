package asylum

import (
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"unicode"

	"github.com/client9/misspell"
)

const noIssuesFound = "No major issues found"

var sentenceSplitPattern = regexp.MustCompile(`[.!?]`)

// Proofreader is the offline rewrite/proofread collaborator: a
// dictionary-backed corrector that always succeeds. It backs the text
// commands whenever the AI collaborator is unconfigured or failing.
type Proofreader struct {
	replacer *misspell.Replacer
	logger   *slog.Logger
}

// NewProofreader compiles the misspell dictionary. Compilation can't
// fail; the zero dictionary would just make corrections no-ops, which
// matches the collaborator contract.
func NewProofreader(logger *slog.Logger) *Proofreader {
	if logger == nil {
		logger = slog.Default()
	}
	r := misspell.New()
	r.Compile()
	return &Proofreader{
		replacer: r,
		logger:   logger.With(loggerNameKey, "proofreader"),
	}
}

// Proofread corrects common misspellings in text, returning the fixed
// text and a human-readable issue list. The issue list always has at
// least one entry, a placeholder when nothing was corrected.
func (p *Proofreader) Proofread(text string) (string, []string) {
	fixed, diffs := p.replacer.Replace(text)
	issues := make([]string, 0, len(diffs))
	for _, d := range diffs {
		issues = append(issues, fmt.Sprintf("%q → %q", d.Original, d.Corrected))
	}
	if len(issues) == 0 {
		issues = append(issues, noIssuesFound)
	}
	return fixed, issues
}

// Rewrite applies the offline cleanup pass: sentence splitting,
// adjacent-duplicate-word removal, spelling correction and sentence
// capitalization.
func (p *Proofreader) Rewrite(text string) string {
	sentences := sentenceSplitPattern.Split(text, -1)
	cleaned := make([]string, 0, len(sentences))
	for _, sentence := range sentences {
		sentence = strings.TrimSpace(sentence)
		if sentence == "" {
			continue
		}
		sentence = dropRepeatedWords(sentence)
		sentence, _ = p.replacer.Replace(sentence)
		cleaned = append(cleaned, capitalize(sentence))
	}
	if len(cleaned) == 0 {
		return text
	}
	return strings.Join(cleaned, ". ") + "."
}

// dropRepeatedWords collapses immediately repeated words ("the the").
func dropRepeatedWords(s string) string {
	words := strings.Fields(s)
	out := words[:0]
	for i, w := range words {
		if i > 0 && strings.EqualFold(w, words[i-1]) {
			continue
		}
		out = append(out, w)
	}
	return strings.Join(out, " ")
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
