package policy

import (
	"regexp"
	"strings"
)

type PromptDecision struct {
	Blocked bool
	Reason  string
}

var (
	blockedImagePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(child|minor|underage|kid)s?\b.*\b(nude|naked|sexual|explicit)\b`),
		regexp.MustCompile(`(?i)\b(nude|naked|sexual|explicit)\b.*\b(child|minor|underage|kid)s?\b`),
		regexp.MustCompile(`(?i)\b(gore|dismember(ed|ment)?|beheading)\b`),
	}
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(password|passcode|pin code|api[_ -]?key|token|secret|ssn|social security)\b`),
	}
	maxFactLen = 280
)

// DecideImagePrompt rejects image prompts the companion must never render.
func DecideImagePrompt(prompt string) PromptDecision {
	in := strings.TrimSpace(prompt)
	if in == "" {
		return PromptDecision{Blocked: true, Reason: "Prompt is empty."}
	}
	for _, re := range blockedImagePatterns {
		if re.MatchString(in) {
			return PromptDecision{Blocked: true, Reason: "That image request is not something I can create."}
		}
	}
	return PromptDecision{}
}

// ShouldRemember filters extracted memory facts. Credentials and oversized
// blobs are never kept.
func ShouldRemember(fact string) bool {
	in := strings.TrimSpace(fact)
	if in == "" || len(in) > maxFactLen {
		return false
	}
	for _, re := range secretPatterns {
		if re.MatchString(in) {
			return false
		}
	}
	return true
}
