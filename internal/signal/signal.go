// Package signal classifies a user message's feedback character
// (correction, confirmation, or frustration) with a pure, regex-only
// classifier. It
// has no dependency on the graph, LLM, or any other component: the
// loop applies the resulting confidence effects itself.
package signal

import "regexp"

// Type is the signal classification.
type Type string

const (
	TypeCorrection   Type = "correction"
	TypeConfirmation Type = "confirmation"
	TypeFrustration  Type = "frustration"
	TypeNone         Type = "none"
)

// Fixed confidences per pattern class.
const (
	ConfidenceStrongCorrection   = 0.85
	ConfidenceModerateCorrection = 0.65
	ConfidenceConfirmation       = 0.75
	ConfidenceFrustration        = 0.60
)

// Signal is the detector's output: a classification, its fixed confidence,
// and the matched snippet.
type Signal struct {
	Type       Type
	Confidence float64
	Snippet    string
}

var strongCorrection = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthat'?s (not|wrong|incorrect)\b`),
	regexp.MustCompile(`(?i)\b(that is|that's) not right\b`),
	regexp.MustCompile(`(?i)\bno[,.]? (that'?s|that is) (not|wrong)\b`),
	regexp.MustCompile(`(?i)\bno,\s`),
	regexp.MustCompile(`(?i)\bactually[,]?\s`),
	regexp.MustCompile(`(?i)\bcorrection:\s`),
	regexp.MustCompile(`(?i)\byou'?re wrong\b`),
	regexp.MustCompile(`(?i)\bincorrect\b`),
}

var moderateCorrection = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bshould be\b`),
	regexp.MustCompile(`(?i)\bthe correct \w+ is\b`),
	regexp.MustCompile(`(?i)\bnot\s+\S+\s+but\s+\S+`),
	regexp.MustCompile(`(?i)\bi meant\b`),
	regexp.MustCompile(`(?i)\bto clarify\b`),
}

var confirmation = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\s*yes\b`),
	regexp.MustCompile(`(?i)\bcorrect\b`),
	regexp.MustCompile(`(?i)\bexactly\b`),
	regexp.MustCompile(`(?i)\byou'?re right\b`),
	regexp.MustCompile(`(?i)\bspot on\b`),
	regexp.MustCompile(`(?i)\bthat'?s it\b`),
	regexp.MustCompile(`(?i)\byep\b`),
}

var frustration = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bthis is useless\b`),
	regexp.MustCompile(`(?i)again\?!`),
	regexp.MustCompile(`(?i)\bhow many times\b`),
	regexp.MustCompile(`(?i)\bi('?m| am) frustrated\b`),
	regexp.MustCompile(`(?i)\bforget it\b`),
	regexp.MustCompile(`(?i)\bstill wrong\b`),
}

// Detect classifies message into one of {correction, confirmation,
// frustration, none}, checking strong correction first, then confirmation
// (rejected if a strong-correction pattern also matches), then moderate
// correction, then frustration.
func Detect(message string) Signal {
	if m, ok := firstMatch(strongCorrection, message); ok {
		return Signal{Type: TypeCorrection, Confidence: ConfidenceStrongCorrection, Snippet: m}
	}
	if m, ok := firstMatch(confirmation, message); ok {
		return Signal{Type: TypeConfirmation, Confidence: ConfidenceConfirmation, Snippet: m}
	}
	if m, ok := firstMatch(moderateCorrection, message); ok {
		return Signal{Type: TypeCorrection, Confidence: ConfidenceModerateCorrection, Snippet: m}
	}
	if m, ok := firstMatch(frustration, message); ok {
		return Signal{Type: TypeFrustration, Confidence: ConfidenceFrustration, Snippet: m}
	}
	return Signal{Type: TypeNone}
}

func firstMatch(patterns []*regexp.Regexp, message string) (string, bool) {
	for _, p := range patterns {
		if loc := p.FindStringIndex(message); loc != nil {
			return message[loc[0]:loc[1]], true
		}
	}
	return "", false
}

var correctionTargetPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bactually,?\s+(?:it'?s|it is)\s+(.+)$`),
	regexp.MustCompile(`(?i)\bactually,?\s+(.+)$`),
	regexp.MustCompile(`(?i)\bit'?s\s+(.+)$`),
	regexp.MustCompile(`(?i)\bshould be\s+(.+)$`),
	regexp.MustCompile(`(?i)\bnot\s+\S+\s+but\s+(.+)$`),
	regexp.MustCompile(`(?i)\bthe correct \w+ is\s+(.+)$`),
}

// ExtractCorrectionTarget attempts to pull "what the correct value is" from
// message. Only message is scanned; lastAgentResponse is accepted but not
// consulted. Returns "" if no pattern matches.
func ExtractCorrectionTarget(message, lastAgentResponse string) string {
	for _, p := range correctionTargetPatterns {
		if m := p.FindStringSubmatch(message); len(m) > 1 {
			target := trimTrailingPunctuation(m[1])
			if target != "" {
				return target
			}
		}
	}
	return ""
}

func trimTrailingPunctuation(s string) string {
	end := len(s)
	for end > 0 {
		c := s[end-1]
		if c == '.' || c == '!' || c == '?' || c == ' ' || c == '\n' {
			end--
			continue
		}
		break
	}
	return s[:end]
}
