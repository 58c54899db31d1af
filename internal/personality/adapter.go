package personality

import (
	"regexp"
	"strconv"
	"strings"
)

// Command is one parsed personality-change directive, resolved to a field
// name (the Traits JSON tag) and either an absolute value or a delta.
type Command struct {
	Field    string
	Value    float64
	Absolute bool
	Raw      string
}

// pattern families: "set X to N%", "turn X up/down to
// N", "X at N%", "be more X" (+0.2), "be less X" (-0.2), "dial up/down X".
var (
	reSetTo   = regexp.MustCompile(`(?i)\bset\s+([a-z]+)\s+to\s+(\d{1,3})\s*%?`)
	reTurnTo  = regexp.MustCompile(`(?i)\bturn\s+([a-z]+)\s+(?:up|down)\s+to\s+(\d{1,3})\s*%?`)
	reAt      = regexp.MustCompile(`(?i)\b([a-z]+)\s+at\s+(\d{1,3})\s*%`)
	reBeMore  = regexp.MustCompile(`(?i)\bbe\s+more\s+([a-z]+)\b`)
	reBeLess  = regexp.MustCompile(`(?i)\bbe\s+less\s+([a-z]+)\b`)
	reDialUp  = regexp.MustCompile(`(?i)\bdial\s+up\s+([a-z]+)\b`)
	reDialDn  = regexp.MustCompile(`(?i)\bdial\s+down\s+([a-z]+)\b`)
)

// ParseCommands scans a user message for personality-change directives.
// Multiple commands in one message are all returned, applied in order.
func ParseCommands(message string) []Command {
	var out []Command
	for _, m := range reSetTo.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: pct(m[2]), Absolute: true, Raw: m[0]})
		}
	}
	for _, m := range reTurnTo.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: pct(m[2]), Absolute: true, Raw: m[0]})
		}
	}
	for _, m := range reAt.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: pct(m[2]), Absolute: true, Raw: m[0]})
		}
	}
	for _, m := range reBeMore.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: 0.2, Absolute: false, Raw: m[0]})
		}
	}
	for _, m := range reBeLess.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: -0.2, Absolute: false, Raw: m[0]})
		}
	}
	for _, m := range reDialUp.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: 0.2, Absolute: false, Raw: m[0]})
		}
	}
	for _, m := range reDialDn.FindAllStringSubmatch(message, -1) {
		if f, ok := resolveField(m[1]); ok {
			out = append(out, Command{Field: f, Value: -0.2, Absolute: false, Raw: m[0]})
		}
	}
	return out
}

func resolveField(word string) (string, bool) {
	f, ok := aliases[strings.ToLower(word)]
	return f, ok
}

func pct(s string) float64 {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	if n < 0 {
		n = 0
	}
	if n > 100 {
		n = 100
	}
	return float64(n) / 100.0
}

// AcknowledgmentPrompt is the instruction the loop appends to the
// assembled prompt when personality traits changed this turn.
func AcknowledgmentPrompt(cmds []Command) string {
	if len(cmds) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("The user just adjusted your personality settings this turn (")
	for i, c := range cmds {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Raw)
	}
	b.WriteString("). Briefly and naturally acknowledge the change in your response.")
	return b.String()
}
