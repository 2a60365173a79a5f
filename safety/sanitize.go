package safety

import (
	"regexp"

	"github.com/naab-lang/naab/config"
	"github.com/naab-lang/naab/naaberr"
)

var (
	addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{6,}`)
	// secretPatterns is a deliberately conservative set of common secret
	// shapes (API keys, passwords in URLs, private key blocks); spec §4.9
	// only requires "regexes for common secrets" without naming an exact
	// set.
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)(api[_-]?key|secret|token)\s*[:=]\s*['"]?[A-Za-z0-9_\-]{16,}['"]?`),
		regexp.MustCompile(`(?i)://[^/\s:@]+:[^/\s:@]+@`),
		regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----[\s\S]*?-----END [A-Z ]*PRIVATE KEY-----`),
		regexp.MustCompile(`(?i)password\s*[:=]\s*\S+`),
	}
	typeSpelling = regexp.MustCompile(`\*?github\.com/[^ \t\n{}()]+\.`)
)

// Sanitize scrubs an Error's user-visible message and stack for exposure
// outside development mode (spec §4.9):
//   - development: returned unchanged, for local debugging.
//   - production (default): absolute paths trimmed to repo-relative, memory
//     addresses replaced with "<address>", runtime type spellings
//     simplified, common secret shapes redacted.
//   - strict: production's redaction plus structural details (the stack)
//     suppressed entirely.
func Sanitize(e *naaberr.Error, mode config.SanitizerMode, repoRoot string) *naaberr.Error {
	if mode == config.ModeDevelopment {
		return e
	}

	out := &naaberr.Error{Kind: e.Kind, Payload: e.Payload}
	out.Message = redact(trimPaths(e.Message, repoRoot))

	if mode == config.ModeStrict {
		return out
	}

	out.Stack = make([]naaberr.Frame, len(e.Stack))
	for i, f := range e.Stack {
		out.Stack[i] = naaberr.Frame{
			FunctionName: f.FunctionName,
			FilePath:     trimPaths(f.FilePath, repoRoot),
			Line:         f.Line,
			Column:       f.Column,
		}
	}
	return out
}

func trimPaths(s, repoRoot string) string {
	if repoRoot == "" {
		return s
	}
	return regexp.MustCompile(regexp.QuoteMeta(repoRoot)+`/?`).ReplaceAllString(s, "")
}

func redact(s string) string {
	s = addressPattern.ReplaceAllString(s, "<address>")
	s = typeSpelling.ReplaceAllString(s, "")
	for _, p := range secretPatterns {
		s = p.ReplaceAllString(s, "<redacted>")
	}
	return s
}
