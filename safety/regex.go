package safety

import (
	"context"
	"regexp"
	"regexp/syntax"
	"time"

	"github.com/naab-lang/naab/naaberr"
)

// RegexLimits bounds regex execution against ReDoS and resource exhaustion
// (spec §4.9).
type RegexLimits struct {
	Timeout        time.Duration
	MaxInput       int
	MaxMatches     int
	MaxPatternLen  int
}

// DefaultRegexLimits mirrors the spec's hard caps.
func DefaultRegexLimits() RegexLimits {
	return RegexLimits{
		Timeout:       1 * time.Second,
		MaxInput:      100 * 1024,
		MaxMatches:    10_000,
		MaxPatternLen: 1024,
	}
}

// CompileSafe parses and compiles pattern, rejecting it outright if it is
// too long or its parse tree shows ReDoS-prone shapes (nested quantifiers,
// excessive overlapping alternation) before ever running it.
func CompileSafe(pattern string, limits RegexLimits) (*regexp.Regexp, error) {
	if len(pattern) > limits.MaxPatternLen {
		return nil, naaberr.Newf(naaberr.RegexComplexity, "pattern exceeds maximum length of %d", limits.MaxPatternLen)
	}
	parsed, err := syntax.Parse(pattern, syntax.Perl)
	if err != nil {
		return nil, naaberr.New(naaberr.RegexComplexity, "invalid pattern", err)
	}
	if err := checkComplexity(parsed, 0); err != nil {
		return nil, err
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, naaberr.New(naaberr.RegexComplexity, "invalid pattern", err)
	}
	return re, nil
}

// checkComplexity walks the parsed syntax tree rejecting a quantifier that
// is itself nested inside another quantifier's repeated subexpression (the
// classic (a+)+ / (a*)* ReDoS shape) and alternations wide enough to blow up
// combinatorially with nested repetition.
func checkComplexity(re *syntax.Regexp, quantifierDepth int) error {
	isQuantifier := re.Op == syntax.OpStar || re.Op == syntax.OpPlus || re.Op == syntax.OpQuest || re.Op == syntax.OpRepeat

	nextDepth := quantifierDepth
	if isQuantifier {
		if quantifierDepth > 0 {
			return naaberr.Newf(naaberr.RegexComplexity, "nested quantifiers are not permitted (potential catastrophic backtracking)")
		}
		nextDepth = quantifierDepth + 1
	}

	if re.Op == syntax.OpAlternate && len(re.Sub) > 32 && quantifierDepth > 0 {
		return naaberr.Newf(naaberr.RegexComplexity, "alternation inside a repeated group is too wide (%d branches)", len(re.Sub))
	}

	for _, sub := range re.Sub {
		if err := checkComplexity(sub, nextDepth); err != nil {
			return err
		}
	}
	return nil
}

// Run executes re against input under a per-call timeout and match-count
// cap, returning up to limits.MaxMatches matches of each (start, end) pair.
func Run(ctx context.Context, re *regexp.Regexp, input string, limits RegexLimits) ([][]int, error) {
	if len(input) > limits.MaxInput {
		return nil, naaberr.Newf(naaberr.ResourceLimit, "regex input exceeds maximum length of %d", limits.MaxInput)
	}

	ctx, cancel := context.WithTimeout(ctx, limits.Timeout)
	defer cancel()

	type result struct {
		matches [][]int
		err     error
	}
	done := make(chan result, 1)
	go func() {
		matches := re.FindAllStringIndex(input, limits.MaxMatches)
		done <- result{matches: matches}
	}()

	select {
	case <-ctx.Done():
		return nil, naaberr.New(naaberr.RegexComplexity, "regex execution exceeded timeout", ctx.Err())
	case r := <-done:
		return r.matches, r.err
	}
}
