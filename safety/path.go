// Package safety implements the unified trust-boundary invariants of spec
// §4.9: input caps, path canonicalization, FFI validation, error
// sanitization, regex ReDoS guards and the tamper-evident audit log.
package safety

import (
	"path/filepath"
	"strings"

	"github.com/naab-lang/naab/naaberr"
	"github.com/pkg/errors"
)

// CanonicalizePath resolves symlinks and screens for null bytes, control
// characters and directory traversal that would escape the configured base
// directories. With no base directories configured, traversal is
// unrestricted (spec §4.9).
func CanonicalizePath(path string, baseDirs []string) (string, error) {
	if strings.ContainsRune(path, 0) {
		return "", naaberr.New(naaberr.PathSecurityError, "path contains a null byte", nil)
	}
	for _, r := range path {
		if r < 0x20 && r != '\t' {
			return "", naaberr.New(naaberr.PathSecurityError, "path contains a control character", nil)
		}
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", naaberr.New(naaberr.PathSecurityError, "cannot resolve absolute path", errors.WithStack(err))
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		// A not-yet-existing file (about to be created) can't be resolved
		// via EvalSymlinks; fall back to the cleaned absolute path and let
		// the caller's own I/O report a more specific error.
		resolved = filepath.Clean(abs)
	}

	if len(baseDirs) == 0 {
		return resolved, nil
	}

	for _, base := range baseDirs {
		absBase, err := filepath.Abs(base)
		if err != nil {
			continue
		}
		resolvedBase, err := filepath.EvalSymlinks(absBase)
		if err != nil {
			resolvedBase = filepath.Clean(absBase)
		}
		if resolved == resolvedBase || strings.HasPrefix(resolved, resolvedBase+string(filepath.Separator)) {
			return resolved, nil
		}
	}
	return "", naaberr.Newf(naaberr.PathSecurityError, "path %q escapes configured base directories", path)
}
