/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package pathmap rewrites locally-stored file paths into the paths a remote
// media server can read. Matching is longest-source-prefix wins; the output
// separator style follows the destination prefix, not the source.
package pathmap

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/friendsincode/heimdall_preroll/internal/models"
)

// ErrPlatformMismatch indicates the translated path's grammar does not match
// the target server's platform. The apply is refused rather than sending an
// unusable path.
var ErrPlatformMismatch = errors.New("translated path does not match target platform")

// Mapping is one ordered (source prefix, destination prefix) pair.
type Mapping struct {
	SourcePrefix string
	DestPrefix   string
}

// FromModels converts stored mappings, preserving their configured order.
func FromModels(stored []models.PathMapping) []Mapping {
	out := make([]Mapping, 0, len(stored))
	for _, m := range stored {
		out = append(out, Mapping{SourcePrefix: m.SourcePrefix, DestPrefix: m.DestPrefix})
	}
	return out
}

// Result carries the translated path. Mapped=false flags a pass-through with
// no matching prefix; callers must treat an unmapped pass-through against a
// mismatched-platform server as an error.
type Result struct {
	Path   string
	Mapped bool
}

var driveLetterRe = regexp.MustCompile(`^[A-Za-z]:`)

// isWindowsStyle reports whether a path uses Windows grammar: a drive
// letter, a UNC \\host\share prefix, or backslash separators.
func isWindowsStyle(path string) bool {
	if driveLetterRe.MatchString(path) {
		return true
	}
	if strings.HasPrefix(path, `\\`) {
		return true
	}
	return strings.Contains(path, `\`)
}

// Translate rewrites storedPath using the longest matching source prefix.
// Ties break on mapping list order, first wins. With no match the original
// path passes through flagged.
func Translate(storedPath string, mappings []Mapping) Result {
	bestIdx := -1
	bestLen := -1

	for i, m := range mappings {
		if m.SourcePrefix == "" {
			continue
		}
		if !prefixMatches(storedPath, m.SourcePrefix) {
			continue
		}
		if len(m.SourcePrefix) > bestLen {
			bestIdx = i
			bestLen = len(m.SourcePrefix)
		}
	}

	if bestIdx < 0 {
		return Result{Path: storedPath, Mapped: false}
	}

	m := mappings[bestIdx]
	remainder := storedPath[len(m.SourcePrefix):]
	return Result{Path: join(m.DestPrefix, remainder), Mapped: true}
}

// TranslateFor translates and then validates the result against the target
// platform's path grammar.
func TranslateFor(storedPath string, mappings []Mapping, platform models.Platform) (Result, error) {
	res := Translate(storedPath, mappings)
	if err := ValidatePlatform(res.Path, platform); err != nil {
		return res, err
	}
	return res, nil
}

// prefixMatches checks the source prefix against the path. Comparison is
// case-insensitive only when the source prefix looks like a Windows path.
func prefixMatches(path, prefix string) bool {
	if isWindowsStyle(prefix) {
		return len(path) >= len(prefix) && strings.EqualFold(path[:len(prefix)], prefix)
	}
	return strings.HasPrefix(path, prefix)
}

// join glues the remainder onto the destination prefix, rewriting every
// separator in the remainder to the destination's style.
func join(destPrefix, remainder string) string {
	sep := "/"
	if isWindowsStyle(destPrefix) {
		sep = `\`
	}

	remainder = strings.ReplaceAll(remainder, `\`, "/")
	parts := strings.FieldsFunc(remainder, func(r rune) bool { return r == '/' })

	out := strings.TrimRight(destPrefix, `/\`)
	for _, p := range parts {
		out += sep + p
	}
	return out
}

// ValidatePlatform checks a path's grammar against the server platform.
func ValidatePlatform(path string, platform models.Platform) error {
	switch platform {
	case models.PlatformWindows:
		if driveLetterRe.MatchString(path) || strings.HasPrefix(path, `\\`) {
			return nil
		}
		return fmt.Errorf("%w: %q is not a Windows path", ErrPlatformMismatch, path)
	case models.PlatformPosix:
		if strings.HasPrefix(path, "/") {
			return nil
		}
		return fmt.Errorf("%w: %q is not an absolute POSIX path", ErrPlatformMismatch, path)
	default:
		return fmt.Errorf("%w: unknown platform %q", ErrPlatformMismatch, platform)
	}
}
