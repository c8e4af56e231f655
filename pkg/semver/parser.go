// Package semver parses versioned service references and resolves them
// against the versions registered in a service cache.
package semver

import (
	"fmt"
	"regexp"
	"strings"
)

const logPrefix = "semver:parser"

// ParsedServiceRef holds the parsed components of a service reference string.
type ParsedServiceRef struct {
	// Service name (e.g., "LogService")
	Name string
	// Version range if specified (e.g., "^1.2.0", "1", ""); empty string means any version
	Range string
	// Raw input string
	Raw string
}

var (
	serviceNameRegex  = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9._-]*$`)
	majorOnlyRegex    = regexp.MustCompile(`^\d+$`)
	exactVersionRegex = regexp.MustCompile(`^\d+\.\d+\.\d+(-[\w.]+)?(\+[\w.]+)?$`)
)

// ParseServiceRef parses a service reference string.
//
// Supported formats:
//   - LogService           (any version)
//   - LogService@1         (major only)
//   - LogService@1.2.3     (exact version)
//   - LogService@^1.2.0    (caret range)
//   - LogService@~1.2.0    (tilde range)
//   - LogService@>=1.0.0   (comparison range)
func ParseServiceRef(input string) (*ParsedServiceRef, error) {
	raw := strings.TrimSpace(input)

	name, rangeStr, _ := strings.Cut(raw, "@")
	name = strings.TrimSpace(name)
	rangeStr = strings.TrimSpace(rangeStr)

	if !ValidateServiceName(name) {
		return nil, fmt.Errorf("%s - invalid service name: %q", logPrefix, raw)
	}
	if strings.Contains(raw, "@") && rangeStr == "" {
		return nil, fmt.Errorf("%s - empty version range: %q", logPrefix, raw)
	}

	return &ParsedServiceRef{Name: name, Range: rangeStr, Raw: raw}, nil
}

// HasRange reports whether the reference pins a version.
func (r *ParsedServiceRef) HasRange() bool {
	return r.Range != ""
}

// IsMajorOnly checks if a range is a major-only specifier (e.g., "3").
func IsMajorOnly(rangeStr string) bool {
	return majorOnlyRegex.MatchString(rangeStr)
}

// IsExactVersion checks if a range is an exact version (e.g., "3.2.1").
func IsExactVersion(rangeStr string) bool {
	return exactVersionRegex.MatchString(rangeStr)
}

// ExtractMajorFromRange extracts the major version if the range is major-only.
// Returns -1 if not a major-only range.
func ExtractMajorFromRange(rangeStr string) int {
	if !IsMajorOnly(rangeStr) {
		return -1
	}
	var major int
	fmt.Sscanf(rangeStr, "%d", &major)
	return major
}

// BuildServiceRef builds a reference string from a name and optional version.
func BuildServiceRef(name, version string) string {
	if version != "" {
		return name + "@" + version
	}
	return name
}

// ValidateServiceName validates a service name (a letter, then letters,
// digits, dots, hyphens or underscores).
func ValidateServiceName(name string) bool {
	return serviceNameRegex.MatchString(name)
}
