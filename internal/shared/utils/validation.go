// Package utils holds input validation shared by the device model and the API.
package utils

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Length limits
const (
	MaxPackageNameLength = 255
	MaxPropertyKeyLength = 128
	MaxPropertyValueSize = 4 * 1024
)

var (
	// PackageSegmentPattern matches one dot-separated package name segment
	PackageSegmentPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*$`)
	// PropertyKeyPattern allows lowercase alphanumerics, dots and underscores
	PropertyKeyPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._]*$`)
)

// ErrInvalid is wrapped by every validation failure
var ErrInvalid = errors.New("invalid value")

// ValidateString validates a string field with length and content checks
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if required && value == "" {
		return fmt.Errorf("%w: %s is required", ErrInvalid, fieldName)
	}
	if value == "" {
		return nil
	}

	length := utf8.RuneCountInString(value)
	if length < minLen {
		return fmt.Errorf("%w: %s must be at least %d characters", ErrInvalid, fieldName, minLen)
	}
	if length > maxLen {
		return fmt.Errorf("%w: %s must not exceed %d characters", ErrInvalid, fieldName, maxLen)
	}
	if strings.Contains(value, "\x00") {
		return fmt.Errorf("%w: %s contains invalid characters", ErrInvalid, fieldName)
	}
	return nil
}

// ValidatePackageName checks a package name such as "com.example.mail".
// Single-segment names like "android" are accepted.
func ValidatePackageName(name string) error {
	if err := ValidateString(name, "package name", 1, MaxPackageNameLength, true); err != nil {
		return err
	}
	for _, segment := range strings.Split(name, ".") {
		if !PackageSegmentPattern.MatchString(segment) {
			return fmt.Errorf("%w: package name %q has a malformed segment %q", ErrInvalid, name, segment)
		}
	}
	return nil
}

// ValidateProperties checks every key and value of a property update.
// Empty values are allowed; they delete the key.
func ValidateProperties(values map[string]string) error {
	for k, v := range values {
		if err := ValidateString(k, "property key", 1, MaxPropertyKeyLength, true); err != nil {
			return err
		}
		if !PropertyKeyPattern.MatchString(k) {
			return fmt.Errorf("%w: property key %q", ErrInvalid, k)
		}
		if len(v) > MaxPropertyValueSize {
			return fmt.Errorf("%w: property %s exceeds %d bytes", ErrInvalid, k, MaxPropertyValueSize)
		}
	}
	return nil
}
