package errors

import (
	"strings"
	"unicode"
)

// maxNameLength bounds asset and scenario names. Names become file names and
// cache key parts, so they must stay short.
const maxNameLength = 256

// ValidateAssetName validates the name of a line, transformer, or customer.
//
// Rules:
//   - No empty names
//   - No control characters or null bytes
//   - No commas (names are written to CSV reports)
//   - Maximum length of 256 characters
func ValidateAssetName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidAsset, "asset name cannot be empty")
	}
	if len(name) > maxNameLength {
		return New(ErrCodeInvalidAsset, "asset name too long (max %d characters): %.32q...", maxNameLength, name)
	}
	for _, r := range name {
		if unicode.IsControl(r) {
			return New(ErrCodeInvalidAsset, "asset name %q contains control characters", name)
		}
	}
	if strings.Contains(name, ",") {
		return New(ErrCodeInvalidAsset, "asset name %q contains a comma", name)
	}
	return nil
}

// ValidateScenarioName validates a scenario directory name used in batch runs.
// It must be a plain base name so report directories cannot escape the
// output root.
func ValidateScenarioName(name string) error {
	if name == "" {
		return New(ErrCodeInvalidPath, "scenario name cannot be empty")
	}
	if strings.ContainsAny(name, "/\\") {
		return New(ErrCodeInvalidPath, "scenario name %q cannot contain path separators", name)
	}
	if name == "." || name == ".." || strings.HasPrefix(name, ".") {
		return New(ErrCodeInvalidPath, "scenario name %q cannot be hidden or relative", name)
	}
	return nil
}

// ValidatePath validates an output or input path given on the command line.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 4096 characters
//   - No null bytes or control characters
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 4096
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}
	return nil
}
