package domain

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultCodePrefix prefixes generated permanent codes.
const DefaultCodePrefix = "ASSET"

var codeSuffix = regexp.MustCompile(`^[A-Z0-9]+-[0-9A-F]{8}$`)

// NormalizeCode trims scanner noise and upper-cases a scanned value.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// IsPermanentCode reports whether code has the PREFIX-XXXXXXXX shape used
// for permanent asset codes. An empty prefix accepts any alphanumeric prefix.
func IsPermanentCode(code, prefix string) bool {
	code = NormalizeCode(code)
	if !codeSuffix.MatchString(code) {
		return false
	}
	if prefix == "" {
		return true
	}
	return strings.HasPrefix(code, strings.ToUpper(prefix)+"-")
}

// GenerateCode returns a new permanent code of the form PREFIX-XXXXXXXX.
func GenerateCode(prefix string) string {
	if prefix == "" {
		prefix = DefaultCodePrefix
	}
	id := uuid.New()
	hex := strings.ToUpper(strings.ReplaceAll(id.String(), "-", ""))
	return strings.ToUpper(prefix) + "-" + hex[:8]
}
