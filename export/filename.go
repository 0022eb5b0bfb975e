// Package export renders test cases as CSV and Excel downloads, including
// merging into an uploaded Excel template.
package export

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// maxFeatureNameLength keeps the whole filename under 60 characters.
const maxFeatureNameLength = 30

var nonAlphanumeric = regexp.MustCompile(`[^a-z0-9]+`)

// SanitizeFeatureName makes user input safe for filenames: lowercase, runs
// of non-alphanumerics become a single underscore, truncated. Raw user
// input never reaches a filename.
func SanitizeFeatureName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonAlphanumeric.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if len(s) > maxFeatureNameLength {
		s = s[:maxFeatureNameLength]
	}
	return s
}

// CSVFilename generates a short, unique, OS-safe filename:
// tc_<name>_<YYYYMMDD_HHMMSS>_<short>.csv for a feature export, without the
// name part for a batch export. The short hash keeps rapid exports unique.
func CSVFilename(featureName string) string {
	timestamp := time.Now().Format("20060102_150405")
	short := strings.ReplaceAll(uuid.NewString(), "-", "")[:6]

	if safe := SanitizeFeatureName(featureName); safe != "" {
		return fmt.Sprintf("tc_%s_%s_%s.csv", safe, timestamp, short)
	}
	return fmt.Sprintf("tc_%s_%s.csv", timestamp, short)
}
