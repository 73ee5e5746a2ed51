package matching

import (
	"strings"

	"tuition-reconciliation/internal/domain"
)

// hintKeywords maps free-text markers seen in legacy receipt notes to a
// course category. Checked in order; first hit wins.
var hintKeywords = []struct {
	marker   string
	category domain.CourseCategory
}{
	{"senior project", domain.CategorySeniorProject},
	{"senior-project", domain.CategorySeniorProject},
	{"reading", domain.CategoryReading},
	{"ieap", domain.CategoryLanguage},
	{"language", domain.CategoryLanguage},
}

// DetectHint scans receipt notes for a category keyword. The hint only
// steers which tier schedule gets tried first during inference; it is
// never the sole basis for a match. Returns the empty category when the
// notes carry no recognizable marker.
func DetectHint(notes string) domain.CourseCategory {
	if notes == "" {
		return ""
	}
	lower := strings.ToLower(notes)
	for _, kw := range hintKeywords {
		if strings.Contains(lower, kw.marker) {
			return kw.category
		}
	}
	return ""
}
