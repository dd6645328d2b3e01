package knowledge

import "strings"

// docTypes maps profile source names to the doc_type values stored in the
// index. Both plural and singular spellings are accepted.
var docTypes = map[string]string{
	"work_instructions":   "work_instruction",
	"work_instruction":    "work_instruction",
	"sops":                "sop",
	"sop":                 "sop",
	"batch_records":       "batch_record",
	"batch_record":        "batch_record",
	"maintenance_logs":    "maintenance_log",
	"maintenance_log":     "maintenance_log",
	"quality_procedures":  "quality_procedure",
	"quality_procedure":   "quality_procedure",
	"deviations":          "deviation",
	"deviation":           "deviation",
	"calibration_records": "calibration_record",
	"calibration_record":  "calibration_record",
	"training_records":    "training_record",
	"training_record":     "training_record",
	"manuals":             "manual",
	"manual":              "manual",
}

// DefaultDocTypes is used when a profile names no priority sources.
var DefaultDocTypes = []string{"work_instruction", "sop", "maintenance_log"}

// DocType returns the index doc_type for a profile source name. Unknown
// names pass through lowercased.
func DocType(source string) string {
	s := strings.ToLower(strings.TrimSpace(source))
	if t, ok := docTypes[s]; ok {
		return t
	}
	return s
}

// DocTypes maps sources to doc_types, collapsing duplicates and keeping
// first-seen order.
func DocTypes(sources []string) []string {
	out := make([]string, 0, len(sources))
	seen := map[string]bool{}
	for _, s := range sources {
		t := DocType(s)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
