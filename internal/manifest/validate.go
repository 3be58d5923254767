package manifest

import (
	"fmt"
	"regexp"
	"strings"
)

// study_id and consent_group become the object key prefix and must stay
// usable as bucket names: lowercase alphanumerics with single interior
// periods or hyphens, and a combined length that leaves room for the
// separator inside the 63-character bucket limit.
var namePattern = regexp.MustCompile(`^[a-z0-9]+([.-][a-z0-9]+)*$`)

const maxCombinedNameLen = 61

// SchemaError describes a row that failed manifest validation.
type SchemaError struct {
	Line   int // 1-based data row number
	Field  string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Line, e.Field, e.Reason)
}

func validName(s string) bool {
	return namePattern.MatchString(s)
}

// Validate checks one record against the manifest schema. The line
// number is only used for diagnostics.
func (r *Record) Validate(line int) error {
	required := []struct{ name, value string }{
		{"study_registration", r.StudyRegistration},
		{"study_id", r.StudyID},
		{"consent_group", r.ConsentGroup},
		{"participant_id", r.ParticipantID},
		{"specimen_id", r.SpecimenID},
		{"experimental_strategy", r.ExperimentalStrategy},
		{"input_file_path", r.InputFilePath},
		{"file_format", r.FileFormat},
		{"file_type", r.FileType},
	}
	for _, f := range required {
		if f.value == "" {
			return &SchemaError{Line: line, Field: f.name, Reason: "required field is empty"}
		}
	}

	if !validName(r.StudyID) {
		return &SchemaError{Line: line, Field: "study_id", Reason: fmt.Sprintf("%q violates naming restrictions", r.StudyID)}
	}
	if !validName(r.ConsentGroup) {
		return &SchemaError{Line: line, Field: "consent_group", Reason: fmt.Sprintf("%q violates naming restrictions", r.ConsentGroup)}
	}
	if len(r.StudyID)+len(r.ConsentGroup) > maxCombinedNameLen {
		return &SchemaError{
			Line:   line,
			Field:  "study_id/consent_group",
			Reason: fmt.Sprintf("combined length %d exceeds %d", len(r.StudyID)+len(r.ConsentGroup), maxCombinedNameLen),
		}
	}

	if err := validatePath(r.InputFilePath); err != nil {
		return &SchemaError{Line: line, Field: "input_file_path", Reason: err.Error()}
	}
	return nil
}

func validatePath(p string) error {
	for _, scheme := range []string{"s3://", "gs://"} {
		if !strings.HasPrefix(p, scheme) {
			continue
		}
		rest := strings.TrimPrefix(p, scheme)
		bucket, key, ok := strings.Cut(rest, "/")
		if !ok || bucket == "" || key == "" {
			return fmt.Errorf("%q is not a valid %s URI", p, strings.TrimSuffix(scheme, "://"))
		}
		return nil
	}
	if strings.ContainsRune(p, '\x00') {
		return fmt.Errorf("%q is not a valid local path", p)
	}
	return nil
}
