package manifest

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// Input manifest columns, in file order.
var InputColumns = []string{
	"study_registration",
	"study_id",
	"consent_group",
	"participant_id",
	"specimen_id",
	"experimental_strategy",
	"input_file_path",
	"file_format",
	"file_type",
}

// Columns appended to the receipt manifest, in file order.
var OutputColumns = []string{
	"file_name",
	"ga4gh_drs_uri",
	"md5sum",
	"gs_crc32c",
	"gs_path",
	"gs_modified_date",
	"gs_file_size",
	"s3_md5sum",
	"s3_path",
	"s3_modified_date",
	"s3_file_size",
}

// DRSPrefix is the GA4GH DRS namespace assigned to this pipeline.
const DRSPrefix = "drs://dg.4503:dg.4503%2F"

// DestinationFields holds the per-cloud outcome columns for one record.
// A destination is complete only when every field is populated.
type DestinationFields struct {
	Checksum     string
	Path         string
	ModifiedDate string
	FileSize     string
}

// Complete reports whether every outcome field is populated.
func (d DestinationFields) Complete() bool {
	return d.Checksum != "" && d.Path != "" && d.ModifiedDate != "" && d.FileSize != ""
}

// Record is one row of the manifest. Input fields are immutable once
// read; output fields are filled in as transfers complete.
type Record struct {
	StudyRegistration    string
	StudyID              string
	ConsentGroup         string
	ParticipantID        string
	SpecimenID           string
	ExperimentalStrategy string
	InputFilePath        string
	FileFormat           string
	FileType             string

	FileName string
	DRSURI   string
	MD5Sum   string
	GS       DestinationFields
	S3       DestinationFields
}

// Key is the natural identity of a row, used to match rows between an
// input manifest and a prior receipt manifest.
func (r *Record) Key() string {
	return strings.Join([]string{
		r.StudyID, r.ConsentGroup, r.ParticipantID, r.SpecimenID, r.InputFilePath,
	}, "\x1f")
}

// BaseName returns the file name component of the input path, for both
// local paths and cloud URIs.
func (r *Record) BaseName() string {
	return path.Base(strings.ReplaceAll(r.InputFilePath, "\\", "/"))
}

// EnsureDRSURI mints a DRS URI if the record does not already carry one
// from a prior run.
func (r *Record) EnsureDRSURI() {
	if strings.HasPrefix(r.DRSURI, "drs://") {
		return
	}
	r.DRSURI = DRSPrefix + uuid.NewString()
}

// Fields returns the full receipt row in column order.
func (r *Record) Fields() []string {
	return []string{
		r.StudyRegistration,
		r.StudyID,
		r.ConsentGroup,
		r.ParticipantID,
		r.SpecimenID,
		r.ExperimentalStrategy,
		r.InputFilePath,
		r.FileFormat,
		r.FileType,
		r.FileName,
		r.DRSURI,
		r.MD5Sum,
		r.GS.Checksum,
		r.GS.Path,
		r.GS.ModifiedDate,
		r.GS.FileSize,
		r.S3.Checksum,
		r.S3.Path,
		r.S3.ModifiedDate,
		r.S3.FileSize,
	}
}
