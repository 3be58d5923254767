package manifest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// ReadResult separates rows that passed schema validation from rows
// that were excluded.
type ReadResult struct {
	Records []*Record
	Invalid []*SchemaError
}

// ReadFile parses a tab-separated manifest. With resume set, the file
// is a prior receipt manifest and its outcome columns are carried over;
// otherwise any outcome columns present are ignored so a fresh run
// never trusts stale state.
func ReadFile(path string, resume bool) (*ReadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening manifest: %w", err)
	}
	defer f.Close()
	return Read(f, resume)
}

// Read parses a tab-separated manifest from r. See ReadFile.
func Read(r io.Reader, resume bool) (*ReadResult, error) {
	cr := csv.NewReader(r)
	cr.Comma = '\t'
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("manifest is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest header: %w", err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[name] = i
	}
	for _, name := range InputColumns {
		if _, ok := col[name]; !ok {
			return nil, fmt.Errorf("manifest is missing required column %q", name)
		}
	}

	field := func(row []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		return row[i]
	}

	result := &ReadResult{}
	for line := 1; ; line++ {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading manifest row %d: %w", line, err)
		}

		rec := &Record{
			StudyRegistration:    field(row, "study_registration"),
			StudyID:              field(row, "study_id"),
			ConsentGroup:         field(row, "consent_group"),
			ParticipantID:        field(row, "participant_id"),
			SpecimenID:           field(row, "specimen_id"),
			ExperimentalStrategy: field(row, "experimental_strategy"),
			InputFilePath:        field(row, "input_file_path"),
			FileFormat:           field(row, "file_format"),
			FileType:             field(row, "file_type"),
		}
		if resume {
			rec.FileName = field(row, "file_name")
			rec.DRSURI = field(row, "ga4gh_drs_uri")
			rec.MD5Sum = field(row, "md5sum")
			rec.GS = DestinationFields{
				Checksum:     field(row, "gs_crc32c"),
				Path:         field(row, "gs_path"),
				ModifiedDate: field(row, "gs_modified_date"),
				FileSize:     field(row, "gs_file_size"),
			}
			rec.S3 = DestinationFields{
				Checksum:     field(row, "s3_md5sum"),
				Path:         field(row, "s3_path"),
				ModifiedDate: field(row, "s3_modified_date"),
				FileSize:     field(row, "s3_file_size"),
			}
		}
		if rec.FileName == "" {
			rec.FileName = rec.BaseName()
		}

		if err := rec.Validate(line); err != nil {
			result.Invalid = append(result.Invalid, err.(*SchemaError))
			continue
		}
		result.Records = append(result.Records, rec)
	}
	return result, nil
}
