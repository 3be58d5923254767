package manifest

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ReceiptPath derives the receipt manifest path from the input manifest
// path: foo.tsv becomes foo.<utc timestamp>.manifest.tsv.
func ReceiptPath(inputPath string, now time.Time) string {
	stamp := now.UTC().Format("20060102150405")
	if strings.HasSuffix(inputPath, ".tsv") {
		return strings.TrimSuffix(inputPath, ".tsv") + "." + stamp + ".manifest.tsv"
	}
	return inputPath + ".manifest.tsv"
}

// WriteFile serializes the records to path in input order. The file is
// written to a temporary sibling first and renamed into place, so a
// reader never observes a partially written manifest and an interrupted
// run keeps its previous snapshot.
func WriteFile(path string, records []*Record) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*.tsv")
	if err != nil {
		return fmt.Errorf("creating temp manifest: %w", err)
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	w.Comma = '\t'

	header := append(append([]string{}, InputColumns...), OutputColumns...)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return fmt.Errorf("writing manifest header: %w", err)
	}
	for _, rec := range records {
		if err := w.Write(rec.Fields()); err != nil {
			tmp.Close()
			return fmt.Errorf("writing manifest row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return fmt.Errorf("flushing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp manifest: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("renaming manifest into place: %w", err)
	}
	return nil
}
