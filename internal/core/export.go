package core

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"formcore/internal/blob"
)

// CSVContentType is the media type of response exports.
const CSVContentType = "text/csv"

// submissionTimeHeader labels the leading timestamp column.
const submissionTimeHeader = "Submission Time"

// Export is a rendered CSV download.
type Export struct {
	Filename    string     `json:"filename"`
	ContentType string     `json:"content_type"`
	Data        []byte     `json:"-"`
	Archive     *blob.Info `json:"archive,omitempty"`
}

// ContentDisposition returns the attachment header value for the export.
func (e Export) ContentDisposition() string {
	return ContentDisposition(e.Filename)
}

// WriteCSV serialises table to w: one header line, then one line per row
// with the submission time in RFC 3339 UTC.
func WriteCSV(w io.Writer, table ResponseTable) error {
	cw := csv.NewWriter(w)
	header := make([]string, 0, len(table.Headers)+1)
	header = append(header, submissionTimeHeader)
	header = append(header, table.Headers...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, row := range table.Rows {
		record := make([]string, 0, len(row.Cells)+1)
		record = append(record, row.SubmittedAt.UTC().Format(time.RFC3339))
		record = append(record, row.Cells...)
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportFilename derives the download name from a form title.
func ExportFilename(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	name := b.String()
	if name == "" {
		name = "form"
	}
	return name + "_responses.csv"
}

// ContentDisposition formats an attachment header for filename.
func ContentDisposition(filename string) string {
	return fmt.Sprintf("attachment; filename=%q", filename)
}

// ExportResponses renders the response table of an owned form as CSV and,
// when an archive store is configured, keeps a copy of the file.
func (s *Service) ExportResponses(ctx context.Context, id Identity, formID string) (exp Export, err error) {
	table, err := s.Aggregate(ctx, id, formID)
	if err != nil {
		return Export{}, err
	}
	const op = "export_responses"
	defer s.observe(ctx, op, time.Now(), &err)
	var buf bytes.Buffer
	if err := WriteCSV(&buf, table); err != nil {
		return Export{}, fmt.Errorf("render csv: %w", err)
	}
	exp = Export{
		Filename:    ExportFilename(table.Form.Title),
		ContentType: CSVContentType,
		Data:        buf.Bytes(),
	}
	if s.archive == nil {
		return exp, nil
	}
	key := fmt.Sprintf("exports/%s/%s.csv", formID, s.clock.Now().UTC().Format("20060102T150405.000000000Z"))
	info, err := s.archive.Put(ctx, key, bytes.NewReader(exp.Data), blob.PutOptions{
		ContentType: CSVContentType,
		Metadata: map[string]string{
			"form-id":  formID,
			"filename": exp.Filename,
			"rows":     fmt.Sprint(len(table.Rows)),
		},
	})
	if err != nil {
		return Export{}, fmt.Errorf("archive export: %w", err)
	}
	exp.Archive = &info
	return exp, nil
}
