package uploads

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

var (
	ErrFileTooLarge  = errors.New("file exceeds size limit")
	ErrFileType      = errors.New("file type not accepted")
	ErrEmptyFilename = errors.New("filename is empty")
)

// Extensions accepted for bulk-update sheets. Acceptance is by extension and
// MIME type only; file content is not sniffed.
var bulkExtensions = map[string]struct{}{
	".csv":  {},
	".xlsx": {},
	".xls":  {},
}

var bulkMIMETypes = map[string]struct{}{
	"text/csv":                 {},
	"application/csv":          {},
	"application/vnd.ms-excel": {},
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": {},
}

var documentExtensions = map[string]struct{}{
	".pdf":  {},
	".jpg":  {},
	".jpeg": {},
	".png":  {},
}

// CheckBulkFile validates a CSV/XLSX/XLS upload against the configured size
// cap. An empty MIME type is tolerated because browsers do not always send
// one; the extension check still applies.
func CheckBulkFile(filename, mimeType string, sizeBytes, maxBytes int64) error {
	ext, err := normalizedExt(filename)
	if err != nil {
		return err
	}
	if _, ok := bulkExtensions[ext]; !ok {
		return fmt.Errorf("%w: %s", ErrFileType, ext)
	}
	if mimeType != "" {
		base := strings.ToLower(strings.TrimSpace(strings.Split(mimeType, ";")[0]))
		if _, ok := bulkMIMETypes[base]; !ok {
			return fmt.Errorf("%w: %s", ErrFileType, base)
		}
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, sizeBytes, maxBytes)
	}
	return nil
}

// CheckDocument validates an incident document upload (pdf or image).
func CheckDocument(filename string, sizeBytes, maxBytes int64) error {
	ext, err := normalizedExt(filename)
	if err != nil {
		return err
	}
	if _, ok := documentExtensions[ext]; !ok {
		return fmt.Errorf("%w: %s", ErrFileType, ext)
	}
	if maxBytes > 0 && sizeBytes > maxBytes {
		return fmt.Errorf("%w: %d > %d bytes", ErrFileTooLarge, sizeBytes, maxBytes)
	}
	return nil
}

func normalizedExt(filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if name == "" {
		return "", ErrEmptyFilename
	}
	return strings.ToLower(filepath.Ext(name)), nil
}

// BulkUpdateColumns is the fixed, ordered header of the incident bulk-update
// template.
var BulkUpdateColumns = []string{
	"incident_id",
	"challan_number",
	"vehicle_plate",
	"queue",
	"status",
	"fine_amount",
	"offence",
	"resolution_notes",
}

// BulkUpdateSampleRow is the single example row shipped with the template.
var BulkUpdateSampleRow = []string{
	"CHN-2025-00001",
	"MH12AB1234-20250101",
	"MH12AB1234",
	"screening",
	"open",
	"1500",
	"overspeeding",
	"",
}

// Template builds a downloadable CSV template: header row plus sample rows,
// comma-joined. Embedded commas are not escaped, matching the template format
// the operators already use; keep values comma-free.
func Template(columns []string, rows ...[]string) string {
	var b strings.Builder
	b.WriteString(strings.Join(columns, ","))
	b.WriteString("\n")
	for _, row := range rows {
		b.WriteString(strings.Join(row, ","))
		b.WriteString("\n")
	}
	return b.String()
}

// ParseHeader reads the header row back out of a generated template.
func ParseHeader(template string) []string {
	first := template
	if idx := strings.IndexByte(template, '\n'); idx >= 0 {
		first = template[:idx]
	}
	first = strings.TrimSpace(first)
	if first == "" {
		return nil
	}
	return strings.Split(first, ",")
}
