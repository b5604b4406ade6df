package uploads

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tenMB = 10 << 20

func TestCheckBulkFileAcceptsSpreadsheets(t *testing.T) {
	assert.NoError(t, CheckBulkFile("incidents.csv", "text/csv", 1024, tenMB))
	assert.NoError(t, CheckBulkFile("Incidents.XLSX", "", 1024, tenMB))
	assert.NoError(t, CheckBulkFile("old.xls", "application/vnd.ms-excel", 1024, tenMB))
	assert.NoError(t, CheckBulkFile("data.csv", "text/csv; charset=utf-8", 1024, tenMB))
}

func TestCheckBulkFileRejections(t *testing.T) {
	assert.ErrorIs(t, CheckBulkFile("notes.pdf", "application/pdf", 10, tenMB), ErrFileType)
	assert.ErrorIs(t, CheckBulkFile("data.csv", "application/zip", 10, tenMB), ErrFileType)
	assert.ErrorIs(t, CheckBulkFile("data.csv", "text/csv", tenMB+1, tenMB), ErrFileTooLarge)
	assert.ErrorIs(t, CheckBulkFile("", "text/csv", 10, tenMB), ErrEmptyFilename)
}

func TestCheckDocument(t *testing.T) {
	assert.NoError(t, CheckDocument("challan.pdf", 100, tenMB))
	assert.NoError(t, CheckDocument("photo.JPG", 100, tenMB))
	assert.ErrorIs(t, CheckDocument("macro.xlsm", 100, tenMB), ErrFileType)
	assert.ErrorIs(t, CheckDocument("challan.pdf", tenMB+1, tenMB), ErrFileTooLarge)
}

func TestTemplateHeaderRoundTrip(t *testing.T) {
	tpl := Template(BulkUpdateColumns, BulkUpdateSampleRow)
	header := ParseHeader(tpl)
	require.Equal(t, BulkUpdateColumns, header)
}

func TestTemplateShape(t *testing.T) {
	tpl := Template([]string{"a", "b"}, []string{"1", "2"}, []string{"3", "4"})
	assert.Equal(t, "a,b\n1,2\n3,4\n", tpl)
}

func TestParseHeaderEmpty(t *testing.T) {
	assert.Nil(t, ParseHeader(""))
	assert.Nil(t, ParseHeader("\n"))
}
