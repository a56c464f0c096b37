package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/booking-admin/pkg/models"
)

func sampleSet() *models.RowSet {
	return &models.RowSet{
		Columns: []string{"reference_number", "event_type", "start_date"},
		Rows: []models.Row{
			{"reference_number": "100001", "event_type": "Wedding, large", "start_date": time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)},
			{"reference_number": "100002", "event_type": nil, "start_date": nil},
		},
	}
}

func TestFormatValue(t *testing.T) {
	assert.Equal(t, "NULL", FormatValue(nil))
	assert.Equal(t, "abc", FormatValue([]byte("abc")))
	assert.Equal(t, "2025-06-10", FormatValue(time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)))
	assert.Equal(t, "18:30:00", FormatValue(time.Date(0, 1, 1, 18, 30, 0, 0, time.UTC)))
	assert.Equal(t, "5000", FormatValue(int64(5000)))
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleSet()))

	want := "reference_number,event_type,start_date\n" +
		"100001,\"Wedding, large\",2025-06-10\n" +
		"100002,,\n"
	assert.Equal(t, want, buf.String())
}

func TestTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Table(&buf, sampleSet()))
	out := buf.String()
	assert.Contains(t, out, "reference_number")
	assert.Contains(t, out, "Wedding, large")
	assert.Contains(t, out, "NULL")
	assert.Contains(t, out, "(2 rows)")

	buf.Reset()
	require.NoError(t, Table(&buf, &models.RowSet{Columns: []string{"a"}}))
	assert.Equal(t, "(0 rows)\n", buf.String())
}

func TestJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Rows(&buf, sampleSet(), "json"))
	assert.Contains(t, buf.String(), `"reference_number": "100001"`)
	assert.Contains(t, buf.String(), `"event_type": "NULL"`)
}

func TestFields(t *testing.T) {
	maxLen := int64(20)
	var buf bytes.Buffer
	Fields(&buf, []models.Field{
		{Column: models.Column{Name: "serial_number"}, Kind: models.KindNumber, ReadOnly: true},
		{Column: models.Column{Name: "status"}, Kind: models.KindEnum, Options: []string{"pending", "confirmed"}},
		{Column: models.Column{Name: "event_type", MaxLength: &maxLen}, Kind: models.KindText, Required: true},
	})
	out := buf.String()
	assert.Contains(t, out, "assigned by the database")
	assert.Contains(t, out, "one of pending, confirmed")
	assert.Contains(t, out, "max 20 chars")

	buf.Reset()
	Fields(&buf, nil)
	assert.Equal(t, "(nothing to render)\n", buf.String())
}

func TestRecord(t *testing.T) {
	var buf bytes.Buffer
	Record(&buf, []string{"id", "event_type"}, models.Row{"id": "100001", "event_type": "Gala"})
	assert.Equal(t, "id          100001\nevent_type  Gala\n", buf.String())
}
