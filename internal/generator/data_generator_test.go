package generator

import (
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/booking-admin/internal/validator"
	"github.com/vitebski/booking-admin/pkg/models"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func bookingSchema() *models.TableSchema {
	short := int64(8)
	return &models.TableSchema{
		Name: "bookings",
		Columns: []models.Column{
			{Name: "serial_number", SQLType: "INTEGER", AutoGenerated: true},
			{Name: "reference_number", SQLType: "CHARACTER VARYING"},
			{Name: "client_name", SQLType: "TEXT"},
			{Name: "contact_phone", SQLType: "TEXT", Nullable: true},
			{Name: "event_type", SQLType: "CHARACTER VARYING", MaxLength: &short, Nullable: true},
			{Name: "guests", SQLType: "INTEGER", Nullable: true},
			{Name: "budget", SQLType: "NUMERIC", Nullable: true},
			{Name: "catering", SQLType: "BOOLEAN", Nullable: true},
			{Name: "status", SQLType: "USER-DEFINED", EnumValues: []string{"pending", "confirmed"}},
			{Name: "start_date", SQLType: "DATE"},
			{Name: "end_date", SQLType: "DATE"},
			{Name: "start_time", SQLType: "TIME WITHOUT TIME ZONE"},
			{Name: "end_time", SQLType: "TIME WITHOUT TIME ZONE"},
		},
	}
}

func newGenerator(t *testing.T) *DataGenerator {
	t.Helper()
	v, err := validator.New(validator.Rules{
		IdentifierColumn: "reference_number",
		DateOrder:        []validator.OrderRule{{Start: "start_date", End: "end_date"}},
		TimeOrder:        []validator.OrderRule{{Start: "start_time", End: "end_time"}},
	})
	require.NoError(t, err)
	return NewDataGenerator(v, testLogger())
}

func formFields(schema *models.TableSchema) []models.Field {
	var fields []models.Field
	for _, col := range schema.Columns {
		fields = append(fields, models.FieldFor(col, "reference_number"))
	}
	return fields
}

func TestGeneratedRecordsPassValidation(t *testing.T) {
	dg := newGenerator(t)
	schema := bookingSchema()
	fields := formFields(schema)

	for i := 0; i < 200; i++ {
		raw := dg.GenerateRecord(fields)
		_, err := dg.Validator.ValidateRecord(schema, raw)
		require.NoError(t, err, "generated %v", raw)
	}
}

func TestGenerateRecordSkipsReadOnlyFields(t *testing.T) {
	dg := newGenerator(t)
	raw := dg.GenerateRecord(formFields(bookingSchema()))

	_, ok := raw["serial_number"]
	assert.False(t, ok)
	assert.True(t, models.IsReferenceNumber(raw["reference_number"]))
}

func TestGenerateValueByColumn(t *testing.T) {
	dg := newGenerator(t)
	schema := bookingSchema()

	phone, _ := schema.Column("contact_phone")
	assert.Regexp(t, `^[0-9]{10}$`, dg.GenerateValue(models.FieldFor(phone, "reference_number")))

	status, _ := schema.Column("status")
	assert.Contains(t, []string{"pending", "confirmed"}, dg.GenerateValue(models.FieldFor(status, "reference_number")))

	eventType, _ := schema.Column("event_type")
	assert.LessOrEqual(t, len([]rune(dg.GenerateValue(models.FieldFor(eventType, "reference_number")))), 8)
}

func TestEnforceOrder(t *testing.T) {
	dg := newGenerator(t)
	raw := map[string]string{
		"start_date": "2025-06-10",
		"end_date":   "2025-06-01",
		"start_time": "19:00:00",
		"end_time":   "18:00:00",
	}
	kinds := map[string]models.FieldKind{
		"start_date": models.KindDate,
		"end_date":   models.KindDate,
		"start_time": models.KindTime,
		"end_time":   models.KindTime,
	}

	dg.enforceOrder(raw, kinds)
	assert.GreaterOrEqual(t, raw["end_date"], "2025-06-10")
	assert.Greater(t, raw["end_time"], "19:00:00")
}

func TestTruncate(t *testing.T) {
	n := int64(3)
	assert.Equal(t, "héé", truncate("héééé", &n))
	assert.Equal(t, "ab", truncate("ab", &n))
	assert.Equal(t, "abcdef", truncate("abcdef", nil))
}
