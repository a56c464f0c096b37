package validator

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/booking-admin/pkg/models"
)

func int64Ptr(v int64) *int64 { return &v }
func strPtr(v string) *string  { return &v }

func bookingSchema() *models.TableSchema {
	return &models.TableSchema{
		Name: "bookings",
		Columns: []models.Column{
			{Name: "serial_number", SQLType: "INTEGER", AutoGenerated: true, Default: strPtr("nextval('bookings_serial_number_seq'::regclass)")},
			{Name: "reference_number", SQLType: "CHARACTER VARYING", MaxLength: int64Ptr(6)},
			{Name: "event_type", SQLType: "CHARACTER VARYING", MaxLength: int64Ptr(20), Nullable: true},
			{Name: "budget", SQLType: "NUMERIC", Nullable: true},
			{Name: "guests", SQLType: "INTEGER", Nullable: true},
			{Name: "contact_phone", SQLType: "TEXT", Nullable: true},
			{Name: "catering", SQLType: "BOOLEAN", Nullable: false, Default: strPtr("false")},
			{Name: "start_date", SQLType: "DATE", Nullable: true},
			{Name: "end_date", SQLType: "DATE", Nullable: true},
			{Name: "start_time", SQLType: "TIME WITHOUT TIME ZONE", Nullable: true},
			{Name: "end_time", SQLType: "TIME WITHOUT TIME ZONE", Nullable: true},
			{Name: "venue", SQLType: "USER-DEFINED", EnumValues: []string{"Ballroom", "Garden"}, Nullable: true},
			{Name: "organizer", SQLType: "TEXT"},
		},
	}
}

func defaultRules() Rules {
	return Rules{
		IdentifierColumn: "reference_number",
		DateOrder:        []OrderRule{{Start: "start_date", End: "end_date"}},
		TimeOrder:        []OrderRule{{Start: "start_time", End: "end_time"}},
	}
}

func newValidator(t *testing.T) *FieldValidator {
	t.Helper()
	v, err := New(defaultRules())
	require.NoError(t, err)
	return v
}

func column(t *testing.T, name string) models.Column {
	t.Helper()
	col, ok := bookingSchema().Column(name)
	require.True(t, ok, name)
	return col
}

func TestReferenceNumberRule(t *testing.T) {
	v := newValidator(t)
	ref := column(t, "reference_number")

	tests := []struct {
		raw   string
		valid bool
	}{
		{raw: "123456", valid: true},
		{raw: " 100001 ", valid: true},
		{raw: "12345", valid: false},
		{raw: "12a456", valid: false},
		{raw: "1234567", valid: false},
		{raw: "１２３４５６", valid: false},
		{raw: "", valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			value, present, err := v.Validate(ref, tt.raw)
			if tt.valid {
				require.NoError(t, err)
				assert.True(t, present)
				assert.Len(t, value, 6)
			} else {
				assert.Error(t, err)
				assert.False(t, present)
			}
		})
	}
}

func TestPhoneRule(t *testing.T) {
	v := newValidator(t)
	phone := column(t, "contact_phone")

	_, _, err := v.Validate(phone, "5551234")
	assert.Error(t, err)

	value, present, err := v.Validate(phone, "15551234567")
	require.NoError(t, err)
	assert.True(t, present)
	assert.Equal(t, "15551234567", value)

	_, _, err = v.Validate(phone, "1234567890123456")
	assert.Error(t, err)

	_, present, err = v.Validate(phone, "")
	require.NoError(t, err)
	assert.False(t, present)
}

func TestExplicitPhoneColumns(t *testing.T) {
	rules := defaultRules()
	rules.PhoneColumns = []string{"organizer"}
	v, err := New(rules)
	require.NoError(t, err)

	assert.True(t, v.IsPhone(column(t, "organizer")))
	assert.False(t, v.IsPhone(column(t, "contact_phone")))
}

func TestTypeRules(t *testing.T) {
	v := newValidator(t)

	tests := []struct {
		name   string
		column string
		raw    string
		want   interface{}
		reject bool
	}{
		{name: "decimal", column: "budget", raw: "5000", want: 5000.0},
		{name: "decimal junk", column: "budget", raw: "lots", reject: true},
		{name: "integer", column: "guests", raw: "120", want: int64(120)},
		{name: "integer fraction", column: "guests", raw: "12.5", reject: true},
		{name: "boolean yes", column: "catering", raw: "yes", want: true},
		{name: "boolean zero", column: "catering", raw: "0", want: false},
		{name: "boolean junk", column: "catering", raw: "maybe", reject: true},
		{name: "date", column: "start_date", raw: "2025-06-10", want: time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC)},
		{name: "date wrong format", column: "start_date", raw: "10/06/2025", reject: true},
		{name: "time short", column: "start_time", raw: "09:30", want: time.Date(0, 1, 1, 9, 30, 0, 0, time.UTC)},
		{name: "time invalid", column: "start_time", raw: "25:00", reject: true},
		{name: "enum", column: "venue", raw: "Garden", want: "Garden"},
		{name: "enum unknown", column: "venue", raw: "Rooftop", reject: true},
		{name: "text", column: "event_type", raw: "Wedding", want: "Wedding"},
		{name: "text too long", column: "event_type", raw: "An exceptionally long event", reject: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			value, present, err := v.Validate(column(t, tt.column), tt.raw)
			if tt.reject {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, present)
			assert.Equal(t, tt.want, value)
		})
	}
}

func TestEmptyIsAbsent(t *testing.T) {
	v := newValidator(t)

	for _, name := range []string{"event_type", "budget", "guests", "catering", "start_date", "venue"} {
		value, present, err := v.Validate(column(t, name), "   ")
		require.NoError(t, err, name)
		assert.False(t, present, name)
		assert.Nil(t, value, name)
	}

	// NOT NULL without a default is required
	_, _, err := v.Validate(column(t, "organizer"), "")
	assert.Error(t, err)
}

func TestDateOrderRule(t *testing.T) {
	v := newValidator(t)
	schema := bookingSchema()

	base := map[string]string{"reference_number": "100001", "organizer": "Ana"}
	with := func(extra map[string]string) map[string]string {
		raw := map[string]string{}
		for k, val := range base {
			raw[k] = val
		}
		for k, val := range extra {
			raw[k] = val
		}
		return raw
	}

	_, err := v.ValidateRecord(schema, with(map[string]string{"start_date": "2025-06-10", "end_date": "2025-06-01"}))
	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.NotEmpty(t, verr.For("end_date"))

	record, err := v.ValidateRecord(schema, with(map[string]string{"start_date": "2025-06-10", "end_date": "2025-06-10"}))
	require.NoError(t, err)
	assert.Contains(t, record, "end_date")

	// Only one side present: nothing to compare
	_, err = v.ValidateRecord(schema, with(map[string]string{"start_date": "2025-06-10"}))
	assert.NoError(t, err)
}

func TestTimeOrderRuleIsStrict(t *testing.T) {
	v := newValidator(t)
	schema := bookingSchema()

	raw := map[string]string{"reference_number": "100001", "organizer": "Ana", "start_time": "18:00", "end_time": "18:00"}
	_, err := v.ValidateRecord(schema, raw)
	assert.True(t, models.IsValidation(err))

	raw["end_time"] = "23:30"
	_, err = v.ValidateRecord(schema, raw)
	assert.NoError(t, err)
}

func TestValidateRecordReportsEveryFailure(t *testing.T) {
	v := newValidator(t)

	raw := map[string]string{
		"reference_number": "12a456",
		"contact_phone":    "5551234",
		"serial_number":    "7",
		"colour":           "red",
		"start_date":       "2025-06-10",
		"end_date":         "2025-06-01",
	}
	record, err := v.ValidateRecord(bookingSchema(), raw)
	assert.Nil(t, record)

	var verr *models.ValidationError
	require.True(t, errors.As(err, &verr))
	for _, field := range []string{"colour", "serial_number", "reference_number", "contact_phone", "organizer", "end_date"} {
		assert.NotEmpty(t, verr.For(field), field)
	}
}

func TestValidateRecordOmitsAbsentFields(t *testing.T) {
	v := newValidator(t)

	record, err := v.ValidateRecord(bookingSchema(), map[string]string{
		"reference_number": "100001",
		"event_type":       "Wedding",
		"budget":           "5000",
		"organizer":        "Ana",
		"venue":            "",
	})
	require.NoError(t, err)
	assert.Equal(t, models.Record{
		"reference_number": "100001",
		"event_type":       "Wedding",
		"budget":           5000.0,
		"organizer":        "Ana",
	}, record)
}

func TestNewRejectsCyclicOrderRules(t *testing.T) {
	_, err := New(Rules{
		IdentifierColumn: "reference_number",
		DateOrder: []OrderRule{
			{Start: "a", End: "b"},
			{Start: "b", End: "c"},
			{Start: "c", End: "a"},
		},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	_, err = New(Rules{IdentifierColumn: "reference_number", DateOrder: []OrderRule{{Start: "a", End: "a"}}})
	assert.Error(t, err)

	_, err = New(Rules{})
	assert.Error(t, err)
}

func TestOrderRulesEarliestFirst(t *testing.T) {
	v, err := New(Rules{
		IdentifierColumn: "reference_number",
		DateOrder: []OrderRule{
			{Start: "checkout", End: "invoice"},
			{Start: "checkin", End: "checkout"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []OrderRule{
		{Start: "checkin", End: "checkout"},
		{Start: "checkout", End: "invoice"},
	}, v.OrderRules())
}

func TestCounterparts(t *testing.T) {
	v := newValidator(t)
	assert.Equal(t, []string{"end_date"}, v.Counterparts("start_date"))
	assert.Equal(t, []string{"start_time"}, v.Counterparts("end_time"))
	assert.Empty(t, v.Counterparts("budget"))
}

func TestNormalizeStoredValues(t *testing.T) {
	v := newValidator(t)

	d, ok := v.Normalize(column(t, "start_date"), "2025-06-10")
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), d)

	d, ok = v.Normalize(column(t, "start_date"), time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC))
	require.True(t, ok)
	assert.Equal(t, time.Date(2025, 6, 10, 0, 0, 0, 0, time.UTC), d)

	tm, ok := v.Normalize(column(t, "end_time"), "21:15:00.000000")
	require.True(t, ok)
	assert.Equal(t, time.Date(0, 1, 1, 21, 15, 0, 0, time.UTC), tm)

	_, ok = v.Normalize(column(t, "end_time"), nil)
	assert.False(t, ok)
}
