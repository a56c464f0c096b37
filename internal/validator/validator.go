// Package validator decides whether raw operator input is acceptable for a
// column and turns it into the value that is bound to the SQL statement.
//
// Rules run in a fixed precedence per field: required, reference number
// format, phone format, then the column's type rule. Cross-field ordering
// rules (start/end date and time) run after every field has been parsed.
package validator

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/vitebski/booking-admin/pkg/models"
	"github.com/yourbasic/graph"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// OrderRule requires the Start column's value to come before the End column's value
type OrderRule struct {
	Start string `koanf:"start"`
	End   string `koanf:"end"`
}

// Rules configures the table-specific parts of validation
type Rules struct {
	IdentifierColumn string
	PhoneColumns     []string
	DateOrder        []OrderRule
	TimeOrder        []OrderRule
}

type orderCheck struct {
	OrderRule
	strict bool
	noun   string
}

// FieldValidator validates single fields and whole submissions
type FieldValidator struct {
	rules  Rules
	checks []orderCheck
}

// New builds a validator. Ordering rules must not contradict each other:
// a cycle such as a<b, b<a can never be satisfied and is rejected here.
func New(rules Rules) (*FieldValidator, error) {
	if rules.IdentifierColumn == "" {
		return nil, fmt.Errorf("identifier column must be configured")
	}

	var checks []orderCheck
	for _, r := range rules.DateOrder {
		checks = append(checks, orderCheck{OrderRule: r, noun: "date"})
	}
	for _, r := range rules.TimeOrder {
		checks = append(checks, orderCheck{OrderRule: r, strict: true, noun: "time"})
	}

	sorted, err := sortChecks(checks)
	if err != nil {
		return nil, err
	}

	return &FieldValidator{rules: rules, checks: sorted}, nil
}

// sortChecks orders the rules topologically by column so that failures are
// always reported in the same order
func sortChecks(checks []orderCheck) ([]orderCheck, error) {
	index := make(map[string]int)
	var names []string
	for _, c := range checks {
		if c.Start == "" || c.End == "" {
			return nil, fmt.Errorf("order rule needs both start and end columns")
		}
		if c.Start == c.End {
			return nil, fmt.Errorf("order rule compares %s with itself", c.Start)
		}
		for _, name := range []string{c.Start, c.End} {
			if _, ok := index[name]; !ok {
				index[name] = len(names)
				names = append(names, name)
			}
		}
	}

	g := graph.New(len(names))
	for _, c := range checks {
		g.Add(index[c.Start], index[c.End])
	}

	order, ok := graph.TopSort(g)
	if !ok {
		return nil, fmt.Errorf("order rules form a cycle among columns %s", strings.Join(names, ", "))
	}

	rank := make(map[int]int, len(order))
	for i, v := range order {
		rank[v] = i
	}

	sorted := append([]orderCheck(nil), checks...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank[index[sorted[i].Start]] < rank[index[sorted[j].Start]]
	})
	return sorted, nil
}

// IdentifierColumn returns the configured reference number column
func (v *FieldValidator) IdentifierColumn() string {
	return v.rules.IdentifierColumn
}

// OrderRules returns every ordering rule, earliest columns first
func (v *FieldValidator) OrderRules() []OrderRule {
	rules := make([]OrderRule, 0, len(v.checks))
	for _, c := range v.checks {
		rules = append(rules, c.OrderRule)
	}
	return rules
}

// IsPhone reports whether a column holds phone numbers
func (v *FieldValidator) IsPhone(col models.Column) bool {
	if len(v.rules.PhoneColumns) > 0 {
		for _, name := range v.rules.PhoneColumns {
			if name == col.Name {
				return true
			}
		}
		return false
	}
	return strings.Contains(strings.ToLower(col.Name), "phone")
}

// Validate checks one raw value against its column. present is false when the
// value is empty and should be left to the table's default.
func (v *FieldValidator) Validate(col models.Column, raw string) (value interface{}, present bool, err error) {
	field := models.FieldFor(col, v.rules.IdentifierColumn)
	s := strings.TrimSpace(raw)
	isIdentifier := col.Name == v.rules.IdentifierColumn

	if s == "" {
		if field.Required {
			return nil, false, fieldErr(col.Name, "is required")
		}
		return nil, false, nil
	}

	if isIdentifier {
		if !models.IsReferenceNumber(s) {
			return nil, false, fieldErr(col.Name, "must be exactly 6 digits, got %q", s)
		}
		return s, true, nil
	}

	if v.IsPhone(col) {
		if !models.PhonePattern.MatchString(s) {
			return nil, false, fieldErr(col.Name, "must be 10 to 15 digits, got %q", s)
		}
		return s, true, nil
	}

	switch field.Kind {
	case models.KindNumber:
		if field.Integer {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, false, fieldErr(col.Name, "must be a whole number, got %q", s)
			}
			return n, true, nil
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, false, fieldErr(col.Name, "must be a number, got %q", s)
		}
		return f, true, nil

	case models.KindBoolean:
		b, ok := parseBool(s)
		if !ok {
			return nil, false, fieldErr(col.Name, "must be true or false, got %q", s)
		}
		return b, true, nil

	case models.KindDate:
		d, err := time.Parse(DateLayout, s)
		if err != nil {
			return nil, false, fieldErr(col.Name, "must be a date in YYYY-MM-DD form, got %q", s)
		}
		return d, true, nil

	case models.KindTime:
		t, ok := parseClock(s)
		if !ok {
			return nil, false, fieldErr(col.Name, "must be a time in HH:MM or HH:MM:SS form, got %q", s)
		}
		return t, true, nil

	case models.KindEnum:
		for _, opt := range field.Options {
			if opt == s {
				return s, true, nil
			}
		}
		return nil, false, fieldErr(col.Name, "must be one of %s, got %q", strings.Join(field.Options, ", "), s)

	default:
		if col.MaxLength != nil && int64(utf8.RuneCountInString(s)) > *col.MaxLength {
			return nil, false, fieldErr(col.Name, "must be at most %d characters", *col.MaxLength)
		}
		return s, true, nil
	}
}

// ValidateRecord validates a whole submission. Either every rule passes and
// the record is returned, or a *models.ValidationError lists every failure.
func (v *FieldValidator) ValidateRecord(schema *models.TableSchema, raw map[string]string) (models.Record, error) {
	verr := &models.ValidationError{}

	var unknown []string
	for name := range raw {
		if !schema.Has(name) {
			unknown = append(unknown, name)
		}
	}
	sort.Strings(unknown)
	for _, name := range unknown {
		verr.Add(name, "is not a column of %s", schema.Name)
	}

	record := make(models.Record)
	for _, col := range schema.Columns {
		if col.AutoGenerated {
			if strings.TrimSpace(raw[col.Name]) != "" {
				verr.Add(col.Name, "is assigned by the database")
			}
			continue
		}

		value, present, err := v.Validate(col, raw[col.Name])
		if err != nil {
			verr.Fields = append(verr.Fields, asFieldError(col.Name, err))
			continue
		}
		if present {
			record[col.Name] = value
		}
	}

	verr.Fields = append(verr.Fields, v.CheckOrder(record)...)

	if err := verr.ErrOrNil(); err != nil {
		return nil, err
	}
	return record, nil
}

// CheckOrder applies the date and time ordering rules to the values present in record
func (v *FieldValidator) CheckOrder(record models.Record) []models.FieldError {
	var failures []models.FieldError
	for _, c := range v.checks {
		start, okStart := record[c.Start].(time.Time)
		end, okEnd := record[c.End].(time.Time)
		if !okStart || !okEnd {
			continue
		}

		if c.strict && !start.Before(end) {
			failures = append(failures, models.FieldError{
				Field:   c.End,
				Message: fmt.Sprintf("%s %s must be after %s %s", c.End, formatTemporal(end, c.noun), c.Start, formatTemporal(start, c.noun)),
			})
		} else if !c.strict && start.After(end) {
			failures = append(failures, models.FieldError{
				Field:   c.End,
				Message: fmt.Sprintf("%s %s must not be before %s %s", c.End, formatTemporal(end, c.noun), c.Start, formatTemporal(start, c.noun)),
			})
		}
	}
	return failures
}

// Counterparts returns the columns whose stored values must be consulted when
// the named column changes on its own
func (v *FieldValidator) Counterparts(column string) []string {
	var names []string
	for _, c := range v.checks {
		switch column {
		case c.Start:
			names = append(names, c.End)
		case c.End:
			names = append(names, c.Start)
		}
	}
	return names
}

// Normalize converts a value read back from the store into the form Validate
// produces, so stored and submitted values can be compared
func (v *FieldValidator) Normalize(col models.Column, stored interface{}) (interface{}, bool) {
	if stored == nil {
		return nil, false
	}
	if t, ok := stored.(time.Time); ok {
		kind, _ := models.KindOf(col)
		if kind == models.KindTime {
			return time.Date(0, 1, 1, t.Hour(), t.Minute(), t.Second(), 0, time.UTC), true
		}
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), true
	}

	s := fmt.Sprintf("%v", stored)
	if b, ok := stored.([]byte); ok {
		s = string(b)
	}

	kind, _ := models.KindOf(col)
	switch kind {
	case models.KindDate:
		if len(s) >= len(DateLayout) {
			if d, err := time.Parse(DateLayout, s[:len(DateLayout)]); err == nil {
				return d, true
			}
		}
		return nil, false
	case models.KindTime:
		if i := strings.IndexAny(s, ".+"); i >= 0 {
			s = s[:i]
		}
		return parseClock(s)
	default:
		value, present, err := v.Validate(col, s)
		if err != nil {
			return nil, false
		}
		return value, present
	}
}

func parseBool(s string) (bool, bool) {
	switch strings.ToLower(s) {
	case "true", "t", "yes", "y", "1", "on":
		return true, true
	case "false", "f", "no", "n", "0", "off":
		return false, true
	}
	return false, false
}

func parseClock(s string) (time.Time, bool) {
	for _, layout := range []string{TimeLayout, "15:04"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatTemporal(t time.Time, noun string) string {
	if noun == "time" {
		return t.Format(TimeLayout)
	}
	return t.Format(DateLayout)
}

func fieldErr(field, format string, args ...interface{}) models.FieldError {
	return models.FieldError{Field: field, Message: fmt.Sprintf(format, args...)}
}

func asFieldError(field string, err error) models.FieldError {
	if fe, ok := err.(models.FieldError); ok {
		return fe
	}
	return models.FieldError{Field: field, Message: err.Error()}
}
