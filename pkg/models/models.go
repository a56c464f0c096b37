package models

import (
	"regexp"
	"strings"
)

// Column represents a database column with its properties
type Column struct {
	Name          string
	SQLType       string
	ColumnType    string
	MaxLength     *int64
	Nullable      bool
	Default       *string
	Extra         string
	Position      int
	EnumValues    []string
	AutoGenerated bool
}

// Required reports whether the table demands a value for this column on insert
func (c Column) Required() bool {
	return !c.Nullable && c.Default == nil && !c.AutoGenerated
}

// TableSchema is a table's live column list as reported by the catalog.
// Identifiers interpolated into SQL must come from here.
type TableSchema struct {
	Name    string
	Columns []Column
}

// Column looks up a column by exact name
func (s *TableSchema) Column(name string) (Column, bool) {
	if s == nil {
		return Column{}, false
	}
	for _, col := range s.Columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Has reports whether the schema contains the named column
func (s *TableSchema) Has(name string) bool {
	_, ok := s.Column(name)
	return ok
}

// Names returns column names in physical order
func (s *TableSchema) Names() []string {
	if s == nil {
		return nil
	}
	names := make([]string, 0, len(s.Columns))
	for _, col := range s.Columns {
		names = append(names, col.Name)
	}
	return names
}

// Record maps column names to normalized values: string, int64, float64, bool or time.Time
type Record map[string]interface{}

// Row is a single fetched row
type Row map[string]interface{}

// RowSet is an ordered result of a fetch
type RowSet struct {
	Columns  []string
	Rows     []Row
	Revision uint64
}

// ReferencePattern matches a valid reference number
var ReferencePattern = regexp.MustCompile(`^[0-9]{6}$`)

// PhonePattern matches a valid phone number
var PhonePattern = regexp.MustCompile(`^[0-9]{10,15}$`)

// IsReferenceNumber reports whether s is exactly six ASCII digits
func IsReferenceNumber(s string) bool {
	return ReferencePattern.MatchString(s)
}

// FieldKind is the input kind a column is rendered and validated as
type FieldKind int

const (
	KindText FieldKind = iota
	KindNumber
	KindBoolean
	KindDate
	KindTime
	KindEnum
)

func (k FieldKind) String() string {
	switch k {
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindTime:
		return "time"
	case KindEnum:
		return "enum"
	default:
		return "text"
	}
}

// Field is a column as presented on an input form
type Field struct {
	Column   Column
	Kind     FieldKind
	Options  []string
	Integer  bool
	Required bool
	ReadOnly bool
}

var enumTypeRegex = regexp.MustCompile(`(?i)^enum\((.+)\)$`)
var enumValueRegex = regexp.MustCompile(`'((?:[^']|'')*)'`)

// ParseEnumOptions extracts options from a declared type such as enum('a','b')
func ParseEnumOptions(columnType string) []string {
	matches := enumTypeRegex.FindStringSubmatch(strings.TrimSpace(columnType))
	if len(matches) < 2 {
		return nil
	}
	var values []string
	for _, match := range enumValueRegex.FindAllStringSubmatch(matches[1], -1) {
		values = append(values, strings.ReplaceAll(match[1], "''", "'"))
	}
	return values
}

// KindOf maps a store-reported column type to a field kind
func KindOf(col Column) (FieldKind, bool) {
	if len(col.EnumValues) > 0 {
		return KindEnum, false
	}
	if opts := ParseEnumOptions(col.ColumnType); len(opts) > 0 {
		return KindEnum, false
	}

	t := strings.ToUpper(strings.TrimSpace(col.SQLType))
	if i := strings.Index(t, "("); i >= 0 {
		t = strings.TrimSpace(t[:i])
	}
	// tinyint(1) is MySQL's boolean
	if t == "TINYINT" && strings.Contains(strings.ToLower(col.ColumnType), "tinyint(1)") {
		return KindBoolean, false
	}

	switch t {
	case "BOOLEAN", "BOOL", "BIT":
		return KindBoolean, false
	case "INTEGER", "INT", "INT2", "INT4", "INT8", "SMALLINT", "MEDIUMINT", "BIGINT", "TINYINT",
		"SERIAL", "BIGSERIAL", "SMALLSERIAL":
		return KindNumber, true
	case "NUMERIC", "DECIMAL", "REAL", "FLOAT", "FLOAT4", "FLOAT8", "DOUBLE", "DOUBLE PRECISION", "MONEY":
		return KindNumber, false
	case "DATE":
		return KindDate, false
	case "TIME", "TIME WITHOUT TIME ZONE", "TIME WITH TIME ZONE", "TIMETZ":
		return KindTime, false
	default:
		return KindText, false
	}
}

// FieldFor builds the form field for a column
func FieldFor(col Column, identifier string) Field {
	kind, integer := KindOf(col)
	field := Field{
		Column:   col,
		Kind:     kind,
		Integer:  integer,
		Required: col.Required() || col.Name == identifier,
		ReadOnly: col.AutoGenerated,
	}
	if kind == KindEnum {
		field.Options = col.EnumValues
		if len(field.Options) == 0 {
			field.Options = ParseEnumOptions(col.ColumnType)
		}
	}
	return field
}

// SeedResult represents the result of a seeding run
type SeedResult struct {
	Requested int
	Inserted  int
	Retries   int
	Failures  []string
}
