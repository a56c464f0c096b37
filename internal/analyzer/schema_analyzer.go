package analyzer

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/connector"
	"github.com/vitebski/booking-admin/pkg/models"
)

// SchemaAnalyzer reads table and column metadata from the store's catalog.
// Nothing is cached: every call goes back to the catalog so callers always
// see the table's current structure.
type SchemaAnalyzer struct {
	DB     *connector.DatabaseConnector
	Logger *logrus.Logger
}

// NewSchemaAnalyzer creates a new schema analyzer
func NewSchemaAnalyzer(db *connector.DatabaseConnector, logger *logrus.Logger) *SchemaAnalyzer {
	return &SchemaAnalyzer{
		DB:     db,
		Logger: logger,
	}
}

var tablesQueries = map[connector.Dialect]string{
	connector.Postgres: `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = 'public'
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`,
	connector.MySQL: `
		SELECT table_name AS table_name
		FROM information_schema.tables
		WHERE table_schema = DATABASE()
		AND table_type = 'BASE TABLE'
		ORDER BY table_name
	`,
	connector.SQLite: `
		SELECT name AS table_name
		FROM sqlite_master
		WHERE type = 'table'
		AND name NOT LIKE 'sqlite_%'
		ORDER BY name
	`,
}

var columnsQueries = map[connector.Dialect]string{
	connector.Postgres: `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			udt_name AS column_type,
			character_maximum_length AS character_maximum_length,
			is_nullable AS is_nullable,
			column_default AS column_default,
			is_identity AS extra,
			ordinal_position AS ordinal_position
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = $1
		ORDER BY ordinal_position
	`,
	connector.MySQL: `
		SELECT
			column_name AS column_name,
			data_type AS data_type,
			column_type AS column_type,
			character_maximum_length AS character_maximum_length,
			is_nullable AS is_nullable,
			column_default AS column_default,
			extra AS extra,
			ordinal_position AS ordinal_position
		FROM information_schema.columns
		WHERE table_schema = DATABASE()
		AND table_name = ?
		ORDER BY ordinal_position
	`,
	connector.SQLite: `
		SELECT
			name AS column_name,
			type AS data_type,
			type AS column_type,
			"notnull" AS not_null,
			dflt_value AS column_default,
			pk AS pk,
			cid AS ordinal_position
		FROM pragma_table_info(?)
		ORDER BY cid
	`,
}

const pgEnumQuery = `
	SELECT e.enumlabel AS label
	FROM pg_type t
	JOIN pg_enum e ON e.enumtypid = t.oid
	WHERE t.typname = $1
	ORDER BY e.enumsortorder
`

var declaredLengthRegex = regexp.MustCompile(`\(\s*(\d+)\s*(?:,\s*\d+\s*)?\)`)

// ListTables returns the user tables of the current schema
func (sa *SchemaAnalyzer) ListTables(ctx context.Context) ([]string, error) {
	var tables []string

	err := sa.DB.WithConn(ctx, "list tables", func(q connector.Querier) error {
		_, rows, err := connector.ExecuteQuery(ctx, q, tablesQueries[sa.DB.Dialect])
		if err != nil {
			return err
		}
		for _, row := range rows {
			if name, ok := toString(row["table_name"]); ok {
				tables = append(tables, name)
			}
		}
		return nil
	})
	if err != nil {
		sa.Logger.Errorf("Error getting tables: %v", err)
		return nil, err
	}

	return tables, nil
}

// ListColumns returns the table's columns in physical order. An unknown table
// yields an empty slice rather than an error.
func (sa *SchemaAnalyzer) ListColumns(ctx context.Context, table string) ([]models.Column, error) {
	var columns []models.Column

	err := sa.DB.WithConn(ctx, "list columns", func(q connector.Querier) error {
		_, rows, err := connector.ExecuteQuery(ctx, q, columnsQueries[sa.DB.Dialect], table)
		if err != nil {
			return err
		}

		for _, row := range rows {
			var column models.Column
			switch sa.DB.Dialect {
			case connector.SQLite:
				column = sqliteColumn(row, countPrimaryKeys(rows))
			default:
				column = catalogColumn(row, sa.DB.Dialect)
			}
			columns = append(columns, column)
		}

		if sa.DB.Dialect == connector.Postgres {
			return sa.loadEnumValues(ctx, q, columns)
		}
		return nil
	})
	if err != nil {
		sa.Logger.Errorf("Error getting columns for table %s: %v", table, err)
		return nil, err
	}

	if len(columns) == 0 {
		sa.Logger.Debugf("No columns found for table %s", table)
	}
	return columns, nil
}

// Describe returns the table's live schema. The table name is only set when
// the catalog knows the table, so an empty schema is never usable for SQL.
func (sa *SchemaAnalyzer) Describe(ctx context.Context, table string) (*models.TableSchema, error) {
	columns, err := sa.ListColumns(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return &models.TableSchema{}, nil
	}
	return &models.TableSchema{Name: table, Columns: columns}, nil
}

// loadEnumValues fills the options of user-defined enum columns
func (sa *SchemaAnalyzer) loadEnumValues(ctx context.Context, q connector.Querier, columns []models.Column) error {
	for i, col := range columns {
		if col.SQLType != "USER-DEFINED" {
			continue
		}
		_, rows, err := connector.ExecuteQuery(ctx, q, pgEnumQuery, col.ColumnType)
		if err != nil {
			return err
		}
		for _, row := range rows {
			if label, ok := toString(row["label"]); ok {
				columns[i].EnumValues = append(columns[i].EnumValues, label)
			}
		}
	}
	return nil
}

// catalogColumn builds a column from an information_schema row
func catalogColumn(row map[string]interface{}, dialect connector.Dialect) models.Column {
	name, _ := toString(row["column_name"])
	dataType, _ := toString(row["data_type"])
	columnType, _ := toString(row["column_type"])
	nullable, _ := toString(row["is_nullable"])
	extra, _ := toString(row["extra"])

	column := models.Column{
		Name:       name,
		SQLType:    strings.ToUpper(dataType),
		ColumnType: columnType,
		Nullable:   strings.EqualFold(nullable, "YES"),
		Extra:      extra,
	}

	if length, ok := toInt64(row["character_maximum_length"]); ok {
		column.MaxLength = &length
	}
	if position, ok := toInt64(row["ordinal_position"]); ok {
		column.Position = int(position)
	}
	if def, ok := toString(row["column_default"]); ok {
		column.Default = &def
	}

	switch dialect {
	case connector.Postgres:
		column.AutoGenerated = strings.EqualFold(extra, "YES") ||
			(column.Default != nil && strings.HasPrefix(*column.Default, "nextval("))
	case connector.MySQL:
		column.AutoGenerated = strings.Contains(strings.ToLower(extra), "auto_increment")
		column.EnumValues = models.ParseEnumOptions(columnType)
	}
	return column
}

// sqliteColumn builds a column from a pragma_table_info row
func sqliteColumn(row map[string]interface{}, primaryKeys int) models.Column {
	name, _ := toString(row["column_name"])
	declared, _ := toString(row["data_type"])
	notNull, _ := toInt64(row["not_null"])
	pk, _ := toInt64(row["pk"])
	position, _ := toInt64(row["ordinal_position"])

	sqlType := strings.ToUpper(strings.TrimSpace(declared))
	if i := strings.Index(sqlType, "("); i >= 0 {
		sqlType = strings.TrimSpace(sqlType[:i])
	}

	column := models.Column{
		Name:       name,
		SQLType:    sqlType,
		ColumnType: declared,
		Nullable:   notNull == 0,
		Position:   int(position) + 1,
	}

	if m := declaredLengthRegex.FindStringSubmatch(declared); len(m) == 2 && !strings.HasPrefix(sqlType, "NUMERIC") && !strings.HasPrefix(sqlType, "DECIMAL") {
		if length, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			column.MaxLength = &length
		}
	}
	if def, ok := toString(row["column_default"]); ok {
		column.Default = &def
	}

	// A lone INTEGER PRIMARY KEY aliases the rowid
	column.AutoGenerated = pk == 1 && primaryKeys == 1 && sqlType == "INTEGER"
	return column
}

func countPrimaryKeys(rows []map[string]interface{}) int {
	count := 0
	for _, row := range rows {
		if pk, ok := toInt64(row["pk"]); ok && pk > 0 {
			count++
		}
	}
	return count
}

func toString(v interface{}) (string, bool) {
	switch val := v.(type) {
	case nil:
		return "", false
	case string:
		return val, true
	case []byte:
		return string(val), true
	default:
		return fmt.Sprintf("%v", val), true
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch val := v.(type) {
	case nil:
		return 0, false
	case int64:
		return val, true
	case int32:
		return int64(val), true
	case int:
		return int64(val), true
	case uint64:
		return int64(val), true
	default:
		s, _ := toString(val)
		parsed, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	}
}
