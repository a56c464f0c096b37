package mutator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/connector"
	"github.com/vitebski/booking-admin/pkg/models"
)

var columnNameRegex = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

var typeSpecRegex = regexp.MustCompile(`^([A-Z]+(?: [A-Z]+)*)\s*(\(\s*\d+\s*(?:,\s*\d+\s*)?\))?$`)

// Base types accepted in ADD COLUMN and ALTER TYPE statements
var allowedTypes = map[string]bool{
	"TEXT": true, "VARCHAR": true, "CHAR": true, "CHARACTER": true, "CHARACTER VARYING": true,
	"INTEGER": true, "INT": true, "SMALLINT": true, "BIGINT": true, "TINYINT": true, "MEDIUMINT": true,
	"NUMERIC": true, "DECIMAL": true, "REAL": true, "FLOAT": true, "DOUBLE": true, "DOUBLE PRECISION": true,
	"BOOLEAN": true, "BOOL": true,
	"DATE": true, "TIME": true, "TIMESTAMP": true, "TIMESTAMPTZ": true, "DATETIME": true,
	"TIME WITHOUT TIME ZONE": true, "TIMESTAMP WITH TIME ZONE": true, "TIMESTAMP WITHOUT TIME ZONE": true,
	"JSON": true, "JSONB": true, "UUID": true,
}

// SchemaMutator issues single-statement DDL against the managed table
type SchemaMutator struct {
	DB               *connector.DatabaseConnector
	IdentifierColumn string
	Logger           *logrus.Logger
}

// NewSchemaMutator creates a new schema mutator
func NewSchemaMutator(db *connector.DatabaseConnector, identifierColumn string, logger *logrus.Logger) *SchemaMutator {
	return &SchemaMutator{DB: db, IdentifierColumn: identifierColumn, Logger: logger}
}

// ParseTypeSpec checks a column type against the accepted grammar and returns
// it in canonical upper-case form
func ParseTypeSpec(spec string) (string, error) {
	canonical := strings.ToUpper(strings.Join(strings.Fields(spec), " "))
	m := typeSpecRegex.FindStringSubmatch(canonical)
	if m == nil || !allowedTypes[m[1]] {
		return "", &models.OpError{Op: "type", Kind: models.ErrIdentifier, Err: fmt.Errorf("unsupported column type %q", spec)}
	}
	if m[2] == "" {
		return m[1], nil
	}
	return m[1] + strings.ReplaceAll(m[2], " ", ""), nil
}

// AddColumn appends a new column
func (sm *SchemaMutator) AddColumn(ctx context.Context, schema *models.TableSchema, name, typeSpec string) error {
	if err := checkTable("add column", schema); err != nil {
		return err
	}
	if !columnNameRegex.MatchString(name) {
		return &models.OpError{Op: "add column", Kind: models.ErrIdentifier, Err: fmt.Errorf("%q is not a valid column name", name)}
	}
	if schema.Has(name) {
		return &models.OpError{Op: "add column", Kind: models.ErrConstraint, Err: fmt.Errorf("column %s already exists", name)}
	}
	sqlType, err := ParseTypeSpec(typeSpec)
	if err != nil {
		return err
	}

	d := sm.DB.Dialect
	ddl := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", d.Quote(schema.Name), d.Quote(name), sqlType)
	return sm.exec(ctx, "add column", ddl)
}

// DropColumn removes a column. The reference number column can never be dropped.
func (sm *SchemaMutator) DropColumn(ctx context.Context, schema *models.TableSchema, name string) error {
	if name == sm.IdentifierColumn {
		return &models.OpError{Op: "drop column", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("%s cannot be dropped", name)}
	}
	if err := checkTable("drop column", schema); err != nil {
		return err
	}
	if err := checkColumn("drop column", schema, name); err != nil {
		return err
	}

	d := sm.DB.Dialect
	ddl := fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.Quote(schema.Name), d.Quote(name))
	return sm.exec(ctx, "drop column", ddl)
}

// RenameColumn renames a column
func (sm *SchemaMutator) RenameColumn(ctx context.Context, schema *models.TableSchema, oldName, newName string) error {
	if oldName == newName {
		verr := &models.ValidationError{}
		verr.Add(newName, "new name is the same as the current name")
		return verr
	}
	if oldName == sm.IdentifierColumn {
		return &models.OpError{Op: "rename column", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("%s cannot be renamed", oldName)}
	}
	if err := checkTable("rename column", schema); err != nil {
		return err
	}
	if err := checkColumn("rename column", schema, oldName); err != nil {
		return err
	}
	if !columnNameRegex.MatchString(newName) {
		return &models.OpError{Op: "rename column", Kind: models.ErrIdentifier, Err: fmt.Errorf("%q is not a valid column name", newName)}
	}
	if schema.Has(newName) {
		return &models.OpError{Op: "rename column", Kind: models.ErrConstraint, Err: fmt.Errorf("column %s already exists", newName)}
	}

	d := sm.DB.Dialect
	ddl := fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s", d.Quote(schema.Name), d.Quote(oldName), d.Quote(newName))
	return sm.exec(ctx, "rename column", ddl)
}

// ChangeType converts a column to a new type. Existing data that cannot be
// converted makes the store reject the statement; that error is returned as is.
// The reference number column keeps its type.
func (sm *SchemaMutator) ChangeType(ctx context.Context, schema *models.TableSchema, name, typeSpec string) error {
	if name == sm.IdentifierColumn {
		return &models.OpError{Op: "change type", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("the type of %s cannot be changed", name)}
	}
	if err := checkTable("change type", schema); err != nil {
		return err
	}
	if err := checkColumn("change type", schema, name); err != nil {
		return err
	}
	sqlType, err := ParseTypeSpec(typeSpec)
	if err != nil {
		return err
	}

	d := sm.DB.Dialect
	var ddl string
	switch d {
	case connector.Postgres:
		ddl = fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
			d.Quote(schema.Name), d.Quote(name), sqlType, d.Quote(name), sqlType)
	case connector.MySQL:
		col, _ := schema.Column(name)
		ddl = fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s %s", d.Quote(schema.Name), d.Quote(name), mysqlColumnDefinition(col, sqlType))
	default:
		return &models.OpError{Op: "change type", Kind: models.ErrUnsupported, Err: fmt.Errorf("%s cannot alter a column type in place", d)}
	}
	return sm.exec(ctx, "change type", ddl)
}

// mysqlColumnDefinition rebuilds everything but the type of an introspected
// column, since MODIFY COLUMN replaces the whole definition
func mysqlColumnDefinition(col models.Column, sqlType string) string {
	parts := []string{sqlType}
	if !col.Nullable {
		parts = append(parts, "NOT NULL")
	}

	extra := strings.ToLower(col.Extra)
	if col.Default != nil {
		def := *col.Default
		switch {
		case strings.HasPrefix(strings.ToUpper(def), "CURRENT_TIMESTAMP"):
			parts = append(parts, "DEFAULT "+def)
		case strings.Contains(extra, "default_generated"):
			parts = append(parts, "DEFAULT ("+def+")")
		case len(def) >= 2 && strings.HasPrefix(def, "'") && strings.HasSuffix(def, "'"):
			// MariaDB reports literals already quoted
			parts = append(parts, "DEFAULT "+def)
		default:
			parts = append(parts, "DEFAULT '"+strings.ReplaceAll(def, "'", "''")+"'")
		}
	}
	if strings.Contains(extra, "auto_increment") {
		parts = append(parts, "AUTO_INCREMENT")
	}
	if strings.Contains(extra, "on update current_timestamp") {
		parts = append(parts, "ON UPDATE CURRENT_TIMESTAMP")
	}
	return strings.Join(parts, " ")
}

func (sm *SchemaMutator) exec(ctx context.Context, op, ddl string) error {
	sm.Logger.Debugf("Executing DDL: %s", ddl)
	err := sm.DB.WithConn(ctx, op, func(q connector.Querier) error {
		_, err := q.ExecContext(ctx, ddl)
		return err
	})
	if err != nil {
		sm.Logger.Errorf("Error executing %s: %v", op, err)
		return err
	}
	sm.Logger.Infof("Schema change applied: %s", op)
	return nil
}

func checkTable(op string, schema *models.TableSchema) error {
	if schema == nil || schema.Name == "" {
		return &models.OpError{Op: op, Kind: models.ErrIdentifier, Err: fmt.Errorf("table is not known to the catalog")}
	}
	return nil
}

func checkColumn(op string, schema *models.TableSchema, name string) error {
	if !schema.Has(name) {
		return &models.OpError{Op: op, Kind: models.ErrIdentifier, Err: fmt.Errorf("column %q is not in table %s", name, schema.Name)}
	}
	return nil
}
