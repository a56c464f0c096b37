package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/connector"
	"github.com/vitebski/booking-admin/pkg/models"
)

// Order is one ORDER BY term
type Order struct {
	Column string
	Desc   bool
}

// RecordStore runs parameterized CRUD statements against one table. Table and
// column names are taken only from a models.TableSchema produced by the
// catalog; every value travels as a bind parameter.
type RecordStore struct {
	DB     *connector.DatabaseConnector
	Logger *logrus.Logger
}

// NewRecordStore creates a new record store
func NewRecordStore(db *connector.DatabaseConnector, logger *logrus.Logger) *RecordStore {
	return &RecordStore{DB: db, Logger: logger}
}

// FetchAll returns every row of the table in the requested order
func (rs *RecordStore) FetchAll(ctx context.Context, schema *models.TableSchema, order ...Order) (*models.RowSet, error) {
	if err := checkTable("fetch", schema); err != nil {
		return nil, err
	}

	d := rs.DB.Dialect
	quoted := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		quoted = append(quoted, d.Quote(col.Name))
	}

	query := fmt.Sprintf("SELECT %s FROM %s", strings.Join(quoted, ", "), d.Quote(schema.Name))

	var terms []string
	for _, o := range order {
		if o.Column == "" {
			continue
		}
		if err := checkColumn("fetch", schema, o.Column); err != nil {
			return nil, err
		}
		dir := "ASC"
		if o.Desc {
			dir = "DESC"
		}
		terms = append(terms, d.Quote(o.Column)+" "+dir)
	}
	if len(terms) > 0 {
		query += " ORDER BY " + strings.Join(terms, ", ")
	}

	var rows []map[string]interface{}
	err := rs.DB.WithConn(ctx, "fetch", func(q connector.Querier) error {
		var err error
		_, rows, err = connector.ExecuteQuery(ctx, q, query)
		return err
	})
	if err != nil {
		rs.Logger.Errorf("Error fetching rows from %s: %v", schema.Name, err)
		return nil, err
	}

	set := &models.RowSet{Columns: schema.Names(), Rows: make([]models.Row, 0, len(rows))}
	for _, row := range rows {
		set.Rows = append(set.Rows, models.Row(row))
	}
	rs.Logger.Debugf("Fetched %d rows from %s", len(set.Rows), schema.Name)
	return set, nil
}

// FetchOne returns the first row whose column equals value
func (rs *RecordStore) FetchOne(ctx context.Context, schema *models.TableSchema, column string, value interface{}) (models.Row, bool, error) {
	if err := checkTable("fetch", schema); err != nil {
		return nil, false, err
	}
	if err := checkColumn("fetch", schema, column); err != nil {
		return nil, false, err
	}

	d := rs.DB.Dialect
	quoted := make([]string, 0, len(schema.Columns))
	for _, col := range schema.Columns {
		quoted = append(quoted, d.Quote(col.Name))
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
		strings.Join(quoted, ", "), d.Quote(schema.Name), d.Quote(column), d.Placeholder(1))

	var rows []map[string]interface{}
	err := rs.DB.WithConn(ctx, "fetch", func(q connector.Querier) error {
		var err error
		_, rows, err = connector.ExecuteQuery(ctx, q, query, rs.bind(schema, column, value))
		return err
	})
	if err != nil {
		rs.Logger.Errorf("Error fetching row from %s: %v", schema.Name, err)
		return nil, false, err
	}
	if len(rows) == 0 {
		return nil, false, nil
	}
	return models.Row(rows[0]), true, nil
}

// CountWhere counts the rows whose column equals value
func (rs *RecordStore) CountWhere(ctx context.Context, schema *models.TableSchema, column string, value interface{}) (int64, error) {
	if err := checkTable("count", schema); err != nil {
		return 0, err
	}
	if err := checkColumn("count", schema, column); err != nil {
		return 0, err
	}

	var count int64
	err := rs.DB.WithConn(ctx, "count", func(q connector.Querier) error {
		var err error
		count, err = rs.countWhere(ctx, q, schema, column, value)
		return err
	})
	if err != nil {
		rs.Logger.Errorf("Error counting rows in %s: %v", schema.Name, err)
		return 0, err
	}
	return count, nil
}

// Insert adds one record. The reference number existence check and the
// INSERT share a transaction; the table's unique constraint stays the final
// guard and surfaces as models.ErrConstraint.
func (rs *RecordStore) Insert(ctx context.Context, schema *models.TableSchema, identifierColumn string, record models.Record) error {
	if err := checkTable("insert", schema); err != nil {
		return err
	}
	if err := checkColumn("insert", schema, identifierColumn); err != nil {
		return err
	}
	id, ok := record[identifierColumn]
	if !ok {
		return &models.OpError{Op: "insert", Kind: models.ErrConstraint, Err: fmt.Errorf("record has no %s", identifierColumn)}
	}
	for name := range record {
		if err := checkColumn("insert", schema, name); err != nil {
			return err
		}
	}

	d := rs.DB.Dialect
	var columnNames, placeholders []string
	var params []interface{}
	for _, col := range schema.Columns {
		value, ok := record[col.Name]
		if !ok {
			continue
		}
		columnNames = append(columnNames, d.Quote(col.Name))
		placeholders = append(placeholders, d.Placeholder(len(placeholders)+1))
		params = append(params, bindValue(col, value))
	}

	insertSQL := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		d.Quote(schema.Name),
		strings.Join(columnNames, ", "),
		strings.Join(placeholders, ", "),
	)

	err := rs.DB.WithTx(ctx, "insert", func(q connector.Querier) error {
		count, err := rs.countWhere(ctx, q, schema, identifierColumn, id)
		if err != nil {
			return err
		}
		if count > 0 {
			return &models.OpError{Op: "insert", Kind: models.ErrConstraint, Err: fmt.Errorf("%s %v already exists", identifierColumn, id)}
		}
		_, err = connector.ExecuteStatement(ctx, q, insertSQL, params...)
		return err
	})
	if err != nil {
		rs.Logger.Errorf("Error inserting into %s: %v", schema.Name, err)
		return err
	}

	rs.Logger.Infof("Inserted %s %v into %s", identifierColumn, id, schema.Name)
	return nil
}

// UpdateField sets one column of the row identified by id. The identifier
// column itself can never be the target.
func (rs *RecordStore) UpdateField(ctx context.Context, schema *models.TableSchema, identifierColumn, id, field string, value interface{}) (int64, error) {
	if err := checkTable("update", schema); err != nil {
		return 0, err
	}
	if err := checkColumn("update", schema, identifierColumn); err != nil {
		return 0, err
	}
	if err := checkColumn("update", schema, field); err != nil {
		return 0, err
	}
	if field == identifierColumn {
		return 0, &models.OpError{Op: "update", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("%s cannot be changed", field)}
	}

	d := rs.DB.Dialect
	col, _ := schema.Column(field)
	updateSQL := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		d.Quote(schema.Name), d.Quote(field), d.Placeholder(1), d.Quote(identifierColumn), d.Placeholder(2))

	var affected int64
	err := rs.DB.WithConn(ctx, "update", func(q connector.Querier) error {
		var err error
		affected, err = connector.ExecuteStatement(ctx, q, updateSQL, bindValue(col, value), id)
		return err
	})
	if err != nil {
		rs.Logger.Errorf("Error updating %s.%s: %v", schema.Name, field, err)
		return 0, err
	}

	if affected == 0 {
		rs.Logger.Warningf("No row in %s with %s %s", schema.Name, identifierColumn, id)
	} else {
		rs.Logger.Infof("Updated %s of %s %s", field, identifierColumn, id)
	}
	return affected, nil
}

// DeleteWhere removes every row whose column equals value. Zero rows is a
// normal result, not an error.
func (rs *RecordStore) DeleteWhere(ctx context.Context, schema *models.TableSchema, column string, value interface{}) (int64, error) {
	if err := checkTable("delete", schema); err != nil {
		return 0, err
	}
	if err := checkColumn("delete", schema, column); err != nil {
		return 0, err
	}

	d := rs.DB.Dialect
	var deleteSQL string
	var params []interface{}
	if value == nil {
		deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s IS NULL", d.Quote(schema.Name), d.Quote(column))
	} else {
		deleteSQL = fmt.Sprintf("DELETE FROM %s WHERE %s = %s", d.Quote(schema.Name), d.Quote(column), d.Placeholder(1))
		params = append(params, rs.bind(schema, column, value))
	}

	var affected int64
	err := rs.DB.WithConn(ctx, "delete", func(q connector.Querier) error {
		var err error
		affected, err = connector.ExecuteStatement(ctx, q, deleteSQL, params...)
		return err
	})
	if err != nil {
		rs.Logger.Errorf("Error deleting from %s: %v", schema.Name, err)
		return 0, err
	}

	rs.Logger.Infof("Deleted %d rows from %s where %s matched", affected, schema.Name, column)
	return affected, nil
}

func (rs *RecordStore) countWhere(ctx context.Context, q connector.Querier, schema *models.TableSchema, column string, value interface{}) (int64, error) {
	d := rs.DB.Dialect
	query := fmt.Sprintf("SELECT COUNT(*) AS count FROM %s WHERE %s = %s",
		d.Quote(schema.Name), d.Quote(column), d.Placeholder(1))

	_, rows, err := connector.ExecuteQuery(ctx, q, query, rs.bind(schema, column, value))
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	switch count := rows[0]["count"].(type) {
	case int64:
		return count, nil
	case int32:
		return int64(count), nil
	case int:
		return int64(count), nil
	default:
		var parsed int64
		if _, err := fmt.Sscan(fmt.Sprintf("%v", count), &parsed); err != nil {
			return 0, fmt.Errorf("could not parse count %v: %w", count, err)
		}
		return parsed, nil
	}
}

func (rs *RecordStore) bind(schema *models.TableSchema, column string, value interface{}) interface{} {
	col, _ := schema.Column(column)
	return bindValue(col, value)
}

// bindValue renders dates and times in the text form every supported driver accepts
func bindValue(col models.Column, value interface{}) interface{} {
	t, ok := value.(time.Time)
	if !ok {
		return value
	}
	if kind, _ := models.KindOf(col); kind == models.KindTime {
		return t.Format("15:04:05")
	}
	return t.Format("2006-01-02")
}

func checkTable(op string, schema *models.TableSchema) error {
	if schema == nil || schema.Name == "" || len(schema.Columns) == 0 {
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
