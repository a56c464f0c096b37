// Package form drives every operator command: it reads the table's live
// schema, validates input against it, dispatches to the record store or the
// schema mutator, and publishes a new revision after each successful change
// so that any view built from an older revision is known to be stale.
package form

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/analyzer"
	"github.com/vitebski/booking-admin/internal/mutator"
	"github.com/vitebski/booking-admin/internal/render"
	"github.com/vitebski/booking-admin/internal/store"
	"github.com/vitebski/booking-admin/internal/validator"
	"github.com/vitebski/booking-admin/pkg/models"
)

// DefaultConfirmPhrase must be typed to confirm a column drop unless configured otherwise
const DefaultConfirmPhrase = "DROP"

// Config names the managed table and its special columns
type Config struct {
	Table            string
	IdentifierColumn string
	OrderColumn      string
	OrderDesc        bool
	ConfirmPhrase    string
}

// View is the input surface for the current schema
type View struct {
	Table    string
	Fields   []models.Field
	Revision uint64
}

// Outcome acknowledges a command
type Outcome struct {
	Op       string
	Affected int64
	NotFound bool
	Message  string
	Revision uint64
}

// Event is published after every successful change
type Event struct {
	Op       string
	Revision uint64
}

// Engine composes the introspector, validator, store and mutator
type Engine struct {
	Config    Config
	Analyzer  *analyzer.SchemaAnalyzer
	Store     *store.RecordStore
	Mutator   *mutator.SchemaMutator
	Validator *validator.FieldValidator
	Logger    *logrus.Logger

	mu        sync.Mutex
	revision  uint64
	listeners []func(Event)
}

// NewEngine creates a new form engine
func NewEngine(
	cfg Config,
	schemaAnalyzer *analyzer.SchemaAnalyzer,
	recordStore *store.RecordStore,
	schemaMutator *mutator.SchemaMutator,
	fieldValidator *validator.FieldValidator,
	logger *logrus.Logger,
) *Engine {
	if cfg.ConfirmPhrase == "" {
		cfg.ConfirmPhrase = DefaultConfirmPhrase
	}
	if cfg.IdentifierColumn == "" {
		cfg.IdentifierColumn = fieldValidator.IdentifierColumn()
	}
	return &Engine{
		Config:    cfg,
		Analyzer:  schemaAnalyzer,
		Store:     recordStore,
		Mutator:   schemaMutator,
		Validator: fieldValidator,
		Logger:    logger,
	}
}

// Subscribe registers fn to be called after every successful change
func (e *Engine) Subscribe(fn func(Event)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// Revision returns the current revision
func (e *Engine) Revision() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.revision
}

// Stale reports whether a view built at revision must be refetched
func (e *Engine) Stale(revision uint64) bool {
	return revision != e.Revision()
}

func (e *Engine) invalidate(op string) uint64 {
	e.mu.Lock()
	e.revision++
	ev := Event{Op: op, Revision: e.revision}
	listeners := append([]func(Event){}, e.listeners...)
	e.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
	return ev.Revision
}

// Tables lists the tables available in the store
func (e *Engine) Tables(ctx context.Context) ([]string, error) {
	return e.Analyzer.ListTables(ctx)
}

// Columns returns the managed table's current columns
func (e *Engine) Columns(ctx context.Context) ([]models.Column, error) {
	return e.Analyzer.ListColumns(ctx, e.Config.Table)
}

// Form returns the fields to render. A missing table renders no fields.
func (e *Engine) Form(ctx context.Context) (*View, error) {
	revision := e.Revision()
	schema, err := e.Analyzer.Describe(ctx, e.Config.Table)
	if err != nil {
		return nil, err
	}

	view := &View{Table: e.Config.Table, Revision: revision}
	for _, col := range schema.Columns {
		view.Fields = append(view.Fields, models.FieldFor(col, e.Config.IdentifierColumn))
	}
	return view, nil
}

// Rows fetches the full current row set
func (e *Engine) Rows(ctx context.Context) (*models.RowSet, error) {
	revision := e.Revision()
	schema, err := e.Analyzer.Describe(ctx, e.Config.Table)
	if err != nil {
		return nil, err
	}
	if schema.Name == "" {
		return &models.RowSet{Revision: revision}, nil
	}

	var order []store.Order
	if schema.Has(e.Config.OrderColumn) {
		order = append(order, store.Order{Column: e.Config.OrderColumn, Desc: e.Config.OrderDesc})
	}
	if schema.Has(e.Config.IdentifierColumn) && e.Config.OrderColumn != e.Config.IdentifierColumn {
		order = append(order, store.Order{Column: e.Config.IdentifierColumn, Desc: e.Config.OrderDesc})
	}

	set, err := e.Store.FetchAll(ctx, schema, order...)
	if err != nil {
		return nil, err
	}
	set.Revision = revision
	return set, nil
}

// Row fetches one row by reference number
func (e *Engine) Row(ctx context.Context, id string) (models.Row, bool, error) {
	schema, err := e.managedSchema(ctx, "show")
	if err != nil {
		return nil, false, err
	}
	if err := e.checkIdentifier(schema, id); err != nil {
		return nil, false, err
	}
	return e.Store.FetchOne(ctx, schema, e.Config.IdentifierColumn, id)
}

// Create validates a submission and inserts it. Nothing is written unless every rule passes.
func (e *Engine) Create(ctx context.Context, raw map[string]string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "create")
	if err != nil {
		return nil, err
	}

	record, err := e.Validator.ValidateRecord(schema, raw)
	if err != nil {
		e.Logger.Warningf("Rejected submission for %s: %v", schema.Name, err)
		return nil, err
	}

	if err := e.Store.Insert(ctx, schema, e.Config.IdentifierColumn, record); err != nil {
		return nil, err
	}

	id := record[e.Config.IdentifierColumn]
	return &Outcome{
		Op:       "create",
		Affected: 1,
		Message:  fmt.Sprintf("created %s %v", e.Config.IdentifierColumn, id),
		Revision: e.invalidate("create"),
	}, nil
}

// UpdateField changes one field of the row with the given reference number.
// The row is re-read from the store; only the reference number and the new
// value come from the operator.
func (e *Engine) UpdateField(ctx context.Context, id, field, raw string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "update")
	if err != nil {
		return nil, err
	}
	if err := e.checkIdentifier(schema, id); err != nil {
		return nil, err
	}
	if field == e.Config.IdentifierColumn {
		return nil, &models.OpError{Op: "update", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("%s cannot be changed", field)}
	}
	col, ok := schema.Column(field)
	if !ok {
		return nil, &models.OpError{Op: "update", Kind: models.ErrIdentifier, Err: fmt.Errorf("column %q is not in table %s", field, schema.Name)}
	}
	if col.AutoGenerated {
		return nil, &models.OpError{Op: "update", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("%s is assigned by the database", field)}
	}

	current, found, err := e.Store.FetchOne(ctx, schema, e.Config.IdentifierColumn, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return e.notFound("update", id), nil
	}

	value, present, err := e.Validator.Validate(col, raw)
	if err != nil {
		verr := &models.ValidationError{}
		verr.Add(field, "%s", validationMessage(err))
		return nil, verr
	}
	// An empty value clears the field, which a NOT NULL column cannot hold
	if !present && !col.Nullable {
		verr := &models.ValidationError{}
		verr.Add(field, "cannot be cleared")
		return nil, verr
	}

	merged := models.Record{}
	if value != nil {
		merged[field] = value
	}
	for _, other := range e.Validator.Counterparts(field) {
		otherCol, ok := schema.Column(other)
		if !ok {
			continue
		}
		if stored, ok := e.Validator.Normalize(otherCol, current[other]); ok {
			merged[other] = stored
		}
	}
	if failures := e.Validator.CheckOrder(merged); len(failures) > 0 {
		return nil, &models.ValidationError{Fields: failures}
	}

	affected, err := e.Store.UpdateField(ctx, schema, e.Config.IdentifierColumn, id, field, value)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return e.notFound("update", id), nil
	}

	return &Outcome{
		Op:       "update",
		Affected: affected,
		Message:  fmt.Sprintf("updated %s of %s %s", field, e.Config.IdentifierColumn, id),
		Revision: e.invalidate("update"),
	}, nil
}

// Delete removes the row with the given reference number
func (e *Engine) Delete(ctx context.Context, id string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "delete")
	if err != nil {
		return nil, err
	}
	if err := e.checkIdentifier(schema, id); err != nil {
		return nil, err
	}
	return e.delete(ctx, schema, e.Config.IdentifierColumn, id)
}

// DeleteWhere removes every row whose column matches the raw filter value.
// The column must exist in the live schema and the value must pass that column's rules.
func (e *Engine) DeleteWhere(ctx context.Context, column, raw string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "delete")
	if err != nil {
		return nil, err
	}
	col, ok := schema.Column(column)
	if !ok {
		return nil, &models.OpError{Op: "delete", Kind: models.ErrIdentifier, Err: fmt.Errorf("column %q is not in table %s", column, schema.Name)}
	}

	value, present, err := e.Validator.Validate(col, raw)
	if err != nil || !present {
		verr := &models.ValidationError{}
		if err != nil {
			verr.Add(column, "%s", validationMessage(err))
		} else {
			verr.Add(column, "a filter value is required")
		}
		return nil, verr
	}
	return e.delete(ctx, schema, column, value)
}

func (e *Engine) delete(ctx context.Context, schema *models.TableSchema, column string, value interface{}) (*Outcome, error) {
	affected, err := e.Store.DeleteWhere(ctx, schema, column, value)
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return e.notFound("delete", fmt.Sprintf("%v", value)), nil
	}
	return &Outcome{
		Op:       "delete",
		Affected: affected,
		Message:  fmt.Sprintf("deleted %d row(s) where %s = %v", affected, column, value),
		Revision: e.invalidate("delete"),
	}, nil
}

// AddColumn adds a column to the managed table
func (e *Engine) AddColumn(ctx context.Context, name, typeSpec string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "add column")
	if err != nil {
		return nil, err
	}
	if err := e.Mutator.AddColumn(ctx, schema, name, typeSpec); err != nil {
		return nil, err
	}
	return e.schemaChanged("add column", fmt.Sprintf("added column %s", name)), nil
}

// DropColumn drops a column once the operator has typed the confirmation phrase
func (e *Engine) DropColumn(ctx context.Context, name, confirmation string) (*Outcome, error) {
	if name == e.Config.IdentifierColumn {
		return nil, &models.OpError{Op: "drop column", Kind: models.ErrProtectedColumn, Err: fmt.Errorf("%s cannot be dropped", name)}
	}
	if confirmation != e.Config.ConfirmPhrase {
		return nil, &models.OpError{Op: "drop column", Kind: models.ErrConfirmation, Err: fmt.Errorf("type %q to confirm dropping %s", e.Config.ConfirmPhrase, name)}
	}

	schema, err := e.managedSchema(ctx, "drop column")
	if err != nil {
		return nil, err
	}
	if err := e.Mutator.DropColumn(ctx, schema, name); err != nil {
		return nil, err
	}
	return e.schemaChanged("drop column", fmt.Sprintf("dropped column %s", name)), nil
}

// RenameColumn renames a column of the managed table
func (e *Engine) RenameColumn(ctx context.Context, oldName, newName string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "rename column")
	if err != nil {
		return nil, err
	}
	if err := e.Mutator.RenameColumn(ctx, schema, oldName, newName); err != nil {
		return nil, err
	}
	return e.schemaChanged("rename column", fmt.Sprintf("renamed column %s to %s", oldName, newName)), nil
}

// ChangeType changes a column's type
func (e *Engine) ChangeType(ctx context.Context, name, typeSpec string) (*Outcome, error) {
	schema, err := e.managedSchema(ctx, "change type")
	if err != nil {
		return nil, err
	}
	if err := e.Mutator.ChangeType(ctx, schema, name, typeSpec); err != nil {
		return nil, err
	}
	return e.schemaChanged("change type", fmt.Sprintf("changed type of %s to %s", name, typeSpec)), nil
}

// ExportCSV writes the current row set as CSV in column order
func (e *Engine) ExportCSV(ctx context.Context, w io.Writer) (int, error) {
	set, err := e.Rows(ctx)
	if err != nil {
		return 0, err
	}
	if err := render.WriteCSV(w, set); err != nil {
		return 0, err
	}
	return len(set.Rows), nil
}

func (e *Engine) schemaChanged(op, message string) *Outcome {
	e.Logger.Infof("%s on %s", message, e.Config.Table)
	return &Outcome{Op: op, Message: message, Revision: e.invalidate(op)}
}

func (e *Engine) notFound(op, id string) *Outcome {
	e.Logger.Warningf("%s: no row matched %s", op, id)
	return &Outcome{
		Op:       op,
		NotFound: true,
		Message:  fmt.Sprintf("no row matched %s", id),
		Revision: e.Revision(),
	}
}

// managedSchema reads the managed table's schema, failing when the table is
// missing or lacks the reference number column
func (e *Engine) managedSchema(ctx context.Context, op string) (*models.TableSchema, error) {
	schema, err := e.Analyzer.Describe(ctx, e.Config.Table)
	if err != nil {
		return nil, err
	}
	if schema.Name == "" {
		return nil, &models.OpError{Op: op, Kind: models.ErrIdentifier, Err: fmt.Errorf("table %s does not exist or has no columns", e.Config.Table)}
	}
	if !schema.Has(e.Config.IdentifierColumn) {
		return nil, &models.OpError{Op: op, Kind: models.ErrIdentifier, Err: fmt.Errorf("table %s has no %s column", schema.Name, e.Config.IdentifierColumn)}
	}
	return schema, nil
}

func (e *Engine) checkIdentifier(schema *models.TableSchema, id string) error {
	col, _ := schema.Column(e.Config.IdentifierColumn)
	if _, _, err := e.Validator.Validate(col, id); err != nil {
		verr := &models.ValidationError{}
		verr.Add(e.Config.IdentifierColumn, "%s", validationMessage(err))
		return verr
	}
	return nil
}

func validationMessage(err error) string {
	if fe, ok := err.(models.FieldError); ok {
		return fe.Message
	}
	return err.Error()
}
