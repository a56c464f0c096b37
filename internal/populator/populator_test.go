package populator

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitebski/booking-admin/internal/form"
	"github.com/vitebski/booking-admin/internal/generator"
	"github.com/vitebski/booking-admin/internal/validator"
	"github.com/vitebski/booking-admin/pkg/models"
)

type fakeEngine struct {
	fields     []models.Field
	failures   []error
	created    []map[string]string
	formCalled int
}

func (f *fakeEngine) Form(ctx context.Context) (*form.View, error) {
	f.formCalled++
	return &form.View{Table: "bookings", Fields: f.fields}, nil
}

func (f *fakeEngine) Create(ctx context.Context, raw map[string]string) (*form.Outcome, error) {
	if len(f.failures) > 0 {
		err := f.failures[0]
		f.failures = f.failures[1:]
		if err != nil {
			return nil, err
		}
	}
	f.created = append(f.created, raw)
	return &form.Outcome{Op: "create", Affected: 1}, nil
}

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func newPopulator(t *testing.T, engine *fakeEngine, records, retries int) *DatabasePopulator {
	t.Helper()
	v, err := validator.New(validator.Rules{IdentifierColumn: "reference_number"})
	require.NoError(t, err)
	return NewDatabasePopulator(engine, generator.NewDataGenerator(v, testLogger()), records, retries, testLogger())
}

func testFields() []models.Field {
	return []models.Field{
		models.FieldFor(models.Column{Name: "reference_number", SQLType: "TEXT"}, "reference_number"),
		models.FieldFor(models.Column{Name: "event_type", SQLType: "TEXT"}, "reference_number"),
	}
}

func duplicate() error {
	return &models.OpError{Op: "insert", Kind: models.ErrConstraint, Err: errors.New("already exists")}
}

func TestPopulateTable(t *testing.T) {
	engine := &fakeEngine{fields: testFields()}
	dp := newPopulator(t, engine, 5, 3)

	result, err := dp.PopulateTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, result.Requested)
	assert.Equal(t, 5, result.Inserted)
	assert.Zero(t, result.Retries)
	assert.Equal(t, 1, engine.formCalled)
	for _, raw := range engine.created {
		assert.True(t, models.IsReferenceNumber(raw["reference_number"]))
	}
}

func TestPopulateRetriesDuplicates(t *testing.T) {
	engine := &fakeEngine{fields: testFields(), failures: []error{duplicate(), duplicate()}}
	dp := newPopulator(t, engine, 2, 3)

	result, err := dp.PopulateTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Inserted)
	assert.Equal(t, 2, result.Retries)
	assert.Empty(t, result.Failures)
}

func TestPopulateGivesUpAfterMaxRetries(t *testing.T) {
	engine := &fakeEngine{fields: testFields(), failures: []error{duplicate(), duplicate(), duplicate()}}
	dp := newPopulator(t, engine, 2, 2)

	result, err := dp.PopulateTable(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Inserted)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0], "gave up after 2 retries")
}

func TestPopulateStopsOnConnectionError(t *testing.T) {
	lost := &models.OpError{Op: "insert", Kind: models.ErrConnection, Err: errors.New("broken pipe")}
	engine := &fakeEngine{fields: testFields(), failures: []error{lost}}
	dp := newPopulator(t, engine, 3, 3)

	result, err := dp.PopulateTable(context.Background())
	assert.ErrorIs(t, err, models.ErrConnection)
	assert.Zero(t, result.Inserted)
}

func TestPopulateEmptyTable(t *testing.T) {
	dp := newPopulator(t, &fakeEngine{}, 3, 3)

	_, err := dp.PopulateTable(context.Background())
	assert.ErrorIs(t, err, models.ErrIdentifier)
}
