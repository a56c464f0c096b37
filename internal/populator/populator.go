package populator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/internal/form"
	"github.com/vitebski/booking-admin/internal/generator"
	"github.com/vitebski/booking-admin/pkg/models"
)

// Creator is the part of the form engine the populator submits records through
type Creator interface {
	Form(ctx context.Context) (*form.View, error)
	Create(ctx context.Context, raw map[string]string) (*form.Outcome, error)
}

// DatabasePopulator fills the managed table with sample bookings. Every
// record goes through the same validation and insert path as operator input.
type DatabasePopulator struct {
	Engine        Creator
	DataGenerator *generator.DataGenerator
	NumRecords    int
	MaxRetries    int
	Logger        *logrus.Logger
}

// NewDatabasePopulator creates a new database populator
func NewDatabasePopulator(
	engine Creator,
	dataGenerator *generator.DataGenerator,
	numRecords int,
	maxRetries int,
	logger *logrus.Logger,
) *DatabasePopulator {
	return &DatabasePopulator{
		Engine:        engine,
		DataGenerator: dataGenerator,
		NumRecords:    numRecords,
		MaxRetries:    maxRetries,
		Logger:        logger,
	}
}

// PopulateTable inserts NumRecords generated bookings
func (dp *DatabasePopulator) PopulateTable(ctx context.Context) (*models.SeedResult, error) {
	start := time.Now()
	result := &models.SeedResult{Requested: dp.NumRecords}

	view, err := dp.Engine.Form(ctx)
	if err != nil {
		return result, err
	}
	if len(view.Fields) == 0 {
		return result, &models.OpError{Op: "seed", Kind: models.ErrIdentifier, Err: fmt.Errorf("table %s has no columns", view.Table)}
	}

	dp.Logger.Infof("Populating table: %s", view.Table)

	for i := 0; i < dp.NumRecords; i++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		inserted, err := dp.insertRecord(ctx, view.Fields, result)
		if err != nil {
			// Connection errors end the run, anything else only this record
			if errors.Is(err, models.ErrConnection) {
				return result, err
			}
			result.Failures = append(result.Failures, err.Error())
			dp.Logger.Warningf("Record %d/%d failed: %v", i+1, dp.NumRecords, err)
			continue
		}
		if inserted {
			result.Inserted++
		}

		if (i+1)%100 == 0 {
			dp.Logger.Infof("Inserted %d/%d records into %s", result.Inserted, dp.NumRecords, view.Table)
		}
	}

	dp.Logger.Infof("Inserted %d/%d records into %s in %v", result.Inserted, dp.NumRecords, view.Table, time.Since(start))
	return result, nil
}

// insertRecord retries with freshly generated data when the store reports a
// duplicate or the generated values fail validation
func (dp *DatabasePopulator) insertRecord(ctx context.Context, fields []models.Field, result *models.SeedResult) (bool, error) {
	var lastErr error
	for retry := 0; retry <= dp.MaxRetries; retry++ {
		if retry > 0 {
			result.Retries++
		}

		raw := dp.DataGenerator.GenerateRecord(fields)
		_, err := dp.Engine.Create(ctx, raw)
		if err == nil {
			return true, nil
		}

		lastErr = err
		if !errors.Is(err, models.ErrConstraint) && !models.IsValidation(err) {
			return false, err
		}
		dp.Logger.Debugf("Retrying after: %v", err)
	}
	return false, fmt.Errorf("gave up after %d retries: %w", dp.MaxRetries, lastErr)
}
