package connector

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vitebski/booking-admin/pkg/models"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// MySQL server error numbers treated as rejected writes
var mysqlConstraintCodes = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1264: true, // out of range value
	1265: true, // data truncated
	1292: true, // incorrect date/time value
	1366: true, // incorrect value for column
	1406: true, // data too long
	1451: true, // row is referenced
	1452: true, // foreign key fails
}

// Classify attaches an error kind to a driver error. Errors that are already
// classified, or that match no known kind, keep their original form.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var opErr *models.OpError
	if errors.As(err, &opErr) || models.IsValidation(err) {
		return err
	}

	if kind := kindOf(err); kind != nil {
		return &models.OpError{Op: op, Kind: kind, Err: err}
	}
	return fmt.Errorf("%s: %w", op, err)
}

func kindOf(err error) error {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, mysql.ErrInvalidConn) {
		return models.ErrConnection
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return models.ErrConnection
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case len(pgErr.Code) < 2:
			return nil
		case pgErr.Code[:2] == "08":
			return models.ErrConnection
		case pgErr.Code[:2] == "23", pgErr.Code[:2] == "22", pgErr.Code == "42804":
			return models.ErrConstraint
		}
		return nil
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		if mysqlConstraintCodes[myErr.Number] {
			return models.ErrConstraint
		}
		return nil
	}

	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		if liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
			return models.ErrConstraint
		}
		return nil
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.ErrConnection
	}
	return nil
}
