package connector

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/sirupsen/logrus"
	"github.com/vitebski/booking-admin/pkg/models"
	_ "modernc.org/sqlite"
)

// Querier is the subset of *sql.Conn and *sql.Tx used by the store layers
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DatabaseConnector owns the store handle and hands out one scoped connection per operation
type DatabaseConnector struct {
	URL     string
	Dialect Dialect
	DSN     string
	DB      *sql.DB
	Logger  *logrus.Logger
}

// NewDatabaseConnector creates a new database connector. An empty URL falls back to DATABASE_URL.
func NewDatabaseConnector(databaseURL string, logger *logrus.Logger) (*DatabaseConnector, error) {
	if databaseURL == "" {
		databaseURL = getEnvOrDefault("DATABASE_URL", "")
	}

	dialect, dsn, err := ParseURL(databaseURL)
	if err != nil {
		return nil, err
	}

	return &DatabaseConnector{
		URL:     databaseURL,
		Dialect: dialect,
		DSN:     dsn,
		Logger:  logger,
	}, nil
}

// NewWithDB wraps an already opened handle
func NewWithDB(db *sql.DB, dialect Dialect, logger *logrus.Logger) *DatabaseConnector {
	return &DatabaseConnector{Dialect: dialect, DB: db, Logger: logger}
}

// Connect opens the handle and verifies the store is reachable
func (dc *DatabaseConnector) Connect(ctx context.Context) error {
	db, err := sql.Open(dc.Dialect.DriverName(), dc.DSN)
	if err != nil {
		dc.Logger.Errorf("Error opening %s database: %v", dc.Dialect, err)
		return &models.OpError{Op: "connect", Kind: models.ErrConnection, Err: err}
	}

	// One operator, one connection. This also keeps an in-memory SQLite database alive.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		dc.Logger.Errorf("Error pinging %s database: %v", dc.Dialect, err)
		return &models.OpError{Op: "connect", Kind: models.ErrConnection, Err: err}
	}

	dc.DB = db
	dc.Logger.Infof("Connected to %s database", dc.Dialect)
	return nil
}

// Disconnect closes the database handle
func (dc *DatabaseConnector) Disconnect() {
	if dc.DB != nil {
		err := dc.DB.Close()
		if err != nil {
			dc.Logger.Errorf("Error closing database connection: %v", err)
		} else {
			dc.Logger.Infof("%s connection closed", dc.Dialect)
		}
		dc.DB = nil
	}
}

// WithConn acquires a connection for the duration of fn and releases it on every path
func (dc *DatabaseConnector) WithConn(ctx context.Context, op string, fn func(q Querier) error) error {
	if dc.DB == nil {
		return &models.OpError{Op: op, Kind: models.ErrConnection, Err: fmt.Errorf("database connection not established")}
	}

	conn, err := dc.DB.Conn(ctx)
	if err != nil {
		dc.Logger.Errorf("Error acquiring connection for %s: %v", op, err)
		return &models.OpError{Op: op, Kind: models.ErrConnection, Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			dc.Logger.Warningf("Error releasing connection after %s: %v", op, err)
		}
	}()

	return Classify(op, fn(conn))
}

// WithTx runs fn inside a transaction on a scoped connection, rolling back on any error
func (dc *DatabaseConnector) WithTx(ctx context.Context, op string, fn func(q Querier) error) error {
	if dc.DB == nil {
		return &models.OpError{Op: op, Kind: models.ErrConnection, Err: fmt.Errorf("database connection not established")}
	}

	conn, err := dc.DB.Conn(ctx)
	if err != nil {
		dc.Logger.Errorf("Error acquiring connection for %s: %v", op, err)
		return &models.OpError{Op: op, Kind: models.ErrConnection, Err: err}
	}
	defer func() {
		if err := conn.Close(); err != nil {
			dc.Logger.Warningf("Error releasing connection after %s: %v", op, err)
		}
	}()

	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		dc.Logger.Errorf("Error starting transaction: %v", err)
		return Classify(op, err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			dc.Logger.Warningf("Error rolling back %s: %v", op, rbErr)
		}
		return Classify(op, err)
	}

	if err := tx.Commit(); err != nil {
		dc.Logger.Errorf("Error committing transaction: %v", err)
		return Classify(op, err)
	}
	return nil
}

// ExecuteQuery executes a SQL query and returns the columns and the rows as maps
func ExecuteQuery(ctx context.Context, q Querier, query string, params ...interface{}) ([]string, []map[string]interface{}, error) {
	rows, err := q.QueryContext(ctx, query, params...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, err
	}

	var results []map[string]interface{}

	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range columns {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			// Convert []byte to string for text fields
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}

		results = append(results, row)
	}

	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return columns, results, nil
}

// ExecuteStatement executes a SQL statement and returns the number of affected rows
func ExecuteStatement(ctx context.Context, q Querier, query string, params ...interface{}) (int64, error) {
	result, err := q.ExecContext(ctx, query, params...)
	if err != nil {
		return 0, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}

	return affected, nil
}

// getEnvOrDefault gets an environment variable or returns a default value
func getEnvOrDefault(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}
