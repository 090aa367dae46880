package pgdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/arkade-os/pegd/internal/infrastructure/db/postgres/sqlc/queries"
	"github.com/lib/pq"
	log "github.com/sirupsen/logrus"
)

const (
	driverName     = "postgres"
	maintenanceDb  = "postgres"
	connectTimeout = 5 * time.Second
	maxTxAttempts  = 5
	txRetryDelay   = 100 * time.Millisecond

	codeUndefinedDatabase    = "3D000"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
)

// OpenDb connects to the postgres db at dsn. When autoCreate is set, a db that does not
// exist yet is created through the server's maintenance db before connecting again.
func OpenDb(dsn string, autoCreate bool) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := connect(ctx, dsn)
	if err != nil && autoCreate && hasErrorCode(err, codeUndefinedDatabase) {
		if err := createDb(ctx, dsn); err != nil {
			return nil, fmt.Errorf("failed to create postgres db: %w", err)
		}
		db, err = connect(ctx, dsn)
	}
	if err != nil {
		return nil, fmt.Errorf("unable to establish connection with db: %w", err)
	}
	return db, nil
}

// connect pings the db since sql.Open only validates its arguments.
func connect(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		//nolint:all
		db.Close()
		return nil, err
	}
	return db, nil
}

func createDb(ctx context.Context, dsn string) error {
	rootDsn, dbName, err := splitDsn(dsn)
	if err != nil {
		return err
	}

	rootDb, err := sql.Open(driverName, rootDsn)
	if err != nil {
		return err
	}
	//nolint:all
	defer rootDb.Close()

	log.Infof("postgres db %s does not exist, creating it", dbName)
	_, err = rootDb.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(dbName))
	return err
}

// splitDsn returns the dsn pointed at the maintenance db, together with the name of the
// db selected by the given one. Both URL and key=value dsn are accepted.
func splitDsn(dsn string) (string, string, error) {
	conninfo := dsn
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		parsed, err := pq.ParseURL(dsn)
		if err != nil {
			return "", "", fmt.Errorf("invalid dsn: %w", err)
		}
		conninfo = parsed
	}

	dbName := ""
	fields := strings.Fields(conninfo)
	for i, field := range fields {
		value, ok := strings.CutPrefix(field, "dbname=")
		if !ok {
			continue
		}
		dbName = strings.Trim(value, "'")
		fields[i] = fmt.Sprintf("dbname='%s'", maintenanceDb)
	}
	if dbName == "" {
		return "", "", fmt.Errorf("dsn does not select any db")
	}
	return strings.Join(fields, " "), dbName, nil
}

// execTx runs txBody in a transaction, retrying it when postgres aborts it because of a
// concurrent one.
func execTx(
	ctx context.Context, db *sql.DB, txBody func(*queries.Queries) error,
) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		if err = runTx(ctx, db, txBody); err == nil || !isConflictError(err) {
			return err
		}
		log.WithError(err).Debugf("pgdb: tx conflict, attempt %d/%d", attempt, maxTxAttempts)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * txRetryDelay):
		}
	}
	return err
}

func runTx(ctx context.Context, db *sql.DB, txBody func(*queries.Queries) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := txBody(queries.New(db).WithTx(tx)); err != nil {
		//nolint:all
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		if isConflictError(err) {
			return err
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func hasErrorCode(err error, codes ...string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	for _, code := range codes {
		if string(pqErr.Code) == code {
			return true
		}
	}
	return false
}

// isConflictError reports whether the tx failed because of a concurrent one and can be retried.
func isConflictError(err error) bool {
	return hasErrorCode(err, codeSerializationFailure, codeDeadlockDetected)
}

// isUniqueViolation reports whether err is a unique_violation (23505).
func isUniqueViolation(err error) bool {
	return hasErrorCode(err, codeUniqueViolation)
}

func openConfig(name string, config ...interface{}) (*sql.DB, error) {
	if len(config) != 1 {
		return nil, fmt.Errorf("invalid config")
	}
	db, ok := config[0].(*sql.DB)
	if !ok {
		return nil, fmt.Errorf(
			"cannot open %s repository: invalid config, expected db at 0", name,
		)
	}
	return db, nil
}
