package errors

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

// Postgres SQLSTATE codes the API distinguishes.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
	pgSerializationFail   = "40001"
	pgDeadlockDetected    = "40P01"
)

type ErrorDump struct {
	TopMessage string   `json:"top_message"`
	Code       Code     `json:"code,omitempty"`
	Chain      []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGColumn     string `json:"pg_column,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

// Dump flattens err into loggable fields, including the driver diagnostics
// when a Postgres error sits anywhere in the chain.
func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{TopMessage: err.Error()}
	if te := As(err); te != nil {
		d.Code = te.Code()
	}
	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}
	if pg, ok := postgresDiag(err); ok {
		d.PGCode = pg.PGCode
		d.PGConstraint = pg.PGConstraint
		d.PGTable = pg.PGTable
		d.PGColumn = pg.PGColumn
		d.PGDetail = pg.PGDetail
		d.PGMessage = pg.PGMessage
	}
	return d
}

// Classify turns database constraint failures into coded errors. Errors that
// already carry a code, and errors it does not recognise, are returned as is.
func Classify(err error) error {
	if err == nil || As(err) != nil {
		return err
	}

	if pg, ok := postgresDiag(err); ok {
		switch pg.PGCode {
		case pgUniqueViolation:
			return Wrap(CodeConflict, err, "record already exists").WithDetails(constraintDetails(pg.PGConstraint))
		case pgCheckViolation:
			return Wrap(CodeStateConflict, err, "change would break a stored invariant").WithDetails(constraintDetails(pg.PGConstraint))
		case pgForeignKeyViolation:
			return Wrap(CodeValidation, err, "referenced record does not exist").WithDetails(constraintDetails(pg.PGConstraint))
		case pgSerializationFail, pgDeadlockDetected:
			return Wrap(CodeConflict, err, "concurrent update, retry the request")
		}
		return err
	}

	// sqlite reports constraints only through the message text.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return Wrap(CodeConflict, err, "record already exists")
	case strings.Contains(msg, "CHECK constraint failed"):
		return Wrap(CodeStateConflict, err, "change would break a stored invariant")
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return Wrap(CodeValidation, err, "referenced record does not exist")
	}
	return err
}

func constraintDetails(name string) any {
	if name == "" {
		return nil
	}
	return map[string]any{"constraint": name}
}

func postgresDiag(err error) (ErrorDump, bool) {
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return ErrorDump{
			PGCode:       pgxErr.Code,
			PGConstraint: pgxErr.ConstraintName,
			PGTable:      pgxErr.TableName,
			PGColumn:     pgxErr.ColumnName,
			PGDetail:     pgxErr.Detail,
			PGMessage:    pgxErr.Message,
		}, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return ErrorDump{
			PGCode:       string(pqErr.Code),
			PGConstraint: pqErr.Constraint,
			PGTable:      pqErr.Table,
			PGColumn:     pqErr.Column,
			PGDetail:     pqErr.Detail,
			PGMessage:    pqErr.Message,
		}, true
	}
	return ErrorDump{}, false
}

// SQLState returns the Postgres error code carried by err, or "".
func SQLState(err error) string {
	pg, _ := postgresDiag(err)
	return pg.PGCode
}

// IsTxConflict reports a serialization failure or deadlock, both of which
// succeed when the whole transaction is replayed.
func IsTxConflict(err error) bool {
	switch SQLState(err) {
	case pgSerializationFail, pgDeadlockDetected:
		return true
	}
	return false
}
