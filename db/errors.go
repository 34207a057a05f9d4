// Package db opens the slot store and classifies its errors.
package db

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
)

// InvalidKeyError means the store rejected the row itself. Retrying cannot help.
type InvalidKeyError struct {
	Op  string
	Err error
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("%s: invalid key: %v", e.Op, e.Err)
}

func (e *InvalidKeyError) Unwrap() error { return e.Err }

// StoreUnavailableError means the store could not be reached or did not answer.
type StoreUnavailableError struct {
	Op  string
	Err error
}

func (e *StoreUnavailableError) Error() string {
	return fmt.Sprintf("%s: store unavailable: %v", e.Op, e.Err)
}

func (e *StoreUnavailableError) Unwrap() error { return e.Err }

// MySQL server error numbers that describe the data, not the connection.
var mysqlDataErrors = map[uint16]bool{
	1048: true, // column cannot be null
	1062: true, // duplicate entry
	1264: true, // out of range value
	1292: true, // incorrect value
	1364: true, // field has no default
	1366: true, // incorrect string value
	1406: true, // data too long
	1452: true, // foreign key
	3140: true, // invalid JSON
	3819: true, // check constraint
}

var gormDataErrors = []error{
	gorm.ErrDuplicatedKey,
	gorm.ErrForeignKeyViolated,
	gorm.ErrCheckConstraintViolated,
	gorm.ErrPrimaryKeyRequired,
	gorm.ErrInvalidData,
	gorm.ErrInvalidValue,
}

// Classify wraps err as InvalidKeyError or StoreUnavailableError.
// Anything not recognised as a data error is treated as unavailable.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var invalid *InvalidKeyError
	var unavailable *StoreUnavailableError
	if errors.As(err, &invalid) || errors.As(err, &unavailable) {
		return err
	}

	if IsDataError(err) {
		return &InvalidKeyError{Op: op, Err: err}
	}
	return &StoreUnavailableError{Op: op, Err: err}
}

// IsDataError reports whether the store refused the values rather than the request.
func IsDataError(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlDataErrors[myErr.Number]
	}
	// database/sql wraps Valuer failures with %w; a NaN timeline never encodes.
	var unsupported *json.UnsupportedValueError
	if errors.As(err, &unsupported) {
		return true
	}
	for _, target := range gormDataErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	// SQLite reports constraint violations only through the message.
	msg := err.Error()
	return strings.Contains(msg, "constraint failed") || strings.Contains(msg, "datatype mismatch")
}
