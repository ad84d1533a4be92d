// Package dberrors defines the sentinel error kinds shared by every layer
// of minisql: pager, index, table, database, and the SQL executor.
package dberrors

import "errors"

// Sentinel error kinds. Wrap with fmt.Errorf("...: %w", ErrXxx) at the
// point of failure so callers can still errors.Is against the kind.
var (
	// ErrIO covers read/write/seek failures against the underlying file.
	ErrIO = errors.New("minisql: io error")

	// ErrFormat covers a bad magic, corrupt header, or row-size mismatch.
	ErrFormat = errors.New("minisql: format error")

	// ErrSchema covers unknown/duplicate columns and bad type declarations.
	ErrSchema = errors.New("minisql: schema error")

	// ErrType covers a value tag that mismatches a column's type with no
	// coercion available.
	ErrType = errors.New("minisql: type error")

	// ErrSyntax covers SQL statements the parser cannot make sense of.
	ErrSyntax = errors.New("minisql: syntax error")

	// ErrNoDatabaseOpen is returned by any statement other than CREATE
	// DATABASE/USE when the executor session is Idle.
	ErrNoDatabaseOpen = errors.New("minisql: no database open")

	// ErrNotFound covers a missing table, index, or row.
	ErrNotFound = errors.New("minisql: not found")

	// ErrExists covers CREATE DATABASE/CREATE TABLE targeting a path that
	// is already occupied.
	ErrExists = errors.New("minisql: already exists")
)
