package catalog

import (
	"errors"
	"fmt"
)

// Code is a stable, API-contract status code (spec section 6/7).
// Messages are diagnostic-only; Code is what callers should branch on.
type Code int

const (
	OK Code = iota
	NotFound
	AlreadyExist
	PendingDelete
	InvalidArgument
	IncompatibleMeta
	CorruptFile
	TransactionFailed
	DBError
)

func (c Code) String() string {
	switch c {
	case OK:
		return "OK"
	case NotFound:
		return "NOT_FOUND"
	case AlreadyExist:
		return "ALREADY_EXIST"
	case PendingDelete:
		return "PENDING_DELETE"
	case InvalidArgument:
		return "INVALID_ARGUMENT"
	case IncompatibleMeta:
		return "INCOMPATIBLE_META"
	case CorruptFile:
		return "CORRUPT_FILE"
	case TransactionFailed:
		return "TRANSACTION_FAILED"
	case DBError:
		return "DB_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Status is the sum-type result carried across the catalog boundary
// in place of C++-style exceptions (Design Note 9.3).
type Status struct {
	Code    Code
	Message string
}

func (s *Status) Error() string {
	return fmt.Sprintf("%s: %s", s.Code, s.Message)
}

// Is reports whether s carries the Code that one of this package's
// sentinel errors stands for, so callers can use errors.Is(err,
// catalog.ErrTablePendingDelete) instead of unpacking the Status and
// comparing Code by hand.
func (s *Status) Is(target error) bool {
	switch target {
	case ErrTableAlreadyExists:
		return s.Code == AlreadyExist
	case ErrTablePendingDelete:
		return s.Code == PendingDelete
	case ErrTableNotFound:
		return s.Code == NotFound
	case ErrIncompatibleMeta:
		return s.Code == IncompatibleMeta
	default:
		return false
	}
}

// newStatus builds a *Status wrapping err's message under code.
func newStatus(code Code, format string, args ...any) *Status {
	return &Status{Code: code, Message: fmt.Sprintf(format, args...)}
}

// AsStatus extracts a *Status from err, if any.
func AsStatus(err error) (*Status, bool) {
	var s *Status
	if errors.As(err, &s) {
		return s, true
	}
	return nil, false
}

// Sentinel errors used with errors.Is at package boundaries that don't
// want to depend on the Status type directly.
var (
	ErrTableAlreadyExists = errors.New("catalog: table already exists")
	ErrTablePendingDelete = errors.New("catalog: table pending delete")
	ErrTableNotFound      = errors.New("catalog: table not found")
	ErrPartitionNested    = errors.New("catalog: partitions cannot own partitions")
	ErrIncompatibleMeta   = errors.New("catalog: incompatible metadata schema")
)
