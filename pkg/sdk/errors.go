package indexsync

import "github.com/kailas-cloud/indexsync/internal/domain"

// Sentinel errors re-exported from the domain layer.
// Use errors.Is() to check.
var (
	ErrNotFound           = domain.ErrNotFound
	ErrConfig             = domain.ErrConfig
	ErrSettingsConflict   = domain.ErrSettingsConflict
	ErrFieldNameCollision = domain.ErrFieldNameCollision
	ErrUnknownIndex       = domain.ErrUnknownIndex
	ErrUnknownType        = domain.ErrUnknownType
	ErrNotIndexed         = domain.ErrNotIndexed
	ErrUnknownField       = domain.ErrUnknownField
	ErrOutOfRange         = domain.ErrOutOfRange
	ErrEntityMissing      = domain.ErrEntityMissing
	ErrReindexInProgress  = domain.ErrReindexInProgress
)

// UnknownIndexError names the requested indexes that have no registered type.
type UnknownIndexError = domain.UnknownIndexError
