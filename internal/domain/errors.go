package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrConfig signals an invalid engine configuration. Never retried.
	ErrConfig = errors.New("configuration error")
	// ErrSettingsConflict signals differing index settings between descriptors sharing an index.
	ErrSettingsConflict = fmt.Errorf("%w: conflicting index settings", ErrConfig)
	// ErrFieldNameCollision signals two fields of one descriptor resolving to the same index field name.
	ErrFieldNameCollision = fmt.Errorf("%w: field name collision", ErrConfig)
	// ErrUnknownIndex signals an index name with no registered descriptor.
	ErrUnknownIndex = errors.New("unknown index")
	// ErrUnknownType signals an entity type tag with no registered descriptor.
	ErrUnknownType = errors.New("unknown entity type")
	// ErrNotIndexed signals an entity type whose descriptor has no target index.
	ErrNotIndexed = errors.New("entity type is not indexed")
	// ErrUnknownField signals a field name the type's descriptor does not index.
	ErrUnknownField = errors.New("unknown field")
	// ErrOutOfRange signals a result rank beyond the total match count.
	ErrOutOfRange = errors.New("rank out of range")
	// ErrEntityMissing signals a search hit whose entity no longer exists in the system of record.
	ErrEntityMissing = errors.New("entity missing for search hit")
	// ErrReindexInProgress signals that another rebuild holds the index lock.
	ErrReindexInProgress = errors.New("reindex already in progress")
)

// SettingsConflictError reports the dotted path of a conflicting settings key.
type SettingsConflictError struct {
	Path  string
	Left  any
	Right any
}

func (e *SettingsConflictError) Error() string {
	return fmt.Sprintf("%s at %s: %v != %v", ErrSettingsConflict.Error(), e.Path, e.Left, e.Right)
}

func (e *SettingsConflictError) Unwrap() error { return ErrSettingsConflict }

// UnknownIndexError names the indexes that have no registered descriptor.
type UnknownIndexError struct {
	Names []string
}

func (e *UnknownIndexError) Error() string {
	return fmt.Sprintf("%s: %v", ErrUnknownIndex.Error(), e.Names)
}

func (e *UnknownIndexError) Unwrap() error { return ErrUnknownIndex }
