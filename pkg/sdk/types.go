package indexsync

import (
	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain/descriptor"
	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/registry"
	reindexuc "github.com/kailas-cloud/indexsync/internal/usecase/reindex"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// Entity model.
type (
	// Entity is one instance of a registered entity type.
	Entity = entity.Entity
	// Record is a ready-made Entity backed by a value map and lazy relations.
	Record = entity.Record
	// Resolver loads a relation of a Record on first access.
	Resolver = entity.Resolver
	// Provider is an entity type that declares its own descriptor, see Client.Autodiscover.
	Provider = registry.Provider
)

// Descriptor model.
type (
	Descriptor     = descriptor.Descriptor
	Manager        = descriptor.Manager
	FieldSpec      = descriptor.FieldSpec
	Source         = descriptor.Source
	CascadeRule    = descriptor.CascadeRule
	CascadeResult  = descriptor.CascadeResult
	Converters     = descriptor.Converters
	ReindexOutcome = reindexuc.Outcome
	ReindexReport  = reindexuc.Report
)

// Search model.
type (
	Query     = backend.Query
	ResultSet = searchuc.ResultSet
	Item      = searchuc.Item
	// Backend is a search engine connection, see WithBackend.
	Backend = backend.Client
)

// Descriptor builders.
var (
	NewRecord    = entity.NewRecord
	Field        = descriptor.Field
	Attr         = descriptor.Attr
	Path         = descriptor.Path
	Func         = descriptor.Func
	CascadeAttr  = descriptor.CascadeAttr
	CascadeFunc  = descriptor.CascadeFunc
	CascadeNone  = descriptor.None
	CascadeOne   = descriptor.One
	CascadeMany  = descriptor.Many
	CascadeValue = descriptor.Normalize
)
