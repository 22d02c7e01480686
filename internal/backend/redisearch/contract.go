package redisearch

import "github.com/kailas-cloud/indexsync/internal/db"

// Store is the subset of db.Store the backend drives.
type Store interface {
	db.Pinger
	db.HashStore
	db.IndexManager
	db.AliasManager
	db.Searcher
	Close()
}
