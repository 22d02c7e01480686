package chi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	"github.com/kailas-cloud/indexsync/internal/logger"
)

// snapshotStore keeps entities captured by pre-delete until post-delete consumes them.
type snapshotStore struct {
	lru *expirable.LRU[string, entity.Entity]
}

func newSnapshotStore(capacity int, ttl time.Duration) *snapshotStore {
	return &snapshotStore{lru: expirable.NewLRU[string, entity.Entity](capacity, nil, ttl)}
}

func snapshotKey(tag, key string) string { return tag + "/" + key }

func (s *snapshotStore) put(e entity.Entity) {
	s.lru.Add(snapshotKey(e.TypeTag(), e.Key()), e)
}

// take removes and returns the snapshot.
func (s *snapshotStore) take(tag, key string) (entity.Entity, bool) {
	k := snapshotKey(tag, key)
	e, ok := s.lru.Get(k)
	if ok {
		s.lru.Remove(k)
	}
	return e, ok
}

// capture resolves every relation so the copy stays usable once the row is gone.
func capture(ctx context.Context, e entity.Entity) entity.Entity {
	rec, ok := e.(*entity.Record)
	if !ok {
		return e
	}
	for _, name := range rec.Relations() {
		if _, err := rec.Attr(name); err != nil {
			logger.FromContext(ctx).Debug("relation not captured",
				zap.String("type", rec.TypeTag()),
				zap.String("key", rec.Key()),
				zap.String("relation", name),
				zap.Error(err),
			)
		}
	}
	return rec.Snapshot()
}

// SaveHook handles POST /v1/hooks/{type}/{key}/save.
func (s *Server) SaveHook(w http.ResponseWriter, r *http.Request) {
	tag, key := chi.URLParam(r, "type"), chi.URLParam(r, "key")
	e, err := s.entities.Get(r.Context(), tag, key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if err := s.hooks.OnCreateOrUpdate(r.Context(), e); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HookResponse{Type: tag, Key: key, Status: "indexed"})
}

// PreDeleteHook handles POST /v1/hooks/{type}/{key}/pre-delete.
// The entity is snapshotted for the matching post-delete call.
func (s *Server) PreDeleteHook(w http.ResponseWriter, r *http.Request) {
	tag, key := chi.URLParam(r, "type"), chi.URLParam(r, "key")
	e, err := s.entities.Get(r.Context(), tag, key)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	snapshot := capture(r.Context(), e)
	if err := s.hooks.OnPreDelete(r.Context(), e); err != nil {
		s.handleDomainError(w, err)
		return
	}
	s.snapshots.put(snapshot)
	writeJSON(w, http.StatusOK, HookResponse{Type: tag, Key: key, Status: "deleted"})
}

// PostDeleteHook handles POST /v1/hooks/{type}/{key}/post-delete.
func (s *Server) PostDeleteHook(w http.ResponseWriter, r *http.Request) {
	tag, key := chi.URLParam(r, "type"), chi.URLParam(r, "key")
	snapshot, ok := s.snapshots.take(tag, key)
	if !ok {
		writeError(w, http.StatusNotFound, ErrorCodeSnapshotMissing, "no pre-delete snapshot for "+snapshotKey(tag, key))
		return
	}
	if err := s.hooks.OnPostDelete(r.Context(), snapshot); err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HookResponse{Type: tag, Key: key, Status: "cascaded"})
}
