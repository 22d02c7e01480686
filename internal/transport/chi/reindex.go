package chi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"maps"
	"net/http"
	"slices"
	"strings"

	"github.com/oapi-codegen/runtime"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain"
	reindexuc "github.com/kailas-cloud/indexsync/internal/usecase/reindex"
)

// Reindex handles POST /v1/reindex. Concurrent requests for the same index set
// share one rebuild, which outlives the client that started it.
func (s *Server) Reindex(w http.ResponseWriter, r *http.Request) {
	var req ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	names := slices.Clone(req.Indexes)
	slices.Sort(names)
	names = slices.Compact(names)

	v, err, shared := s.reindexGroup.Do(strings.Join(names, ","), func() (any, error) {
		return s.reindexer.Reindex(context.WithoutCancel(r.Context()), names)
	})
	// A report with outcomes carries per-index failures; err alone means nothing ran.
	report, _ := v.(reindexuc.Report)
	if err != nil && len(report.Outcomes) == 0 {
		s.handleDomainError(w, err)
		return
	}
	if shared {
		s.logger.Info("reindex shared with a concurrent request", zap.Strings("indexes", names))
	}

	resp := ReindexResponse{Indexes: make([]ReindexOutcome, 0, len(report.Outcomes))}
	conflicts, failures := 0, 0
	for _, o := range report.Outcomes {
		out := ReindexOutcome{
			Index:      o.Index,
			Generation: o.Generation,
			Retired:    o.Retired,
			Documents:  o.Documents,
			DurationMs: o.Duration.Milliseconds(),
		}
		if o.Err != nil {
			failures++
			out.Error = safeDomainMessage(o.Err)
			if errors.Is(o.Err, domain.ErrReindexInProgress) {
				conflicts++
			}
		}
		resp.Indexes = append(resp.Indexes, out)
	}

	status := http.StatusOK
	switch {
	case failures == 0:
	case conflicts == failures:
		status = http.StatusConflict
	default:
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, resp)
}

// ListIndexes handles GET /v1/indexes.
func (s *Server) ListIndexes(w http.ResponseWriter, r *http.Request) {
	infos, err := s.indexes.ListIndexes(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, IndexListResponse{Items: indexItems(infos)})
}

func indexItems(infos map[string]backend.IndexInfo) []IndexItem {
	items := make([]IndexItem, 0, len(infos))
	for _, name := range slices.Sorted(maps.Keys(infos)) {
		info := infos[name]
		items = append(items, IndexItem{Name: name, DocCount: info.DocCount, Aliases: info.Aliases})
	}
	return items
}

// ShowConfiguration handles GET /v1/indexes/configuration?index=&mapping=.
func (s *Server) ShowConfiguration(w http.ResponseWriter, r *http.Request) {
	var (
		names   *[]string
		mapping *bool
	)
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, false, "index", query, &names); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "mapping", query, &mapping); err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	var selected []string
	if names != nil {
		selected = *names
	}
	configs, err := s.reindexer.ShowConfiguration(r.Context(), selected, mapping != nil && *mapping)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	out := make([]IndexConfigurationResponse, 0, len(configs))
	for _, ic := range configs {
		resp := IndexConfigurationResponse{Index: ic.Index, Settings: ic.Settings}
		for _, tc := range ic.Types {
			resp.Types = append(resp.Types, TypeConfigurationResponse{
				Type:    tc.Type,
				DocType: tc.DocType,
				Fields:  tc.Fields,
				Mapping: tc.Mapping,
			})
		}
		out = append(out, resp)
	}
	writeJSON(w, http.StatusOK, out)
}
