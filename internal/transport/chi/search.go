package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"

	"github.com/kailas-cloud/indexsync/internal/domain/entity"
	searchuc "github.com/kailas-cloud/indexsync/internal/usecase/search"
)

// SearchParams are the query parameters of GET /v1/search/{type}.
type SearchParams struct {
	Q     string
	Field *string
	Start *int
	Count *int
}

func bindSearchParams(r *http.Request) (SearchParams, error) {
	var p SearchParams
	query := r.URL.Query()
	if err := runtime.BindQueryParameter("form", true, true, "q", query, &p.Q); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "field", query, &p.Field); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "start", query, &p.Start); err != nil {
		return p, err
	}
	if err := runtime.BindQueryParameter("form", true, false, "count", query, &p.Count); err != nil {
		return p, err
	}
	return p, nil
}

// Search handles GET /v1/search/{type}.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "type")
	params, err := bindSearchParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, err.Error())
		return
	}

	start := derefInt(params.Start, 0)
	count := derefInt(params.Count, 10)
	if start < 0 || count <= 0 {
		writeError(w, http.StatusBadRequest, ErrorCodeBadRequest, "start must be >= 0 and count > 0")
		return
	}
	count = min(count, s.opts.MaxCount)

	var rs *searchuc.ResultSet
	if params.Field != nil && *params.Field != "" {
		rs, err = s.search.SearchField(tag, *params.Field, params.Q)
	} else {
		rs, err = s.search.Search(tag, params.Q)
	}
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	items, err := rs.Window(r.Context(), start, start+count)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	total, err := rs.Len(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := SearchResponse{Total: total, Start: start, Items: make([]SearchItem, 0, len(items))}
	for _, it := range items {
		resp.Items = append(resp.Items, searchItem(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

func searchItem(it searchuc.Item) SearchItem {
	out := SearchItem{Rank: it.Rank, ID: it.Hit.ID, Score: it.Hit.Score}
	if it.Hole() {
		out.Missing = true
		return out
	}
	out.Key = it.Entity.Key()
	if rec, ok := it.Entity.(*entity.Record); ok {
		out.Attributes = rec.Values()
	}
	return out
}

func derefInt(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
