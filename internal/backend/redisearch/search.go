package redisearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/db"
)

var returnFields = []string{typeField, keyField, docField}

// Execute runs one FT.SEARCH window against the index or alias named in spec.
func (c *Client) Execute(ctx context.Context, spec backend.QuerySpec) (*backend.Results, error) {
	query := buildQuery(spec)

	res, err := c.store.Search(ctx, &db.TextQuery{
		IndexName:    c.name(spec.Index),
		Query:        query,
		Offset:       spec.Start,
		Limit:        spec.Count,
		WithScores:   true,
		ReturnFields: returnFields,
	})
	if errors.Is(err, db.ErrIndexNotFound) {
		return backend.Empty(spec.Start), nil
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", spec.Index, err)
	}

	out := &backend.Results{
		Total: res.Total,
		Start: spec.Start,
		Hits:  make([]backend.Hit, 0, len(res.Entries)),
		Extra: map[string]any{"query": query},
	}
	for _, e := range res.Entries {
		out.Hits = append(out.Hits, c.hit(e))
	}
	out.MoreMatches = spec.Start+len(out.Hits) < res.Total
	return out, nil
}

func (c *Client) hit(e db.SearchEntry) backend.Hit {
	h := backend.Hit{
		ID:    e.Fields[keyField],
		Type:  e.Fields[typeField],
		Score: e.Score,
	}
	if h.ID == "" {
		// "<prefix><physical>:<composite id>"
		rest, _ := c.strip(e.Key)
		_, h.ID, _ = strings.Cut(rest, ":")
	}

	var payload map[string][]string
	if raw := e.Fields[docField]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &payload); err != nil {
			c.logger.Warn("undecodable document payload", zap.String("key", e.Key), zap.Error(err))
		}
	}
	h.Fields = make(map[string]any, len(payload))
	for k, v := range payload {
		h.Fields[k] = v
	}
	return h
}

// buildQuery renders the type restriction and free text in query dialect 2.
func buildQuery(spec backend.QuerySpec) string {
	var parts []string

	if len(spec.Types) > 0 {
		tags := make([]string, len(spec.Types))
		for i, t := range spec.Types {
			tags[i] = db.EscapeTag(t)
		}
		parts = append(parts, "@"+typeField+":{"+strings.Join(tags, " | ")+"}")
	}

	if text := strings.TrimSpace(spec.Text); text != "" {
		escaped := db.EscapeText(text)
		if spec.Field != "" {
			parts = append(parts, "@"+db.EscapeField(spec.Field)+":("+escaped+")")
		} else {
			parts = append(parts, escaped)
		}
	}

	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}
