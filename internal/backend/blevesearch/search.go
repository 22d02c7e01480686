package blevesearch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/search/query"
	"go.uber.org/zap"

	"github.com/kailas-cloud/indexsync/internal/backend"
	"github.com/kailas-cloud/indexsync/internal/domain/document"
)

// Execute runs one window against the index or alias named in spec.
func (c *Client) Execute(ctx context.Context, spec backend.QuerySpec) (*backend.Results, error) {
	idx, err := c.searchable(spec.Index)
	if err != nil {
		return nil, err
	}
	if idx == nil {
		return backend.Empty(spec.Start), nil
	}

	req := bleve.NewSearchRequestOptions(buildQuery(spec), spec.Count, spec.Start, false)
	req.Fields = []string{typeField, docField}

	res, err := idx.SearchInContext(ctx, req)
	if errors.Is(err, bleve.ErrorAliasEmpty) {
		return backend.Empty(spec.Start), nil
	}
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", spec.Index, err)
	}

	out := &backend.Results{
		Total: int(res.Total), //nolint:gosec // hit totals fit int
		Start: spec.Start,
		Hits:  make([]backend.Hit, 0, len(res.Hits)),
		Extra: map[string]any{
			"took":      res.Took.String(),
			"max_score": res.MaxScore,
		},
	}
	for _, m := range res.Hits {
		h := backend.Hit{ID: m.ID, Score: m.Score, Fields: map[string]any{}}
		if t, ok := m.Fields[typeField].(string); ok {
			h.Type = t
		} else if tag, _, err := document.ParseKey(m.ID); err == nil {
			h.Type = tag
		}
		if raw, ok := m.Fields[docField].(string); ok && raw != "" {
			var payload map[string][]string
			if err := json.Unmarshal([]byte(raw), &payload); err != nil {
				c.logger.Warn("undecodable document payload", zap.String("id", m.ID), zap.Error(err))
			}
			for k, v := range payload {
				h.Fields[k] = v
			}
		}
		out.Hits = append(out.Hits, h)
	}
	out.MoreMatches = spec.Start+len(out.Hits) < out.Total
	return out, nil
}

// buildQuery combines the type restriction with match queries over the user input.
func buildQuery(spec backend.QuerySpec) query.Query {
	var must []query.Query

	if len(spec.Types) > 0 {
		types := make([]query.Query, len(spec.Types))
		for i, t := range spec.Types {
			tq := bleve.NewTermQuery(t)
			tq.SetField(typeField)
			types[i] = tq
		}
		must = append(must, bleve.NewDisjunctionQuery(types...))
	}

	if text := strings.TrimSpace(spec.Text); text != "" {
		mq := bleve.NewMatchQuery(text)
		if spec.Field != "" {
			mq.SetField(spec.Field)
		}
		must = append(must, mq)
	}

	switch len(must) {
	case 0:
		return bleve.NewMatchAllQuery()
	case 1:
		return must[0]
	default:
		return bleve.NewConjunctionQuery(must...)
	}
}
