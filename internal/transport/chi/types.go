package chi

// ErrorCode is a machine-readable error kind.
type ErrorCode string

// Error codes returned by the API.
const (
	ErrorCodeBadRequest       ErrorCode = "bad_request"
	ErrorCodeUnauthorized     ErrorCode = "unauthorized"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeUnknownType      ErrorCode = "unknown_type"
	ErrorCodeUnknownIndex     ErrorCode = "unknown_index"
	ErrorCodeNotIndexed       ErrorCode = "not_indexed"
	ErrorCodeUnknownField     ErrorCode = "unknown_field"
	ErrorCodeSnapshotMissing  ErrorCode = "snapshot_missing"
	ErrorCodeReindexConflict  ErrorCode = "reindex_in_progress"
	ErrorCodeReindexFailed    ErrorCode = "reindex_failed"
	ErrorCodeConfiguration    ErrorCode = "configuration_error"
	ErrorCodeInternalError    ErrorCode = "internal_error"
)

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// HookResponse acknowledges a mutation hook.
type HookResponse struct {
	Type   string `json:"type"`
	Key    string `json:"key"`
	Status string `json:"status"`
}

// ReindexRequest selects the indexes to rebuild. Empty means all.
type ReindexRequest struct {
	Indexes []string `json:"indexes"`
}

// ReindexOutcome is the result of one index rebuild.
type ReindexOutcome struct {
	Index      string   `json:"index"`
	Generation string   `json:"generation,omitempty"`
	Retired    []string `json:"retired,omitempty"`
	Documents  int      `json:"documents"`
	DurationMs int64    `json:"duration_ms"`
	Error      string   `json:"error,omitempty"`
}

// ReindexResponse holds one outcome per index.
type ReindexResponse struct {
	Indexes []ReindexOutcome `json:"indexes"`
}

// IndexItem describes one physical index.
type IndexItem struct {
	Name     string   `json:"name"`
	DocCount int64    `json:"doc_count"`
	Aliases  []string `json:"aliases,omitempty"`
}

// IndexListResponse lists physical indexes.
type IndexListResponse struct {
	Items []IndexItem `json:"items"`
}

// TypeConfigurationResponse is the configuration of one entity type.
type TypeConfigurationResponse struct {
	Type    string                    `json:"type"`
	DocType string                    `json:"doc_type"`
	Fields  map[string]map[string]any `json:"fields"`
	Mapping map[string]map[string]any `json:"mapping,omitempty"`
}

// IndexConfigurationResponse is the configuration of one logical index.
type IndexConfigurationResponse struct {
	Index    string                      `json:"index"`
	Settings map[string]any              `json:"settings"`
	Types    []TypeConfigurationResponse `json:"types"`
}

// SearchItem is one materialized rank.
type SearchItem struct {
	Rank       int            `json:"rank"`
	ID         string         `json:"id"`
	Score      float64        `json:"score"`
	Key        string         `json:"key,omitempty"`
	Missing    bool           `json:"missing,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// SearchResponse is one window of search results.
type SearchResponse struct {
	Total int          `json:"total"`
	Start int          `json:"start"`
	Items []SearchItem `json:"items"`
}

// HealthResponse reports component health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
