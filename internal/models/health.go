package models

const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"

	DatabaseConnected = "connected"
)

// ChunkCounts holds total and embedded chunk counts per collection.
type ChunkCounts struct {
	DiscourseChunks     int64 `json:"discourse_chunks"`
	MarkdownChunks      int64 `json:"markdown_chunks"`
	DiscourseEmbeddings int64 `json:"discourse_embeddings"`
	MarkdownEmbeddings  int64 `json:"markdown_embeddings"`
}

// HealthReport is the result of a readiness check.
// Counts is only set on a healthy report; when nil its fields are left out of the JSON.
type HealthReport struct {
	Status    string `json:"status"`
	Database  string `json:"database,omitempty"`
	APIKeySet bool   `json:"api_key_set"`
	*ChunkCounts
	Error string `json:"error,omitempty"`
}

// Healthy reports whether the check succeeded.
func (r *HealthReport) Healthy() bool {
	return r.Status == StatusHealthy
}
