// Package models defines core data structures for knowledge-base chunks, queries, and health reports.
package models

import (
	"fmt"
	"time"
)

// Collection names the origin of a chunk. Each collection is stored in its own table.
type Collection string

const (
	// CollectionDiscourse holds chunks of forum posts.
	CollectionDiscourse Collection = "discourse"
	// CollectionMarkdown holds chunks of course documents.
	CollectionMarkdown Collection = "markdown"
)

// Collections lists every known collection in reporting order.
var Collections = []Collection{CollectionDiscourse, CollectionMarkdown}

// Table returns the table backing the collection.
func (c Collection) Table() string {
	return string(c) + "_chunks"
}

// Valid reports whether c is one of the known collections.
func (c Collection) Valid() bool {
	return c == CollectionDiscourse || c == CollectionMarkdown
}

// ParseCollection converts a name into a Collection.
func ParseCollection(name string) (Collection, error) {
	c := Collection(name)
	if !c.Valid() {
		return "", fmt.Errorf("unknown collection: %q", name)
	}
	return c, nil
}

// Chunk is a unit of ingested content. Embedding is nil until an embedding step has run.
type Chunk struct {
	ID         string     `json:"id"`
	Collection Collection `json:"collection"`
	Title      string     `json:"title"`
	URL        string     `json:"url"`
	ChunkIndex int        `json:"chunk_index"`
	Content    string     `json:"content"`
	Embedding  []float32  `json:"-"`
	CreatedAt  time.Time  `json:"created_at"`
}

// HasEmbedding reports whether the chunk carries a complete vector.
func (c *Chunk) HasEmbedding() bool {
	return len(c.Embedding) > 0
}
