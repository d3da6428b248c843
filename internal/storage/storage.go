// Package storage persists knowledge-base chunks in SQLite.
package storage

import (
	"errors"

	"github.com/hyperjump/kbserve/internal/models"
)

var (
	// ErrUnknownCollection is returned for a collection outside models.Collections.
	ErrUnknownCollection = errors.New("unknown collection")
	// ErrTableNotFound is returned when an expected chunk table is absent.
	ErrTableNotFound = errors.New("not found")
	// ErrChunkNotFound is returned by GetChunk for a missing id.
	ErrChunkNotFound = errors.New("chunk not found")
)

// Stats holds the four counts reported by a readiness check.
type Stats = models.ChunkCounts
