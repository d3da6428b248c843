// Package answer produces answers to knowledge-base questions.
package answer

import (
	"context"
	"fmt"

	"github.com/hyperjump/kbserve/internal/models"
)

// Answerer answers a validated question.
type Answerer interface {
	Answer(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error)
}

// EchoAnswerer acknowledges the question without consulting the knowledge base.
type EchoAnswerer struct{}

// NewEchoAnswerer returns an EchoAnswerer.
func NewEchoAnswerer() *EchoAnswerer {
	return &EchoAnswerer{}
}

// Answer echoes the question back with an empty link list.
func (EchoAnswerer) Answer(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &models.QueryResponse{
		Answer: fmt.Sprintf("Received question: %s", req.Question),
		Links:  []models.Link{},
	}, nil
}
