package models

import (
	"context"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		// Report fields by their JSON names.
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// QueryRequest is a question sent to the answer endpoint.
type QueryRequest struct {
	Question string `json:"question" validate:"required"`
	// Image is an optional base64-encoded attachment.
	Image string `json:"image,omitempty" validate:"omitempty,base64"`
}

// Validate checks the request against its struct tags.
// Failures are returned as validator.ValidationErrors.
func (q *QueryRequest) Validate(ctx context.Context) error {
	return validatorInstance().StructCtx(ctx, q)
}

// Link is a reference to source material supporting an answer.
type Link struct {
	URL  string `json:"url"`
	Text string `json:"text"`
}

// QueryResponse is the answer to a QueryRequest. Links is never nil so it encodes as [].
type QueryResponse struct {
	Answer string `json:"answer"`
	Links  []Link `json:"links"`
}

// FieldError describes one failed validation rule.
type FieldError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Message string `json:"message"`
}

// ErrorResponse is returned for requests that fail to decode or validate.
type ErrorResponse struct {
	Error   string       `json:"error"`
	Details []FieldError `json:"details,omitempty"`
}
