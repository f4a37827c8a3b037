package provider

import (
	"net/http"

	"pulse/model"
)

// Result is the normalized outcome of a successful dispatch, independent of
// which wire shape produced it.
type Result struct {
	Content    string
	TokensUsed int
	Model      string
}

// WireRequest is a fully translated provider request: the JSON body plus the
// provider-specific authentication and version headers.
type WireRequest struct {
	Body    []byte
	Headers http.Header
}

// Adapter translates between the provider-agnostic conversation window and
// one provider wire dialect. One implementation exists per RequestShape.
type Adapter interface {
	// Build translates the window into a wire request. The secret is placed
	// in the shape's authentication header and appears nowhere else.
	Build(window []model.Message, cfg ProviderConfig, secret string) (*WireRequest, error)

	// Parse reads a 2xx response body into a normalized Result.
	Parse(body []byte) (Result, error)
}

// adapterFor returns the adapter implementation for a request shape.
func adapterFor(shape RequestShape) (Adapter, error) {
	switch shape {
	case ShapeInlineSystem:
		return inlineSystemAdapter{}, nil
	case ShapeSeparatedSystem:
		return separatedSystemAdapter{}, nil
	default:
		return nil, newUnknownProviderError(string(shape))
	}
}
