// Package webclient is the transport used by the backend API client. Backends
// are registered by name and chosen through Config.
package webclient

import "context"

// WebClient sends one request and returns the fully read response. A non-2xx
// status is not an error at this layer.
type WebClient interface {
	Do(ctx context.Context, req *Request) (*Response, error)

	Close() error
}
