package extract

import (
	"context"
	"sync"

	"github.com/firstlinehq/go-dispatch/pkg/incident"
)

// Mock implements Extractor for testing.
type Mock struct {
	// ExtractFunc is called when Extract is invoked.
	// If nil, returns an empty update.
	ExtractFunc func(ctx context.Context, req *Request) (*incident.Update, error)

	mu       sync.Mutex
	requests []*Request
}

// Extract records the request and calls ExtractFunc.
func (m *Mock) Extract(ctx context.Context, req *Request) (*incident.Update, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.ExtractFunc != nil {
		return m.ExtractFunc(ctx, req)
	}
	return &incident.Update{}, nil
}

// Requests returns all recorded extraction requests.
func (m *Mock) Requests() []*Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Request, len(m.requests))
	copy(out, m.requests)
	return out
}

// CallCount returns how many extractions were requested.
func (m *Mock) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Verify Mock implements Extractor at compile time.
var _ Extractor = (*Mock)(nil)
