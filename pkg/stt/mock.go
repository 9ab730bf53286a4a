package stt

import (
	"context"
	"sync"

	"github.com/firstlinehq/go-dispatch/pkg/protocol"
)

// MockProvider implements Provider for testing.
type MockProvider struct {
	// OpenFunc is called when Open is invoked. If nil, returns a MockStream.
	OpenFunc func(ctx context.Context, callID string, format protocol.AudioFormat) (Stream, error)

	// HealthFunc is called when Health is invoked. If nil, returns nil.
	HealthFunc func(ctx context.Context) error

	mu      sync.Mutex
	streams []*MockStream
}

// Open calls OpenFunc, or returns a fresh MockStream.
func (m *MockProvider) Open(ctx context.Context, callID string, format protocol.AudioFormat) (Stream, error) {
	if m.OpenFunc != nil {
		return m.OpenFunc(ctx, callID, format)
	}
	s := &MockStream{CallID: callID}
	m.mu.Lock()
	m.streams = append(m.streams, s)
	m.mu.Unlock()
	return s, nil
}

// Health calls HealthFunc.
func (m *MockProvider) Health(ctx context.Context) error {
	if m.HealthFunc != nil {
		return m.HealthFunc(ctx)
	}
	return nil
}

// Close is a no-op.
func (m *MockProvider) Close() error { return nil }

// Streams returns all streams opened so far.
func (m *MockProvider) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// MockStream implements Stream for testing. Pushed audio is recorded;
// recognition results are injected with Emit.
type MockStream struct {
	CallID string

	mu       sync.Mutex
	pushed   [][]byte
	closed   bool
	onResult func(Result)
	onError  func(err error)
}

// Push records the audio frame.
func (s *MockStream) Push(audio []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosed
	}
	buf := make([]byte, len(audio))
	copy(buf, audio)
	s.pushed = append(s.pushed, buf)
	return nil
}

// OnResult sets the recognition callback.
func (s *MockStream) OnResult(fn func(Result)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

// OnError sets the error callback.
func (s *MockStream) OnError(fn func(err error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onError = fn
}

// Close marks the stream closed.
func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Emit delivers a recognition result to the registered callback.
func (s *MockStream) Emit(r Result) {
	s.mu.Lock()
	fn := s.onResult
	s.mu.Unlock()
	if fn != nil {
		fn(r)
	}
}

// Pushed returns the audio frames pushed so far.
func (s *MockStream) Pushed() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.pushed))
	copy(out, s.pushed)
	return out
}

// Closed reports whether Close was called.
func (s *MockStream) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Verify implementations at compile time.
var (
	_ Provider = (*MockProvider)(nil)
	_ Stream   = (*MockStream)(nil)
)
