package agent

import (
	"context"
	"sync"
	"sync/atomic"
)

// MockProvider implements Provider for testing.
type MockProvider struct {
	// DialFunc is called when Dial is invoked. If nil, returns a MockPipeline.
	DialFunc func(ctx context.Context, callID string) (Pipeline, error)

	mu        sync.Mutex
	pipelines []*MockPipeline
}

// Dial calls DialFunc, or returns a fresh MockPipeline.
func (m *MockProvider) Dial(ctx context.Context, callID string) (Pipeline, error) {
	if m.DialFunc != nil {
		return m.DialFunc(ctx, callID)
	}
	p := &MockPipeline{CallID: callID}
	m.mu.Lock()
	m.pipelines = append(m.pipelines, p)
	m.mu.Unlock()
	return p, nil
}

// Health reports healthy.
func (m *MockProvider) Health(ctx context.Context) error { return nil }

// Close is a no-op.
func (m *MockProvider) Close() error { return nil }

// Pipelines returns all pipelines dialed so far.
func (m *MockProvider) Pipelines() []*MockPipeline {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockPipeline, len(m.pipelines))
	copy(out, m.pipelines)
	return out
}

// MockPipeline implements Pipeline for testing. Sent audio is recorded;
// agent events are injected with the Emit helpers.
type MockPipeline struct {
	CallID string

	mu           sync.Mutex
	started      bool
	stopped      bool
	sent         [][]byte
	interrupts   atomic.Int64
	onAudioOut   func(audio []byte)
	onTranscript func(text string, final bool)
	onResponse   func(text string, final bool)
	onError      func(err error)
}

// Start marks the pipeline connected.
func (p *MockPipeline) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true
	return nil
}

// Stop marks the pipeline stopped.
func (p *MockPipeline) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started = false
	p.stopped = true
	return nil
}

// IsConnected reports whether Start has been called and Stop has not.
func (p *MockPipeline) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// SendAudio records the frame.
func (p *MockPipeline) SendAudio(audio []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrNotConnected
	}
	buf := make([]byte, len(audio))
	copy(buf, audio)
	p.sent = append(p.sent, buf)
	return nil
}

// Interrupt counts the interruption.
func (p *MockPipeline) Interrupt() error {
	p.interrupts.Add(1)
	return nil
}

// Interrupts returns how many times Interrupt was called.
func (p *MockPipeline) Interrupts() int {
	return int(p.interrupts.Load())
}

// OnAudioOut sets the synthesized audio callback.
func (p *MockPipeline) OnAudioOut(fn func(audio []byte)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAudioOut = fn
}

// OnTranscript sets the caller transcript callback.
func (p *MockPipeline) OnTranscript(fn func(text string, final bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTranscript = fn
}

// OnResponse sets the agent response callback.
func (p *MockPipeline) OnResponse(fn func(text string, final bool)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onResponse = fn
}

// OnError sets the error callback.
func (p *MockPipeline) OnError(fn func(err error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = fn
}

// EmitAudio delivers synthesized audio to the registered callback.
func (p *MockPipeline) EmitAudio(audio []byte) {
	p.mu.Lock()
	fn := p.onAudioOut
	p.mu.Unlock()
	if fn != nil {
		fn(audio)
	}
}

// EmitTranscript delivers a caller transcript event.
func (p *MockPipeline) EmitTranscript(text string, final bool) {
	p.mu.Lock()
	fn := p.onTranscript
	p.mu.Unlock()
	if fn != nil {
		fn(text, final)
	}
}

// EmitResponse delivers an agent response event.
func (p *MockPipeline) EmitResponse(text string, final bool) {
	p.mu.Lock()
	fn := p.onResponse
	p.mu.Unlock()
	if fn != nil {
		fn(text, final)
	}
}

// Sent returns the audio frames sent so far.
func (p *MockPipeline) Sent() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.sent))
	copy(out, p.sent)
	return out
}

// Stopped reports whether Stop was called.
func (p *MockPipeline) Stopped() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stopped
}

// Verify implementations at compile time.
var (
	_ Provider = (*MockProvider)(nil)
	_ Pipeline = (*MockPipeline)(nil)
)
