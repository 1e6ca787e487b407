package callbacks

import (
	"context"
	"sync"
	"time"

	"github.com/effective-security/mcpbridge/tools"
)

// Invocation is one recorded tool call.
type Invocation struct {
	Tool   string    `json:"tool"`
	Input  string    `json:"input"`
	Output string    `json:"output,omitempty"`
	Error  string    `json:"error,omitempty"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Recorder keeps an in-memory trail of tool invocations, for audit surfaces
// and tests. Inputs are stored redacted.
type Recorder struct {
	mu      sync.Mutex
	pending map[string]time.Time
	history []Invocation
	limit   int
}

var _ tools.Callback = (*Recorder)(nil)

// NewRecorder creates a Recorder keeping at most limit invocations;
// zero means unbounded.
func NewRecorder(limit int) *Recorder {
	return &Recorder{
		pending: make(map[string]time.Time),
		limit:   limit,
	}
}

func (r *Recorder) OnToolStart(_ context.Context, tool tools.ITool, _ string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[tool.Name()] = time.Now()
}

func (r *Recorder) OnToolEnd(_ context.Context, tool tools.ITool, input, output string) {
	r.record(tool.Name(), input, output, "")
}

func (r *Recorder) OnToolError(_ context.Context, tool tools.ITool, input string, err error) {
	r.record(tool.Name(), input, "", err.Error())
}

func (r *Recorder) record(name, input, output, errMsg string) {
	now := time.Now()
	r.mu.Lock()
	defer r.mu.Unlock()

	start, ok := r.pending[name]
	if !ok {
		start = now
	}
	delete(r.pending, name)

	r.history = append(r.history, Invocation{
		Tool:   name,
		Input:  redactInput(input),
		Output: output,
		Error:  errMsg,
		Start:  start,
		End:    now,
	})
	if r.limit > 0 && len(r.history) > r.limit {
		r.history = r.history[len(r.history)-r.limit:]
	}
}

// History returns a copy of the recorded invocations, oldest first.
func (r *Recorder) History() []Invocation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Invocation(nil), r.history...)
}

// Reset clears the recorded trail.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
	r.pending = make(map[string]time.Time)
}
