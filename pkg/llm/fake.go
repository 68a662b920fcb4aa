package llm

import (
	"context"
	"sync"
)

// FakeResult is one scripted outcome of a FakeProvider call.
type FakeResult struct {
	Resp *Response
	Err  error
}

// FakeProvider is a scripted Provider for tests. Results are consumed in
// order; when the script runs out, the last result repeats.
type FakeProvider struct {
	ModelName string
	Script    []FakeResult

	mu    sync.Mutex
	calls int
	reqs  []*Request
}

// Calls reports how many times Generate or GenerateStream ran.
func (f *FakeProvider) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// Requests returns the requests seen so far, in call order.
func (f *FakeProvider) Requests() []*Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Request(nil), f.reqs...)
}

func (f *FakeProvider) next(req *Request) FakeResult {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reqs = append(f.reqs, req)
	if len(f.Script) == 0 {
		return FakeResult{Resp: &Response{Text: "ok", Model: f.ModelName}}
	}
	idx := f.calls - 1
	if idx >= len(f.Script) {
		idx = len(f.Script) - 1
	}
	return f.Script[idx]
}

func (f *FakeProvider) Generate(ctx context.Context, req *Request) (*Response, error) {
	r := f.next(req)
	if r.Err != nil {
		return nil, r.Err
	}
	resp := *r.Resp
	if resp.Model == "" {
		resp.Model = f.ModelName
	}
	return &resp, nil
}

func (f *FakeProvider) GenerateStream(ctx context.Context, req *Request) (<-chan StreamChunk, error) {
	r := f.next(req)
	if r.Err != nil {
		return nil, r.Err
	}
	chunks := make(chan StreamChunk, 1)
	chunks <- StreamChunk{Text: r.Resp.Text}
	close(chunks)
	return chunks, nil
}

func (f *FakeProvider) Model() string { return f.ModelName }
func (f *FakeProvider) Close() error  { return nil }

var _ Provider = (*FakeProvider)(nil)
