package server

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/pkg/tfx"
)

// ErrWorkerStopped is returned by Do after Stop.
var ErrWorkerStopped = errors.New("render worker stopped")

// RenderState is the live extern state evaluations read. It is owned by
// the render goroutine; touch it only from inside Do.
type RenderState struct {
	Externs     *tfx.ExternStore
	Globals     *tfx.GlobalChannels
	Diagnostics *tfx.Diagnostics
	Channels    map[uint32]mgl32.Vec4
	Bindings    *Bindings
}

// NewRenderState returns a state with default externs and empty channels.
func NewRenderState() *RenderState {
	return &RenderState{
		Externs:     tfx.NewExternStore(),
		Globals:     tfx.NewGlobalChannels(),
		Diagnostics: tfx.NewDiagnostics(),
		Channels:    make(map[uint32]mgl32.Vec4),
		Bindings:    NewBindings(),
	}
}

// Inputs returns the per-draw inputs for asset evaluation.
func (s *RenderState) Inputs() asset.Inputs {
	return asset.Inputs{
		Externs:     s.Externs,
		Channels:    s.Channels,
		Globals:     s.Globals,
		Binder:      s.Bindings,
		Diagnostics: s.Diagnostics,
	}
}

// renderRequest represents a unit of work to be executed on the render goroutine.
type renderRequest struct {
	fn   func(*RenderState) any
	done chan renderResult
}

// renderResult holds the return value from a render operation.
type renderResult struct {
	value any
	err   error
}

// RenderWorker serializes every evaluation through a single goroutine, the
// way draws are issued from one render thread.
type RenderWorker struct {
	state    *RenderState
	requests chan renderRequest
	quit     chan struct{}
}

// NewRenderWorker creates a RenderWorker and starts the processing goroutine.
func NewRenderWorker(state *RenderState) *RenderWorker {
	w := &RenderWorker{
		state:    state,
		requests: make(chan renderRequest, 64),
		quit:     make(chan struct{}),
	}
	go w.loop()
	return w
}

// loop processes requests sequentially on a dedicated goroutine.
func (w *RenderWorker) loop() {
	for {
		select {
		case req := <-w.requests:
			req.done <- w.execute(req.fn)
		case <-w.quit:
			return
		}
	}
}

// execute runs a function against the render state, recovering from panics.
func (w *RenderWorker) execute(fn func(*RenderState) any) renderResult {
	var result renderResult
	func() {
		defer func() {
			if r := recover(); r != nil {
				result.err = fmt.Errorf("%v", r)
			}
		}()
		result.value = fn(w.state)
	}()
	return result
}

// Do submits a function for execution on the render goroutine and blocks
// until it completes. Returns the result and any error (including panics).
func (w *RenderWorker) Do(fn func(*RenderState) any) (any, error) {
	req := renderRequest{
		fn:   fn,
		done: make(chan renderResult, 1),
	}
	select {
	case w.requests <- req:
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
	select {
	case result := <-req.done:
		return result.value, result.err
	case <-w.quit:
		return nil, ErrWorkerStopped
	}
}

// Evaluate runs every stage of lt against the live state.
func (w *RenderWorker) Evaluate(lt *asset.LoadedTechnique) (map[tfx.ShaderStage][]mgl32.Vec4, error) {
	type evalResult struct {
		out map[tfx.ShaderStage][]mgl32.Vec4
		err error
	}
	v, err := w.Do(func(s *RenderState) any {
		out, err := lt.Evaluate(s.Inputs())
		return evalResult{out, err}
	})
	if err != nil {
		return nil, err
	}
	r := v.(evalResult)
	return r.out, r.err
}

// Stop shuts down the worker goroutine.
func (w *RenderWorker) Stop() {
	close(w.quit)
}

// Diagnostics returns the shared diagnostics sink. It is safe to read
// from any goroutine.
func (w *RenderWorker) Diagnostics() *tfx.Diagnostics {
	return w.state.Diagnostics
}
