package server

import (
	"context"
	"testing"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/asset/assettest"
	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/tag"
)

// testEnv bundles a service over the technique fixture with its worker
// and handle store.
type testEnv struct {
	Service *InspectService
	Worker  *RenderWorker
	Handles *HandleStore
	Loader  *asset.Loader
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	programs, err := tfx.NewProgramCache(0)
	if err != nil {
		t.Fatalf("NewProgramCache: %v", err)
	}
	l := asset.NewLoader(tag.NewReader(assettest.Store()), programs)
	worker := NewRenderWorker(NewRenderState())
	t.Cleanup(worker.Stop)
	handles := NewHandleStore()
	return &testEnv{
		Service: NewInspectService(l, asset.DefaultTypes(), worker, handles),
		Worker:  worker,
		Handles: handles,
		Loader:  l,
	}
}

func structReq(t *testing.T, m map[string]any) *connect.Request[structpb.Struct] {
	t.Helper()
	st, err := structpb.NewStruct(m)
	if err != nil {
		t.Fatalf("NewStruct: %v", err)
	}
	return connect.NewRequest(st)
}

func emptyReq() *connect.Request[emptypb.Empty] {
	return connect.NewRequest(&emptypb.Empty{})
}

func bg() context.Context {
	return context.Background()
}

func wantCode(t *testing.T, err error, code connect.Code) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %v error, got nil", code)
	}
	if got := connect.CodeOf(err); got != code {
		t.Errorf("code = %v, want %v (%v)", got, code, err)
	}
}
