package server

import (
	"strings"
	"testing"

	"connectrpc.com/connect"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/chazu/tagview/asset/assettest"
	"github.com/chazu/tagview/pkg/tfx"
)

// ---------------------------------------------------------------------------
// Store browsing
// ---------------------------------------------------------------------------

func TestStats(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.Service.Stats(bg(), emptyReq())
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	m := resp.Msg.AsMap()
	if m["entries"] != float64(2) {
		t.Errorf("entries = %v, want 2", m["entries"])
	}
	if m["handles"] != float64(0) {
		t.Errorf("handles = %v, want 0", m["handles"])
	}
	if _, ok := m["cache"]; ok {
		t.Error("uncached store should not report cache stats")
	}
}

func TestListEntries(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.Service.ListEntries(bg(), structReq(t, map[string]any{"limit": 1}))
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	m := resp.Msg.AsMap()
	if m["total"] != float64(2) {
		t.Errorf("total = %v, want 2", m["total"])
	}
	rows := m["entries"].([]any)
	if len(rows) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(rows))
	}
	row := rows[0].(map[string]any)
	if row["hash"] != assettest.Technique.String() {
		t.Errorf("hash = %v, want %s", row["hash"], assettest.Technique)
	}
	data, _ := assettest.Store().Bytes(assettest.Technique)
	if row["size"] != float64(len(data)) {
		t.Errorf("size = %v, want %d", row["size"], len(data))
	}

	resp, err = env.Service.ListEntries(bg(), structReq(t, map[string]any{"offset": 1}))
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	rows = resp.Msg.AsMap()["entries"].([]any)
	if len(rows) != 1 || rows[0].(map[string]any)["hash"] != assettest.ConstData.String() {
		t.Errorf("offset 1 entries = %v", rows)
	}

	resp, err = env.Service.ListEntries(bg(), structReq(t, map[string]any{"file_type": 8}))
	if err != nil {
		t.Fatalf("ListEntries returned error: %v", err)
	}
	if got := resp.Msg.AsMap()["total"]; got != float64(0) {
		t.Errorf("filtered total = %v, want 0", got)
	}
}

func TestReadTagMeta(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.Service.ReadTag(bg(), structReq(t, map[string]any{
		"hash": assettest.ConstBuffer.String(),
	}))
	if err != nil {
		t.Fatalf("ReadTag returned error: %v", err)
	}
	m := resp.Msg.AsMap()
	if m["type"] != "meta" {
		t.Errorf("type = %v, want meta", m["type"])
	}
	tree := m["tree"].(map[string]any)
	if tree["kind"] != "struct" {
		t.Fatalf("tree kind = %v, want struct", tree["kind"])
	}
	var ref any
	for _, f := range tree["fields"].([]any) {
		f := f.(map[string]any)
		if f["name"] == "Reference" {
			ref = f["node"].(map[string]any)["value"]
		}
	}
	if ref != float64(assettest.ConstData) {
		t.Errorf("Reference = %v, want %d", ref, uint32(assettest.ConstData))
	}
}

func TestReadTagTechnique(t *testing.T) {
	env := newTestEnv(t)
	resp, err := env.Service.ReadTag(bg(), structReq(t, map[string]any{
		"hash": assettest.Technique.String(),
		"type": "technique",
	}))
	if err != nil {
		t.Fatalf("ReadTag returned error: %v", err)
	}
	tree := resp.Msg.AsMap()["tree"].(map[string]any)
	if tree["type"] != "asset.Technique" {
		t.Errorf("tree type = %v, want asset.Technique", tree["type"])
	}
}

func TestReadTagErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		args map[string]any
		code connect.Code
	}{
		{"missing hash", map[string]any{}, connect.CodeInvalidArgument},
		{"bad hash", map[string]any{"hash": "nothex"}, connect.CodeInvalidArgument},
		{"not found", map[string]any{"hash": "0x80800FFF"}, connect.CodeNotFound},
		{"unknown type", map[string]any{"hash": assettest.Technique.String(), "type": "texture"}, connect.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Service.ReadTag(bg(), structReq(t, tc.args))
			wantCode(t, err, tc.code)
		})
	}
}

// ---------------------------------------------------------------------------
// Techniques
// ---------------------------------------------------------------------------

func loadFixture(t *testing.T, env *testEnv) string {
	t.Helper()
	resp, err := env.Service.LoadTechnique(bg(), structReq(t, map[string]any{
		"hash": assettest.Technique.String(),
	}))
	if err != nil {
		t.Fatalf("LoadTechnique returned error: %v", err)
	}
	m := resp.Msg.AsMap()
	stages := m["stages"].([]any)
	if len(stages) != 2 {
		t.Fatalf("len(stages) = %d, want 2", len(stages))
	}
	vs := stages[0].(map[string]any)
	if vs["stage"] != "Vertex" || vs["instructions"] != float64(2) || vs["output_len"] != float64(2) {
		t.Errorf("vertex stage = %v", vs)
	}
	if _, failed := vs["parse_error"]; failed {
		t.Errorf("vertex stage should parse: %v", vs["parse_error"])
	}
	return m["handle"].(string)
}

func TestLoadTechnique(t *testing.T) {
	env := newTestEnv(t)
	id := loadFixture(t, env)
	if !strings.HasPrefix(id, "t-") {
		t.Errorf("handle = %q, want t- prefix", id)
	}
	if env.Handles.Len() != 1 {
		t.Errorf("handles = %d, want 1", env.Handles.Len())
	}

	_, err := env.Service.LoadTechnique(bg(), structReq(t, map[string]any{"hash": "0x80800FFF"}))
	wantCode(t, err, connect.CodeNotFound)
}

func TestDisassemble(t *testing.T) {
	env := newTestEnv(t)
	id := loadFixture(t, env)
	resp, err := env.Service.Disassemble(bg(), structReq(t, map[string]any{"handle": id}))
	if err != nil {
		t.Fatalf("Disassemble returned error: %v", err)
	}
	stages := resp.Msg.AsMap()["stages"].(map[string]any)
	pixel, _ := stages["Pixel"].(string)
	if !strings.Contains(pixel, "add") {
		t.Errorf("pixel listing missing add:\n%s", pixel)
	}
	if _, ok := stages["Vertex"]; !ok {
		t.Error("vertex listing missing")
	}
}

func TestEvaluate(t *testing.T) {
	env := newTestEnv(t)
	id := loadFixture(t, env)
	resp, err := env.Service.Evaluate(bg(), structReq(t, map[string]any{"handle": id}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	stages := resp.Msg.AsMap()["stages"].(map[string]any)

	pixel := stages["Pixel"].([]any)
	if len(pixel) != 2 {
		t.Fatalf("len(Pixel) = %d, want 2", len(pixel))
	}
	want := []any{1.5, 1.0, 1.0, 1.0}
	for i, v := range pixel[0].([]any) {
		if v != want[i] {
			t.Errorf("Pixel[0][%d] = %v, want %v", i, v, want[i])
		}
	}
	vertex := stages["Vertex"].([]any)
	if got := vertex[1].([]any)[3]; got != 4.0 {
		t.Errorf("Vertex[1].w = %v, want 4", got)
	}
}

func TestEvaluateByHash(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.Evaluate(bg(), structReq(t, map[string]any{"hash": assettest.Technique.String()}))
	if err != nil {
		t.Fatalf("Evaluate returned error: %v", err)
	}
	if env.Handles.Len() != 0 {
		t.Error("evaluating by hash should not create a handle")
	}
}

func TestReleaseHandle(t *testing.T) {
	env := newTestEnv(t)
	id := loadFixture(t, env)
	if _, err := env.Service.ReleaseHandle(bg(), structReq(t, map[string]any{"handle": id})); err != nil {
		t.Fatalf("ReleaseHandle returned error: %v", err)
	}
	_, err := env.Service.ReleaseHandle(bg(), structReq(t, map[string]any{"handle": id}))
	wantCode(t, err, connect.CodeNotFound)
	_, err = env.Service.Evaluate(bg(), structReq(t, map[string]any{"handle": id}))
	wantCode(t, err, connect.CodeNotFound)
	_, err = env.Service.ReleaseHandle(bg(), structReq(t, map[string]any{}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

// ---------------------------------------------------------------------------
// Extern state and diagnostics
// ---------------------------------------------------------------------------

func TestSetExtern(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.SetExtern(bg(), structReq(t, map[string]any{
		"kind":  "view",
		"field": "resolution_width",
		"value": 1920,
	}))
	if err != nil {
		t.Fatalf("SetExtern returned error: %v", err)
	}
	v, err := env.Worker.Do(func(rs *RenderState) any {
		v, _ := rs.Externs.Extern(tfx.ExternView, 0x00)
		return v
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got := v.(tfx.ExternValue).Float; got != 1920 {
		t.Errorf("resolution_width = %v, want 1920", got)
	}

	resp, err := env.Service.Externs(bg(), emptyReq())
	if err != nil {
		t.Fatalf("Externs returned error: %v", err)
	}
	var enabled bool
	for _, row := range resp.Msg.AsMap()["externs"].([]any) {
		row := row.(map[string]any)
		if row["kind"] == "view" {
			enabled = row["enabled"].(bool)
		}
	}
	if !enabled {
		t.Error("view should be enabled after SetExtern")
	}

	_, err = env.Service.SetExtern(bg(), structReq(t, map[string]any{"kind": "view", "enabled": false}))
	if err != nil {
		t.Fatalf("SetExtern disable returned error: %v", err)
	}
	v, _ = env.Worker.Do(func(rs *RenderState) any { return rs.Externs.Enabled(tfx.ExternView) })
	if v.(bool) {
		t.Error("view should be disabled")
	}
}

func TestSetExternErrors(t *testing.T) {
	env := newTestEnv(t)
	cases := []struct {
		name string
		args map[string]any
		code connect.Code
	}{
		{"unknown kind", map[string]any{"kind": "nope"}, connect.CodeInvalidArgument},
		{"unknown field", map[string]any{"kind": "view", "field": "nope", "value": 1}, connect.CodeNotFound},
		{"wrong shape", map[string]any{"kind": "view", "field": "view_miscellaneous", "value": 1}, connect.CodeInvalidArgument},
		{"no catalog", map[string]any{"kind": "none"}, connect.CodeInvalidArgument},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.Service.SetExtern(bg(), structReq(t, tc.args))
			wantCode(t, err, tc.code)
		})
	}
}

func TestSetChannel(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Service.SetChannel(bg(), structReq(t, map[string]any{
		"index": 3,
		"value": []any{1, 2, 3, 4},
	}))
	if err != nil {
		t.Fatalf("SetChannel returned error: %v", err)
	}
	_, err = env.Service.SetChannel(bg(), structReq(t, map[string]any{
		"hash":  0x1234,
		"value": []any{0.5, 0, 0, 0},
	}))
	if err != nil {
		t.Fatalf("SetChannel returned error: %v", err)
	}
	v, _ := env.Worker.Do(func(rs *RenderState) any {
		return []mgl32.Vec4{rs.Globals.Value(3), rs.Channels[0x1234]}
	})
	got := v.([]mgl32.Vec4)
	if got[0] != (mgl32.Vec4{1, 2, 3, 4}) {
		t.Errorf("global 3 = %v", got[0])
	}
	if got[1] != (mgl32.Vec4{0.5, 0, 0, 0}) {
		t.Errorf("object channel = %v", got[1])
	}

	_, err = env.Service.SetChannel(bg(), structReq(t, map[string]any{"index": 256, "value": []any{0, 0, 0, 0}}))
	wantCode(t, err, connect.CodeInvalidArgument)
	_, err = env.Service.SetChannel(bg(), structReq(t, map[string]any{"value": []any{0, 0, 0, 0}}))
	wantCode(t, err, connect.CodeInvalidArgument)
	_, err = env.Service.SetChannel(bg(), structReq(t, map[string]any{"index": 1, "value": []any{0}}))
	wantCode(t, err, connect.CodeInvalidArgument)
}

func TestDiagnostics(t *testing.T) {
	env := newTestEnv(t)
	env.Worker.Diagnostics().Record(tfx.ExternNotSet, "view not set")
	env.Worker.Diagnostics().Record(tfx.ExternNotSet, "view not set")

	resp, err := env.Service.Diagnostics(bg(), emptyReq())
	if err != nil {
		t.Fatalf("Diagnostics returned error: %v", err)
	}
	rows := resp.Msg.AsMap()["diagnostics"].([]any)
	if len(rows) != 1 {
		t.Fatalf("len(diagnostics) = %d, want 1", len(rows))
	}
	if c := rows[0].(map[string]any)["count"]; c != float64(2) {
		t.Errorf("count = %v, want 2", c)
	}

	if _, err := env.Service.ClearDiagnostics(bg(), emptyReq()); err != nil {
		t.Fatalf("ClearDiagnostics returned error: %v", err)
	}
	if env.Worker.Diagnostics().Len() != 0 {
		t.Error("diagnostics should be empty after ClearDiagnostics")
	}
}

func TestStoppedWorker(t *testing.T) {
	env := newTestEnv(t)
	id := loadFixture(t, env)
	stopped := NewRenderWorker(NewRenderState())
	stopped.Stop()
	env.Service.worker = stopped

	_, err := env.Service.Evaluate(bg(), structReq(t, map[string]any{"handle": id}))
	wantCode(t, err, connect.CodeUnavailable)
}
