package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"connectrpc.com/connect"
	"github.com/go-gl/mathgl/mgl32"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/chazu/tagview/asset"
	"github.com/chazu/tagview/dump"
	"github.com/chazu/tagview/pkg/tfx"
	"github.com/chazu/tagview/store"
	"github.com/chazu/tagview/tag"
)

// DefaultListLimit caps ListEntries when the request sets no limit.
const DefaultListLimit = 100

// InspectService implements the inspection service handlers. Requests and
// responses are free-form structs; every field is documented on the
// handler that reads or writes it.
type InspectService struct {
	loader  *asset.Loader
	types   *asset.Types
	worker  *RenderWorker
	handles *HandleStore
}

// NewInspectService creates an InspectService.
func NewInspectService(l *asset.Loader, types *asset.Types, worker *RenderWorker, handles *HandleStore) *InspectService {
	return &InspectService{
		loader:  l,
		types:   types,
		worker:  worker,
		handles: handles,
	}
}

// ---------------------------------------------------------------------------
// Store browsing
// ---------------------------------------------------------------------------

// Stats reports store size, cache and diagnostic counters.
func (s *InspectService) Stats(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	out := map[string]any{
		"programs":    s.loader.Programs().Len(),
		"handles":     s.handles.Len(),
		"diagnostics": s.worker.Diagnostics().Len(),
	}
	st := s.loader.Reader().Store()
	if e, ok := st.(tag.Enumerable); ok {
		out["entries"] = len(e.Entries())
	}
	if c, ok := st.(*store.Cached); ok {
		cs := c.Stats()
		out["cache"] = map[string]any{
			"hits":   cs.Hits,
			"misses": cs.Misses,
			"loads":  cs.Loads,
			"len":    cs.Len,
		}
	}
	return structResponse(out)
}

// ListEntries pages through the store's entries.
//
// Request: offset, limit, file_type (optional filter).
// Response: total, entries[{hash, reference, size, file_type, file_subtype}].
func (s *InspectService) ListEntries(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	e, ok := s.loader.Reader().Store().(tag.Enumerable)
	if !ok {
		return nil, connect.NewError(connect.CodeUnimplemented, errors.New("store cannot list entries"))
	}
	args := req.Msg.AsMap()
	offset := argInt(args, "offset", 0)
	limit := argInt(args, "limit", DefaultListLimit)
	fileType, filter := args["file_type"].(float64)

	var rows []any
	total := 0
	for _, m := range e.Entries() {
		if filter && m.FileType != uint8(fileType) {
			continue
		}
		total++
		if total <= offset || len(rows) >= limit {
			continue
		}
		rows = append(rows, map[string]any{
			"hash":         m.Hash.String(),
			"reference":    fmt.Sprintf("0x%08X", m.Reference),
			"size":         m.Size,
			"file_type":    uint32(m.FileType),
			"file_subtype": uint32(m.FileSubtype),
		})
	}
	return structResponse(map[string]any{"total": total, "entries": rows})
}

// ReadTag materializes a record and returns it as a dump tree.
//
// Request: hash, type (default "meta"), max_depth.
// Response: type, tree.
func (s *InspectService) ReadTag(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	args := req.Msg.AsMap()
	h, err := argHash(args)
	if err != nil {
		return nil, err
	}
	typ := argString(args, "type", "meta")
	v, err := s.types.Decode(s.loader.Reader(), typ, h)
	if err != nil {
		return nil, connectError(err)
	}
	tree, err := treeValue(dump.NewBuilder(dump.Options{MaxDepth: argInt(args, "max_depth", 0)}).Build(v))
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return structResponse(map[string]any{"type": typ, "tree": tree})
}

// ---------------------------------------------------------------------------
// Techniques
// ---------------------------------------------------------------------------

// LoadTechnique loads a technique and returns a handle plus a summary of
// its stages.
//
// Request: hash.
// Response: handle, stages[{stage, shader, instructions, output_len,
// externs, parse_error}], object_channels{hash: kind}.
func (s *InspectService) LoadTechnique(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	h, err := argHash(req.Msg.AsMap())
	if err != nil {
		return nil, err
	}
	lt, err := s.loader.Technique(h)
	if err != nil {
		return nil, connectError(err)
	}
	id := s.handles.Create(lt)

	var stages []any
	for _, st := range lt.Stages {
		row := map[string]any{
			"stage":        st.Stage.String(),
			"shader":       st.Shader.Shader.String(),
			"instructions": len(st.Ops()),
			"output_len":   len(st.Buffer),
			"externs":      externNames(tfx.ExternsUsed(st.Ops())),
		}
		if st.Program != nil && st.Program.Err != nil {
			row["parse_error"] = st.Program.Err.Error()
		}
		stages = append(stages, row)
	}
	channels := make(map[string]any)
	for ch, kind := range lt.ObjectChannels() {
		name := "vec4"
		if kind == tfx.ChannelFloat {
			name = "float"
		}
		channels[fmt.Sprintf("0x%08X", ch)] = name
	}
	return structResponse(map[string]any{
		"handle":          id,
		"hash":            h.String(),
		"stages":          stages,
		"object_channels": channels,
	})
}

// Disassemble lists every stage's bytecode.
//
// Request: handle or hash.
// Response: stages{name: listing}.
func (s *InspectService) Disassemble(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	lt, err := s.technique(req.Msg.AsMap())
	if err != nil {
		return nil, err
	}
	listings := make(map[string]any)
	for _, st := range lt.Stages {
		listings[st.Stage.String()] = tfx.Disassemble(st.Ops(), st.Shader.Constants)
	}
	return structResponse(map[string]any{"stages": listings})
}

// Evaluate runs a technique on the render worker.
//
// Request: handle or hash.
// Response: stages{name: [[x, y, z, w], ...]}, bindings[{kind, stage,
// slot, handle}].
func (s *InspectService) Evaluate(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[structpb.Struct], error) {
	lt, err := s.technique(req.Msg.AsMap())
	if err != nil {
		return nil, err
	}
	out, err := s.worker.Evaluate(lt)
	if err != nil {
		return nil, connectError(err)
	}
	stages := make(map[string]any, len(out))
	for stage, buf := range out {
		stages[stage.String()] = vectors(buf)
	}
	v, err := s.worker.Do(func(rs *RenderState) any { return rs.Bindings.Snapshot() })
	if err != nil {
		return nil, connectError(err)
	}
	var bindings []any
	for _, b := range v.([]Binding) {
		bindings = append(bindings, map[string]any{
			"kind":   string(b.Kind),
			"stage":  b.Stage.String(),
			"slot":   b.Slot,
			"handle": fmt.Sprintf("0x%X", b.Handle),
		})
	}
	return structResponse(map[string]any{"stages": stages, "bindings": bindings})
}

// ReleaseHandle drops a technique handle.
//
// Request: handle.
func (s *InspectService) ReleaseHandle(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	id := argString(req.Msg.AsMap(), "handle", "")
	if id == "" {
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("handle is required"))
	}
	if !s.handles.Release(id) {
		return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// ---------------------------------------------------------------------------
// Extern state and diagnostics
// ---------------------------------------------------------------------------

// Diagnostics returns every distinct evaluation failure.
//
// Response: diagnostics[{kind, message, count}].
func (s *InspectService) Diagnostics(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	var rows []any
	for _, d := range s.worker.Diagnostics().Snapshot() {
		rows = append(rows, map[string]any{
			"kind":    d.Kind.String(),
			"message": d.Message,
			"count":   d.Count,
		})
	}
	return structResponse(map[string]any{"diagnostics": rows})
}

// ClearDiagnostics empties the diagnostics sink.
func (s *InspectService) ClearDiagnostics(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[emptypb.Empty], error) {
	s.worker.Diagnostics().Clear()
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// Externs lists every extern kind with a field catalog.
//
// Response: externs[{kind, enabled, used, fields}].
func (s *InspectService) Externs(
	ctx context.Context,
	req *connect.Request[emptypb.Empty],
) (*connect.Response[structpb.Struct], error) {
	v, err := s.worker.Do(func(rs *RenderState) any {
		var rows []any
		for _, k := range tfx.AllExternKinds() {
			if !tfx.HasCatalog(k) {
				continue
			}
			rows = append(rows, map[string]any{
				"kind":    k.String(),
				"enabled": rs.Externs.Enabled(k),
				"used":    rs.Externs.Used(k),
				"fields":  len(tfx.Fields(k)),
			})
		}
		return rows
	})
	if err != nil {
		return nil, connectError(err)
	}
	return structResponse(map[string]any{"externs": v})
}

// SetExtern enables an extern and optionally sets one of its fields.
//
// Request: kind, enabled (default true), field, value (number, list of 4
// or 16 numbers, or a handle number for texture fields).
func (s *InspectService) SetExtern(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	args := req.Msg.AsMap()
	kind, err := tfx.ParseExternKind(argString(args, "kind", ""))
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	enabled, _ := args["enabled"].(bool)
	if _, set := args["enabled"]; !set {
		enabled = true
	}
	field := argString(args, "field", "")
	var value tfx.ExternValue
	if field != "" {
		f, ok := fieldByName(kind, field)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("%w: %s->%s", tfx.ErrNoField, kind, field))
		}
		if value, err = externValue(f.Kind, args["value"]); err != nil {
			return nil, connect.NewError(connect.CodeInvalidArgument, err)
		}
	}

	v, err := s.worker.Do(func(rs *RenderState) any {
		if !enabled {
			rs.Externs.Disable(kind)
			return nil
		}
		if err := rs.Externs.Enable(kind); err != nil {
			return err
		}
		if field != "" {
			return rs.Externs.Set(kind, field, value)
		}
		return nil
	})
	if err != nil {
		return nil, connectError(err)
	}
	if err, ok := v.(error); ok && err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// SetChannel sets a global channel (index) or an object channel (hash).
//
// Request: index or hash, value [x, y, z, w].
func (s *InspectService) SetChannel(
	ctx context.Context,
	req *connect.Request[structpb.Struct],
) (*connect.Response[emptypb.Empty], error) {
	args := req.Msg.AsMap()
	v, err := vec4Arg(args["value"])
	if err != nil {
		return nil, connect.NewError(connect.CodeInvalidArgument, err)
	}
	index, global := args["index"].(float64)
	hash, object := args["hash"].(float64)
	switch {
	case global && (index < 0 || index >= tfx.GlobalChannelCount):
		return nil, connect.NewError(connect.CodeInvalidArgument, fmt.Errorf("global channel %v out of range", index))
	case !global && !object:
		return nil, connect.NewError(connect.CodeInvalidArgument, errors.New("index or hash is required"))
	}
	_, err = s.worker.Do(func(rs *RenderState) any {
		if global {
			rs.Globals.Set(uint8(index), v)
		} else {
			rs.Channels[uint32(hash)] = v
		}
		return nil
	})
	if err != nil {
		return nil, connectError(err)
	}
	return connect.NewResponse(&emptypb.Empty{}), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *InspectService) technique(args map[string]any) (*asset.LoadedTechnique, error) {
	if id := argString(args, "handle", ""); id != "" {
		lt, ok := s.handles.Lookup(id)
		if !ok {
			return nil, connect.NewError(connect.CodeNotFound, fmt.Errorf("handle %q not found", id))
		}
		return lt, nil
	}
	h, err := argHash(args)
	if err != nil {
		return nil, err
	}
	lt, err := s.loader.Technique(h)
	if err != nil {
		return nil, connectError(err)
	}
	return lt, nil
}

// connectError maps library errors onto Connect codes.
func connectError(err error) error {
	switch {
	case errors.Is(err, tag.ErrTagNotFound), errors.Is(err, tag.ErrHash64Unresolved):
		return connect.NewError(connect.CodeNotFound, err)
	case errors.Is(err, asset.ErrUnknownType):
		return connect.NewError(connect.CodeInvalidArgument, err)
	case errors.Is(err, ErrWorkerStopped):
		return connect.NewError(connect.CodeUnavailable, err)
	case errors.Is(err, tag.ErrIO):
		return connect.NewError(connect.CodeInternal, err)
	}
	if tag.KindOf(err) != nil {
		return connect.NewError(connect.CodeDataLoss, err)
	}
	return connect.NewError(connect.CodeInternal, err)
}

func structResponse(m map[string]any) (*connect.Response[structpb.Struct], error) {
	st, err := structpb.NewStruct(m)
	if err != nil {
		return nil, connect.NewError(connect.CodeInternal, err)
	}
	return connect.NewResponse(st), nil
}

// treeValue converts a dump tree into plain maps and lists.
func treeValue(n *dump.Node) (any, error) {
	b, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}
	var v any
	err = json.Unmarshal(b, &v)
	return v, err
}

func argString(args map[string]any, key, def string) string {
	if s, ok := args[key].(string); ok && s != "" {
		return s
	}
	return def
}

func argInt(args map[string]any, key string, def int) int {
	if f, ok := args[key].(float64); ok && f >= 0 {
		return int(f)
	}
	return def
}

func argHash(args map[string]any) (tag.TagHash, error) {
	s := argString(args, "hash", "")
	if s == "" {
		return 0, connect.NewError(connect.CodeInvalidArgument, errors.New("hash is required"))
	}
	h, err := tag.ParseTagHash(s)
	if err != nil {
		return 0, connect.NewError(connect.CodeInvalidArgument, err)
	}
	return h, nil
}

func externNames(kinds []tfx.ExternKind) []any {
	out := make([]any, len(kinds))
	for i, k := range kinds {
		out[i] = k.String()
	}
	return out
}

func fieldByName(kind tfx.ExternKind, name string) (tfx.ExternField, bool) {
	for _, f := range tfx.Fields(kind) {
		if f.Name == name {
			return f, true
		}
	}
	return tfx.ExternField{}, false
}

func vectors(buf []mgl32.Vec4) []any {
	out := make([]any, len(buf))
	for i, v := range buf {
		out[i] = []any{float64(v[0]), float64(v[1]), float64(v[2]), float64(v[3])}
	}
	return out
}

func numbers(v any, n int) ([]float32, error) {
	list, ok := v.([]any)
	if !ok || len(list) != n {
		return nil, fmt.Errorf("value must be a list of %d numbers", n)
	}
	out := make([]float32, n)
	for i, x := range list {
		f, ok := x.(float64)
		if !ok {
			return nil, fmt.Errorf("value[%d] is not a number", i)
		}
		out[i] = float32(f)
	}
	return out, nil
}

func vec4Arg(v any) (mgl32.Vec4, error) {
	f, err := numbers(v, 4)
	if err != nil {
		return mgl32.Vec4{}, err
	}
	return mgl32.Vec4{f[0], f[1], f[2], f[3]}, nil
}

func externValue(kind tfx.ValueKind, v any) (tfx.ExternValue, error) {
	switch kind {
	case tfx.KindFloat, tfx.KindU32, tfx.KindTexture, tfx.KindUav:
		f, ok := v.(float64)
		if !ok {
			return tfx.ExternValue{}, fmt.Errorf("%s field needs a number", kind)
		}
		switch kind {
		case tfx.KindFloat:
			return tfx.FloatValue(float32(f)), nil
		case tfx.KindU32:
			return tfx.U32Value(uint32(f)), nil
		case tfx.KindTexture:
			return tfx.TextureValue(uint64(f)), nil
		}
		return tfx.UavValue(uint64(f)), nil
	case tfx.KindVec4:
		vec, err := vec4Arg(v)
		return tfx.Vec4Value(vec), err
	case tfx.KindMat4:
		f, err := numbers(v, 16)
		if err != nil {
			return tfx.ExternValue{}, err
		}
		var m mgl32.Mat4
		copy(m[:], f)
		return tfx.Mat4Value(m), nil
	}
	return tfx.ExternValue{}, fmt.Errorf("%s fields cannot be set", kind)
}
