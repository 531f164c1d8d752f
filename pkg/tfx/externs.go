package tfx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
)

// ExternKind names a block of engine state that bytecode can read from.
// The enumeration is closed; bytes above ExternSoftDeform are rejected by
// the parser.
type ExternKind uint8

const (
	ExternNone ExternKind = iota
	ExternFrame
	ExternView
	ExternDeferred
	ExternDeferredLight
	ExternDeferredUberLight
	ExternDeferredShadow
	ExternAtmosphere
	ExternRigidModel
	ExternEditorMesh
	ExternEditorMeshMaterial
	ExternEditorDecal
	ExternEditorTerrain
	ExternEditorTerrainPatch
	ExternEditorTerrainDebug
	ExternSimpleGeometry
	ExternUiFont
	ExternCuiView
	ExternCuiObject
	ExternCuiBitmap
	ExternCuiVideo
	ExternCuiStandard
	ExternCuiHud
	ExternCuiScreenspaceBoxes
	ExternTextureVisualizer
	ExternGeneric
	ExternParticle
	ExternParticleDebug
	ExternGearDyeVisualizationMode
	ExternScreenArea
	ExternMlaa
	ExternMsaa
	ExternHdao
	ExternDownsampleTextureGeneric
	ExternDownsampleDepth
	ExternSsao
	ExternVolumetricObscurance
	ExternPostprocess
	ExternTextureSet
	ExternTransparent
	ExternVignette
	ExternGlobalLighting
	ExternShadowMask
	ExternObjectEffect
	ExternDecal
	ExternDecalSetTransform
	ExternDynamicDecal
	ExternDecoratorWind
	ExternTextureCameraLighting
	ExternVolumeFog
	ExternFxaa
	ExternSmaa
	ExternLetterbox
	ExternDepthOfField
	ExternPostprocessInitialDownsample
	ExternCopyDepth
	ExternDisplacementMotionBlur
	ExternDebugShader
	ExternMinmaxDepth
	ExternSdsmBiasAndScale
	ExternSdsmBiasAndScaleTextures
	ExternComputeShadowMapData
	ExternComputeLocalLightShadowMapData
	ExternBilateralUpsample
	ExternHealthOverlay
	ExternLightProbeDominantLight
	ExternLightProbeLightInstance
	ExternWater
	ExternLensFlare
	ExternScreenShader
	ExternScaler
	ExternGammaControl
	ExternSpeedtreePlacements
	ExternReticle
	ExternDistortion
	ExternWaterDebug
	ExternScreenAreaInput
	ExternWaterDepthPrepass
	ExternOverheadVisibilityMap
	ExternParticleCompute
	ExternCubemapFiltering
	ExternParticleFastpath
	ExternVolumetricsPass
	ExternTemporalReprojection
	ExternFxaaCompute
	ExternVbCopyCompute
	ExternUberDepth
	ExternGearDye
	ExternCubemaps
	ExternShadowBlendWithPrevious
	ExternDebugShadingOutput
	ExternSsao3d
	ExternWaterDisplacement
	ExternPatternBlending
	ExternUiHdrTransform
	ExternPlayerCenteredCascadedGrid
	ExternSoftDeform

	externKindCount = int(ExternSoftDeform) + 1
)

var externNames = [externKindCount]string{
	"none", "frame", "view", "deferred", "deferred_light", "deferred_uber_light",
	"deferred_shadow", "atmosphere", "rigid_model", "editor_mesh",
	"editor_mesh_material", "editor_decal", "editor_terrain", "editor_terrain_patch",
	"editor_terrain_debug", "simple_geometry", "ui_font", "cui_view", "cui_object",
	"cui_bitmap", "cui_video", "cui_standard", "cui_hud", "cui_screenspace_boxes",
	"texture_visualizer", "generic", "particle", "particle_debug",
	"gear_dye_visualization_mode", "screen_area", "mlaa", "msaa", "hdao",
	"downsample_texture_generic", "downsample_depth", "ssao", "volumetric_obscurance",
	"postprocess", "texture_set", "transparent", "vignette", "global_lighting",
	"shadowmask", "object_effect", "decal", "decal_set_transform", "dynamic_decal",
	"decorator_wind", "texture_camera_lighting", "volume_fog", "fxaa", "smaa",
	"letterbox", "depth_of_field", "postprocess_initial_downsample", "copy_depth",
	"displacement_motion_blur", "debug_shader", "minmax_depth", "sdsm_bias_and_scale",
	"sdsm_bias_and_scale_textures", "compute_shadow_map_data",
	"compute_local_light_shadow_map_data", "bilateral_upsample", "health_overlay",
	"light_probe_dominant_light", "light_probe_light_instance", "water", "lens_flare",
	"screen_shader", "scaler", "gamma_control", "speedtree_placements", "reticle",
	"distortion", "water_debug", "screen_area_input", "water_depth_prepass",
	"overhead_visibility_map", "particle_compute", "cubemap_filtering",
	"particle_fastpath", "volumetrics_pass", "temporal_reprojection", "fxaa_compute",
	"vb_copy_compute", "uber_depth", "gear_dye", "cubemaps",
	"shadow_blend_with_previous", "debug_shading_output", "ssao3d",
	"water_displacement", "pattern_blending", "ui_hdr_transform",
	"player_centered_cascaded_grid", "soft_deform",
}

// Valid reports whether k is inside the enumeration.
func (k ExternKind) Valid() bool {
	return int(k) < externKindCount
}

func (k ExternKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("extern(%d)", uint8(k))
	}
	return externNames[k]
}

// ParseExternKind looks an extern up by its snake_case name.
func ParseExternKind(name string) (ExternKind, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	for i, n := range externNames {
		if n == name {
			return ExternKind(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidExtern, name)
}

// AllExternKinds returns every kind in enumeration order.
func AllExternKinds() []ExternKind {
	out := make([]ExternKind, externKindCount)
	for i := range out {
		out[i] = ExternKind(i)
	}
	return out
}

// ---------------------------------------------------------------------------
// Values
// ---------------------------------------------------------------------------

// ValueKind is the type of an extern field.
type ValueKind uint8

const (
	KindNone ValueKind = iota
	KindFloat
	KindVec4
	KindMat4
	KindU32
	KindTexture
	KindUav
)

func (k ValueKind) String() string {
	switch k {
	case KindFloat:
		return "float"
	case KindVec4:
		return "vec4"
	case KindMat4:
		return "mat4"
	case KindU32:
		return "u32"
	case KindTexture:
		return "texture"
	case KindUav:
		return "uav"
	}
	return "none"
}

// ExternValue is a tagged union of the values an extern field can hold.
// Only the member selected by Kind is meaningful.
type ExternValue struct {
	Kind   ValueKind
	Float  float32
	Vec4   mgl32.Vec4
	Mat4   mgl32.Mat4
	U32    uint32
	Handle uint64
}

func FloatValue(f float32) ExternValue   { return ExternValue{Kind: KindFloat, Float: f} }
func Vec4Value(v mgl32.Vec4) ExternValue { return ExternValue{Kind: KindVec4, Vec4: v} }
func Mat4Value(m mgl32.Mat4) ExternValue { return ExternValue{Kind: KindMat4, Mat4: m} }
func U32Value(u uint32) ExternValue      { return ExternValue{Kind: KindU32, U32: u} }
func TextureValue(h uint64) ExternValue  { return ExternValue{Kind: KindTexture, Handle: h} }
func UavValue(h uint64) ExternValue      { return ExternValue{Kind: KindUav, Handle: h} }

// SubstituteValue is what the interpreter pushes when a read of kind k
// fails: zero for scalars and vectors, identity for matrices, a null handle
// for resources.
func SubstituteValue(k ValueKind) ExternValue {
	if k == KindMat4 {
		return Mat4Value(mgl32.Ident4())
	}
	return ExternValue{Kind: k}
}

func (v ExternValue) String() string {
	switch v.Kind {
	case KindFloat:
		return fmt.Sprintf("%g", v.Float)
	case KindVec4:
		return formatVec4(v.Vec4)
	case KindMat4:
		return fmt.Sprintf("[%s, %s, %s, %s]",
			formatVec4(v.Mat4.Col(0)), formatVec4(v.Mat4.Col(1)),
			formatVec4(v.Mat4.Col(2)), formatVec4(v.Mat4.Col(3)))
	case KindU32:
		return fmt.Sprintf("0x%08X", v.U32)
	case KindTexture, KindUav:
		return fmt.Sprintf("%s(0x%X)", v.Kind, v.Handle)
	}
	return "none"
}

// ParseValue reads a value of kind k from text: a number for float, u32
// and handle kinds (0x prefix allowed for integers), or a comma-separated
// list of 4 or 16 numbers for vectors and column-major matrices.
func ParseValue(k ValueKind, s string) (ExternValue, error) {
	s = strings.TrimSpace(s)
	switch k {
	case KindFloat:
		f, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return ExternValue{}, fmt.Errorf("%w: %q is not a float", ErrFieldType, s)
		}
		return FloatValue(float32(f)), nil
	case KindU32:
		u, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return ExternValue{}, fmt.Errorf("%w: %q is not a u32", ErrFieldType, s)
		}
		return U32Value(uint32(u)), nil
	case KindTexture, KindUav:
		h, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return ExternValue{}, fmt.Errorf("%w: %q is not a handle", ErrFieldType, s)
		}
		return ExternValue{Kind: k, Handle: h}, nil
	case KindVec4, KindMat4:
		n := 4
		if k == KindMat4 {
			n = 16
		}
		parts := strings.Split(s, ",")
		if len(parts) != n {
			return ExternValue{}, fmt.Errorf("%w: %s needs %d components, got %d", ErrFieldType, k, n, len(parts))
		}
		var m mgl32.Mat4
		for i, p := range parts {
			f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
			if err != nil {
				return ExternValue{}, fmt.Errorf("%w: component %d %q is not a float", ErrFieldType, i, p)
			}
			m[i] = float32(f)
		}
		if k == KindVec4 {
			return Vec4Value(mgl32.Vec4{m[0], m[1], m[2], m[3]}), nil
		}
		return Mat4Value(m), nil
	}
	return ExternValue{}, fmt.Errorf("%w: %s values cannot be parsed", ErrFieldType, k)
}

// ---------------------------------------------------------------------------
// Sources
// ---------------------------------------------------------------------------

// ExternSource is the interpreter's view of extern storage. Extern returns
// false when the extern has no value for this frame. RecordUsed is called
// after every successful read.
type ExternSource interface {
	Extern(kind ExternKind, offset uint32) (ExternValue, bool)
	RecordUsed(kind ExternKind)
}

// ExternStatus classifies the outcome of a detailed lookup.
type ExternStatus uint8

const (
	ExternOK ExternStatus = iota
	// ExternUnimplemented: the field is known but its meaning is not; the
	// returned value is a placeholder and is still used.
	ExternUnimplemented
	ExternInvalidType
	ExternFieldNotFound
	// ExternNotFound: no catalog exists for the kind.
	ExternNotFound
	// ExternDisabled: the kind has a catalog but is disabled this frame.
	ExternDisabled
)

func (s ExternStatus) String() string {
	switch s {
	case ExternOK:
		return "ok"
	case ExternUnimplemented:
		return "unimplemented"
	case ExternInvalidType:
		return "invalid type"
	case ExternFieldNotFound:
		return "field not found"
	case ExternNotFound:
		return "not found"
	case ExternDisabled:
		return "not set"
	}
	return fmt.Sprintf("status(%d)", uint8(s))
}

// ExternLookup is implemented by sources that can say why a read failed.
// want is the type the instruction expects.
type ExternLookup interface {
	Lookup(kind ExternKind, offset uint32, want ValueKind) (ExternValue, ExternStatus)
}
