package tfx

import "github.com/go-gl/mathgl/mgl32"

// ExternField describes one field of an extern block.
type ExternField struct {
	Name   string
	Offset uint32
	Kind   ValueKind
	// Unimplemented marks fields whose meaning is unknown. Reads still
	// return the default but are reported.
	Unimplemented bool
	Default       ExternValue
}

type externCatalog struct {
	kind   ExternKind
	fields []ExternField
	byOff  map[uint32]int
	byName map[string]int
}

// Defaults for fields without an explicit one.
func defaultFor(k ValueKind) ExternValue {
	switch k {
	case KindFloat:
		return FloatValue(1)
	case KindVec4:
		return Vec4Value(mgl32.Vec4{1, 1, 1, 1})
	case KindMat4:
		return Mat4Value(mgl32.Ident4())
	}
	return ExternValue{Kind: k}
}

type fieldOpt func(*ExternField)

func unimpl(f *ExternField) { f.Unimplemented = true }

func def(v ExternValue) fieldOpt {
	return func(f *ExternField) { f.Default = v }
}

func defVec(x, y, z, w float32) fieldOpt { return def(Vec4Value(mgl32.Vec4{x, y, z, w})) }
func defFloat(x float32) fieldOpt        { return def(FloatValue(x)) }

func field(off uint32, name string, k ValueKind, opts ...fieldOpt) ExternField {
	f := ExternField{Name: name, Offset: off, Kind: k, Default: defaultFor(k)}
	for _, o := range opts {
		o(&f)
	}
	return f
}

func fl(off uint32, name string, opts ...fieldOpt) ExternField {
	return field(off, name, KindFloat, opts...)
}
func v4(off uint32, name string, opts ...fieldOpt) ExternField {
	return field(off, name, KindVec4, opts...)
}
func m4(off uint32, name string, opts ...fieldOpt) ExternField {
	return field(off, name, KindMat4, opts...)
}
func tx(off uint32, name string, opts ...fieldOpt) ExternField {
	return field(off, name, KindTexture, opts...)
}
func uav(off uint32, name string, opts ...fieldOpt) ExternField {
	return field(off, name, KindUav, opts...)
}

var depthDefault = defVec(0, 100, 0, 0)

var externCatalogs = buildCatalogs(map[ExternKind][]ExternField{
	ExternFrame: {
		fl(0x00, "game_time"),
		fl(0x04, "render_time"),
		fl(0x0c, "unk0c", unimpl),
		fl(0x10, "unk10", unimpl),
		fl(0x14, "delta_game_time", unimpl),
		fl(0x18, "exposure_time", unimpl),
		fl(0x1c, "exposure_scale"),
		fl(0x20, "unk20", unimpl),
		fl(0x24, "unk24", unimpl),
		fl(0x28, "exposure_illum_relative", unimpl),
		fl(0x2c, "unk2c", unimpl),
		fl(0x40, "unk40", unimpl),
		fl(0x70, "unk70", unimpl),
		tx(0x78, "unk78", unimpl),
		tx(0x80, "unk80", unimpl),
		tx(0x88, "unk88", unimpl),
		tx(0x90, "unk90", unimpl),
		tx(0x98, "unk98", unimpl),
		tx(0xa0, "unka0", unimpl),
		tx(0xa8, "specular_lobe_lookup"),
		tx(0xb0, "specular_lobe_3d_lookup"),
		tx(0xb8, "specular_tint_lookup"),
		tx(0xc0, "iridescence_lookup"),
		v4(0xd0, "unkd0", unimpl),
		v4(0x150, "unk150", unimpl),
		v4(0x160, "unk160", unimpl),
		v4(0x170, "unk170", unimpl),
		v4(0x180, "unk180", unimpl),
		fl(0x190, "unk190", unimpl),
		fl(0x194, "unk194", unimpl),
		// Non-zero values add a noise pattern to cutout textures.
		v4(0x1a0, "unk1a0", defVec(0, 0, 0, 0)),
		v4(0x1b0, "unk1b0"),
		v4(0x1c0, "unk1c0", defVec(1, 1, 0, 1)),
		tx(0x1e0, "unk1e0", unimpl),
		tx(0x1e8, "unk1e8", unimpl),
		tx(0x1f0, "unk1f0", unimpl),
	},
	ExternView: {
		fl(0x00, "resolution_width"),
		fl(0x04, "resolution_height"),
		v4(0x10, "view_miscellaneous"),
		v4(0x20, "position"),
		v4(0x30, "unk30"),
		m4(0x40, "world_to_camera"),
		m4(0x80, "camera_to_projective"),
		m4(0xc0, "camera_to_world"),
		m4(0x100, "projective_to_camera"),
		m4(0x140, "world_to_projective"),
		m4(0x180, "projective_to_world"),
		m4(0x1c0, "target_pixel_to_world"),
		m4(0x200, "target_pixel_to_camera"),
		m4(0x240, "unk240", unimpl),
		m4(0x280, "tptow_no_proj_w"),
		m4(0x2c0, "unk2c0", unimpl),
	},
	ExternDeferred: {
		v4(0x00, "depth_constants", depthDefault),
		v4(0x10, "unk10", unimpl),
		v4(0x20, "unk20", unimpl),
		fl(0x30, "unk30", unimpl),
		tx(0x38, "deferred_depth"),
		tx(0x48, "deferred_rt0"),
		tx(0x50, "deferred_rt1"),
		tx(0x58, "deferred_rt2"),
		tx(0x60, "light_diffuse"),
		tx(0x68, "light_specular"),
		tx(0x70, "light_ibl_specular"),
		tx(0x78, "unk78", unimpl),
		tx(0x80, "unk80", unimpl),
		tx(0x88, "unk88", unimpl),
		tx(0x90, "unk90", unimpl),
		tx(0x98, "sky_hemisphere_mips"),
	},
	ExternDeferredLight: {
		m4(0x40, "unk40"),
		m4(0x80, "unk80", unimpl),
		v4(0xc0, "unkc0", unimpl, defVec(0, 0, 0, 1)),
		v4(0xd0, "unkd0", unimpl, defVec(0, 0, 0, 1)),
		v4(0xe0, "unke0", unimpl, defVec(0, 0, 0, 1)),
		v4(0xf0, "unkf0", unimpl, defVec(0, 0, 0, 1)),
		v4(0x100, "unk100"),
		fl(0x110, "unk110", unimpl),
		fl(0x114, "unk114", unimpl, defFloat(7500)),
		fl(0x118, "unk118", unimpl),
		fl(0x11c, "unk11c", unimpl),
		fl(0x120, "unk120", unimpl),
	},
	ExternDeferredShadow: {
		tx(0x00, "unk00"),
		tx(0x08, "unk08", unimpl),
		tx(0x10, "unk10", unimpl),
		fl(0x18, "resolution_width"),
		fl(0x1c, "resolution_height"),
		fl(0x20, "unk20", unimpl),
		tx(0x28, "unk28", unimpl),
		v4(0x30, "unk30", unimpl, defVec(1.5, 1, 1, 1)),
		v4(0x40, "unk40", unimpl),
		v4(0x50, "unk50", unimpl),
		v4(0x80, "unk80", unimpl),
		v4(0x90, "unk90", unimpl),
		v4(0xa0, "unka0", unimpl),
		v4(0xb0, "unkb0", unimpl, defVec(0, 0, 1, 1)),
		m4(0xc0, "unkc0"),
		m4(0x100, "unk100", unimpl),
		fl(0x180, "unk180", unimpl),
	},
	ExternTransparent: {
		tx(0x00, "atmos_ss_far_lookup"),
		tx(0x08, "atmos_ss_far_lookup_downsampled"),
		tx(0x10, "atmos_ss_near_lookup"),
		tx(0x18, "atmos_ss_near_lookup_downsampled"),
		tx(0x20, "surf_atmosphere_depth_angle_density_lookup"),
		tx(0x28, "unk28"),
		tx(0x30, "unk30"),
		tx(0x38, "unk38"),
		tx(0x40, "light_grid_shadow_final"),
		tx(0x48, "surf_volumetrics_result"),
		tx(0x50, "surf_volumetrics_result_intensity_3d"),
		tx(0x58, "unk58"),
		tx(0x60, "surf_shading_result_read"),
		v4(0x70, "unk70", unimpl),
		v4(0x80, "unk80", unimpl),
		v4(0x90, "unk90", unimpl),
		v4(0xa0, "unka0", unimpl),
		v4(0xb0, "unkb0", unimpl),
	},
	ExternAtmosphere: {
		tx(0x00, "unk00", unimpl),
		tx(0x08, "unk08", unimpl),
		tx(0x10, "unk10", unimpl),
		tx(0x18, "unk18", unimpl),
		tx(0x40, "unk40", unimpl),
		tx(0x58, "unk58", unimpl),
		// 0 and 1 are midnight, 0.5 is midday.
		fl(0x70, "time_of_day_normalized", defFloat(0.5)),
		fl(0x74, "unk74", unimpl),
		fl(0x78, "unk78", unimpl),
		tx(0x80, "unk80", unimpl),
		tx(0x88, "unk88", unimpl),
		v4(0x90, "unk90", unimpl),
		tx(0xa0, "light_shaft_optical_depth", unimpl),
		tx(0xc0, "unkc0", unimpl),
		v4(0xd0, "unkd0", unimpl),
		tx(0xe0, "atmos_ss_far_lookup"),
		tx(0xe8, "atmos_ss_far_lookup_downsampled", unimpl),
		tx(0xf0, "atmos_ss_near_lookup"),
		tx(0xf8, "atmos_ss_near_lookup_downsampled", unimpl),
		tx(0x100, "unk100", unimpl),
		v4(0x110, "unk110", unimpl, defVec(0, 0, -1.5, 0)),
		v4(0x140, "fog_color", unimpl),
		fl(0x150, "unk150", unimpl),
		fl(0x154, "unk154", unimpl),
		fl(0x160, "fog_intensity", unimpl),
		fl(0x164, "unk164", unimpl),
		fl(0x168, "unk168", unimpl),
		fl(0x16c, "unk16c", unimpl),
		fl(0x170, "unk170", unimpl, defFloat(0.0001)),
		v4(0x180, "unk180", unimpl),
		fl(0x190, "unk190", unimpl),
		fl(0x194, "unk194", unimpl),
		fl(0x198, "unk198", unimpl, defFloat(0.0001)),
		fl(0x1b4, "rotation", unimpl, defFloat(0)),
		fl(0x1b8, "intensity", unimpl),
		fl(0x1bc, "unk1bc", unimpl, defFloat(0.5)),
		fl(0x1c0, "unk1c0", unimpl),
		fl(0x1c4, "unk1c4", unimpl),
		v4(0x1d0, "unk1d0", unimpl, defVec(0, 0, 0, 0)),
		fl(0x1e0, "unk1e0", unimpl),
		fl(0x1e4, "unk1e4", unimpl),
		fl(0x1e8, "unk1e8", unimpl, defFloat(0)),
		fl(0x1ec, "unk1ec", unimpl),
		fl(0x1f8, "unk1f8", unimpl),
		fl(0x1fc, "unk1fc", unimpl),
		fl(0x208, "unk208", unimpl),
		v4(0x210, "unk210", unimpl),
	},
	ExternWater: {
		tx(0x00, "unk00", unimpl),
		tx(0x08, "unk08", unimpl),
		tx(0x18, "unk18", unimpl),
		tx(0x28, "unk28", unimpl),
		tx(0x30, "unk30", unimpl),
		v4(0x40, "unk40", unimpl),
		v4(0x50, "unk50", unimpl),
		fl(0x70, "unk70", unimpl),
	},
	ExternSimpleGeometry: {
		m4(0x00, "transform"),
	},
	ExternCubemaps: {
		tx(0x00, "temp_ao", unimpl),
	},
	ExternDecal: {
		tx(0x00, "unk00", unimpl),
		tx(0x08, "rt1_copy"),
		v4(0x10, "unk10", unimpl),
		v4(0x20, "unk20", unimpl),
	},
	ExternRigidModel: {
		m4(0x00, "mesh_to_world"),
		v4(0x40, "position_scale"),
		v4(0x50, "position_offset"),
		v4(0x60, "texcoord0_scale_offset"),
		v4(0x70, "dynamic_sh_ao_values"),
	},
	ExternHdao: {
		v4(0x00, "unk00", unimpl, depthDefault),
		v4(0x10, "unk10", unimpl, depthDefault),
		v4(0x20, "unk20", unimpl),
		v4(0x30, "unk30", unimpl),
		v4(0x40, "unk40", unimpl, depthDefault),
		v4(0x50, "unk50", unimpl),
		tx(0x60, "unk60"),
		tx(0x68, "unk68"),
		v4(0x70, "unk70", unimpl),
		v4(0x80, "unk80", unimpl),
		v4(0x90, "unk90", unimpl, depthDefault),
	},
	ExternGlobalLighting: {
		tx(0x08, "unk08", unimpl),
		v4(0x10, "unk10", unimpl),
		v4(0x30, "specular_light_direction", unimpl, defVec(1, -1, 1, 0)),
		v4(0x50, "diffuse_light_direction", unimpl, defVec(1, -1, 1, 0)),
		v4(0x70, "unk70", unimpl),
		v4(0x80, "unk80", unimpl),
		fl(0x90, "unk90", unimpl),
		fl(0x94, "unk94", unimpl, defFloat(-0.5)),
		fl(0x98, "unk98", unimpl),
		fl(0x9c, "unk9c", unimpl),
		fl(0xa0, "unka0", unimpl),
		v4(0xb0, "unkb0", unimpl),
		v4(0xc0, "unkc0", unimpl),
		v4(0xd0, "unkd0", unimpl),
	},
	ExternSpeedtreePlacements: {
		v4(0x00, "unk00", unimpl, defVec(0, 0, 0, 0)),
		v4(0x10, "unk10", unimpl, defVec(0, 0, 0, 1)),
		v4(0x20, "unk20", unimpl),
		v4(0x30, "unk30", unimpl),
		v4(0x40, "unk40", unimpl),
		v4(0x50, "unk50", unimpl),
		v4(0x60, "unk60", unimpl),
		v4(0x70, "unk70", unimpl, defVec(0, 0, 0, 0)),
	},
	ExternDecoratorWind: {
		v4(0x00, "unk00", unimpl, defVec(0, 0, 0, 0.01)),
	},
	ExternPostprocess: {
		tx(0x00, "unk00"),
		tx(0x08, "unk08"),
		tx(0x10, "unk10"),
		tx(0x18, "unk18"),
		tx(0x20, "unk20"),
		tx(0x28, "unk28"),
		uav(0x30, "unk30"),
		uav(0x38, "unk38"),
		uav(0x40, "unk40"),
		uav(0x48, "unk48"),
		v4(0x50, "unk50"),
		v4(0x60, "unk60"),
		v4(0x80, "unk80"),
		v4(0xc0, "unkc0"),
		v4(0xd0, "unkd0"),
		v4(0xe0, "unke0"),
		v4(0xf0, "unkf0"),
		v4(0x100, "unk100"),
		v4(0x110, "unk110"),
		v4(0x130, "unk130"),
	},
	ExternShadowMask: {
		tx(0x00, "unk00"),
		tx(0x08, "unk08"),
		tx(0x10, "unk10"),
		v4(0x20, "unk20"),
		fl(0x30, "unk30"),
		fl(0x34, "unk34"),
	},
})

func buildCatalogs(m map[ExternKind][]ExternField) [externKindCount]*externCatalog {
	var out [externKindCount]*externCatalog
	for kind, fields := range m {
		c := &externCatalog{
			kind:   kind,
			fields: fields,
			byOff:  make(map[uint32]int, len(fields)),
			byName: make(map[string]int, len(fields)),
		}
		for i, f := range fields {
			c.byOff[f.Offset] = i
			c.byName[f.Name] = i
		}
		out[kind] = c
	}
	return out
}

// HasCatalog reports whether the extern has a declared field layout.
func HasCatalog(kind ExternKind) bool {
	return kind.Valid() && externCatalogs[kind] != nil
}

// Fields returns the declared fields of an extern in offset order.
func Fields(kind ExternKind) []ExternField {
	if !HasCatalog(kind) {
		return nil
	}
	return append([]ExternField(nil), externCatalogs[kind].fields...)
}

// FieldAt returns the field declared at offset.
func FieldAt(kind ExternKind, offset uint32) (ExternField, bool) {
	if !HasCatalog(kind) {
		return ExternField{}, false
	}
	c := externCatalogs[kind]
	i, ok := c.byOff[offset]
	if !ok {
		return ExternField{}, false
	}
	return c.fields[i], true
}

// FieldPath names the field at offset as "extern->field".
func FieldPath(kind ExternKind, offset uint32) (string, bool) {
	f, ok := FieldAt(kind, offset)
	if !ok {
		return "", false
	}
	return kind.String() + "->" + f.Name, true
}
