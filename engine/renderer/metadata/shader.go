package metadata

import (
	"fmt"
	"strings"
)

/** @brief Shader stages available in the system. Values match the Vulkan stage bits. */
type ShaderStage uint32

const (
	ShaderStageVertex   ShaderStage = 0x00000001
	ShaderStageGeometry ShaderStage = 0x00000008
	ShaderStageFragment ShaderStage = 0x00000010
	ShaderStageCompute  ShaderStage = 0x00000020

	ShaderStageAllGraphics = ShaderStageVertex | ShaderStageGeometry | ShaderStageFragment
)

func (s ShaderStage) Has(stage ShaderStage) bool {
	return s&stage == stage
}

func (s ShaderStage) String() string {
	var parts []string
	if s.Has(ShaderStageVertex) {
		parts = append(parts, "vertex")
	}
	if s.Has(ShaderStageGeometry) {
		parts = append(parts, "geometry")
	}
	if s.Has(ShaderStageFragment) {
		parts = append(parts, "fragment")
	}
	if s.Has(ShaderStageCompute) {
		parts = append(parts, "compute")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

func ShaderStageFromString(s string) (ShaderStage, error) {
	switch strings.ToLower(s) {
	case "vertex", "vert":
		return ShaderStageVertex, nil
	case "geometry", "geom":
		return ShaderStageGeometry, nil
	case "fragment", "frag":
		return ShaderStageFragment, nil
	case "compute", "comp":
		return ShaderStageCompute, nil
	}
	return 0, fmt.Errorf("string %s is not a valid ShaderStage", s)
}

/** @brief Available vertex attribute formats. */
type VertexFormat uint

const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatInt32
	VertexFormatUint32
	VertexFormatUint8x4Norm
)

var vertexFormats = []struct {
	name string
	size uint32
}{
	VertexFormatFloat32:     {"float32", 4},
	VertexFormatFloat32x2:   {"float32x2", 8},
	VertexFormatFloat32x3:   {"float32x3", 12},
	VertexFormatFloat32x4:   {"float32x4", 16},
	VertexFormatInt32:       {"int32", 4},
	VertexFormatUint32:      {"uint32", 4},
	VertexFormatUint8x4Norm: {"uint8x4_norm", 4},
}

// Size returns the attribute size in bytes.
func (f VertexFormat) Size() uint32 {
	if int(f) >= len(vertexFormats) {
		return 0
	}
	return vertexFormats[f].size
}

func (f VertexFormat) String() string {
	if int(f) >= len(vertexFormats) {
		return fmt.Sprintf("vertex_format(%d)", uint(f))
	}
	return vertexFormats[f].name
}

func VertexFormatFromString(s string) (VertexFormat, error) {
	for i, f := range vertexFormats {
		if f.name == s {
			return VertexFormat(i), nil
		}
	}
	return 0, fmt.Errorf("string %s is not a valid VertexFormat", s)
}

/**
 * @brief A vertex shader input as reported by reflection.
 */
type VertexAttribute struct {
	Location uint32
	Format   VertexFormat
}

/**
 * @brief A binding as reported by reflection of a single shader stage.
 */
type ReflectedBinding struct {
	Binding uint32
	Type    DescriptorType
	/** @brief Array length, or 0 when the shader declares an unsized array. */
	Count uint32
	/**
	 * @brief When set, the array length is driven by this specialization
	 * constant and is only known once the constant is given a value.
	 */
	CountSpecID *uint32
}

/**
 * @brief Everything the pipeline cache needs to know about one compiled
 * shader stage. Produced by the shader loader; never parsed from bytecode here.
 */
type ShaderReflection struct {
	Name       string
	Stage      ShaderStage
	EntryPoint string
	/** @brief Vertex inputs, only meaningful for vertex shaders. */
	VertexAttributes []VertexAttribute
	/** @brief Bindings indexed by set number. Empty sets are allowed. */
	Sets          [][]ReflectedBinding
	PushConstants []PushConstantRange
	/** @brief Specialization constant ids declared by the shader. */
	SpecializationConstants []uint32
}
