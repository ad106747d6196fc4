package loaders

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
)

const compositeFragment = `
name = "composite"
stage = "fragment"
specialization_constants = [0]

[[push_constants]]
offset = 8
size = 8

[[bindings]]
set = 1
binding = 0
type = "uniform_buffer_dynamic"
count = 1

[[bindings]]
set = 0
binding = 2
type = "combined_image_sampler"
count_spec_id = 0

[[bindings]]
set = 0
binding = 0
type = "uniform_buffer"
`

func TestParseReflection(t *testing.T) {
	r, err := ParseReflection([]byte(compositeFragment))
	require.NoError(t, err)

	assert.Equal(t, "composite", r.Name)
	assert.Equal(t, metadata.ShaderStageFragment, r.Stage)
	assert.Equal(t, []uint32{0}, r.SpecializationConstants)
	assert.Equal(t, []metadata.PushConstantRange{
		{Stages: metadata.ShaderStageFragment, Offset: 8, Size: 8},
	}, r.PushConstants)

	require.Len(t, r.Sets, 2)
	require.Len(t, r.Sets[0], 2)
	assert.Equal(t, uint32(0), r.Sets[0][0].Binding)
	assert.Equal(t, metadata.DescriptorTypeUniformBuffer, r.Sets[0][0].Type)
	assert.Equal(t, uint32(2), r.Sets[0][1].Binding)
	require.NotNil(t, r.Sets[0][1].CountSpecID)
	assert.Equal(t, uint32(0), *r.Sets[0][1].CountSpecID)
	assert.Equal(t, metadata.DescriptorTypeUniformBufferDynamic, r.Sets[1][0].Type)
}

func TestParseReflectionVertexAttributes(t *testing.T) {
	r, err := ParseReflection([]byte(`
name = "quad"
stage = "vert"
entry_point = "vs_main"

[[vertex_attributes]]
location = 1
format = "float32x2"

[[vertex_attributes]]
location = 0
format = "float32x3"

[[push_constants]]
stages = ["vertex", "fragment"]
size = 16
`))
	require.NoError(t, err)

	assert.Equal(t, metadata.ShaderStageVertex, r.Stage)
	assert.Equal(t, "vs_main", r.EntryPoint)
	assert.Equal(t, []metadata.VertexAttribute{
		{Location: 1, Format: metadata.VertexFormatFloat32x2},
		{Location: 0, Format: metadata.VertexFormatFloat32x3},
	}, r.VertexAttributes)
	assert.Equal(t, metadata.ShaderStageVertex|metadata.ShaderStageFragment, r.PushConstants[0].Stages)
	assert.Empty(t, r.Sets)
}

func TestParseReflectionErrors(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
	}{
		{"not toml", `name = `},
		{"no name", `stage = "vertex"`},
		{"bad stage", `name = "a"
stage = "tessellation"`},
		{"bad format", `name = "a"
stage = "vertex"
[[vertex_attributes]]
location = 0
format = "float16"`},
		{"bad binding type", `name = "a"
stage = "vertex"
[[bindings]]
binding = 0
type = "acceleration_structure"`},
		{"duplicate binding", `name = "a"
stage = "vertex"
[[bindings]]
binding = 3
type = "uniform_buffer"
[[bindings]]
binding = 3
type = "storage_buffer"`},
		{"undeclared count constant", `name = "a"
stage = "vertex"
[[bindings]]
binding = 0
type = "storage_buffer"
count_spec_id = 4`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseReflection([]byte(tt.manifest))
			assert.Error(t, err)
		})
	}
}

func TestShaderLoaderReadsBytecodeAndManifest(t *testing.T) {
	dir := t.TempDir()
	path := ShaderPath(dir, "composite", metadata.ShaderStageFragment)
	assert.Equal(t, filepath.Join(dir, "composite.fragment.spv"), path)
	assert.Equal(t, filepath.Join(dir, "composite.fragment.reflect.toml"), ReflectionPath(path))

	code := []byte{0x03, 0x02, 0x23, 0x07, 0, 0, 1, 0}
	require.NoError(t, os.WriteFile(path, code, 0o644))
	require.NoError(t, os.WriteFile(ReflectionPath(path), []byte(compositeFragment), 0o644))

	loader := &ShaderLoader{}
	res, err := loader.Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, "composite", res.Name)
	assert.Equal(t, uint64(len(code)), res.DataSize)
	src, ok := res.Data.(*ShaderSource)
	require.True(t, ok)
	assert.Equal(t, code, src.Code)
	assert.Equal(t, metadata.ShaderStageFragment, src.Reflection.Stage)

	require.NoError(t, loader.Unload(res))
	assert.Nil(t, res.Data)
}

func TestShaderLoaderNeedsManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lonely.vertex.spv")
	require.NoError(t, os.WriteFile(path, []byte{0, 0, 0, 0}, 0o644))

	_, err := (&ShaderLoader{}).Load(path, nil)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestBinaryLoaderName(t *testing.T) {
	path := filepath.Join(t.TempDir(), "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))

	res, err := (&BinaryLoader{}).Load(path, nil)
	require.NoError(t, err)
	assert.Equal(t, "blob", res.Name)
	assert.Equal(t, []byte("abc"), res.Data)

	res, err = (&BinaryLoader{}).Load(path, map[string]string{"name": "custom"})
	require.NoError(t, err)
	assert.Equal(t, "custom", res.Name)
}
