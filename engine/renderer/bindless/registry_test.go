package bindless

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi/rhitest"
)

func newTestRegistry(t *testing.T, capacity uint32) (*Registry, *rhitest.Device) {
	t.Helper()
	dev := rhitest.NewDevice()
	r, err := NewRegistry(dev, RegistryConfig{
		MaxTextures:       capacity,
		MaxUniformBuffers: capacity,
		MaxStorageBuffers: capacity,
	})
	require.NoError(t, err)
	return r, dev
}

func TestNewRegistryCreatesBindlessLayout(t *testing.T) {
	r, dev := newTestRegistry(t, 8)

	layouts := dev.ObjectsOf("DescriptorSetLayout")
	require.Len(t, layouts, 1)
	desc := layouts[0].Desc.(rhi.DescriptorSetLayoutDesc)
	assert.True(t, desc.UpdateAfterBind)
	assert.True(t, desc.PartiallyBound)
	assert.Equal(t, []metadata.DescriptorBinding{
		{Binding: UniformBinding, Type: metadata.DescriptorTypeUniformBuffer, Count: 8, Stages: metadata.ShaderStageAllGraphics},
		{Binding: StorageBinding, Type: metadata.DescriptorTypeStorageBuffer, Count: 8, Stages: metadata.ShaderStageAllGraphics},
		{Binding: TextureBinding, Type: metadata.DescriptorTypeCombinedImageSampler, Count: 8, Stages: metadata.ShaderStageAllGraphics},
	}, desc.Bindings)
	assert.Equal(t, 1, dev.CountObjects("DescriptorSet"))

	pl := dev.ObjectsOf("PipelineLayout")
	require.Len(t, pl, 1)
	assert.Equal(t, PushConstantRanges(), pl[0].Desc.(rhitest.PipelineLayoutDesc).PushConstants)
	assert.Equal(t, r.PipelineLayout(), pl[0])
}

func TestNewRegistryRejectsSentinelCapacity(t *testing.T) {
	tests := []struct {
		name   string
		config RegistryConfig
	}{
		{"zero textures", RegistryConfig{MaxTextures: 0, MaxUniformBuffers: 1, MaxStorageBuffers: 1}},
		{"sentinel uniforms", RegistryConfig{MaxTextures: 1, MaxUniformBuffers: metadata.InvalidHandle, MaxStorageBuffers: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(rhitest.NewDevice(), tt.config)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestStoreTextureHandlesAreDenseAndIncreasing(t *testing.T) {
	r, dev := newTestRegistry(t, 16)
	sampler, _ := dev.CreateSampler(rhi.SamplerDesc{})

	for i := 0; i < 16; i++ {
		view, _ := dev.CreateImageView(nil)
		h, err := r.StoreTexture(view, sampler)
		require.NoError(t, err)
		assert.Equal(t, metadata.TextureHandle(i), h)
	}
	assert.Equal(t, 16, r.TextureCount())

	require.Len(t, dev.Writes, 16)
	for i, w := range dev.Writes {
		assert.Equal(t, TextureBinding, w.Binding)
		assert.Equal(t, uint32(i), w.ArrayElement)
		assert.Equal(t, metadata.DescriptorTypeCombinedImageSampler, w.Type)
		assert.Equal(t, r.DescriptorSet(), w.Set)
		require.NotNil(t, w.Image)
		assert.Equal(t, sampler, w.Image.Sampler)
	}
}

func TestStoreTextureFailsFastPastCapacity(t *testing.T) {
	r, dev := newTestRegistry(t, 2)

	for i := 0; i < 2; i++ {
		_, err := r.StoreTexture(nil, nil)
		require.NoError(t, err)
	}
	h, err := r.StoreTexture(nil, nil)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
	assert.Equal(t, metadata.InvalidTexture, h)
	assert.False(t, h.IsValid())

	// the table is untouched: no write aliases slot 0
	assert.Len(t, dev.Writes, 2)
	assert.Equal(t, 2, r.TextureCount())
}

func TestStoreBufferWritesByUsage(t *testing.T) {
	tests := []struct {
		name     string
		usage    metadata.BufferUsage
		bindings []uint32
	}{
		{"uniform", metadata.BufferUsageUniform, []uint32{UniformBinding}},
		{"storage", metadata.BufferUsageStorage | metadata.BufferUsageTransferDst, []uint32{StorageBinding}},
		{"both", metadata.BufferUsageUniform | metadata.BufferUsageStorage, []uint32{UniformBinding, StorageBinding}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, dev := newTestRegistry(t, 4)
			buf, _ := dev.CreateBuffer(rhi.BufferDesc{Size: 64})

			h, err := r.StoreBuffer(buf, tt.usage)
			require.NoError(t, err)
			assert.Equal(t, metadata.BufferHandle(0), h)

			var got []uint32
			for _, w := range dev.Writes {
				got = append(got, w.Binding)
				assert.Equal(t, uint32(0), w.ArrayElement)
				require.NotNil(t, w.Buffer)
				assert.Equal(t, rhi.WholeSize, w.Buffer.Range)
			}
			assert.Equal(t, tt.bindings, got)
		})
	}
}

func TestStoreBufferRejectsUnusableUsage(t *testing.T) {
	r, dev := newTestRegistry(t, 4)

	_, err := r.StoreBuffer(nil, metadata.BufferUsageVertex)
	assert.ErrorIs(t, err, core.ErrProtocolViolation)
	assert.Empty(t, dev.Writes)
	assert.Equal(t, 0, r.BufferCount())
}

func TestStoreBufferCapacity(t *testing.T) {
	r, _ := newTestRegistry(t, 3)

	for i := 0; i < 3; i++ {
		h, err := r.StoreBuffer(nil, metadata.BufferUsageStorage)
		require.NoError(t, err)
		assert.Equal(t, metadata.BufferHandle(i), h)
	}
	_, err := r.StoreBuffer(nil, metadata.BufferUsageStorage)
	assert.ErrorIs(t, err, core.ErrCapacityExceeded)
}

func TestRegistryDestroy(t *testing.T) {
	r, dev := newTestRegistry(t, 1)
	r.Destroy()

	kinds := map[string]bool{}
	for _, o := range dev.Destroyed {
		kinds[o.Kind] = true
	}
	assert.True(t, kinds["PipelineLayout"])
	assert.True(t, kinds["DescriptorPool"])
	assert.True(t, kinds["DescriptorSetLayout"])

	// second call is a no-op
	r.Destroy()
	assert.Len(t, dev.Destroyed, 3)
}
