// Package bindless owns the global resource table shaders index into, and the
// per-frame draw parameter records that point into it.
package bindless

import (
	"fmt"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// Binding numbers of the bindless set, shared with shader code.
const (
	UniformBinding uint32 = 0
	StorageBinding uint32 = 1
	TextureBinding uint32 = 2
)

// PushConstantSize is the size of the per-stage push constant block: two
// uint32 indices that shaders use to find their draw parameters.
const PushConstantSize uint32 = 2 * 4

// Push constant offsets of each stage's index block. The blocks must not
// overlap, since a push may only name the stages of the ranges it touches.
const (
	VertexPushConstantOffset   uint32 = 0
	FragmentPushConstantOffset uint32 = PushConstantSize
)

// PushConstantRanges reserves the index block for the vertex stage, then the fragment stage.
func PushConstantRanges() []metadata.PushConstantRange {
	return []metadata.PushConstantRange{
		{Stages: metadata.ShaderStageVertex, Offset: VertexPushConstantOffset, Size: PushConstantSize},
		{Stages: metadata.ShaderStageFragment, Offset: FragmentPushConstantOffset, Size: PushConstantSize},
	}
}

type RegistryConfig struct {
	MaxTextures       uint32
	MaxUniformBuffers uint32
	MaxStorageBuffers uint32
}

func (c RegistryConfig) validate() error {
	for name, v := range map[string]uint32{
		"textures":        c.MaxTextures,
		"uniform buffers": c.MaxUniformBuffers,
		"storage buffers": c.MaxStorageBuffers,
	} {
		if v == 0 || v == metadata.InvalidHandle {
			return fmt.Errorf("bindless: capacity for %s must be in [1, %d): %w", name, metadata.InvalidHandle, core.ErrInvalidConfig)
		}
	}
	return nil
}

/**
 * @brief Append-only table of every texture and buffer shaders can reach.
 *
 * Handles are insertion indices and are never reused. Each store writes the
 * descriptor at the handle's array element right away; the set is created
 * update-after-bind and partially-bound so the write is legal while earlier
 * command buffers still use other elements.
 */
type Registry struct {
	device rhi.DescriptorDevice
	config RegistryConfig

	bindings       []metadata.DescriptorBinding
	setLayout      rhi.DescriptorSetLayout
	pool           rhi.DescriptorPool
	set            rhi.DescriptorSet
	pipelineLayout rhi.PipelineLayout

	textures []rhi.ImageView
	buffers  []rhi.Buffer
}

func NewRegistry(device rhi.DescriptorDevice, config RegistryConfig) (*Registry, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		device: device,
		config: config,
		bindings: []metadata.DescriptorBinding{
			{Binding: UniformBinding, Type: metadata.DescriptorTypeUniformBuffer, Count: config.MaxUniformBuffers, Stages: metadata.ShaderStageAllGraphics},
			{Binding: StorageBinding, Type: metadata.DescriptorTypeStorageBuffer, Count: config.MaxStorageBuffers, Stages: metadata.ShaderStageAllGraphics},
			{Binding: TextureBinding, Type: metadata.DescriptorTypeCombinedImageSampler, Count: config.MaxTextures, Stages: metadata.ShaderStageAllGraphics},
		},
	}

	var err error
	r.setLayout, err = device.CreateDescriptorSetLayout(rhi.DescriptorSetLayoutDesc{
		Bindings:        r.bindings,
		UpdateAfterBind: true,
		PartiallyBound:  true,
	})
	if err != nil {
		core.LogError("failed to create bindless descriptor set layout: %s", err)
		return nil, err
	}

	sizes := make([]rhi.DescriptorPoolSize, 0, len(r.bindings))
	for _, b := range r.bindings {
		sizes = append(sizes, rhi.DescriptorPoolSize{Type: b.Type, Count: b.Count})
	}
	r.pool, err = device.CreateDescriptorPool(rhi.DescriptorPoolDesc{
		Sizes:           sizes,
		MaxSets:         1,
		UpdateAfterBind: true,
	})
	if err != nil {
		core.LogError("failed to create bindless descriptor pool: %s", err)
		r.Destroy()
		return nil, err
	}

	r.set, err = device.AllocateDescriptorSet(r.pool, r.setLayout, 0)
	if err != nil {
		core.LogError("failed to allocate bindless descriptor set: %s", err)
		r.Destroy()
		return nil, err
	}

	r.pipelineLayout, err = device.CreatePipelineLayout([]rhi.DescriptorSetLayout{r.setLayout}, PushConstantRanges())
	if err != nil {
		core.LogError("failed to create bindless pipeline layout: %s", err)
		r.Destroy()
		return nil, err
	}

	r.textures = make([]rhi.ImageView, 0, config.MaxTextures)
	core.LogDebug("Bindless registry created (textures=%d uniform=%d storage=%d).",
		config.MaxTextures, config.MaxUniformBuffers, config.MaxStorageBuffers)
	return r, nil
}

// StoreTexture registers a sampled image and returns its index in the texture table.
func (r *Registry) StoreTexture(view rhi.ImageView, sampler rhi.Sampler) (metadata.TextureHandle, error) {
	if uint32(len(r.textures)) >= r.config.MaxTextures {
		err := fmt.Errorf("bindless: texture table is full (%d entries): %w", r.config.MaxTextures, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return metadata.InvalidTexture, err
	}
	handle := uint32(len(r.textures))
	r.textures = append(r.textures, view)

	r.device.UpdateDescriptorSets([]rhi.DescriptorWrite{{
		Set:          r.set,
		Binding:      TextureBinding,
		ArrayElement: handle,
		Type:         metadata.DescriptorTypeCombinedImageSampler,
		Image:        &rhi.ImageDescriptor{View: view, Sampler: sampler},
	}})
	return metadata.TextureHandle(handle), nil
}

// StoreBuffer registers a buffer in the uniform table, the storage table or
// both, depending on usage, and returns its index. Uniform and storage
// entries share the same index space.
func (r *Registry) StoreBuffer(buffer rhi.Buffer, usage metadata.BufferUsage) (metadata.BufferHandle, error) {
	isUniform := usage.Has(metadata.BufferUsageUniform)
	isStorage := usage.Has(metadata.BufferUsageStorage)
	if !isUniform && !isStorage {
		err := fmt.Errorf("bindless: buffer usage %s is neither uniform nor storage: %w", usage, core.ErrProtocolViolation)
		core.LogError(err.Error())
		return metadata.InvalidBuffer, err
	}

	handle := uint32(len(r.buffers))
	if (isUniform && handle >= r.config.MaxUniformBuffers) || (isStorage && handle >= r.config.MaxStorageBuffers) {
		err := fmt.Errorf("bindless: buffer table is full (%d entries, usage %s): %w", handle, usage, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return metadata.InvalidBuffer, err
	}
	r.buffers = append(r.buffers, buffer)

	info := &rhi.BufferDescriptor{Buffer: buffer, Offset: 0, Range: rhi.WholeSize}
	writes := make([]rhi.DescriptorWrite, 0, 2)
	if isUniform {
		writes = append(writes, rhi.DescriptorWrite{
			Set:          r.set,
			Binding:      UniformBinding,
			ArrayElement: handle,
			Type:         metadata.DescriptorTypeUniformBuffer,
			Buffer:       info,
		})
	}
	if isStorage {
		writes = append(writes, rhi.DescriptorWrite{
			Set:          r.set,
			Binding:      StorageBinding,
			ArrayElement: handle,
			Type:         metadata.DescriptorTypeStorageBuffer,
			Buffer:       info,
		})
	}
	r.device.UpdateDescriptorSets(writes)
	return metadata.BufferHandle(handle), nil
}

func (r *Registry) DescriptorSet() rhi.DescriptorSet             { return r.set }
func (r *Registry) DescriptorSetLayout() rhi.DescriptorSetLayout { return r.setLayout }

// PipelineLayout covers only the bindless set and the index push constants.
func (r *Registry) PipelineLayout() rhi.PipelineLayout { return r.pipelineLayout }

// Bindings returns the layout of the bindless set.
func (r *Registry) Bindings() []metadata.DescriptorBinding {
	return append([]metadata.DescriptorBinding(nil), r.bindings...)
}

func (r *Registry) TextureCount() int { return len(r.textures) }
func (r *Registry) BufferCount() int  { return len(r.buffers) }

// Destroy releases the GPU objects of the table. Registered resources are
// owned by the caller and are left untouched.
func (r *Registry) Destroy() {
	if r.pipelineLayout != nil {
		r.device.DestroyPipelineLayout(r.pipelineLayout)
		r.pipelineLayout = nil
	}
	if r.pool != nil {
		r.device.DestroyDescriptorPool(r.pool)
		r.pool = nil
		r.set = nil
	}
	if r.setLayout != nil {
		r.device.DestroyDescriptorSetLayout(r.setLayout)
		r.setLayout = nil
	}
}
