// Package rhi describes the GPU context handed to every renderer component.
//
// Components take the narrowest interface they need; the Vulkan backend and
// the test fake implement all of them through Device.
package rhi

import "github.com/spaghettifunk/bindless/engine/renderer/metadata"

type DescriptorDevice interface {
	CreateDescriptorSetLayout(desc DescriptorSetLayoutDesc) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(desc DescriptorPoolDesc) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	// AllocateDescriptorSet allocates one set. variableCount sizes the
	// variable-count binding of the layout, if it has one.
	AllocateDescriptorSet(pool DescriptorPool, layout DescriptorSetLayout, variableCount uint32) (DescriptorSet, error)
	// ResetDescriptorPool returns every set allocated from pool to it.
	ResetDescriptorPool(pool DescriptorPool) error
	UpdateDescriptorSets(writes []DescriptorWrite)
	CreatePipelineLayout(setLayouts []DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
}

type ResourceDevice interface {
	CreateBuffer(desc BufferDesc) (Buffer, error)
	WriteBuffer(buffer Buffer, offset uint64, data []byte) error
	DestroyBuffer(buffer Buffer)
	CreateImage(desc ImageDesc) (Image, error)
	DestroyImage(image Image)
	CreateImageView(image Image) (ImageView, error)
	DestroyImageView(view ImageView)
	CreateSampler(desc SamplerDesc) (Sampler, error)
	DestroySampler(sampler Sampler)
}

type PipelineDevice interface {
	CreateShaderModule(code []byte) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)
	CreateRenderPass(desc RenderPassDesc) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreateFramebuffer(desc FramebufferDesc) (Framebuffer, error)
	DestroyFramebuffer(fb Framebuffer)
	CreateGraphicsPipeline(desc GraphicsPipelineDesc) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)
}

type CommandDevice interface {
	CreateCommandPool() (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffer(pool CommandPool) (CommandBuffer, error)
	// ResetCommandPool returns every buffer allocated from pool to the initial state.
	ResetCommandPool(pool CommandPool) error
	BeginCommandBuffer(cmd CommandBuffer) error
	EndCommandBuffer(cmd CommandBuffer) error

	CmdBeginRenderPass(cmd CommandBuffer, info RenderPassBeginInfo)
	CmdEndRenderPass(cmd CommandBuffer)
	CmdBindPipeline(cmd CommandBuffer, pipeline Pipeline)
	CmdBindDescriptorSets(cmd CommandBuffer, layout PipelineLayout, firstSet uint32, sets []DescriptorSet, dynamicOffsets []uint32)
	CmdPushConstants(cmd CommandBuffer, layout PipelineLayout, stages metadata.ShaderStage, offset uint32, data []byte)
	CmdBindVertexBuffer(cmd CommandBuffer, buffer Buffer, offset uint64)
	CmdDraw(cmd CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32)
}

type SyncDevice interface {
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFence blocks until the fence signals. There is no timeout: a
	// fence that never signals means the GPU is hung.
	WaitForFence(fence Fence) error
	ResetFence(fence Fence) error
	Submit(info SubmitInfo, fence Fence) error
	WaitIdle() error
}

type Device interface {
	DescriptorDevice
	ResourceDevice
	PipelineDevice
	CommandDevice
	SyncDevice

	Limits() DeviceLimits
}
