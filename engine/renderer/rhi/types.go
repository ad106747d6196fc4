package rhi

import "github.com/spaghettifunk/bindless/engine/renderer/metadata"

// Opaque objects owned by a Device implementation. Only the Device that
// produced a value knows what it holds.
type (
	Buffer              interface{}
	Image               interface{}
	ImageView           interface{}
	Sampler             interface{}
	ShaderModule        interface{}
	DescriptorSetLayout interface{}
	DescriptorPool      interface{}
	DescriptorSet       interface{}
	PipelineLayout      interface{}
	Pipeline            interface{}
	RenderPass          interface{}
	Framebuffer         interface{}
	CommandPool         interface{}
	CommandBuffer       interface{}
	Fence               interface{}
	Semaphore           interface{}
)

// WholeSize makes a buffer descriptor cover the buffer from its offset to the end.
const WholeSize = ^uint64(0)

type Format int

const (
	FormatUndefined Format = iota
	FormatRGBA8Unorm
	FormatBGRA8Unorm
	FormatRGBA16Sfloat
	FormatD32Sfloat
)

type ImageUsage uint32

const (
	ImageUsageTransferDst     ImageUsage = 0x00000002
	ImageUsageSampled         ImageUsage = 0x00000004
	ImageUsageColorAttachment ImageUsage = 0x00000010
	ImageUsageDepthAttachment ImageUsage = 0x00000020
)

type PipelineStage uint32

const (
	PipelineStageTopOfPipe             PipelineStage = 0x00000001
	PipelineStageFragmentShader        PipelineStage = 0x00000080
	PipelineStageColorAttachmentOutput PipelineStage = 0x00000400
	PipelineStageBottomOfPipe          PipelineStage = 0x00002000
)

type DeviceLimits struct {
	MinUniformBufferOffsetAlignment uint64
	MaxPushConstantsSize            uint32
	MaxBoundDescriptorSets          uint32
}

type DescriptorSetLayoutDesc struct {
	Bindings []metadata.DescriptorBinding
	// UpdateAfterBind lets descriptors change while a set is bound by
	// recorded command buffers, provided the written slots are not in use.
	UpdateAfterBind bool
	// PartiallyBound lets shaders run with unwritten array elements as long
	// as they are not accessed.
	PartiallyBound bool
}

type DescriptorPoolSize struct {
	Type  metadata.DescriptorType
	Count uint32
}

type DescriptorPoolDesc struct {
	Sizes           []DescriptorPoolSize
	MaxSets         uint32
	UpdateAfterBind bool
}

type ImageDescriptor struct {
	View    ImageView
	Sampler Sampler
}

type BufferDescriptor struct {
	Buffer Buffer
	Offset uint64
	Range  uint64
}

// DescriptorWrite updates a single array element of one binding. Exactly one
// of Image or Buffer is set, matching Type.
type DescriptorWrite struct {
	Set          DescriptorSet
	Binding      uint32
	ArrayElement uint32
	Type         metadata.DescriptorType
	Image        *ImageDescriptor
	Buffer       *BufferDescriptor
}

type BufferDesc struct {
	Size  uint64
	Usage metadata.BufferUsage
	// HostVisible buffers are mapped and written directly by WriteBuffer.
	HostVisible bool
}

type ImageDesc struct {
	Width  uint32
	Height uint32
	Format Format
	Usage  ImageUsage
}

type SamplerDesc struct {
	Linear bool
	Repeat bool
}

type RenderPassDesc struct {
	ColorFormat Format
	DepthFormat Format
	// SampledAfterPass leaves the color attachment readable by shaders once the pass ends.
	SampledAfterPass bool
}

type FramebufferDesc struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      metadata.Extent2D
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Extent      metadata.Extent2D
	ClearColor  [4]float32
	ClearDepth  float32
}

type ShaderStageDesc struct {
	Stage          metadata.ShaderStage
	Module         ShaderModule
	EntryPoint     string
	Specialization map[uint32]uint32
}

type VertexAttributeDesc struct {
	Location uint32
	Format   metadata.VertexFormat
	Offset   uint32
}

type GraphicsPipelineDesc struct {
	Stages           []ShaderStageDesc
	VertexAttributes []VertexAttributeDesc
	VertexStride     uint32
	Layout           PipelineLayout
	RenderPass       RenderPass
	State            metadata.FixedFunctionState
}

type SubmitInfo struct {
	CommandBuffers   []CommandBuffer
	WaitSemaphores   []Semaphore
	WaitStages       []PipelineStage
	SignalSemaphores []Semaphore
}
