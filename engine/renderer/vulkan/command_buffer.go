package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

type VulkanCommandBufferState int

const (
	COMMAND_BUFFER_STATE_READY VulkanCommandBufferState = iota
	COMMAND_BUFFER_STATE_RECORDING
	COMMAND_BUFFER_STATE_IN_RENDER_PASS
	COMMAND_BUFFER_STATE_RECORDING_ENDED
	COMMAND_BUFFER_STATE_SUBMITTED
	COMMAND_BUFFER_STATE_NOT_ALLOCATED
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	Pool   vk.CommandPool
	// Command buffer state.
	State VulkanCommandBufferState
}

func (v *VulkanCommandBuffer) UpdateSubmitted() {
	v.State = COMMAND_BUFFER_STATE_SUBMITTED
}

func (vc *VulkanContext) CreateCommandPool() (rhi.CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(vc.Device.GraphicsQueueIndex),
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit),
	}
	var pool vk.CommandPool
	if res := vk.CreateCommandPool(vc.logicalDevice(), &poolCreateInfo, vc.Allocator, &pool); res != vk.Success {
		return nil, resultError("vkCreateCommandPool", res)
	}
	return pool, nil
}

// DestroyCommandPool also frees every buffer allocated from the pool.
func (vc *VulkanContext) DestroyCommandPool(pool rhi.CommandPool) {
	vk.DestroyCommandPool(vc.logicalDevice(), pool.(vk.CommandPool), vc.Allocator)
}

func (vc *VulkanContext) AllocateCommandBuffer(pool rhi.CommandPool) (rhi.CommandBuffer, error) {
	allocateInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool.(vk.CommandPool),
		CommandBufferCount: 1,
		Level:              vk.CommandBufferLevelPrimary,
	}
	handles := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(vc.logicalDevice(), &allocateInfo, handles); res != vk.Success {
		return nil, resultError("vkAllocateCommandBuffers", res)
	}
	return &VulkanCommandBuffer{
		Handle: handles[0],
		Pool:   pool.(vk.CommandPool),
		State:  COMMAND_BUFFER_STATE_READY,
	}, nil
}

func (vc *VulkanContext) ResetCommandPool(pool rhi.CommandPool) error {
	if res := vk.ResetCommandPool(vc.logicalDevice(), pool.(vk.CommandPool), 0); res != vk.Success {
		return resultError("vkResetCommandPool", res)
	}
	return nil
}

func (vc *VulkanContext) BeginCommandBuffer(cmd rhi.CommandBuffer) error {
	v := cmd.(*VulkanCommandBuffer)
	beginInfo := &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if res := vk.BeginCommandBuffer(v.Handle, beginInfo); res != vk.Success {
		return resultError("vkBeginCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING
	return nil
}

func (vc *VulkanContext) EndCommandBuffer(cmd rhi.CommandBuffer) error {
	v := cmd.(*VulkanCommandBuffer)
	if res := vk.EndCommandBuffer(v.Handle); res != vk.Success {
		return resultError("vkEndCommandBuffer", res)
	}
	v.State = COMMAND_BUFFER_STATE_RECORDING_ENDED
	return nil
}

func (vc *VulkanContext) CmdBindPipeline(cmd rhi.CommandBuffer, pipeline rhi.Pipeline) {
	vk.CmdBindPipeline(cmd.(*VulkanCommandBuffer).Handle, vk.PipelineBindPointGraphics, pipeline.(vk.Pipeline))
}

func (vc *VulkanContext) CmdBindDescriptorSets(cmd rhi.CommandBuffer, layout rhi.PipelineLayout, firstSet uint32, sets []rhi.DescriptorSet, dynamicOffsets []uint32) {
	handles := make([]vk.DescriptorSet, len(sets))
	for i, set := range sets {
		handles[i] = set.(vk.DescriptorSet)
	}
	vk.CmdBindDescriptorSets(
		cmd.(*VulkanCommandBuffer).Handle,
		vk.PipelineBindPointGraphics,
		layout.(vk.PipelineLayout),
		firstSet,
		uint32(len(handles)), handles,
		uint32(len(dynamicOffsets)), dynamicOffsets)
}

func (vc *VulkanContext) CmdPushConstants(cmd rhi.CommandBuffer, layout rhi.PipelineLayout, stages metadata.ShaderStage, offset uint32, data []byte) {
	if len(data) == 0 {
		core.LogWarn("CmdPushConstants called without data.")
		return
	}
	vk.CmdPushConstants(
		cmd.(*VulkanCommandBuffer).Handle,
		layout.(vk.PipelineLayout),
		shaderStagesToVk(stages),
		offset,
		uint32(len(data)),
		unsafe.Pointer(&data[0]))
}

func (vc *VulkanContext) CmdBindVertexBuffer(cmd rhi.CommandBuffer, buffer rhi.Buffer, offset uint64) {
	vk.CmdBindVertexBuffers(
		cmd.(*VulkanCommandBuffer).Handle,
		0, 1,
		[]vk.Buffer{buffer.(*VulkanBuffer).Handle},
		[]vk.DeviceSize{vk.DeviceSize(offset)})
}

func (vc *VulkanContext) CmdDraw(cmd rhi.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	vk.CmdDraw(cmd.(*VulkanCommandBuffer).Handle, vertexCount, instanceCount, firstVertex, firstInstance)
}
