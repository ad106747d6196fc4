package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

type VulkanFence struct {
	Handle     vk.Fence
	IsSignaled bool
}

func (vc *VulkanContext) CreateFence(signaled bool) (rhi.Fence, error) {
	fence := &VulkanFence{
		IsSignaled: signaled,
	}

	fenceCreateInfo := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if fence.IsSignaled {
		fenceCreateInfo.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}

	var pFence vk.Fence
	if res := vk.CreateFence(vc.logicalDevice(), &fenceCreateInfo, vc.Allocator, &pFence); res != vk.Success {
		return nil, resultError("vkCreateFence", res)
	}
	fence.Handle = pFence
	return fence, nil
}

func (vc *VulkanContext) DestroyFence(f rhi.Fence) {
	fence := f.(*VulkanFence)
	if fence.Handle != nil {
		vk.DestroyFence(vc.logicalDevice(), fence.Handle, vc.Allocator)
		fence.Handle = nil
	}
	fence.IsSignaled = false
}

// WaitForFence blocks without a timeout. A signaled fence returns at once.
func (vc *VulkanContext) WaitForFence(f rhi.Fence) error {
	fence := f.(*VulkanFence)
	if fence.IsSignaled {
		return nil
	}
	result := vk.WaitForFences(vc.logicalDevice(), 1, []vk.Fence{fence.Handle}, vk.True, vk.MaxUint64)
	switch result {
	case vk.Success:
		fence.IsSignaled = true
		return nil
	case vk.Timeout:
		// Unreachable without a timeout, unless the driver is broken.
		err := fmt.Errorf("vkWaitForFences timed out: %w", core.ErrDeviceLost)
		core.LogError(err.Error())
		return err
	default:
		return resultError("vkWaitForFences", result)
	}
}

func (vc *VulkanContext) ResetFence(f rhi.Fence) error {
	fence := f.(*VulkanFence)
	if !fence.IsSignaled {
		return nil
	}
	if res := vk.ResetFences(vc.logicalDevice(), 1, []vk.Fence{fence.Handle}); res != vk.Success {
		return resultError("vkResetFences", res)
	}
	fence.IsSignaled = false
	return nil
}

// Submit queues the command buffers on the graphics queue. fence signals
// once all of them completed.
func (vc *VulkanContext) Submit(info rhi.SubmitInfo, f rhi.Fence) error {
	commandBuffers := make([]vk.CommandBuffer, len(info.CommandBuffers))
	for i, cmd := range info.CommandBuffers {
		commandBuffers[i] = cmd.(*VulkanCommandBuffer).Handle
	}
	waitSemaphores := make([]vk.Semaphore, len(info.WaitSemaphores))
	waitStages := make([]vk.PipelineStageFlags, len(info.WaitSemaphores))
	for i, s := range info.WaitSemaphores {
		waitSemaphores[i] = s.(vk.Semaphore)
		waitStages[i] = vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit)
		if i < len(info.WaitStages) {
			waitStages[i] = vk.PipelineStageFlags(info.WaitStages[i])
		}
	}
	signalSemaphores := make([]vk.Semaphore, len(info.SignalSemaphores))
	for i, s := range info.SignalSemaphores {
		signalSemaphores[i] = s.(vk.Semaphore)
	}

	submitInfo := vk.SubmitInfo{
		SType:                vk.StructureTypeSubmitInfo,
		WaitSemaphoreCount:   uint32(len(waitSemaphores)),
		PWaitSemaphores:      waitSemaphores,
		PWaitDstStageMask:    waitStages,
		CommandBufferCount:   uint32(len(commandBuffers)),
		PCommandBuffers:      commandBuffers,
		SignalSemaphoreCount: uint32(len(signalSemaphores)),
		PSignalSemaphores:    signalSemaphores,
	}

	fenceHandle := vk.NullFence
	var fence *VulkanFence
	if f != nil {
		fence = f.(*VulkanFence)
		fenceHandle = fence.Handle
	}

	queueIndex := uint32(vc.Device.GraphicsQueueIndex)
	if err := vc.locks.SafeQueueCall(queueIndex, func() error {
		if res := vk.QueueSubmit(vc.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fenceHandle); res != vk.Success {
			return resultError("vkQueueSubmit", res)
		}
		return nil
	}); err != nil {
		return err
	}

	for _, cmd := range info.CommandBuffers {
		cmd.(*VulkanCommandBuffer).UpdateSubmitted()
	}
	if fence != nil {
		fence.IsSignaled = false
	}
	return nil
}

func (vc *VulkanContext) WaitIdle() error {
	if res := vk.DeviceWaitIdle(vc.logicalDevice()); res != vk.Success {
		return resultError("vkDeviceWaitIdle", res)
	}
	return nil
}
