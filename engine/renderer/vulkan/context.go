package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

var _ rhi.Device = (*VulkanContext)(nil)

// VulkanContext owns the instance and the logical device and implements
// rhi.Device on top of them. Rendering is offscreen: there is no surface.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	debugMessenger vk.DebugReportCallback
	debug          bool

	Device *VulkanDevice

	locks *VulkanLockPool
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter, propertyFlags uint32) int32 {
	var memoryProperties vk.PhysicalDeviceMemoryProperties
	vk.GetPhysicalDeviceMemoryProperties(vc.Device.PhysicalDevice, &memoryProperties)
	memoryProperties.Deref()

	for i := uint32(0); i < memoryProperties.MemoryTypeCount; i++ {
		// Check each memory type to see if its bit is set to 1.
		memoryProperties.MemoryTypes[i].Deref()
		if (typeFilter&(1<<i)) != 0 && (uint32(memoryProperties.MemoryTypes[i].PropertyFlags)&propertyFlags) == propertyFlags {
			return int32(i)
		}
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

func (vc *VulkanContext) Limits() rhi.DeviceLimits {
	limits := vc.Device.Properties.Limits
	limits.Deref()
	return rhi.DeviceLimits{
		MinUniformBufferOffsetAlignment: uint64(limits.MinUniformBufferOffsetAlignment),
		MaxPushConstantsSize:            limits.MaxPushConstantsSize,
		MaxBoundDescriptorSets:          limits.MaxBoundDescriptorSets,
	}
}

func (vc *VulkanContext) logicalDevice() vk.Device {
	return vc.Device.LogicalDevice
}
