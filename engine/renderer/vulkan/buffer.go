package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// VulkanBuffer keeps host-visible buffers persistently mapped for their
// whole lifetime.
type VulkanBuffer struct {
	Handle vk.Buffer
	Memory vk.DeviceMemory
	Size   uint64
	mapped unsafe.Pointer
}

func (vc *VulkanContext) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	bufferCreateInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Usage:       vk.BufferUsageFlags(desc.Usage),
		Size:        vk.DeviceSize(desc.Size),
		SharingMode: vk.SharingModeExclusive,
	}

	buffer := &VulkanBuffer{Size: desc.Size}
	if res := vk.CreateBuffer(vc.logicalDevice(), &bufferCreateInfo, vc.Allocator, &buffer.Handle); res != vk.Success {
		return nil, resultError("vkCreateBuffer", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(vc.logicalDevice(), buffer.Handle, &memReqs)
	memReqs.Deref()

	properties := vk.MemoryPropertyDeviceLocalBit
	if desc.HostVisible {
		properties = vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit
	}
	memory, err := vc.allocateMemory(memReqs, properties)
	if err != nil {
		vk.DestroyBuffer(vc.logicalDevice(), buffer.Handle, vc.Allocator)
		return nil, err
	}
	buffer.Memory = memory

	if res := vk.BindBufferMemory(vc.logicalDevice(), buffer.Handle, buffer.Memory, 0); res != vk.Success {
		vc.DestroyBuffer(buffer)
		return nil, resultError("vkBindBufferMemory", res)
	}

	if desc.HostVisible {
		var data unsafe.Pointer
		if res := vk.MapMemory(vc.logicalDevice(), buffer.Memory, 0, vk.DeviceSize(desc.Size), 0, &data); res != vk.Success {
			vc.DestroyBuffer(buffer)
			return nil, resultError("vkMapMemory", res)
		}
		buffer.mapped = data
	}
	return buffer, nil
}

// WriteBuffer copies data into a host-visible buffer. Memory is coherent, so
// no flush is needed.
func (vc *VulkanContext) WriteBuffer(b rhi.Buffer, offset uint64, data []byte) error {
	buffer := b.(*VulkanBuffer)
	if buffer.mapped == nil {
		err := fmt.Errorf("buffer is not host visible: %w", core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}
	if offset+uint64(len(data)) > buffer.Size {
		err := fmt.Errorf("write of %d bytes at %d overflows buffer of %d bytes: %w",
			len(data), offset, buffer.Size, core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}
	dst := unsafe.Slice((*byte)(unsafe.Add(buffer.mapped, offset)), len(data))
	copy(dst, data)
	return nil
}

func (vc *VulkanContext) DestroyBuffer(b rhi.Buffer) {
	buffer := b.(*VulkanBuffer)
	if buffer.mapped != nil {
		vk.UnmapMemory(vc.logicalDevice(), buffer.Memory)
		buffer.mapped = nil
	}
	if buffer.Handle != nil {
		vk.DestroyBuffer(vc.logicalDevice(), buffer.Handle, vc.Allocator)
		buffer.Handle = nil
	}
	if buffer.Memory != nil {
		vk.FreeMemory(vc.logicalDevice(), buffer.Memory, vc.Allocator)
		buffer.Memory = nil
	}
}
