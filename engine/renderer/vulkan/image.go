package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Format rhi.Format
	Width  uint32
	Height uint32
}

// CreateImage creates a device-local, optimally tiled 2D image.
func (vc *VulkanContext) CreateImage(desc rhi.ImageDesc) (rhi.Image, error) {
	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    formatToVk(desc.Format),
		Extent: vk.Extent3D{
			Width:  desc.Width,
			Height: desc.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         vk.ImageUsageFlags(desc.Usage),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	image := &VulkanImage{Format: desc.Format, Width: desc.Width, Height: desc.Height}
	if res := vk.CreateImage(vc.logicalDevice(), &imageCreateInfo, vc.Allocator, &image.Handle); res != vk.Success {
		return nil, resultError("vkCreateImage", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(vc.logicalDevice(), image.Handle, &memReqs)
	memReqs.Deref()

	memory, err := vc.allocateMemory(memReqs, vk.MemoryPropertyDeviceLocalBit)
	if err != nil {
		vk.DestroyImage(vc.logicalDevice(), image.Handle, vc.Allocator)
		return nil, err
	}
	image.Memory = memory

	if res := vk.BindImageMemory(vc.logicalDevice(), image.Handle, image.Memory, 0); res != vk.Success {
		vc.DestroyImage(image)
		return nil, resultError("vkBindImageMemory", res)
	}
	return image, nil
}

func (vc *VulkanContext) DestroyImage(i rhi.Image) {
	image := i.(*VulkanImage)
	if image.Handle != nil {
		vk.DestroyImage(vc.logicalDevice(), image.Handle, vc.Allocator)
		image.Handle = nil
	}
	if image.Memory != nil {
		vk.FreeMemory(vc.logicalDevice(), image.Memory, vc.Allocator)
		image.Memory = nil
	}
}

func (vc *VulkanContext) CreateImageView(i rhi.Image) (rhi.ImageView, error) {
	image := i.(*VulkanImage)
	aspect := vk.ImageAspectColorBit
	if isDepthFormat(image.Format) {
		aspect = vk.ImageAspectDepthBit
	}

	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image.Handle,
		ViewType: vk.ImageViewType2d,
		Format:   formatToVk(image.Format),
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(aspect),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(vc.logicalDevice(), &viewCreateInfo, vc.Allocator, &view); res != vk.Success {
		return nil, resultError("vkCreateImageView", res)
	}
	return view, nil
}

func (vc *VulkanContext) DestroyImageView(view rhi.ImageView) {
	vk.DestroyImageView(vc.logicalDevice(), view.(vk.ImageView), vc.Allocator)
}

func (vc *VulkanContext) CreateSampler(desc rhi.SamplerDesc) (rhi.Sampler, error) {
	filter := vk.FilterNearest
	mipmapMode := vk.SamplerMipmapModeNearest
	if desc.Linear {
		filter = vk.FilterLinear
		mipmapMode = vk.SamplerMipmapModeLinear
	}
	addressMode := vk.SamplerAddressModeClampToEdge
	if desc.Repeat {
		addressMode = vk.SamplerAddressModeRepeat
	}

	limits := vc.Device.Properties.Limits
	limits.Deref()
	maxAnisotropy := limits.MaxSamplerAnisotropy
	if maxAnisotropy > 16 {
		maxAnisotropy = 16
	}

	samplerCreateInfo := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               filter,
		MinFilter:               filter,
		AddressModeU:            addressMode,
		AddressModeV:            addressMode,
		AddressModeW:            addressMode,
		AnisotropyEnable:        vk.True,
		MaxAnisotropy:           maxAnisotropy,
		BorderColor:             vk.BorderColorIntOpaqueBlack,
		UnnormalizedCoordinates: vk.False,
		CompareEnable:           vk.False,
		CompareOp:               vk.CompareOpAlways,
		MipmapMode:              mipmapMode,
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(vc.logicalDevice(), &samplerCreateInfo, vc.Allocator, &sampler); res != vk.Success {
		return nil, resultError("vkCreateSampler", res)
	}
	return sampler, nil
}

func (vc *VulkanContext) DestroySampler(sampler rhi.Sampler) {
	vk.DestroySampler(vc.logicalDevice(), sampler.(vk.Sampler), vc.Allocator)
}

func (vc *VulkanContext) allocateMemory(memReqs vk.MemoryRequirements, properties vk.MemoryPropertyFlagBits) (vk.DeviceMemory, error) {
	index := vc.FindMemoryIndex(memReqs.MemoryTypeBits, uint32(properties))
	if index < 0 {
		err := fmt.Errorf("required memory type not found: %w", core.ErrUnknown)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: uint32(index),
	}
	var memory vk.DeviceMemory
	if err := vc.locks.SafeCall(MemoryManagement, func() error {
		if res := vk.AllocateMemory(vc.logicalDevice(), &allocateInfo, vc.Allocator, &memory); res != vk.Success {
			return resultError("vkAllocateMemory", res)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return memory, nil
}
