package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

type VulkanFramebuffer struct {
	Handle      vk.Framebuffer
	Attachments []vk.ImageView
	Renderpass  *VulkanRenderpass
}

func (vc *VulkanContext) CreateFramebuffer(desc rhi.FramebufferDesc) (rhi.Framebuffer, error) {
	outFramebuffer := &VulkanFramebuffer{
		Attachments: make([]vk.ImageView, len(desc.Attachments)),
		Renderpass:  desc.RenderPass.(*VulkanRenderpass),
	}
	for i, view := range desc.Attachments {
		outFramebuffer.Attachments[i] = view.(vk.ImageView)
	}

	framebufferCreateInfo := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      outFramebuffer.Renderpass.Handle,
		AttachmentCount: uint32(len(outFramebuffer.Attachments)),
		PAttachments:    outFramebuffer.Attachments,
		Width:           desc.Extent.Width,
		Height:          desc.Extent.Height,
		Layers:          1,
	}

	var pFramebuffer vk.Framebuffer
	if res := vk.CreateFramebuffer(vc.logicalDevice(), &framebufferCreateInfo, vc.Allocator, &pFramebuffer); res != vk.Success {
		return nil, resultError("vkCreateFramebuffer", res)
	}
	outFramebuffer.Handle = pFramebuffer
	return outFramebuffer, nil
}

func (vc *VulkanContext) DestroyFramebuffer(fb rhi.Framebuffer) {
	vfb := fb.(*VulkanFramebuffer)
	if vfb.Handle != nil {
		vk.DestroyFramebuffer(vc.logicalDevice(), vfb.Handle, vc.Allocator)
	}
	vfb.Handle = nil
	vfb.Attachments = nil
	vfb.Renderpass = nil
}
