package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// VulkanRenderpass is a single-subpass pass over one color attachment and
// an optional depth attachment.
type VulkanRenderpass struct {
	Handle   vk.RenderPass
	HasDepth bool
}

func (vc *VulkanContext) CreateRenderPass(desc rhi.RenderPassDesc) (rhi.RenderPass, error) {
	finalLayout := vk.ImageLayoutTransferSrcOptimal
	if desc.SampledAfterPass {
		finalLayout = vk.ImageLayoutShaderReadOnlyOptimal
	}

	attachments := []vk.AttachmentDescription{{
		Format:         formatToVk(desc.ColorFormat),
		Samples:        vk.SampleCount1Bit,
		LoadOp:         vk.AttachmentLoadOpClear,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutUndefined, // Do not expect any particular layout before render pass starts.
		FinalLayout:    finalLayout,
	}}

	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}

	hasDepth := desc.DepthFormat != rhi.FormatUndefined
	if hasDepth {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         formatToVk(desc.DepthFormat),
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	dependencies := []vk.SubpassDependency{{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		SrcAccessMask: 0,
		DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
		DstAccessMask: vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
	}}
	if desc.SampledAfterPass {
		// Later passes read the color attachment from fragment shaders.
		dependencies = append(dependencies, vk.SubpassDependency{
			SrcSubpass:    0,
			DstSubpass:    vk.SubpassExternal,
			SrcStageMask:  vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			SrcAccessMask: vk.AccessFlags(vk.AccessColorAttachmentWriteBit),
			DstStageMask:  vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit),
		})
	}

	renderpassCreateInfo := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}

	var pRenderPass vk.RenderPass
	if res := vk.CreateRenderPass(vc.logicalDevice(), &renderpassCreateInfo, vc.Allocator, &pRenderPass); res != vk.Success {
		return nil, resultError("vkCreateRenderPass", res)
	}
	return &VulkanRenderpass{Handle: pRenderPass, HasDepth: hasDepth}, nil
}

func (vc *VulkanContext) DestroyRenderPass(pass rhi.RenderPass) {
	vr := pass.(*VulkanRenderpass)
	if vr.Handle != nil {
		vk.DestroyRenderPass(vc.logicalDevice(), vr.Handle, vc.Allocator)
		vr.Handle = nil
	}
}

// CmdBeginRenderPass also sets the viewport and scissor to the full extent,
// as both are dynamic in every pipeline.
func (vc *VulkanContext) CmdBeginRenderPass(cmd rhi.CommandBuffer, info rhi.RenderPassBeginInfo) {
	commandBuffer := cmd.(*VulkanCommandBuffer)
	vr := info.RenderPass.(*VulkanRenderpass)
	extent := vk.Extent2D{Width: info.Extent.Width, Height: info.Extent.Height}

	clearValues := []vk.ClearValue{vk.NewClearValue(info.ClearColor[:])}
	if vr.HasDepth {
		clearValues = append(clearValues, vk.NewClearDepthStencil(info.ClearDepth, 0))
	}

	beginInfo := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: info.Framebuffer.(*VulkanFramebuffer).Handle,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}
	vk.CmdBeginRenderPass(commandBuffer.Handle, &beginInfo, vk.SubpassContentsInline)
	commandBuffer.State = COMMAND_BUFFER_STATE_IN_RENDER_PASS

	vk.CmdSetViewport(commandBuffer.Handle, 0, 1, []vk.Viewport{{
		X:        0,
		Y:        0,
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}})
	vk.CmdSetScissor(commandBuffer.Handle, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: extent,
	}})
}

func (vc *VulkanContext) CmdEndRenderPass(cmd rhi.CommandBuffer) {
	commandBuffer := cmd.(*VulkanCommandBuffer)
	vk.CmdEndRenderPass(commandBuffer.Handle)
	commandBuffer.State = COMMAND_BUFFER_STATE_RECORDING
}
