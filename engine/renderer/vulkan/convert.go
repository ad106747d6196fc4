package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

func formatToVk(format rhi.Format) vk.Format {
	switch format {
	case rhi.FormatRGBA8Unorm:
		return vk.FormatR8g8b8a8Unorm
	case rhi.FormatBGRA8Unorm:
		return vk.FormatB8g8r8a8Unorm
	case rhi.FormatRGBA16Sfloat:
		return vk.FormatR16g16b16a16Sfloat
	case rhi.FormatD32Sfloat:
		return vk.FormatD32Sfloat
	}
	return vk.FormatUndefined
}

func isDepthFormat(format rhi.Format) bool {
	return format == rhi.FormatD32Sfloat
}

func vertexFormatToVk(format metadata.VertexFormat) vk.Format {
	switch format {
	case metadata.VertexFormatFloat32:
		return vk.FormatR32Sfloat
	case metadata.VertexFormatFloat32x2:
		return vk.FormatR32g32Sfloat
	case metadata.VertexFormatFloat32x3:
		return vk.FormatR32g32b32Sfloat
	case metadata.VertexFormatFloat32x4:
		return vk.FormatR32g32b32a32Sfloat
	case metadata.VertexFormatInt32:
		return vk.FormatR32Sint
	case metadata.VertexFormatUint32:
		return vk.FormatR32Uint
	case metadata.VertexFormatUint8x4Norm:
		return vk.FormatR8g8b8a8Unorm
	}
	return vk.FormatUndefined
}

// Descriptor types and shader stages share the Vulkan numbering.
func descriptorTypeToVk(t metadata.DescriptorType) vk.DescriptorType {
	return vk.DescriptorType(t)
}

func shaderStagesToVk(stages metadata.ShaderStage) vk.ShaderStageFlags {
	return vk.ShaderStageFlags(stages)
}

func topologyToVk(topology metadata.PrimitiveTopology) vk.PrimitiveTopology {
	switch topology {
	case metadata.PrimitiveTopologyTriangleStrip:
		return vk.PrimitiveTopologyTriangleStrip
	case metadata.PrimitiveTopologyLineList:
		return vk.PrimitiveTopologyLineList
	case metadata.PrimitiveTopologyPointList:
		return vk.PrimitiveTopologyPointList
	}
	return vk.PrimitiveTopologyTriangleList
}

func cullModeToVk(mode metadata.FaceCullMode) vk.CullModeFlags {
	switch mode {
	case metadata.FaceCullModeNone:
		return vk.CullModeFlags(vk.CullModeNone)
	case metadata.FaceCullModeFront:
		return vk.CullModeFlags(vk.CullModeFrontBit)
	case metadata.FaceCullModeFrontAndBack:
		return vk.CullModeFlags(vk.CullModeFrontAndBack)
	}
	return vk.CullModeFlags(vk.CullModeBackBit)
}

// sampleCountToVk accepts power-of-two counts up to 64; anything else is a
// single sample.
func sampleCountToVk(count uint32) vk.SampleCountFlagBits {
	switch count {
	case 2, 4, 8, 16, 32, 64:
		return vk.SampleCountFlagBits(count)
	}
	return vk.SampleCount1Bit
}

func pushConstantRangesToVk(ranges []metadata.PushConstantRange) []vk.PushConstantRange {
	if len(ranges) == 0 {
		return nil
	}
	out := make([]vk.PushConstantRange, len(ranges))
	for i, r := range ranges {
		out[i] = vk.PushConstantRange{
			StageFlags: shaderStagesToVk(r.Stages),
			Offset:     r.Offset,
			Size:       r.Size,
		}
	}
	return out
}
