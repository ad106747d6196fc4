package vulkan

import (
	"maps"
	"slices"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// specialization packs the constants as consecutive uint32 values in id order.
func specialization(constants map[uint32]uint32) []vk.SpecializationInfo {
	if len(constants) == 0 {
		return nil
	}
	ids := slices.Sorted(maps.Keys(constants))
	entries := make([]vk.SpecializationMapEntry, len(ids))
	data := make([]uint32, len(ids))
	for i, id := range ids {
		entries[i] = vk.SpecializationMapEntry{
			ConstantID: id,
			Offset:     uint32(i * 4),
			Size:       4,
		}
		data[i] = constants[id]
	}
	return []vk.SpecializationInfo{{
		MapEntryCount: uint32(len(entries)),
		PMapEntries:   entries,
		DataSize:      uint(len(data) * 4),
		PData:         unsafe.Pointer(&data[0]),
	}}
}

func (vc *VulkanContext) CreateGraphicsPipeline(desc rhi.GraphicsPipelineDesc) (rhi.Pipeline, error) {
	state := desc.State

	stages := make([]vk.PipelineShaderStageCreateInfo, len(desc.Stages))
	for i, s := range desc.Stages {
		entry := s.EntryPoint
		if entry == "" {
			entry = "main"
		}
		stages[i] = vk.PipelineShaderStageCreateInfo{
			SType:               vk.StructureTypePipelineShaderStageCreateInfo,
			Stage:               vk.ShaderStageFlagBits(s.Stage),
			Module:              s.Module.(vk.ShaderModule),
			PName:               VulkanSafeString(entry),
			PSpecializationInfo: specialization(s.Specialization),
		}
	}

	// Viewport and scissor are dynamic; the counts still have to be given.
	viewportState := vk.PipelineViewportStateCreateInfo{
		SType:         vk.StructureTypePipelineViewportStateCreateInfo,
		ViewportCount: 1,
		ScissorCount:  1,
	}

	rasterizerCreateInfo := vk.PipelineRasterizationStateCreateInfo{
		SType:                   vk.StructureTypePipelineRasterizationStateCreateInfo,
		DepthClampEnable:        vk.False,
		RasterizerDiscardEnable: vk.False,
		PolygonMode:             vk.PolygonModeFill,
		LineWidth:               1.0,
		CullMode:                cullModeToVk(state.CullMode),
		FrontFace:               vk.FrontFaceCounterClockwise,
		DepthBiasEnable:         vk.False,
	}
	if state.IsWireframe {
		rasterizerCreateInfo.PolygonMode = vk.PolygonModeLine
	}

	multisamplingCreateInfo := vk.PipelineMultisampleStateCreateInfo{
		SType:                 vk.StructureTypePipelineMultisampleStateCreateInfo,
		SampleShadingEnable:   vk.False,
		RasterizationSamples:  sampleCountToVk(state.SampleCount),
		MinSampleShading:      1.0,
		AlphaToCoverageEnable: vk.False,
		AlphaToOneEnable:      vk.False,
	}

	depthStencil := vk.PipelineDepthStencilStateCreateInfo{
		SType:             vk.StructureTypePipelineDepthStencilStateCreateInfo,
		DepthTestEnable:   vk.False,
		DepthWriteEnable:  vk.False,
		StencilTestEnable: vk.False,
	}
	if state.DepthTestEnable {
		depthStencil.DepthTestEnable = vk.True
		depthStencil.DepthCompareOp = vk.CompareOpLess
	}
	if state.DepthWriteEnable {
		depthStencil.DepthWriteEnable = vk.True
	}

	colorBlendAttachmentState := vk.PipelineColorBlendAttachmentState{
		BlendEnable:         vk.False,
		SrcColorBlendFactor: vk.BlendFactorSrcAlpha,
		DstColorBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		ColorBlendOp:        vk.BlendOpAdd,
		SrcAlphaBlendFactor: vk.BlendFactorSrcAlpha,
		DstAlphaBlendFactor: vk.BlendFactorOneMinusSrcAlpha,
		AlphaBlendOp:        vk.BlendOpAdd,
		ColorWriteMask: vk.ColorComponentFlags(vk.ColorComponentRBit) | vk.ColorComponentFlags(vk.ColorComponentGBit) |
			vk.ColorComponentFlags(vk.ColorComponentBBit) | vk.ColorComponentFlags(vk.ColorComponentABit),
	}
	if state.BlendEnable {
		colorBlendAttachmentState.BlendEnable = vk.True
	}

	colorBlendStateCreateInfo := vk.PipelineColorBlendStateCreateInfo{
		SType:           vk.StructureTypePipelineColorBlendStateCreateInfo,
		LogicOpEnable:   vk.False,
		LogicOp:         vk.LogicOpCopy,
		AttachmentCount: 1,
		PAttachments:    []vk.PipelineColorBlendAttachmentState{colorBlendAttachmentState},
	}

	dynamicStates := []vk.DynamicState{
		vk.DynamicStateViewport,
		vk.DynamicStateScissor,
	}
	dynamicStateCreateInfo := vk.PipelineDynamicStateCreateInfo{
		SType:             vk.StructureTypePipelineDynamicStateCreateInfo,
		DynamicStateCount: uint32(len(dynamicStates)),
		PDynamicStates:    dynamicStates,
	}

	vertexInputInfo := vk.PipelineVertexInputStateCreateInfo{
		SType: vk.StructureTypePipelineVertexInputStateCreateInfo,
	}
	if len(desc.VertexAttributes) > 0 {
		attributes := make([]vk.VertexInputAttributeDescription, len(desc.VertexAttributes))
		for i, a := range desc.VertexAttributes {
			attributes[i] = vk.VertexInputAttributeDescription{
				Binding:  0,
				Location: a.Location,
				Format:   vertexFormatToVk(a.Format),
				Offset:   a.Offset,
			}
		}
		vertexInputInfo.VertexBindingDescriptionCount = 1
		vertexInputInfo.PVertexBindingDescriptions = []vk.VertexInputBindingDescription{{
			Binding:   0,
			Stride:    desc.VertexStride,
			InputRate: vk.VertexInputRateVertex, // Move to next data entry for each vertex.
		}}
		vertexInputInfo.VertexAttributeDescriptionCount = uint32(len(attributes))
		vertexInputInfo.PVertexAttributeDescriptions = attributes
	}

	inputAssembly := vk.PipelineInputAssemblyStateCreateInfo{
		SType:                  vk.StructureTypePipelineInputAssemblyStateCreateInfo,
		Topology:               topologyToVk(state.Topology),
		PrimitiveRestartEnable: vk.False,
	}

	pipelineCreateInfo := vk.GraphicsPipelineCreateInfo{
		SType:               vk.StructureTypeGraphicsPipelineCreateInfo,
		StageCount:          uint32(len(stages)),
		PStages:             stages,
		PVertexInputState:   &vertexInputInfo,
		PInputAssemblyState: &inputAssembly,
		PViewportState:      &viewportState,
		PRasterizationState: &rasterizerCreateInfo,
		PMultisampleState:   &multisamplingCreateInfo,
		PDepthStencilState:  &depthStencil,
		PColorBlendState:    &colorBlendStateCreateInfo,
		PDynamicState:       &dynamicStateCreateInfo,
		Layout:              desc.Layout.(vk.PipelineLayout),
		RenderPass:          desc.RenderPass.(*VulkanRenderpass).Handle,
		Subpass:             0,
		BasePipelineHandle:  vk.NullPipeline,
		BasePipelineIndex:   -1,
	}

	pipelines := make([]vk.Pipeline, 1)
	if err := vc.locks.SafeCall(PipelineManagement, func() error {
		result := vk.CreateGraphicsPipelines(
			vc.logicalDevice(),
			vk.NullPipelineCache,
			1,
			[]vk.GraphicsPipelineCreateInfo{pipelineCreateInfo},
			vc.Allocator,
			pipelines)
		if !VulkanResultIsSuccess(result) {
			return resultError("vkCreateGraphicsPipelines", result)
		}
		return nil
	}); err != nil {
		return nil, err
	}

	core.LogDebug("Graphics pipeline created!")
	return pipelines[0], nil
}

func (vc *VulkanContext) DestroyPipeline(pipeline rhi.Pipeline) {
	_ = vc.locks.SafeCall(PipelineManagement, func() error {
		vk.DestroyPipeline(vc.logicalDevice(), pipeline.(vk.Pipeline), vc.Allocator)
		return nil
	})
}
