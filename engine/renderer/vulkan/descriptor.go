package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// VariableDescriptorLimit bounds a variable-count binding. The real size is
// chosen per set at allocation.
const VariableDescriptorLimit uint32 = 4096

type VulkanDescriptorSetLayout struct {
	Handle vk.DescriptorSetLayout
	// Variable is set when the last binding has a variable count.
	Variable bool
}

func (vc *VulkanContext) CreateDescriptorSetLayout(desc rhi.DescriptorSetLayoutDesc) (rhi.DescriptorSetLayout, error) {
	bindings := make([]vk.DescriptorSetLayoutBinding, len(desc.Bindings))
	bindingFlags := make([]vk.DescriptorBindingFlags, len(desc.Bindings))
	layout := &VulkanDescriptorSetLayout{}
	updateAfterBind := false

	for i, b := range desc.Bindings {
		count := b.Count
		if b.IsVariableCount() {
			count = VariableDescriptorLimit
			layout.Variable = true
			bindingFlags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingVariableDescriptorCountBit)
		}
		bindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  descriptorTypeToVk(b.Type),
			DescriptorCount: count,
			StageFlags:      shaderStagesToVk(b.Stages),
		}
		if desc.PartiallyBound || b.IsVariableCount() {
			bindingFlags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingPartiallyBoundBit)
		}
		// Dynamic buffers cannot be updated after bind.
		if desc.UpdateAfterBind && !b.Type.IsDynamic() {
			bindingFlags[i] |= vk.DescriptorBindingFlags(vk.DescriptorBindingUpdateAfterBindBit)
			updateAfterBind = true
		}
	}

	createInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
		PNext: unsafe.Pointer(&vk.DescriptorSetLayoutBindingFlagsCreateInfo{
			SType:         vk.StructureTypeDescriptorSetLayoutBindingFlagsCreateInfo,
			BindingCount:  uint32(len(bindingFlags)),
			PBindingFlags: bindingFlags,
		}),
	}
	if updateAfterBind {
		createInfo.Flags = vk.DescriptorSetLayoutCreateFlags(vk.DescriptorSetLayoutCreateUpdateAfterBindPoolBit)
	}

	if res := vk.CreateDescriptorSetLayout(vc.logicalDevice(), &createInfo, vc.Allocator, &layout.Handle); res != vk.Success {
		return nil, resultError("vkCreateDescriptorSetLayout", res)
	}
	return layout, nil
}

func (vc *VulkanContext) DestroyDescriptorSetLayout(l rhi.DescriptorSetLayout) {
	layout := l.(*VulkanDescriptorSetLayout)
	if layout.Handle != nil {
		vk.DestroyDescriptorSetLayout(vc.logicalDevice(), layout.Handle, vc.Allocator)
		layout.Handle = nil
	}
}

func (vc *VulkanContext) CreateDescriptorPool(desc rhi.DescriptorPoolDesc) (rhi.DescriptorPool, error) {
	sizes := make([]vk.DescriptorPoolSize, len(desc.Sizes))
	for i, s := range desc.Sizes {
		sizes[i] = vk.DescriptorPoolSize{
			Type:            descriptorTypeToVk(s.Type),
			DescriptorCount: s.Count,
		}
	}

	createInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       desc.MaxSets,
		PoolSizeCount: uint32(len(sizes)),
		PPoolSizes:    sizes,
	}
	if desc.UpdateAfterBind {
		createInfo.Flags = vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateUpdateAfterBindBit)
	}

	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(vc.logicalDevice(), &createInfo, vc.Allocator, &pool); res != vk.Success {
		return nil, resultError("vkCreateDescriptorPool", res)
	}
	return pool, nil
}

// DestroyDescriptorPool also frees every set allocated from the pool.
func (vc *VulkanContext) DestroyDescriptorPool(pool rhi.DescriptorPool) {
	vk.DestroyDescriptorPool(vc.logicalDevice(), pool.(vk.DescriptorPool), vc.Allocator)
}

func (vc *VulkanContext) ResetDescriptorPool(pool rhi.DescriptorPool) error {
	return vc.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.ResetDescriptorPool(vc.logicalDevice(), pool.(vk.DescriptorPool), 0); res != vk.Success {
			return resultError("vkResetDescriptorPool", res)
		}
		return nil
	})
}

func (vc *VulkanContext) AllocateDescriptorSet(pool rhi.DescriptorPool, l rhi.DescriptorSetLayout, variableCount uint32) (rhi.DescriptorSet, error) {
	layout := l.(*VulkanDescriptorSetLayout)
	if variableCount > VariableDescriptorLimit {
		err := fmt.Errorf("variable descriptor count %d exceeds %d: %w", variableCount, VariableDescriptorLimit, core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return nil, err
	}

	allocateInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool.(vk.DescriptorPool),
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.Handle},
	}
	if layout.Variable {
		allocateInfo.PNext = unsafe.Pointer(&vk.DescriptorSetVariableDescriptorCountAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetVariableDescriptorCountAllocateInfo,
			DescriptorSetCount: 1,
			PDescriptorCounts:  []uint32{variableCount},
		})
	}

	var set vk.DescriptorSet
	if err := vc.locks.SafeCall(DescriptorManagement, func() error {
		if res := vk.AllocateDescriptorSets(vc.logicalDevice(), &allocateInfo, &set); res != vk.Success {
			return resultError("vkAllocateDescriptorSets", res)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return set, nil
}

// UpdateDescriptorSets writes every entry in one call.
func (vc *VulkanContext) UpdateDescriptorSets(writes []rhi.DescriptorWrite) {
	if len(writes) == 0 {
		return
	}
	vkWrites := make([]vk.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		vkWrites[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          w.Set.(vk.DescriptorSet),
			DstBinding:      w.Binding,
			DstArrayElement: w.ArrayElement,
			DescriptorCount: 1,
			DescriptorType:  descriptorTypeToVk(w.Type),
		}
		switch {
		case w.Image != nil:
			vkWrites[i].PImageInfo = []vk.DescriptorImageInfo{{
				Sampler:     w.Image.Sampler.(vk.Sampler),
				ImageView:   w.Image.View.(vk.ImageView),
				ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
			}}
		case w.Buffer != nil:
			vkWrites[i].PBufferInfo = []vk.DescriptorBufferInfo{{
				Buffer: w.Buffer.Buffer.(*VulkanBuffer).Handle,
				Offset: vk.DeviceSize(w.Buffer.Offset),
				Range:  vk.DeviceSize(w.Buffer.Range),
			}}
		default:
			core.LogWarn("descriptor write for binding %d carries no resource", w.Binding)
		}
	}
	_ = vc.locks.SafeCall(DescriptorManagement, func() error {
		vk.UpdateDescriptorSets(vc.logicalDevice(), uint32(len(vkWrites)), vkWrites, 0, nil)
		return nil
	})
}

func (vc *VulkanContext) CreatePipelineLayout(setLayouts []rhi.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (rhi.PipelineLayout, error) {
	handles := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, l := range setLayouts {
		handles[i] = l.(*VulkanDescriptorSetLayout).Handle
	}
	ranges := pushConstantRangesToVk(pushConstants)

	createInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(handles)),
		PSetLayouts:            handles,
		PushConstantRangeCount: uint32(len(ranges)),
		PPushConstantRanges:    ranges,
	}

	var layout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(vc.logicalDevice(), &createInfo, vc.Allocator, &layout); res != vk.Success {
		return nil, resultError("vkCreatePipelineLayout", res)
	}
	return layout, nil
}

func (vc *VulkanContext) DestroyPipelineLayout(layout rhi.PipelineLayout) {
	vk.DestroyPipelineLayout(vc.logicalDevice(), layout.(vk.PipelineLayout), vc.Allocator)
}
