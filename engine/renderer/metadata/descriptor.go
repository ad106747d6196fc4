package metadata

import (
	"fmt"
	"strings"
)

/**
 * @brief The kind of resource a binding exposes to shaders.
 *
 * Values follow the Vulkan numbering so that backends can convert them
 * without a lookup table.
 */
type DescriptorType uint32

const (
	DescriptorTypeSampler              DescriptorType = 0
	DescriptorTypeCombinedImageSampler DescriptorType = 1
	DescriptorTypeSampledImage         DescriptorType = 2
	DescriptorTypeStorageImage         DescriptorType = 3
	DescriptorTypeUniformBuffer        DescriptorType = 6
	DescriptorTypeStorageBuffer        DescriptorType = 7
	DescriptorTypeUniformBufferDynamic DescriptorType = 8
	DescriptorTypeStorageBufferDynamic DescriptorType = 9
)

var descriptorTypeNames = map[DescriptorType]string{
	DescriptorTypeSampler:              "sampler",
	DescriptorTypeCombinedImageSampler: "combined_image_sampler",
	DescriptorTypeSampledImage:         "sampled_image",
	DescriptorTypeStorageImage:         "storage_image",
	DescriptorTypeUniformBuffer:        "uniform_buffer",
	DescriptorTypeStorageBuffer:        "storage_buffer",
	DescriptorTypeUniformBufferDynamic: "uniform_buffer_dynamic",
	DescriptorTypeStorageBufferDynamic: "storage_buffer_dynamic",
}

func (t DescriptorType) String() string {
	if s, ok := descriptorTypeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("descriptor_type(%d)", uint32(t))
}

// IsDynamic reports whether the binding takes a dynamic offset at bind time.
func (t DescriptorType) IsDynamic() bool {
	return t == DescriptorTypeUniformBufferDynamic || t == DescriptorTypeStorageBufferDynamic
}

func DescriptorTypeFromString(s string) (DescriptorType, error) {
	for t, name := range descriptorTypeNames {
		if name == s {
			return t, nil
		}
	}
	return 0, fmt.Errorf("string %s is not a valid DescriptorType", s)
}

/**
 * @brief One binding of a descriptor set layout.
 *
 * A Count of zero denotes a variable-length, partially-bound array whose
 * size is chosen when the set is allocated.
 */
type DescriptorBinding struct {
	Binding uint32
	Type    DescriptorType
	Count   uint32
	Stages  ShaderStage
}

func (b DescriptorBinding) IsVariableCount() bool {
	return b.Count == 0
}

func (b DescriptorBinding) String() string {
	count := fmt.Sprint(b.Count)
	if b.IsVariableCount() {
		count = "variable"
	}
	return fmt.Sprintf("{binding=%d type=%s count=%s stages=%s}", b.Binding, b.Type, count, b.Stages)
}

/** @brief A byte range of push constants visible to the given stages. */
type PushConstantRange struct {
	Stages ShaderStage
	Offset uint32
	Size   uint32
}

func (r PushConstantRange) String() string {
	return fmt.Sprintf("{stages=%s offset=%d size=%d}", r.Stages, r.Offset, r.Size)
}

/** @brief How a buffer registered in the bindless table may be read. */
type BufferUsage uint32

const (
	BufferUsageTransferSrc BufferUsage = 0x00000001
	BufferUsageTransferDst BufferUsage = 0x00000002
	BufferUsageUniform     BufferUsage = 0x00000010
	BufferUsageStorage     BufferUsage = 0x00000020
	BufferUsageIndex       BufferUsage = 0x00000040
	BufferUsageVertex      BufferUsage = 0x00000080
)

func (u BufferUsage) Has(flag BufferUsage) bool {
	return u&flag == flag
}

func (u BufferUsage) String() string {
	var parts []string
	names := []struct {
		flag BufferUsage
		name string
	}{
		{BufferUsageTransferSrc, "transfer_src"},
		{BufferUsageTransferDst, "transfer_dst"},
		{BufferUsageUniform, "uniform"},
		{BufferUsageStorage, "storage"},
		{BufferUsageIndex, "index"},
		{BufferUsageVertex, "vertex"},
	}
	for _, n := range names {
		if u.Has(n.flag) {
			parts = append(parts, n.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
