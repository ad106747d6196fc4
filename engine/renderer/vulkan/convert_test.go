package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/assert"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

func TestDescriptorTypesShareVulkanNumbering(t *testing.T) {
	assert.Equal(t, vk.DescriptorTypeCombinedImageSampler, descriptorTypeToVk(metadata.DescriptorTypeCombinedImageSampler))
	assert.Equal(t, vk.DescriptorTypeUniformBuffer, descriptorTypeToVk(metadata.DescriptorTypeUniformBuffer))
	assert.Equal(t, vk.DescriptorTypeStorageBuffer, descriptorTypeToVk(metadata.DescriptorTypeStorageBuffer))
	assert.Equal(t, vk.DescriptorTypeUniformBufferDynamic, descriptorTypeToVk(metadata.DescriptorTypeUniformBufferDynamic))

	stages := shaderStagesToVk(metadata.ShaderStageVertex | metadata.ShaderStageFragment)
	assert.Equal(t, vk.ShaderStageFlags(vk.ShaderStageVertexBit|vk.ShaderStageFragmentBit), stages)
}

func TestFormatConversion(t *testing.T) {
	tests := []struct {
		in   rhi.Format
		want vk.Format
	}{
		{rhi.FormatRGBA8Unorm, vk.FormatR8g8b8a8Unorm},
		{rhi.FormatBGRA8Unorm, vk.FormatB8g8r8a8Unorm},
		{rhi.FormatRGBA16Sfloat, vk.FormatR16g16b16a16Sfloat},
		{rhi.FormatD32Sfloat, vk.FormatD32Sfloat},
		{rhi.FormatUndefined, vk.FormatUndefined},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatToVk(tt.in))
	}
	assert.Equal(t, vk.FormatR32g32b32Sfloat, vertexFormatToVk(metadata.VertexFormatFloat32x3))
	assert.Equal(t, vk.FormatUndefined, vertexFormatToVk(metadata.VertexFormat(99)))
}

func TestSampleCount(t *testing.T) {
	assert.Equal(t, vk.SampleCount1Bit, sampleCountToVk(0))
	assert.Equal(t, vk.SampleCount1Bit, sampleCountToVk(3))
	assert.Equal(t, vk.SampleCount4Bit, sampleCountToVk(4))
}

func TestResultError(t *testing.T) {
	assert.NoError(t, resultError("vkQueueSubmit", vk.Success))
	assert.NoError(t, resultError("vkWaitForFences", vk.Timeout))
	assert.ErrorIs(t, resultError("vkQueueSubmit", vk.ErrorDeviceLost), core.ErrDeviceLost)
	assert.ErrorIs(t, resultError("vkAllocateDescriptorSets", vk.ErrorOutOfPoolMemory), core.ErrCapacityExceeded)
	assert.ErrorIs(t, resultError("vkCreateBuffer", vk.ErrorOutOfDeviceMemory), core.ErrUnknown)

	assert.Equal(t, "VK_ERROR_DEVICE_LOST", VulkanResultString(vk.ErrorDeviceLost, false))
	assert.Contains(t, VulkanResultString(vk.Result(-12345), false), "-12345")
}

func TestVulkanSafeString(t *testing.T) {
	assert.Equal(t, "\x00", VulkanSafeString(""))
	assert.Equal(t, "main\x00", VulkanSafeString("main"))
	assert.Equal(t, "main\x00", VulkanSafeString("main\x00"))
	assert.Equal(t, 2, FindFirstZeroInByteArray([]byte{'a', 'b', 0, 'c'}))
}
