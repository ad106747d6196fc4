package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
)

type resultInfo struct {
	name        string
	description string
}

// From: https://www.khronos.org/registry/vulkan/specs/1.3-extensions/man/html/VkResult.html
var resultInfos = map[vk.Result]resultInfo{
	vk.Success:                   {"VK_SUCCESS", "Command successfully completed"},
	vk.NotReady:                  {"VK_NOT_READY", "A fence or query has not yet completed"},
	vk.Timeout:                   {"VK_TIMEOUT", "A wait operation has not completed in the specified time"},
	vk.EventSet:                  {"VK_EVENT_SET", "An event is signaled"},
	vk.EventReset:                {"VK_EVENT_RESET", "An event is unsignaled"},
	vk.Incomplete:                {"VK_INCOMPLETE", "A return array was too small for the result"},
	vk.ErrorOutOfHostMemory:      {"VK_ERROR_OUT_OF_HOST_MEMORY", "A host memory allocation has failed."},
	vk.ErrorOutOfDeviceMemory:    {"VK_ERROR_OUT_OF_DEVICE_MEMORY", "A device memory allocation has failed."},
	vk.ErrorInitializationFailed: {"VK_ERROR_INITIALIZATION_FAILED", "Initialization of an object could not be completed for implementation-specific reasons."},
	vk.ErrorDeviceLost:           {"VK_ERROR_DEVICE_LOST", "The logical or physical device has been lost."},
	vk.ErrorMemoryMapFailed:      {"VK_ERROR_MEMORY_MAP_FAILED", "Mapping of a memory object has failed."},
	vk.ErrorLayerNotPresent:      {"VK_ERROR_LAYER_NOT_PRESENT", "A requested layer is not present or could not be loaded."},
	vk.ErrorExtensionNotPresent:  {"VK_ERROR_EXTENSION_NOT_PRESENT", "A requested extension is not supported."},
	vk.ErrorFeatureNotPresent:    {"VK_ERROR_FEATURE_NOT_PRESENT", "A requested feature is not supported."},
	vk.ErrorIncompatibleDriver:   {"VK_ERROR_INCOMPATIBLE_DRIVER", "The requested version of Vulkan is not supported by the driver."},
	vk.ErrorTooManyObjects:       {"VK_ERROR_TOO_MANY_OBJECTS", "Too many objects of the type have already been created."},
	vk.ErrorFormatNotSupported:   {"VK_ERROR_FORMAT_NOT_SUPPORTED", "A requested format is not supported on this device."},
	vk.ErrorFragmentedPool:       {"VK_ERROR_FRAGMENTED_POOL", "A pool allocation has failed due to fragmentation of the pool's memory."},
	vk.ErrorOutOfPoolMemory:      {"VK_ERROR_OUT_OF_POOL_MEMORY", "A pool memory allocation has failed."},
	vk.ErrorInvalidShaderNv:      {"VK_ERROR_INVALID_SHADER_NV", "One or more shaders failed to compile or link."},
	vk.ErrorFragmentation:        {"VK_ERROR_FRAGMENTATION", "A descriptor pool creation has failed due to fragmentation."},
	vk.ErrorUnknown:              {"VK_ERROR_UNKNOWN", "An unknown error has occurred."},
}

func VulkanResultString(result vk.Result, getExtended bool) string {
	info, ok := resultInfos[result]
	if !ok {
		return fmt.Sprintf("VkResult(%d)", int32(result))
	}
	if getExtended {
		return info.name + " " + info.description
	}
	return info.name
}

// VulkanResultIsSuccess reports whether result is a success code. Error
// codes are all negative.
func VulkanResultIsSuccess(result vk.Result) bool {
	return result >= vk.Success
}

// resultError logs and wraps a failed call. Results that leave the device
// unusable map to core.ErrDeviceLost, exhausted pools to
// core.ErrCapacityExceeded and anything else to core.ErrUnknown.
func resultError(call string, result vk.Result) error {
	if VulkanResultIsSuccess(result) {
		return nil
	}
	sentinel := core.ErrUnknown
	switch result {
	case vk.ErrorDeviceLost:
		sentinel = core.ErrDeviceLost
	case vk.ErrorOutOfPoolMemory, vk.ErrorFragmentedPool, vk.ErrorTooManyObjects:
		sentinel = core.ErrCapacityExceeded
	}
	err := fmt.Errorf("%s failed with %s: %w", call, VulkanResultString(result, true), sentinel)
	core.LogError(err.Error())
	return err
}

var end = "\x00"
var endChar byte = '\x00'

func VulkanSafeString(s string) string {
	if len(s) == 0 {
		return end
	}
	if s[len(s)-1] != endChar {
		return s + end
	}
	return s
}

func VulkanSafeStrings(list []string) []string {
	for i := range list {
		list[i] = VulkanSafeString(list[i])
	}
	return list
}

func FindFirstZeroInByteArray(arr []byte) int {
	for i, b := range arr {
		if b == 0 {
			return i
		}
	}
	return len(arr) - 1
}
