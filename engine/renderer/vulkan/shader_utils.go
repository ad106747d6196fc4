package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

const spirvMagic uint32 = 0x07230203

// CreateShaderModule wraps SPIR-V bytecode. The code must be a whole number of
// words and start with the SPIR-V magic number.
func (vc *VulkanContext) CreateShaderModule(code []byte) (rhi.ShaderModule, error) {
	words, err := spirvWords(code)
	if err != nil {
		core.LogError(err.Error())
		return nil, err
	}

	createInfo := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code)),
		PCode:    words,
	}

	var module vk.ShaderModule
	if res := vk.CreateShaderModule(vc.logicalDevice(), &createInfo, vc.Allocator, &module); res != vk.Success {
		return nil, resultError("vkCreateShaderModule", res)
	}
	return module, nil
}

func (vc *VulkanContext) DestroyShaderModule(module rhi.ShaderModule) {
	vk.DestroyShaderModule(vc.logicalDevice(), module.(vk.ShaderModule), vc.Allocator)
}

func spirvWords(code []byte) ([]uint32, error) {
	if len(code) < 4 || len(code)%4 != 0 {
		return nil, fmt.Errorf("SPIR-V size %d is not a positive multiple of 4", len(code))
	}
	words := make([]uint32, len(code)/4)
	copy(unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), len(code)), code)
	if words[0] != spirvMagic {
		return nil, fmt.Errorf("bad SPIR-V magic number %#08x", words[0])
	}
	return words, nil
}
