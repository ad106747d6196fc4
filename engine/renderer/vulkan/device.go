package vulkan

import (
	"fmt"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32
	TransferQueueIndex int32

	GraphicsQueue vk.Queue
	TransferQueue vk.Queue

	Properties vk.PhysicalDeviceProperties
	Features   vk.PhysicalDeviceFeatures
	Memory     vk.PhysicalDeviceMemoryProperties

	DepthFormat vk.Format
}

type VulkanPhysicalDeviceRequirements struct {
	Graphics          bool
	Compute           bool
	Transfer          bool
	SamplerAnisotropy bool
	DiscreteGPU       bool
	// MinAPIVersion rejects drivers older than the given version.
	MinAPIVersion uint32
}

type VulkanPhysicalDeviceQueueFamilyInfo struct {
	GraphicsFamilyIndex int32
	ComputeFamilyIndex  int32
	TransferFamilyIndex int32
}

func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	// NOTE: Do not create additional queues for shared indices.
	indices := []uint32{uint32(context.Device.GraphicsQueueIndex)}
	if context.Device.TransferQueueIndex != context.Device.GraphicsQueueIndex {
		indices = append(indices, uint32(context.Device.TransferQueueIndex))
	}

	queueCreateInfos := make([]vk.DeviceQueueCreateInfo, len(indices))
	for i, index := range indices {
		queueCreateInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: index,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	extensionNames := []string{}
	if deviceHasExtension(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SamplerAnisotropy:                      vk.True,
			ShaderSampledImageArrayDynamicIndexing: vk.True,
		}},
		// Bindless tables are written while bound and left partially populated.
		PNext: unsafe.Pointer(&vk.PhysicalDeviceVulkan12Features{
			SType:                                         vk.StructureTypePhysicalDeviceVulkan12Features,
			DescriptorIndexing:                            vk.True,
			DescriptorBindingVariableDescriptorCount:      vk.True,
			DescriptorBindingSampledImageUpdateAfterBind:  vk.True,
			DescriptorBindingUniformBufferUpdateAfterBind: vk.True,
			DescriptorBindingStorageBufferUpdateAfterBind: vk.True,
			DescriptorBindingUpdateUnusedWhilePending:     vk.True,
			DescriptorBindingPartiallyBound:               vk.True,
			RuntimeDescriptorArray:                        vk.True,
			ShaderSampledImageArrayNonUniformIndexing:     vk.True,
		}),
	}

	if res := vk.CreateDevice(
		context.Device.PhysicalDevice,
		&deviceCreateInfo,
		context.Allocator,
		&context.Device.LogicalDevice); res != vk.Success {
		return resultError("vkCreateDevice", res)
	}
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.GraphicsQueueIndex), 0, &queue)
	context.Device.GraphicsQueue = queue
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.TransferQueueIndex), 0, &queue)
	context.Device.TransferQueue = queue
	core.LogInfo("Queues obtained.")

	if !DeviceDetectDepthFormat(context.Device) {
		core.LogWarn("No supported depth format found.")
	}
	return nil
}

func DeviceDestroy(context *VulkanContext) {
	context.Device.GraphicsQueue = nil
	context.Device.TransferQueue = nil

	core.LogInfo("Destroying logical device...")
	if context.Device.LogicalDevice != nil {
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.GraphicsQueueIndex = -1
	context.Device.TransferQueueIndex = -1
}

func deviceHasExtension(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if vk.ToString(available[i].ExtensionName[:end+1]) == name {
			return true
		}
	}
	return false
}

func DeviceDetectDepthFormat(device *VulkanDevice) bool {
	candidates := []vk.Format{
		vk.FormatD32Sfloat,
		vk.FormatD32SfloatS8Uint,
		vk.FormatD24UnormS8Uint,
	}
	flags := vk.FormatFeatureDepthStencilAttachmentBit
	for _, candidate := range candidates {
		var properties vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(device.PhysicalDevice, candidate, &properties)
		properties.Deref()
		if (vk.FormatFeatureFlagBits(properties.LinearTilingFeatures)&flags) == flags ||
			(vk.FormatFeatureFlagBits(properties.OptimalTilingFeatures)&flags) == flags {
			device.DepthFormat = candidate
			return true
		}
	}
	return false
}

// SelectPhysicalDevice picks the first discrete GPU meeting the requirements,
// falling back to the first suitable device of any type.
func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError(err.Error())
		return err
	}
	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return resultError("vkEnumeratePhysicalDevices", res)
	}

	requirements := VulkanPhysicalDeviceRequirements{
		Graphics:          true,
		Transfer:          true,
		SamplerAnisotropy: true,
		MinAPIVersion:     uint32(vk.MakeVersion(1, 2, 0)),
	}

	selected := -1
	var selectedQueues VulkanPhysicalDeviceQueueFamilyInfo
	for _, discrete := range []bool{true, false} {
		requirements.DiscreteGPU = discrete
		for i := range physicalDevices {
			var properties vk.PhysicalDeviceProperties
			vk.GetPhysicalDeviceProperties(physicalDevices[i], &properties)
			properties.Deref()
			var features vk.PhysicalDeviceFeatures
			vk.GetPhysicalDeviceFeatures(physicalDevices[i], &features)
			features.Deref()

			queueInfo, ok := PhysicalDeviceMeetsRequirements(physicalDevices[i], &properties, &features, &requirements)
			if ok {
				selected = i
				selectedQueues = queueInfo
				context.Device.Properties = properties
				context.Device.Features = features
				break
			}
		}
		if selected >= 0 {
			break
		}
	}

	if selected < 0 {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError(err.Error())
		return err
	}

	device := context.Device
	device.PhysicalDevice = physicalDevices[selected]
	device.GraphicsQueueIndex = selectedQueues.GraphicsFamilyIndex
	device.TransferQueueIndex = selectedQueues.TransferFamilyIndex
	vk.GetPhysicalDeviceMemoryProperties(device.PhysicalDevice, &device.Memory)
	device.Memory.Deref()

	properties := device.Properties
	core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version(properties.ApiVersion).Major(),
		vk.Version(properties.ApiVersion).Minor(),
		vk.Version(properties.ApiVersion).Patch(),
	)

	for j := uint32(0); j < device.Memory.MemoryHeapCount; j++ {
		heap := device.Memory.MemoryHeaps[j]
		heap.Deref()
		memorySizeMib := uint64(heap.Size) / 1024 / 1024
		if vk.MemoryHeapFlagBits(heap.Flags)&vk.MemoryHeapDeviceLocalBit != 0 {
			core.LogInfo("Local GPU memory: %d MiB", memorySizeMib)
		} else {
			core.LogInfo("Shared System memory: %d MiB", memorySizeMib)
		}
	}

	core.LogInfo("Physical device selected.")
	return nil
}

func PhysicalDeviceMeetsRequirements(device vk.PhysicalDevice, properties *vk.PhysicalDeviceProperties, features *vk.PhysicalDeviceFeatures, requirements *VulkanPhysicalDeviceRequirements) (VulkanPhysicalDeviceQueueFamilyInfo, bool) {
	info := VulkanPhysicalDeviceQueueFamilyInfo{
		GraphicsFamilyIndex: -1,
		ComputeFamilyIndex:  -1,
		TransferFamilyIndex: -1,
	}

	if requirements.DiscreteGPU && properties.DeviceType != vk.PhysicalDeviceTypeDiscreteGpu {
		return info, false
	}
	if properties.ApiVersion < requirements.MinAPIVersion {
		core.LogInfo("Device API version is too old. Skipping.")
		return info, false
	}
	if requirements.SamplerAnisotropy && features.SamplerAnisotropy != vk.True {
		core.LogInfo("Device does not support samplerAnisotropy. Skipping.")
		return info, false
	}

	var queueFamilyCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	minTransferScore := 255
	for i := range queueFamilies {
		queueFamilies[i].Deref()
		flags := vk.QueueFlagBits(queueFamilies[i].QueueFlags)
		currentTransferScore := 0

		if flags&vk.QueueGraphicsBit != 0 {
			if info.GraphicsFamilyIndex < 0 {
				info.GraphicsFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		if flags&vk.QueueComputeBit != 0 {
			if info.ComputeFamilyIndex < 0 {
				info.ComputeFamilyIndex = int32(i)
			}
			currentTransferScore++
		}
		// Prefer the family with the fewest other capabilities: more likely a dedicated transfer queue.
		if flags&vk.QueueTransferBit != 0 && currentTransferScore <= minTransferScore {
			minTransferScore = currentTransferScore
			info.TransferFamilyIndex = int32(i)
		}
	}

	if (requirements.Graphics && info.GraphicsFamilyIndex < 0) ||
		(requirements.Compute && info.ComputeFamilyIndex < 0) ||
		(requirements.Transfer && info.TransferFamilyIndex < 0) {
		return info, false
	}

	core.LogDebug("Graphics Family Index: %d", info.GraphicsFamilyIndex)
	core.LogDebug("Transfer Family Index: %d", info.TransferFamilyIndex)
	core.LogDebug("Compute Family Index:  %d", info.ComputeFamilyIndex)
	return info, true
}
