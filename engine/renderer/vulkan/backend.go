// Package vulkan implements rhi.Device with goki/vulkan.
package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/platform"
)

type VulkanConfig struct {
	ApplicationName string
	// Debug enables the Khronos validation layer and routes its reports to the logger.
	Debug bool
}

// New loads Vulkan through the platform, creates the instance and selects a
// device with descriptor indexing support.
func New(p *platform.Platform, config VulkanConfig) (*VulkanContext, error) {
	procAddr := p.VulkanProcAddress()
	if procAddr == nil {
		err := fmt.Errorf("GetInstanceProcAddress is nil")
		core.LogError(err.Error())
		return nil, err
	}
	vk.SetGetInstanceProcAddr(procAddr)

	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator: nil,
		debug:     config.Debug,
		Device:    &VulkanDevice{},
		locks:     NewVulkanLockPool(),
	}

	if err := context.createInstance(config.ApplicationName); err != nil {
		return nil, err
	}

	if context.debug {
		if err := context.createDebugger(); err != nil {
			context.Shutdown()
			return nil, err
		}
	}

	if err := DeviceCreate(context); err != nil {
		core.LogError("Failed to create device!")
		context.Shutdown()
		return nil, err
	}
	context.locks.SetQueueFamily(uint32(context.Device.GraphicsQueueIndex))

	core.LogInfo("Vulkan renderer initialized successfully.")
	return context, nil
}

func (vc *VulkanContext) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType: vk.StructureTypeApplicationInfo,
		// Descriptor indexing is core in 1.2.
		ApiVersion:         uint32(vk.MakeVersion(1, 2, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("Bindless Engine"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if vc.debug {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	for _, ext := range requiredExtensions {
		core.LogDebug("Required extension: %s", ext)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	requiredLayers := []string{}
	if vc.debug {
		core.LogInfo("Validation layers enabled. Enumerating...")
		requiredLayers = []string{"VK_LAYER_KHRONOS_validation"}
		if err := checkValidationLayers(requiredLayers); err != nil {
			return err
		}
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vc.Allocator, &vc.Instance); res != vk.Success {
		return resultError("vkCreateInstance", res)
	}
	if err := vk.InitInstance(vc.Instance); err != nil {
		core.LogError(err.Error())
		return err
	}
	core.LogInfo("Vulkan Instance created.")
	return nil
}

func checkValidationLayers(required []string) error {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}
	available := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, available); res != vk.Success {
		return resultError("vkEnumerateInstanceLayerProperties", res)
	}

	for _, name := range required {
		core.LogDebug("Searching for layer: %s...", name)
		found := false
		for j := range available {
			available[j].Deref()
			end := FindFirstZeroInByteArray(available[j].LayerName[:])
			if name == vk.ToString(available[j].LayerName[:end+1]) {
				found = true
				break
			}
		}
		if !found {
			err := fmt.Errorf("required validation layer is missing: %s", name)
			core.LogError(err.Error())
			return err
		}
	}
	core.LogInfo("All required validation layers are present.")
	return nil
}

func (vc *VulkanContext) createDebugger() error {
	core.LogDebug("Creating Vulkan debugger...")
	debugCreateInfo := vk.DebugReportCallbackCreateInfo{
		SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
		Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
		PfnCallback: dbgCallbackFunc,
	}

	var dbg vk.DebugReportCallback
	if err := vk.Error(vk.CreateDebugReportCallback(vc.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
		core.LogError("vk.CreateDebugReportCallback failed with %s", err)
		return err
	}
	vc.debugMessenger = dbg
	core.LogDebug("Vulkan debugger created.")
	return nil
}

// Shutdown destroys the device and the instance. Every object created through
// the context must have been destroyed before.
func (vc *VulkanContext) Shutdown() {
	if vc.Device != nil && vc.Device.LogicalDevice != nil {
		vk.DeviceWaitIdle(vc.Device.LogicalDevice)
		core.LogDebug("Destroying Vulkan device...")
		DeviceDestroy(vc)
	}

	if vc.debugMessenger != vk.NullDebugReportCallback {
		core.LogDebug("Destroying Vulkan debugger...")
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugMessenger, vc.Allocator)
		vc.debugMessenger = vk.NullDebugReportCallback
	}

	if vc.Instance != nil {
		core.LogDebug("Destroying Vulkan instance...")
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
