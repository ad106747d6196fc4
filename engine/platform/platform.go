// Package platform owns the GLFW lifetime and the Vulkan loader entry point.
package platform

import (
	"fmt"
	"runtime"
	"unsafe"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/spaghettifunk/bindless/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

// Platform keeps a hidden window alive so the loader and the event pump
// behave the same as in a windowed run. Nothing is presented to it.
type Platform struct {
	Window    *glfw.Window
	startTime float64
}

func New() (*Platform, error) {
	return &Platform{}, nil
}

func (p *Platform) Startup(applicationName string, width, height uint32) error {
	if err := glfw.Init(); err != nil {
		core.LogError("failed to initialize glfw: %s", err)
		return err
	}

	if !glfw.VulkanSupported() {
		glfw.Terminate()
		err := fmt.Errorf("glfw reports no Vulkan loader")
		core.LogError(err.Error())
		return err
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), applicationName, nil, nil)
	if err != nil {
		glfw.Terminate()
		core.LogError("failed to create window: %s", err)
		return err
	}
	p.Window = window
	p.startTime = glfw.GetTime()
	return nil
}

// VulkanProcAddress returns vkGetInstanceProcAddr as resolved by GLFW.
func (p *Platform) VulkanProcAddress() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

// PumpMessages processes pending window events and reports whether the
// application should keep running.
func (p *Platform) PumpMessages() bool {
	glfw.PollEvents()
	return p.Window == nil || !p.Window.ShouldClose()
}

// Elapsed returns seconds since Startup.
func (p *Platform) Elapsed() float64 {
	return glfw.GetTime() - p.startTime
}

func (p *Platform) Shutdown() error {
	if p.Window != nil {
		p.Window.Destroy()
		p.Window = nil
	}
	glfw.Terminate()
	return nil
}
