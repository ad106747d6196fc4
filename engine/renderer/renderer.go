// Package renderer ties the bindless table, the draw parameters, the pipeline
// cache and the frame ring into a frame loop.
package renderer

import (
	"fmt"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/bindless"
	"github.com/spaghettifunk/bindless/engine/renderer/frame"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/pipeline"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

type System struct {
	device rhi.Device
	config core.RendererConfig

	registry   *bindless.Registry
	drawParams *bindless.DrawParams
	pipelines  *pipeline.Cache
	ring       *frame.Ring

	metrics    *core.Metrics
	frameClock *core.Clock
	waitClock  *core.Clock
	state      *RenderState
}

// NewSystem creates every renderer component on device. Pipelines created
// through the system share the layout [bindless table, draw parameters].
func NewSystem(device rhi.Device, config core.RendererConfig) (*System, error) {
	if err := config.Validate(); err != nil {
		core.LogError("invalid renderer configuration: %s", err)
		return nil, err
	}
	s := &System{
		device:     device,
		config:     config,
		metrics:    core.NewMetrics(),
		frameClock: core.NewClock(),
		waitClock:  core.NewClock(),
	}

	var err error
	s.registry, err = bindless.NewRegistry(device, bindless.RegistryConfig{
		MaxTextures:       config.MaxTextures,
		MaxUniformBuffers: config.MaxUniformBuffers,
		MaxStorageBuffers: config.MaxStorageBuffers,
	})
	if err != nil {
		return nil, err
	}

	alignment := device.Limits().MinUniformBufferOffsetAlignment
	if alignment == 0 {
		alignment = 1
	}
	s.drawParams, err = bindless.NewDrawParams(device, bindless.DrawParamsConfig{
		FramesInFlight: config.FramesInFlight,
		MinAlignment:   uint32(alignment),
	}, s.registry.DescriptorSetLayout())
	if err != nil {
		s.Destroy()
		return nil, err
	}

	s.pipelines = pipeline.NewCache(device, pipeline.WithCommonLayout(pipeline.CommonLayout{
		Bindings:        [][]metadata.DescriptorBinding{s.registry.Bindings(), s.drawParams.Bindings()},
		PushConstants:   bindless.PushConstantRanges(),
		SetLayouts:      []rhi.DescriptorSetLayout{s.registry.DescriptorSetLayout(), s.drawParams.DescriptorSetLayout()},
		PipelineLayouts: []rhi.PipelineLayout{s.registry.PipelineLayout(), s.drawParams.PipelineLayout()},
	}))

	s.ring, err = frame.NewRing(device, frame.RingConfig{
		CommandBuffers: int(config.CommandBuffers),
		FramesInFlight: int(config.FramesInFlight),
	})
	if err != nil {
		s.Destroy()
		return nil, err
	}

	core.LogInfo("Renderer system initialized (frames in flight=%d).", config.FramesInFlight)
	return s, nil
}

func (s *System) Registry() *bindless.Registry     { return s.registry }
func (s *System) DrawParams() *bindless.DrawParams { return s.drawParams }
func (s *System) Pipelines() *pipeline.Cache       { return s.pipelines }
func (s *System) Ring() *frame.Ring                { return s.ring }
func (s *System) Metrics() *core.Metrics           { return s.metrics }

// BeginFrame waits for the oldest submission of the current slot, releases
// what was queued behind it and starts recording.
func (s *System) BeginFrame() (*RenderState, error) {
	if s.state != nil {
		return nil, fmt.Errorf("frame already begun: %w", core.ErrProtocolViolation)
	}
	s.frameClock.Start()

	pending := s.ring.Pending(int(s.ring.FrameIndex()))
	s.waitClock.Start()
	if err := s.ring.WaitUntilSubmitComplete(); err != nil {
		return nil, err
	}
	s.waitClock.Update()
	s.metrics.FenceWaitUpdate(s.waitClock.Elapsed())
	s.metrics.DisposedResources += uint64(pending)

	cmd, err := s.ring.ResetAndGetCommandBuffer()
	if err != nil {
		return nil, err
	}
	if err := s.device.BeginCommandBuffer(cmd); err != nil {
		core.LogError("failed to begin command buffer: %s", err)
		return nil, err
	}
	s.state = NewRenderState(s.device, s.pipelines, s.drawParams, cmd, s.ring.FrameIndex())
	return s.state, nil
}

// EndFrame finishes recording, submits and moves to the next slot. Without
// command buffers in submit, the frame's own buffer is submitted.
func (s *System) EndFrame(submit rhi.SubmitInfo) error {
	if s.state == nil {
		return fmt.Errorf("frame ended without begin: %w", core.ErrProtocolViolation)
	}
	state := s.state
	s.state = nil

	if err := s.device.EndCommandBuffer(state.CommandBuffer()); err != nil {
		core.LogError("failed to end command buffer: %s", err)
		return err
	}
	if err := s.ring.Submit(submit); err != nil {
		return err
	}
	s.ring.MoveToNext()

	stats := state.Stats()
	s.metrics.IssuedBinds += stats.IssuedBinds
	s.metrics.SkippedBinds += stats.SkippedBinds
	s.frameClock.Update()
	s.metrics.FrameUpdate(s.frameClock.Elapsed())
	return nil
}

// DestroyAfterSubmit releases res once the GPU is done with the current frame.
func (s *System) DestroyAfterSubmit(res frame.Deferred) {
	s.ring.DestroyAfterSubmit(res)
}

// Destroy waits for the device and releases every component.
func (s *System) Destroy() {
	if err := s.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle: %s", err)
	}
	if s.ring != nil {
		if err := s.ring.Destroy(); err != nil {
			core.LogError("failed to destroy frame ring: %s", err)
		}
		s.ring = nil
	}
	if s.pipelines != nil {
		s.pipelines.Destroy()
		s.pipelines = nil
	}
	if s.drawParams != nil {
		s.drawParams.Destroy()
		s.drawParams = nil
	}
	if s.registry != nil {
		s.registry.Destroy()
		s.registry = nil
	}
	core.LogInfo("Renderer system destroyed.")
}
