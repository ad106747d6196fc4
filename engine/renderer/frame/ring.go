// Package frame rotates command buffers and fences across the frames the GPU
// may still be working on, and holds resources back until those frames finish.
package frame

import (
	"fmt"

	"github.com/spaghettifunk/bindless/engine/containers"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// Device is the part of the GPU context the ring needs.
type Device interface {
	rhi.CommandDevice
	rhi.SyncDevice
	rhi.ResourceDevice
}

type RingConfig struct {
	// CommandBuffers is the number of command slots, each with its own pool.
	CommandBuffers int
	// FramesInFlight is the number of fences, each with its own destroy list.
	FramesInFlight int
}

type slotState int

const (
	slotIdle slotState = iota
	slotRecording
	slotSubmitted
)

func (s slotState) String() string {
	switch s {
	case slotIdle:
		return "idle"
	case slotRecording:
		return "recording"
	case slotSubmitted:
		return "submitted"
	}
	return fmt.Sprintf("slotState(%d)", int(s))
}

type commandSlot struct {
	pool  rhi.CommandPool
	cmd   rhi.CommandBuffer
	state slotState
	// fence slot of the last submission
	submittedWith int
}

type submitSlot struct {
	fence   rhi.Fence
	pending []Deferred
	waited  bool
}

/**
 * @brief Ring of command slots and submission slots.
 *
 * The two rings advance together. There are at least as many command
 * slots as submission slots. A submission
 * slot owns one fence and the resources waiting for it; those are destroyed
 * only after the fence has been waited.
 */
type Ring struct {
	device         Device
	framesInFlight int

	commands *containers.Ring[commandSlot]
	submits  *containers.Ring[submitSlot]
}

func NewRing(device Device, config RingConfig) (*Ring, error) {
	if config.CommandBuffers <= 0 || config.FramesInFlight <= 0 {
		return nil, fmt.Errorf("frame ring needs at least one command buffer and one frame in flight, got %d and %d: %w",
			config.CommandBuffers, config.FramesInFlight, core.ErrInvalidConfig)
	}
	if err := checkCommandBuffers(config.CommandBuffers, config.FramesInFlight); err != nil {
		return nil, err
	}
	r := &Ring{device: device, framesInFlight: config.FramesInFlight}
	if err := r.create(config.CommandBuffers); err != nil {
		r.release()
		return nil, err
	}
	core.LogDebug("Frame ring created (command buffers=%d frames in flight=%d).", config.CommandBuffers, config.FramesInFlight)
	return r, nil
}

// checkCommandBuffers rejects fewer command slots than fences. Both rings
// advance together, so a smaller command ring would hand out a slot whose
// last submission sits on a fence that has not been waited yet.
func checkCommandBuffers(commandBuffers, framesInFlight int) error {
	if commandBuffers < framesInFlight {
		return fmt.Errorf("frame ring needs at least as many command buffers as frames in flight, got %d and %d: %w",
			commandBuffers, framesInFlight, core.ErrInvalidConfig)
	}
	return nil
}

func (r *Ring) create(commandBuffers int) error {
	var err error
	if r.commands, err = containers.NewRing[commandSlot](commandBuffers); err != nil {
		return err
	}
	if r.submits, err = containers.NewRing[submitSlot](r.framesInFlight); err != nil {
		return err
	}

	for i := 0; i < commandBuffers; i++ {
		slot := r.commands.At(i)
		if slot.pool, err = r.device.CreateCommandPool(); err != nil {
			core.LogError("failed to create command pool %d: %s", i, err)
			return err
		}
		if slot.cmd, err = r.device.AllocateCommandBuffer(slot.pool); err != nil {
			core.LogError("failed to allocate command buffer %d: %s", i, err)
			return err
		}
	}
	for i := 0; i < r.framesInFlight; i++ {
		// signaled so the first wait on every slot returns immediately
		if r.submits.At(i).fence, err = r.device.CreateFence(true); err != nil {
			core.LogError("failed to create fence %d: %s", i, err)
			return err
		}
	}
	return nil
}

// release destroys pools and fences without waiting. Pending resources are
// disposed right away.
func (r *Ring) release() {
	if r.submits != nil {
		r.submits.Each(func(_ int, s *submitSlot) {
			r.dispose(s)
			if s.fence != nil {
				r.device.DestroyFence(s.fence)
				s.fence = nil
			}
		})
	}
	if r.commands != nil {
		r.commands.Each(func(_ int, c *commandSlot) {
			if c.pool != nil {
				r.device.DestroyCommandPool(c.pool)
				c.pool = nil
				c.cmd = nil
			}
		})
	}
	r.commands = nil
	r.submits = nil
}

func (r *Ring) dispose(s *submitSlot) int {
	n := len(s.pending)
	for _, res := range s.pending {
		res.dispose(r.device)
	}
	s.pending = s.pending[:0]
	return n
}

// ResetAndGetCommandBuffer resets the pool of the current command slot and
// returns its buffer, ready to begin. The current submission slot must have
// been waited first.
func (r *Ring) ResetAndGetCommandBuffer() (rhi.CommandBuffer, error) {
	if r.commands == nil {
		return nil, fmt.Errorf("frame ring is destroyed: %w", core.ErrProtocolViolation)
	}
	slot := r.commands.Current()
	if !r.submits.Current().waited {
		return nil, fmt.Errorf("command slot %d reset before waiting submission slot %d: %w",
			r.commands.Index(), r.submits.Index(), core.ErrProtocolViolation)
	}
	if slot.state == slotSubmitted {
		return nil, fmt.Errorf("command slot %d is still in flight on submission slot %d: %w",
			r.commands.Index(), slot.submittedWith, core.ErrProtocolViolation)
	}
	if err := r.device.ResetCommandPool(slot.pool); err != nil {
		core.LogError("failed to reset command pool %d: %s", r.commands.Index(), err)
		return nil, err
	}
	slot.state = slotRecording
	return slot.cmd, nil
}

// GetCommandBuffer returns the buffer of the current command slot as is.
func (r *Ring) GetCommandBuffer() rhi.CommandBuffer {
	if r.commands == nil {
		return nil
	}
	return r.commands.Current().cmd
}

// Submit queues the current command buffer with the fence of the current
// submission slot. The fence is reset first so a later wait cannot return
// before this work completes. Without explicit command buffers in info, the
// current one is submitted.
func (r *Ring) Submit(info rhi.SubmitInfo) error {
	if r.commands == nil {
		return fmt.Errorf("frame ring is destroyed: %w", core.ErrProtocolViolation)
	}
	slot := r.commands.Current()
	if slot.state != slotRecording {
		return fmt.Errorf("submit of command slot %d in state %s: %w", r.commands.Index(), slot.state, core.ErrProtocolViolation)
	}
	if len(info.CommandBuffers) == 0 {
		info.CommandBuffers = []rhi.CommandBuffer{slot.cmd}
	}

	sub := r.submits.Current()
	if err := r.device.ResetFence(sub.fence); err != nil {
		core.LogError("failed to reset fence %d: %s", r.submits.Index(), err)
		return err
	}
	if err := r.device.Submit(info, sub.fence); err != nil {
		core.LogError("failed to submit command slot %d: %s", r.commands.Index(), err)
		return fmt.Errorf("%w: %w", core.ErrDeviceLost, err)
	}
	slot.state = slotSubmitted
	slot.submittedWith = r.submits.Index()
	sub.waited = false
	return nil
}

// DestroyAfterSubmit queues res on the current submission slot. It is
// destroyed the next time this slot is waited.
func (r *Ring) DestroyAfterSubmit(res Deferred) {
	if r.submits == nil {
		return
	}
	sub := r.submits.Current()
	sub.pending = append(sub.pending, res)
}

// WaitUntilSubmitComplete blocks until the fence of the current submission
// slot signals, then destroys the resources queued on it. There is no timeout.
func (r *Ring) WaitUntilSubmitComplete() error {
	if r.submits == nil {
		return fmt.Errorf("frame ring is destroyed: %w", core.ErrProtocolViolation)
	}
	index := r.submits.Index()
	sub := r.submits.Current()
	if err := r.device.WaitForFence(sub.fence); err != nil {
		core.LogError("failed to wait fence %d: %s", index, err)
		return fmt.Errorf("%w: %w", core.ErrDeviceLost, err)
	}
	r.dispose(sub)
	sub.waited = true

	r.commands.Each(func(_ int, c *commandSlot) {
		if c.state == slotSubmitted && c.submittedWith == index {
			c.state = slotIdle
		}
	})
	return nil
}

// MoveToNext advances both rings by one slot.
func (r *Ring) MoveToNext() {
	if r.commands == nil {
		return
	}
	r.commands.Advance()
	r.submits.Advance()
}

// FrameIndex is the current submission slot, in [0, FramesInFlight).
func (r *Ring) FrameIndex() uint32 {
	if r.submits == nil {
		return 0
	}
	return uint32(r.submits.Index())
}

func (r *Ring) CommandIndex() int {
	if r.commands == nil {
		return 0
	}
	return r.commands.Index()
}

// Pending is the number of resources queued on submission slot.
func (r *Ring) Pending(slot int) int {
	if r.submits == nil || slot < 0 || slot >= r.submits.Len() {
		return 0
	}
	return len(r.submits.At(slot).pending)
}

// Len is the number of command slots.
func (r *Ring) Len() int {
	if r.commands == nil {
		return 0
	}
	return r.commands.Len()
}

func (r *Ring) FramesInFlight() int { return r.framesInFlight }

// Reset recreates every slot with a new number of command buffers. The
// device must be idle.
func (r *Ring) Reset(commandBuffers int) error {
	if commandBuffers <= 0 {
		return fmt.Errorf("frame ring needs at least one command buffer, got %d: %w", commandBuffers, core.ErrInvalidConfig)
	}
	if err := checkCommandBuffers(commandBuffers, r.framesInFlight); err != nil {
		return err
	}
	r.release()
	if err := r.create(commandBuffers); err != nil {
		r.release()
		return err
	}
	core.LogDebug("Frame ring reset (command buffers=%d).", commandBuffers)
	return nil
}

// Destroy waits for every submission slot, destroys the queued resources and
// then the pools and fences.
func (r *Ring) Destroy() error {
	if r.submits == nil {
		return nil
	}
	var firstErr error
	r.submits.Each(func(i int, s *submitSlot) {
		if err := r.device.WaitForFence(s.fence); err != nil && firstErr == nil {
			core.LogError("failed to wait fence %d on destroy: %s", i, err)
			firstErr = fmt.Errorf("%w: %w", core.ErrDeviceLost, err)
		}
	})
	r.release()
	return firstErr
}
