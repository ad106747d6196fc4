package frame

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi/rhitest"
)

func newTestRing(t *testing.T, commandBuffers, frames int) (*Ring, *rhitest.Device) {
	t.Helper()
	dev := rhitest.NewDevice()
	r, err := NewRing(dev, RingConfig{CommandBuffers: commandBuffers, FramesInFlight: frames})
	require.NoError(t, err)
	return r, dev
}

// frame records and submits one empty frame on the current slots.
func frame(t *testing.T, r *Ring) {
	t.Helper()
	require.NoError(t, r.WaitUntilSubmitComplete())
	_, err := r.ResetAndGetCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, r.Submit(rhi.SubmitInfo{}))
	r.MoveToNext()
}

func TestNewRingCreatesSignaledFences(t *testing.T) {
	r, dev := newTestRing(t, 3, 2)

	assert.Equal(t, 3, r.Len())
	assert.Equal(t, 2, r.FramesInFlight())
	assert.Equal(t, 3, dev.CountObjects("CommandPool"))
	assert.Equal(t, 3, dev.CountObjects("CommandBuffer"))

	fences := dev.ObjectsOf("Fence")
	require.Len(t, fences, 2)
	for _, f := range fences {
		assert.True(t, f.Signaled)
	}
}

func TestNewRingRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config RingConfig
	}{
		{"no command buffers", RingConfig{CommandBuffers: 0, FramesInFlight: 2}},
		{"no frames", RingConfig{CommandBuffers: 2, FramesInFlight: 0}},
		{"fewer command buffers than frames", RingConfig{CommandBuffers: 1, FramesInFlight: 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := rhitest.NewDevice()
			_, err := NewRing(dev, tt.config)
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
			assert.Zero(t, dev.CountObjects("CommandPool"))
		})
	}
}

func TestEqualSlotCountsRunManyFrames(t *testing.T) {
	r, dev := newTestRing(t, 2, 2)
	dev.SignalOnSubmit = true
	for i := 0; i < 5; i++ {
		frame(t, r)
	}
	assert.Len(t, dev.Submits, 5)
}

func TestSubmitResetsFenceBeforeSubmitting(t *testing.T) {
	r, dev := newTestRing(t, 2, 2)

	require.NoError(t, r.WaitUntilSubmitComplete())
	cmd, err := r.ResetAndGetCommandBuffer()
	require.NoError(t, err)

	// the fake rejects a submit with a signaled fence
	require.NoError(t, r.Submit(rhi.SubmitInfo{}))

	fence := dev.ObjectsOf("Fence")[0]
	assert.Equal(t, 1, fence.ResetCount)
	assert.False(t, fence.Signaled)
	require.Len(t, dev.Submits, 1)
	assert.Equal(t, []rhi.CommandBuffer{cmd}, dev.Submits[0].CommandBuffers)
}

func TestDeferredResourceOutlivesItsSubmission(t *testing.T) {
	r, dev := newTestRing(t, 2, 2)

	// submission S on slot 0
	require.NoError(t, r.WaitUntilSubmitComplete())
	_, err := r.ResetAndGetCommandBuffer()
	require.NoError(t, err)
	buffer, _ := dev.CreateBuffer(rhi.BufferDesc{Size: 16})
	r.DestroyAfterSubmit(DeferredBuffer{Buffer: buffer})
	require.NoError(t, r.Submit(rhi.SubmitInfo{}))
	r.MoveToNext()
	assert.Equal(t, 1, r.Pending(0))

	// slot 1 is untouched by S
	frame(t, r)
	assert.False(t, buffer.(*rhitest.Object).Destroyed)

	// back on slot 0: the GPU has not finished S yet
	assert.ErrorIs(t, r.WaitUntilSubmitComplete(), rhitest.ErrWouldBlock)
	assert.False(t, buffer.(*rhitest.Object).Destroyed)
	assert.Equal(t, 1, r.Pending(0))

	dev.OnWait = func(f *rhitest.Object) { dev.SignalFence(f) }
	require.NoError(t, r.WaitUntilSubmitComplete())
	assert.True(t, buffer.(*rhitest.Object).Destroyed)
	assert.Equal(t, 0, r.Pending(0))
}

func TestDeferredImageDestroysViewThenImage(t *testing.T) {
	r, dev := newTestRing(t, 1, 1)
	image, _ := dev.CreateImage(rhi.ImageDesc{Width: 4, Height: 4})
	view, _ := dev.CreateImageView(image)

	r.DestroyAfterSubmit(DeferredImage{Image: image, View: view})
	require.NoError(t, r.WaitUntilSubmitComplete())

	require.Len(t, dev.Destroyed, 2)
	assert.Equal(t, "ImageView", dev.Destroyed[0].Kind)
	assert.Equal(t, "Image", dev.Destroyed[1].Kind)
}

func TestIndicesAdvanceIndependently(t *testing.T) {
	r, dev := newTestRing(t, 3, 2)
	dev.SignalOnSubmit = true

	want := []struct {
		command int
		frame   uint32
	}{
		{0, 0}, {1, 1}, {2, 0}, {0, 1}, {1, 0}, {2, 1},
	}
	for i, w := range want {
		assert.Equal(t, w.command, r.CommandIndex(), "frame %d", i)
		assert.Equal(t, w.frame, r.FrameIndex(), "frame %d", i)
		frame(t, r)
	}
}

func TestProtocolViolations(t *testing.T) {
	r, dev := newTestRing(t, 1, 1)

	_, err := r.ResetAndGetCommandBuffer()
	assert.ErrorIs(t, err, core.ErrProtocolViolation, "reset before wait")

	assert.ErrorIs(t, r.Submit(rhi.SubmitInfo{}), core.ErrProtocolViolation, "submit before recording")

	require.NoError(t, r.WaitUntilSubmitComplete())
	_, err = r.ResetAndGetCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, r.Submit(rhi.SubmitInfo{}))

	assert.ErrorIs(t, r.Submit(rhi.SubmitInfo{}), core.ErrProtocolViolation, "double submit")
	_, err = r.ResetAndGetCommandBuffer()
	assert.ErrorIs(t, err, core.ErrProtocolViolation, "reset while in flight")

	dev.SignalFence(dev.ObjectsOf("Fence")[0])
	require.NoError(t, r.WaitUntilSubmitComplete())
	_, err = r.ResetAndGetCommandBuffer()
	assert.NoError(t, err)
}

func TestResetCommandBufferClearsRecording(t *testing.T) {
	r, dev := newTestRing(t, 1, 1)
	require.NoError(t, r.WaitUntilSubmitComplete())
	cmd, err := r.ResetAndGetCommandBuffer()
	require.NoError(t, err)
	require.NoError(t, dev.BeginCommandBuffer(cmd))
	assert.Equal(t, []string{"Begin"}, dev.CommandNames(cmd))

	cmd, err = r.ResetAndGetCommandBuffer()
	require.NoError(t, err)
	assert.Empty(t, dev.CommandNames(cmd))
	assert.Equal(t, cmd, r.GetCommandBuffer())
}

func TestResetRecreatesSlots(t *testing.T) {
	r, dev := newTestRing(t, 2, 2)
	dev.SignalOnSubmit = true
	frame(t, r)

	buffer, _ := dev.CreateBuffer(rhi.BufferDesc{Size: 16})
	r.DestroyAfterSubmit(DeferredBuffer{Buffer: buffer})

	require.NoError(t, r.Reset(4))
	assert.Equal(t, 4, r.Len())
	assert.Equal(t, 0, r.CommandIndex())
	assert.Equal(t, uint32(0), r.FrameIndex())
	assert.True(t, buffer.(*rhitest.Object).Destroyed)
	assert.Equal(t, 6, dev.CountObjects("CommandPool"))
	assert.Equal(t, 4, dev.CountObjects("Fence"))

	assert.ErrorIs(t, r.Reset(0), core.ErrInvalidConfig)
	assert.ErrorIs(t, r.Reset(1), core.ErrInvalidConfig)
}

func TestDestroyWaitsAndDrains(t *testing.T) {
	r, dev := newTestRing(t, 2, 2)
	dev.SignalOnSubmit = true
	frame(t, r)

	buffer, _ := dev.CreateBuffer(rhi.BufferDesc{Size: 16})
	r.DestroyAfterSubmit(DeferredBuffer{Buffer: buffer})

	require.NoError(t, r.Destroy())
	assert.True(t, buffer.(*rhitest.Object).Destroyed)
	for _, kind := range []string{"Fence", "CommandPool", "CommandBuffer"} {
		for _, o := range dev.ObjectsOf(kind) {
			assert.True(t, o.Destroyed, "%s", o)
		}
	}

	// already destroyed
	assert.NoError(t, r.Destroy())
	_, err := r.ResetAndGetCommandBuffer()
	assert.ErrorIs(t, err, core.ErrProtocolViolation)
}
