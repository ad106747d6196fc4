package bindless

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi/rhitest"
)

type skyboxParams struct {
	Texture metadata.TextureHandle
	_       [3]uint32
}

type surfaceParams struct {
	Albedo    metadata.TextureHandle
	Normal    metadata.TextureHandle
	Transform metadata.BufferHandle
	Light     metadata.BufferHandle
	Color     [4]float32
}

func newTestDrawParams(t *testing.T, frames, alignment uint32) (*DrawParams, *rhitest.Device) {
	t.Helper()
	dev := rhitest.NewDevice()
	dp, err := NewDrawParams(dev, DrawParamsConfig{FramesInFlight: frames, MinAlignment: alignment}, "bindless-layout")
	require.NoError(t, err)
	return dp, dev
}

func TestNewDrawParamsValidatesConfig(t *testing.T) {
	dev := rhitest.NewDevice()

	_, err := NewDrawParams(dev, DrawParamsConfig{FramesInFlight: 0, MinAlignment: 16}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)

	_, err = NewDrawParams(dev, DrawParamsConfig{FramesInFlight: 2, MinAlignment: 48}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}

func TestNewDrawParamsPipelineLayout(t *testing.T) {
	dp, dev := newTestDrawParams(t, 2, 16)

	pl := dev.ObjectsOf("PipelineLayout")
	require.Len(t, pl, 1)
	desc := pl[0].Desc.(rhitest.PipelineLayoutDesc)
	assert.Equal(t, []rhi.DescriptorSetLayout{"bindless-layout", dp.DescriptorSetLayout()}, desc.SetLayouts)
	assert.Equal(t, PushConstantRanges(), desc.PushConstants)

	pool := dev.ObjectsOf("DescriptorPool")[0].Desc.(rhi.DescriptorPoolDesc)
	assert.Equal(t, uint32(2), pool.MaxSets)
}

func TestDeclareAlignsAndReturnsOffsets(t *testing.T) {
	dp, _ := newTestDrawParams(t, 2, 64)

	a, err := dp.Declare(16)
	require.NoError(t, err)
	b, err := dp.Declare(100)
	require.NoError(t, err)
	c, err := DeclareParams[surfaceParams](dp)
	require.NoError(t, err)

	assert.Equal(t, metadata.DrawParamsHandle(0), a)
	assert.Equal(t, metadata.DrawParamsHandle(64), b)
	assert.Equal(t, metadata.DrawParamsHandle(192), c)
	assert.Equal(t, 3, dp.Len())

	off, err := dp.Offset(b)
	require.NoError(t, err)
	assert.Equal(t, uint32(64), off)
}

func TestDeclareParamsRejectsVariableSize(t *testing.T) {
	dp, _ := newTestDrawParams(t, 2, 16)

	_, err := DeclareParams[[]uint32](dp)
	assert.ErrorIs(t, err, core.ErrProtocolViolation)
}

// Records of 16, 32 and 48 bytes with two frames in flight.
func TestBuildScenario(t *testing.T) {
	dp, dev := newTestDrawParams(t, 2, 16)

	h0, err := dp.Declare(16)
	require.NoError(t, err)
	h1, err := dp.Declare(32)
	require.NoError(t, err)
	h2, err := dp.Declare(48)
	require.NoError(t, err)

	shared := []byte{1, 2, 3, 4}
	require.NoError(t, dp.Define(h0, shared, AllFrames))
	require.NoError(t, dp.Define(h1, shared, AllFrames))

	frame0 := []byte{0xAA, 0xBB, 0xCC}
	require.NoError(t, dp.Define(h2, frame0, 0))

	require.NoError(t, dp.Build())
	assert.True(t, dp.IsBuilt())

	buffers := dev.ObjectsOf("Buffer")
	require.Len(t, buffers, 2)
	for _, b := range buffers {
		assert.GreaterOrEqual(t, len(b.Data), 96)
		assert.Equal(t, metadata.BufferUsageUniform, b.Desc.(rhi.BufferDesc).Usage)
		assert.Equal(t, shared, b.Data[0:4])
		assert.Equal(t, shared, b.Data[16:20])
	}
	assert.Equal(t, frame0, buffers[0].Data[48:51])
	assert.Equal(t, []byte{0, 0, 0}, buffers[1].Data[48:51])

	// one dynamic uniform descriptor per frame, ranging over the largest record
	require.Len(t, dev.Writes, 2)
	for i, w := range dev.Writes {
		set, err := dp.DescriptorSet(uint32(i))
		require.NoError(t, err)
		assert.Equal(t, set, w.Set)
		assert.Equal(t, metadata.DescriptorTypeUniformBufferDynamic, w.Type)
		assert.Equal(t, uint64(48), w.Buffer.Range)
		assert.Equal(t, buffers[i], w.Buffer.Buffer)
	}
}

func TestBufferSizeCoversDescriptorRange(t *testing.T) {
	dp, _ := newTestDrawParams(t, 1, 16)

	_, _ = dp.Declare(64)
	last, _ := dp.Declare(16)

	// the last record is read with a 64 byte range
	assert.GreaterOrEqual(t, dp.BufferSize(), uint32(last)+64)
	assert.Equal(t, uint32(0), dp.BufferSize()%16)
}

func TestBufferSizeIsSumOfAlignedRecords(t *testing.T) {
	tests := []struct {
		name      string
		alignment uint32
		sizes     []int
		want      uint32
	}{
		{"already aligned", 16, []int{16, 32, 48}, 96},
		{"padded", 64, []int{16, 32, 48}, 192},
		{"single", 256, []int{4}, 256},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dp, _ := newTestDrawParams(t, 2, tt.alignment)
			for _, s := range tt.sizes {
				_, err := dp.Declare(s)
				require.NoError(t, err)
			}
			assert.Equal(t, tt.want, dp.BufferSize())
		})
	}
}

func TestDefineAllFramesIsVisibleEverywhere(t *testing.T) {
	dp, _ := newTestDrawParams(t, 3, 16)
	h, err := DeclareParams[skyboxParams](dp)
	require.NoError(t, err)

	require.NoError(t, DefineParams(dp, h, skyboxParams{Texture: 7}, AllFrames))

	for frame := uint32(0); frame < 3; frame++ {
		rec, err := dp.Record(h, frame)
		require.NoError(t, err)
		assert.Equal(t, uint32(7), binary.LittleEndian.Uint32(rec[0:4]))
	}
}

func TestDefineSingleFrameOnlyTouchesThatFrame(t *testing.T) {
	dp, _ := newTestDrawParams(t, 3, 16)
	h, err := DeclareParams[surfaceParams](dp)
	require.NoError(t, err)

	require.NoError(t, DefineParams(dp, h, surfaceParams{Albedo: 1, Light: 9}, AllFrames))
	require.NoError(t, DefineParams(dp, h, surfaceParams{Albedo: 2, Light: 9}, 1))

	want := []uint32{1, 2, 1}
	for frame, albedo := range want {
		rec, err := dp.Record(h, uint32(frame))
		require.NoError(t, err)
		assert.Equal(t, albedo, binary.LittleEndian.Uint32(rec[0:4]), "frame %d", frame)
		assert.Equal(t, uint32(9), binary.LittleEndian.Uint32(rec[12:16]), "frame %d", frame)
	}
}

func TestDefineProtocolViolations(t *testing.T) {
	dp, _ := newTestDrawParams(t, 2, 16)
	h, err := dp.Declare(8)
	require.NoError(t, err)

	assert.ErrorIs(t, dp.Define(metadata.DrawParamsHandle(4), []byte{1}, AllFrames), core.ErrProtocolViolation)
	assert.ErrorIs(t, dp.Define(h, make([]byte, 17), AllFrames), core.ErrProtocolViolation)
	assert.ErrorIs(t, dp.Define(h, []byte{1}, 2), core.ErrProtocolViolation)

	// the aligned record accepts up to 16 bytes
	assert.NoError(t, dp.Define(h, make([]byte, 16), 1))
}

func TestLayoutIsFrozenAfterBuild(t *testing.T) {
	dp, _ := newTestDrawParams(t, 2, 16)
	h, err := dp.Declare(16)
	require.NoError(t, err)
	require.NoError(t, dp.Build())

	_, err = dp.Declare(16)
	assert.ErrorIs(t, err, core.ErrProtocolViolation)
	assert.ErrorIs(t, dp.Define(h, []byte{1}, AllFrames), core.ErrProtocolViolation)
	assert.ErrorIs(t, dp.Build(), core.ErrProtocolViolation)
}

func TestBuildWithoutRecordsIsNoop(t *testing.T) {
	dp, dev := newTestDrawParams(t, 2, 16)

	require.NoError(t, dp.Build())
	assert.False(t, dp.IsBuilt())
	assert.Equal(t, 0, dev.CountObjects("Buffer"))
	assert.Equal(t, 0, dev.CountObjects("DescriptorSet"))

	_, err := dp.DescriptorSet(0)
	assert.ErrorIs(t, err, core.ErrProtocolViolation)
}

func TestBuildReleasesBuffersOnFailure(t *testing.T) {
	dp, dev := newTestDrawParams(t, 2, 16)
	_, err := dp.Declare(16)
	require.NoError(t, err)

	dev.Fail["AllocateDescriptorSet"] = assert.AnError
	assert.ErrorIs(t, dp.Build(), assert.AnError)
	assert.False(t, dp.IsBuilt())
	require.Len(t, dev.Destroyed, 1)
	assert.Equal(t, "Buffer", dev.Destroyed[0].Kind)
	assert.Nil(t, dp.FrameBuffer(0))
}

// failingBufferDevice fails the nth CreateBuffer call once.
type failingBufferDevice struct {
	*rhitest.Device
	failAt int
	calls  int
}

func (d *failingBufferDevice) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	d.calls++
	if d.calls == d.failAt {
		return nil, assert.AnError
	}
	return d.Device.CreateBuffer(desc)
}

func TestBuildCanBeRetriedAfterPartialFailure(t *testing.T) {
	dev := &failingBufferDevice{Device: rhitest.NewDevice(), failAt: 2}
	dp, err := NewDrawParams(dev, DrawParamsConfig{FramesInFlight: 2, MinAlignment: 16}, "bindless-layout")
	require.NoError(t, err)
	_, err = dp.Declare(16)
	require.NoError(t, err)

	// frame 0 got its set before frame 1's buffer failed
	assert.ErrorIs(t, dp.Build(), assert.AnError)
	pool := dev.ObjectsOf("DescriptorPool")[0]
	assert.Empty(t, pool.PoolSets)
	assert.Equal(t, 1, pool.ResetCount)

	require.NoError(t, dp.Build())
	assert.True(t, dp.IsBuilt())
	assert.Len(t, pool.PoolSets, 2)
	for frame := uint32(0); frame < 2; frame++ {
		set, err := dp.DescriptorSet(frame)
		require.NoError(t, err)
		assert.False(t, set.(*rhitest.Object).Destroyed)
	}
}

func TestDefineShortDataKeepsRecordTail(t *testing.T) {
	dp, _ := newTestDrawParams(t, 2, 16)
	h, err := DeclareParams[surfaceParams](dp)
	require.NoError(t, err)

	require.NoError(t, DefineParams(dp, h, surfaceParams{Albedo: 1, Normal: 2, Transform: 3, Light: 4}, AllFrames))
	short := make([]byte, 4)
	binary.LittleEndian.PutUint32(short, 10)
	require.NoError(t, dp.Define(h, short, 0))

	rec, err := dp.Record(h, 0)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), binary.LittleEndian.Uint32(rec[0:4]))
	assert.Equal(t, uint32(2), binary.LittleEndian.Uint32(rec[4:8]))
	assert.Equal(t, uint32(4), binary.LittleEndian.Uint32(rec[12:16]))

	rec, err = dp.Record(h, 1)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(rec[0:4]))
}
