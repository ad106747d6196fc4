package bindless

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/math"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// AllFrames targets every frame-in-flight copy of a record.
const AllFrames uint32 = metadata.InvalidHandle

// DrawParamsBinding is the binding of the dynamic uniform buffer in the draw parameters set.
const DrawParamsBinding uint32 = 0

type DrawParamsDevice interface {
	rhi.DescriptorDevice
	CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error)
	WriteBuffer(buffer rhi.Buffer, offset uint64, data []byte) error
	DestroyBuffer(buffer rhi.Buffer)
}

type DrawParamsConfig struct {
	FramesInFlight uint32
	// MinAlignment is the device's minimum dynamic uniform offset alignment.
	MinAlignment uint32
}

type paramsRecord struct {
	offset uint32
	data   []byte
}

/**
 * @brief Per-frame parameter records of every draw domain.
 *
 * Records are declared once, then copied into one uniform buffer per frame in
 * flight. All records of a frame share a single descriptor; a draw selects
 * its record through the dynamic offset, which is the record handle.
 */
type DrawParams struct {
	device DrawParamsDevice
	config DrawParamsConfig

	setLayout      rhi.DescriptorSetLayout
	pool           rhi.DescriptorPool
	pipelineLayout rhi.PipelineLayout

	// records[frame][index]
	records       [][]paramsRecord
	handleToIndex map[metadata.DrawParamsHandle]int
	size          uint32
	maxRecordSize uint32

	built   bool
	buffers []rhi.Buffer
	sets    []rhi.DescriptorSet
}

func NewDrawParams(device DrawParamsDevice, config DrawParamsConfig, bindlessLayout rhi.DescriptorSetLayout) (*DrawParams, error) {
	if config.FramesInFlight == 0 {
		return nil, fmt.Errorf("bindless: draw params need at least one frame in flight: %w", core.ErrInvalidConfig)
	}
	if !math.IsPowerOfTwo(config.MinAlignment) {
		return nil, fmt.Errorf("bindless: minimum alignment %d is not a power of two: %w", config.MinAlignment, core.ErrInvalidConfig)
	}

	dp := &DrawParams{
		device:        device,
		config:        config,
		records:       make([][]paramsRecord, config.FramesInFlight),
		handleToIndex: make(map[metadata.DrawParamsHandle]int),
	}

	var err error
	dp.setLayout, err = device.CreateDescriptorSetLayout(rhi.DescriptorSetLayoutDesc{
		Bindings:        dp.Bindings(),
		UpdateAfterBind: true,
	})
	if err != nil {
		core.LogError("failed to create draw params descriptor set layout: %s", err)
		return nil, err
	}

	dp.pool, err = device.CreateDescriptorPool(rhi.DescriptorPoolDesc{
		Sizes: []rhi.DescriptorPoolSize{
			{Type: metadata.DescriptorTypeUniformBufferDynamic, Count: config.FramesInFlight},
		},
		MaxSets:         config.FramesInFlight,
		UpdateAfterBind: true,
	})
	if err != nil {
		core.LogError("failed to create draw params descriptor pool: %s", err)
		dp.Destroy()
		return nil, err
	}

	dp.pipelineLayout, err = device.CreatePipelineLayout(
		[]rhi.DescriptorSetLayout{bindlessLayout, dp.setLayout},
		PushConstantRanges(),
	)
	if err != nil {
		core.LogError("failed to create draw params pipeline layout: %s", err)
		dp.Destroy()
		return nil, err
	}
	return dp, nil
}

// Bindings returns the layout of the draw parameters set.
func (dp *DrawParams) Bindings() []metadata.DescriptorBinding {
	return []metadata.DescriptorBinding{{
		Binding: DrawParamsBinding,
		Type:    metadata.DescriptorTypeUniformBufferDynamic,
		Count:   1,
		Stages:  metadata.ShaderStageVertex | metadata.ShaderStageFragment,
	}}
}

// Declare reserves an aligned record of size bytes in every frame copy.
func (dp *DrawParams) Declare(size int) (metadata.DrawParamsHandle, error) {
	if dp.built {
		err := fmt.Errorf("bindless: cannot declare draw params after Build: %w", core.ErrProtocolViolation)
		core.LogError(err.Error())
		return metadata.InvalidDrawParams, err
	}
	if size <= 0 {
		err := fmt.Errorf("bindless: draw params size must be positive, got %d: %w", size, core.ErrProtocolViolation)
		core.LogError(err.Error())
		return metadata.InvalidDrawParams, err
	}

	aligned := math.AlignUp(uint64(size), uint64(dp.config.MinAlignment))
	if uint64(dp.size)+aligned >= uint64(metadata.InvalidHandle) {
		err := fmt.Errorf("bindless: draw params exceed the addressable range: %w", core.ErrCapacityExceeded)
		core.LogError(err.Error())
		return metadata.InvalidDrawParams, err
	}

	offset := dp.size
	handle := metadata.DrawParamsHandle(offset)
	dp.handleToIndex[handle] = len(dp.records[0])
	for frame := range dp.records {
		dp.records[frame] = append(dp.records[frame], paramsRecord{
			offset: offset,
			data:   make([]byte, aligned),
		})
	}
	dp.size += uint32(aligned)
	dp.maxRecordSize = max(dp.maxRecordSize, uint32(aligned))
	return handle, nil
}

// DeclareParams reserves a record sized for T, which must be a fixed-size type.
func DeclareParams[T any](dp *DrawParams) (metadata.DrawParamsHandle, error) {
	var zero T
	size := binary.Size(zero)
	if size < 0 {
		err := fmt.Errorf("bindless: %T has no fixed binary size: %w", zero, core.ErrProtocolViolation)
		core.LogError(err.Error())
		return metadata.InvalidDrawParams, err
	}
	return dp.Declare(size)
}

// Define copies data into the record of one frame, or of all frames when
// frameIndex is AllFrames. Bytes past len(data) keep their previous value,
// so a short write only updates the leading fields of a record.
func (dp *DrawParams) Define(handle metadata.DrawParamsHandle, data []byte, frameIndex uint32) error {
	if dp.built {
		err := fmt.Errorf("bindless: cannot define draw params after Build: %w", core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}
	index, ok := dp.handleToIndex[handle]
	if !ok {
		err := fmt.Errorf("bindless: draw params %d were never declared: %w", handle, core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}
	if len(data) > len(dp.records[0][index].data) {
		err := fmt.Errorf("bindless: %d bytes do not fit draw params %d of %d bytes: %w",
			len(data), handle, len(dp.records[0][index].data), core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}

	if frameIndex == AllFrames {
		for frame := range dp.records {
			copy(dp.records[frame][index].data, data)
		}
		return nil
	}
	if frameIndex >= uint32(len(dp.records)) {
		err := fmt.Errorf("bindless: frame index %d out of range [0, %d): %w", frameIndex, len(dp.records), core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}
	copy(dp.records[frameIndex][index].data, data)
	return nil
}

// DefineParams encodes value little-endian, the layout std140 scalars use,
// and defines it for frameIndex.
func DefineParams[T any](dp *DrawParams, handle metadata.DrawParamsHandle, value T, frameIndex uint32) error {
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, value); err != nil {
		err = fmt.Errorf("bindless: failed to encode %T: %w", value, err)
		core.LogError(err.Error())
		return err
	}
	return dp.Define(handle, buf.Bytes(), frameIndex)
}

// Build uploads every frame's records and freezes the layout. Without any
// declared record it does nothing.
func (dp *DrawParams) Build() error {
	if dp.built {
		err := fmt.Errorf("bindless: draw params already built: %w", core.ErrProtocolViolation)
		core.LogError(err.Error())
		return err
	}
	if len(dp.records[0]) == 0 {
		core.LogDebug("No draw params declared, skipping build.")
		return nil
	}

	size := dp.BufferSize()
	dp.buffers = make([]rhi.Buffer, 0, len(dp.records))
	dp.sets = make([]rhi.DescriptorSet, 0, len(dp.records))
	writes := make([]rhi.DescriptorWrite, 0, len(dp.records))

	for frame, records := range dp.records {
		buffer, err := dp.device.CreateBuffer(rhi.BufferDesc{
			Size:        uint64(size),
			Usage:       metadata.BufferUsageUniform,
			HostVisible: true,
		})
		if err != nil {
			core.LogError("failed to create draw params buffer for frame %d: %s", frame, err)
			dp.releaseFrames()
			return err
		}
		dp.buffers = append(dp.buffers, buffer)

		contents := make([]byte, size)
		for _, rec := range records {
			copy(contents[rec.offset:], rec.data)
		}
		if err := dp.device.WriteBuffer(buffer, 0, contents); err != nil {
			core.LogError("failed to upload draw params for frame %d: %s", frame, err)
			dp.releaseFrames()
			return err
		}

		set, err := dp.device.AllocateDescriptorSet(dp.pool, dp.setLayout, 0)
		if err != nil {
			core.LogError("failed to allocate draw params descriptor set for frame %d: %s", frame, err)
			dp.releaseFrames()
			return err
		}
		dp.sets = append(dp.sets, set)

		writes = append(writes, rhi.DescriptorWrite{
			Set:     set,
			Binding: DrawParamsBinding,
			Type:    metadata.DescriptorTypeUniformBufferDynamic,
			Buffer: &rhi.BufferDescriptor{
				Buffer: buffer,
				Offset: 0,
				Range:  uint64(dp.maxRecordSize),
			},
		})
	}
	dp.device.UpdateDescriptorSets(writes)
	dp.built = true

	core.LogDebug("Draw params built: %d records, %d bytes per frame, %d frames.", len(dp.records[0]), size, len(dp.records))
	return nil
}

// BufferSize is the per-frame buffer size Build allocates. Every record
// offset plus the descriptor range must stay inside the buffer.
func (dp *DrawParams) BufferSize() uint32 {
	if len(dp.records[0]) == 0 {
		return 0
	}
	last := dp.records[0][len(dp.records[0])-1]
	size := max(dp.size, last.offset+dp.maxRecordSize)
	return math.AlignUp(size, dp.config.MinAlignment)
}

// releaseFrames undoes a partial Build so it can be retried.
func (dp *DrawParams) releaseFrames() {
	for _, b := range dp.buffers {
		dp.device.DestroyBuffer(b)
	}
	dp.buffers = nil
	if len(dp.sets) > 0 {
		if err := dp.device.ResetDescriptorPool(dp.pool); err != nil {
			core.LogError("failed to reset draw params descriptor pool: %s", err)
		}
	}
	dp.sets = nil
}

// DescriptorSet returns the draw params set of a frame slot.
func (dp *DrawParams) DescriptorSet(frameIndex uint32) (rhi.DescriptorSet, error) {
	if !dp.built {
		return nil, fmt.Errorf("bindless: draw params descriptor set requested before Build: %w", core.ErrProtocolViolation)
	}
	if frameIndex >= uint32(len(dp.sets)) {
		return nil, fmt.Errorf("bindless: frame index %d out of range [0, %d): %w", frameIndex, len(dp.sets), core.ErrProtocolViolation)
	}
	return dp.sets[frameIndex], nil
}

// Offset returns the dynamic offset that selects the record of handle.
func (dp *DrawParams) Offset(handle metadata.DrawParamsHandle) (uint32, error) {
	if _, ok := dp.handleToIndex[handle]; !ok {
		return 0, fmt.Errorf("bindless: draw params %d were never declared: %w", handle, core.ErrProtocolViolation)
	}
	return uint32(handle), nil
}

// Record returns a copy of the record of handle as stored for frameIndex.
func (dp *DrawParams) Record(handle metadata.DrawParamsHandle, frameIndex uint32) ([]byte, error) {
	index, ok := dp.handleToIndex[handle]
	if !ok {
		return nil, fmt.Errorf("bindless: draw params %d were never declared: %w", handle, core.ErrProtocolViolation)
	}
	if frameIndex >= uint32(len(dp.records)) {
		return nil, fmt.Errorf("bindless: frame index %d out of range [0, %d): %w", frameIndex, len(dp.records), core.ErrProtocolViolation)
	}
	return append([]byte(nil), dp.records[frameIndex][index].data...), nil
}

// FrameBuffer returns the uniform buffer of a frame slot, nil before Build.
func (dp *DrawParams) FrameBuffer(frameIndex uint32) rhi.Buffer {
	if int(frameIndex) >= len(dp.buffers) {
		return nil
	}
	return dp.buffers[frameIndex]
}

func (dp *DrawParams) IsBuilt() bool  { return dp.built }
func (dp *DrawParams) Len() int       { return len(dp.records[0]) }
func (dp *DrawParams) FrameCount() int { return len(dp.records) }

func (dp *DrawParams) DescriptorSetLayout() rhi.DescriptorSetLayout { return dp.setLayout }

// PipelineLayout covers the bindless set followed by the draw params set.
func (dp *DrawParams) PipelineLayout() rhi.PipelineLayout { return dp.pipelineLayout }

func (dp *DrawParams) Destroy() {
	dp.releaseFrames()
	if dp.pipelineLayout != nil {
		dp.device.DestroyPipelineLayout(dp.pipelineLayout)
		dp.pipelineLayout = nil
	}
	if dp.pool != nil {
		dp.device.DestroyDescriptorPool(dp.pool)
		dp.pool = nil
	}
	if dp.setLayout != nil {
		dp.device.DestroyDescriptorSetLayout(dp.setLayout)
		dp.setLayout = nil
	}
}
