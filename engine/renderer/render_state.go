package renderer

import (
	"encoding/binary"
	"fmt"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/bindless"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// Set numbers of the shared layout.
const (
	BindlessSet   = 0
	DrawParamsSet = 1
)

type pipelineSource interface {
	Pipeline(id metadata.PipelineID) rhi.Pipeline
	PipelineLayout(id metadata.PipelineID) rhi.PipelineLayout
	SetCount(id metadata.PipelineID) int
	IsSetLayoutCompatible(a, b metadata.PipelineID, set int) bool
}

type drawParamsSource interface {
	Offset(handle metadata.DrawParamsHandle) (uint32, error)
	DescriptorSet(frameIndex uint32) (rhi.DescriptorSet, error)
}

type Stats struct {
	IssuedBinds  uint64
	SkippedBinds uint64
}

type boundSet struct {
	valid  bool
	set    rhi.DescriptorSet
	offset uint32
}

/**
 * @brief Records one frame into one command buffer and drops binds that
 * would not change anything.
 *
 * A descriptor set survives a pipeline switch only if the old and new
 * layouts are compatible at that set and at every set below it.
 */
type RenderState struct {
	device     rhi.CommandDevice
	pipelines  pipelineSource
	drawParams drawParamsSource
	cmd        rhi.CommandBuffer
	frameIndex uint32

	pipeline    metadata.PipelineID
	hasPipeline bool
	layout      rhi.PipelineLayout
	sets        []boundSet

	stats Stats
}

func NewRenderState(device rhi.CommandDevice, pipelines pipelineSource, drawParams drawParamsSource, cmd rhi.CommandBuffer, frameIndex uint32) *RenderState {
	return &RenderState{
		device:     device,
		pipelines:  pipelines,
		drawParams: drawParams,
		cmd:        cmd,
		frameIndex: frameIndex,
		pipeline:   metadata.InvalidPipeline,
	}
}

func (s *RenderState) CommandBuffer() rhi.CommandBuffer { return s.cmd }
func (s *RenderState) FrameIndex() uint32               { return s.frameIndex }
func (s *RenderState) Stats() Stats                     { return s.stats }

func (s *RenderState) BindPipeline(id metadata.PipelineID) error {
	p := s.pipelines.Pipeline(id)
	if p == nil {
		return fmt.Errorf("pipeline %d has no pipeline object: %w", id, core.ErrProtocolViolation)
	}
	if s.hasPipeline && s.pipeline == id {
		s.stats.SkippedBinds++
		return nil
	}
	s.device.CmdBindPipeline(s.cmd, p)
	s.stats.IssuedBinds++

	next := make([]boundSet, s.pipelines.SetCount(id))
	if s.hasPipeline {
		for i := 0; i < len(next) && i < len(s.sets); i++ {
			if !s.pipelines.IsSetLayoutCompatible(s.pipeline, id, i) {
				break
			}
			next[i] = s.sets[i]
		}
	}
	s.sets = next
	s.pipeline = id
	s.hasPipeline = true
	s.layout = s.pipelines.PipelineLayout(id)
	return nil
}

func (s *RenderState) checkSet(set int) error {
	if !s.hasPipeline {
		return fmt.Errorf("descriptor set %d bound before any pipeline: %w", set, core.ErrProtocolViolation)
	}
	if set >= len(s.sets) {
		return fmt.Errorf("pipeline %d has no descriptor set %d: %w", s.pipeline, set, core.ErrProtocolViolation)
	}
	return nil
}

// BindBindlessDescriptors binds the resource table at set 0.
func (s *RenderState) BindBindlessDescriptors(set rhi.DescriptorSet) error {
	if err := s.checkSet(BindlessSet); err != nil {
		return err
	}
	bound := &s.sets[BindlessSet]
	if bound.valid && bound.set == set {
		s.stats.SkippedBinds++
		return nil
	}
	s.device.CmdBindDescriptorSets(s.cmd, s.layout, BindlessSet, []rhi.DescriptorSet{set}, nil)
	*bound = boundSet{valid: true, set: set}
	s.stats.IssuedBinds++
	return nil
}

// BindDrawParams binds the draw parameter set of this frame at set 1, with
// the record of handle selected through the dynamic offset.
func (s *RenderState) BindDrawParams(handle metadata.DrawParamsHandle) error {
	if err := s.checkSet(DrawParamsSet); err != nil {
		return err
	}
	offset, err := s.drawParams.Offset(handle)
	if err != nil {
		return err
	}
	set, err := s.drawParams.DescriptorSet(s.frameIndex)
	if err != nil {
		return err
	}
	bound := &s.sets[DrawParamsSet]
	if bound.valid && bound.set == set && bound.offset == offset {
		s.stats.SkippedBinds++
		return nil
	}
	s.device.CmdBindDescriptorSets(s.cmd, s.layout, DrawParamsSet, []rhi.DescriptorSet{set}, []uint32{offset})
	*bound = boundSet{valid: true, set: set, offset: offset}
	s.stats.IssuedBinds++
	return nil
}

// PushConstants writes the two index words of the vertex stage, then those
// of the fragment stage.
func (s *RenderState) PushConstants(vertex, fragment [2]uint32) error {
	if !s.hasPipeline {
		return fmt.Errorf("push constants before any pipeline: %w", core.ErrProtocolViolation)
	}
	for _, push := range []struct {
		stage  metadata.ShaderStage
		offset uint32
		values [2]uint32
	}{
		{metadata.ShaderStageVertex, bindless.VertexPushConstantOffset, vertex},
		{metadata.ShaderStageFragment, bindless.FragmentPushConstantOffset, fragment},
	} {
		data := make([]byte, bindless.PushConstantSize)
		binary.LittleEndian.PutUint32(data[0:4], push.values[0])
		binary.LittleEndian.PutUint32(data[4:8], push.values[1])
		s.device.CmdPushConstants(s.cmd, s.layout, push.stage, push.offset, data)
	}
	return nil
}

func (s *RenderState) BindVertexBuffer(buffer rhi.Buffer, offset uint64) {
	s.device.CmdBindVertexBuffer(s.cmd, buffer, offset)
}

func (s *RenderState) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	s.device.CmdDraw(s.cmd, vertexCount, instanceCount, firstVertex, firstInstance)
}

func (s *RenderState) BeginRenderPass(info rhi.RenderPassBeginInfo) {
	s.device.CmdBeginRenderPass(s.cmd, info)
}

func (s *RenderState) EndRenderPass() {
	s.device.CmdEndRenderPass(s.cmd)
}
