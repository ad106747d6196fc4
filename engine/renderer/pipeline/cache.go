// Package pipeline builds graphics pipelines from shader reflection and keeps
// the per-set compatibility hashes used to skip redundant descriptor binds.
package pipeline

import (
	"fmt"

	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

const defaultEntryPoint = "main"

// Device is the part of the GPU context the cache needs.
type Device interface {
	rhi.DescriptorDevice
	rhi.PipelineDevice
}

type GraphicsPipelineInfo struct {
	State      metadata.FixedFunctionState
	RenderPass rhi.RenderPass
}

// CommonLayout is a set of layouts shared by every pipeline of a cache. The
// cache does not own them.
type CommonLayout struct {
	Bindings      [][]metadata.DescriptorBinding
	PushConstants []metadata.PushConstantRange
	SetLayouts    []rhi.DescriptorSetLayout
	// PipelineLayouts holds one layout per prefix of SetLayouts.
	PipelineLayouts []rhi.PipelineLayout
}

type Option func(*Cache)

// WithCommonLayout makes every pipeline use the given layouts instead of
// layouts derived from its shaders.
func WithCommonLayout(layout CommonLayout) Option {
	return func(c *Cache) {
		c.common = &layout
	}
}

type entry struct {
	vertex   ShaderInstance
	fragment ShaderInstance

	bindings      [][]metadata.DescriptorBinding
	pushConstants []metadata.PushConstantRange
	hashes        []CompatibilityHash
	input         vertexInput

	setLayouts      []rhi.DescriptorSetLayout
	pipelineLayouts []rhi.PipelineLayout
	ownsLayouts     bool

	pipeline rhi.Pipeline
}

// lastLayout is the layout covering every set, used to create the pipeline.
func (e *entry) lastLayout() rhi.PipelineLayout {
	if len(e.pipelineLayouts) == 0 {
		return nil
	}
	return e.pipelineLayouts[len(e.pipelineLayouts)-1]
}

/**
 * @brief Owns every graphics pipeline and its layouts.
 *
 * Pipelines are identified by their creation index. Each one carries one
 * compatibility hash per descriptor set, derived from the set's bindings and
 * the pipeline's push constant ranges.
 */
type Cache struct {
	device  Device
	common  *CommonLayout
	entries []*entry
}

func NewCache(device Device, opts ...Option) *Cache {
	c := &Cache{device: device}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateGraphicsPipeline merges the reflection of both stages into a layout,
// creates it and then the pipeline itself.
func (c *Cache) CreateGraphicsPipeline(vertex, fragment ShaderInstance, info GraphicsPipelineInfo) (metadata.PipelineID, error) {
	merged, err := MergeBindings(vertex, fragment)
	if err != nil {
		core.LogError("failed to merge descriptor bindings of %s and %s: %s", vertex.name(), fragment.name(), err)
		return metadata.InvalidPipeline, err
	}
	pushConstants := CombinePushConstantRanges(vertex, fragment)

	e := &entry{
		vertex:   vertex,
		fragment: fragment,
		input:    buildVertexInput(vertex),
	}
	if c.common != nil {
		for set, bindings := range merged {
			if len(bindings) > 0 && set >= len(c.common.Bindings) {
				err := fmt.Errorf("%s and %s declare set %d, common layout has %d sets: %w",
					vertex.name(), fragment.name(), set, len(c.common.Bindings), core.ErrUnsupportedPipelineState)
				core.LogError("%s\n%s", err, FormatLayout(merged, pushConstants))
				return metadata.InvalidPipeline, err
			}
		}
		e.bindings = c.common.Bindings
		e.pushConstants = c.common.PushConstants
		e.setLayouts = c.common.SetLayouts
		e.pipelineLayouts = c.common.PipelineLayouts
	} else {
		e.bindings = merged
		e.pushConstants = pushConstants
		e.ownsLayouts = true
		if err := c.createLayouts(e); err != nil {
			core.LogError("failed to create pipeline layout for %s and %s: %s\n%s",
				vertex.name(), fragment.name(), err, FormatLayout(e.bindings, e.pushConstants))
			c.destroyLayouts(e)
			return metadata.InvalidPipeline, fmt.Errorf("pipeline layout: %w: %w", core.ErrUnsupportedPipelineState, err)
		}
	}

	e.hashes = make([]CompatibilityHash, len(e.bindings))
	for set, bindings := range e.bindings {
		e.hashes[set] = HashSetLayout(bindings, e.pushConstants)
	}

	if err := c.createPipeline(e, info); err != nil {
		c.destroyLayouts(e)
		return metadata.InvalidPipeline, err
	}

	c.entries = append(c.entries, e)
	id := metadata.PipelineID(len(c.entries) - 1)
	core.LogDebug("Graphics pipeline %d created (%s + %s, %d sets).", id, vertex.name(), fragment.name(), len(e.bindings))
	return id, nil
}

func (c *Cache) createLayouts(e *entry) error {
	for set, bindings := range e.bindings {
		partial := false
		for _, b := range bindings {
			if b.IsVariableCount() {
				partial = true
			}
		}
		layout, err := c.device.CreateDescriptorSetLayout(rhi.DescriptorSetLayoutDesc{
			Bindings:        bindings,
			UpdateAfterBind: true,
			PartiallyBound:  partial,
		})
		if err != nil {
			return fmt.Errorf("set %d: %w", set, err)
		}
		e.setLayouts = append(e.setLayouts, layout)
	}

	if len(e.setLayouts) == 0 {
		layout, err := c.device.CreatePipelineLayout(nil, e.pushConstants)
		if err != nil {
			return err
		}
		e.pipelineLayouts = append(e.pipelineLayouts, layout)
		return nil
	}
	for set := range e.setLayouts {
		layout, err := c.device.CreatePipelineLayout(e.setLayouts[:set+1], e.pushConstants)
		if err != nil {
			return fmt.Errorf("prefix layout [0..%d]: %w", set, err)
		}
		e.pipelineLayouts = append(e.pipelineLayouts, layout)
	}
	return nil
}

func (c *Cache) createPipeline(e *entry, info GraphicsPipelineInfo) error {
	stages := []rhi.ShaderStageDesc{
		{Stage: metadata.ShaderStageVertex, Module: e.vertex.Module, EntryPoint: entryPoint(e.vertex), Specialization: e.vertex.Specialization},
		{Stage: metadata.ShaderStageFragment, Module: e.fragment.Module, EntryPoint: entryPoint(e.fragment), Specialization: e.fragment.Specialization},
	}
	pipeline, err := c.device.CreateGraphicsPipeline(rhi.GraphicsPipelineDesc{
		Stages:           stages,
		VertexAttributes: e.input.attributes,
		VertexStride:     e.input.stride,
		Layout:           e.lastLayout(),
		RenderPass:       info.RenderPass,
		State:            info.State,
	})
	if err != nil {
		core.LogError("failed to create graphics pipeline for %s and %s: %s\n%s",
			e.vertex.name(), e.fragment.name(), err, FormatLayout(e.bindings, e.pushConstants))
		return fmt.Errorf("graphics pipeline: %w: %w", core.ErrUnsupportedPipelineState, err)
	}
	e.pipeline = pipeline
	return nil
}

func entryPoint(s ShaderInstance) string {
	if s.Reflection == nil || s.Reflection.EntryPoint == "" {
		return defaultEntryPoint
	}
	return s.Reflection.EntryPoint
}

// ResetGraphicsPipeline recreates the pipeline object of id with new fixed
// function state, keeping its layouts. The device must be idle. If creation
// fails the id is left without a pipeline.
func (c *Cache) ResetGraphicsPipeline(id metadata.PipelineID, info GraphicsPipelineInfo) error {
	e, err := c.entry(id)
	if err != nil {
		return err
	}
	if e.pipeline != nil {
		c.device.DestroyPipeline(e.pipeline)
		e.pipeline = nil
	}
	return c.createPipeline(e, info)
}

func (c *Cache) entry(id metadata.PipelineID) (*entry, error) {
	if int(id) >= len(c.entries) {
		return nil, fmt.Errorf("unknown pipeline %d (%d created): %w", id, len(c.entries), core.ErrProtocolViolation)
	}
	return c.entries[id], nil
}

// IsSetLayoutCompatible reports whether set can stay bound when switching
// between pipelines a and b. Unknown ids and sets beyond either layout are
// never compatible.
func (c *Cache) IsSetLayoutCompatible(a, b metadata.PipelineID, set int) bool {
	ea, err := c.entry(a)
	if err != nil {
		return false
	}
	eb, err := c.entry(b)
	if err != nil {
		return false
	}
	if set < 0 || set >= len(ea.hashes) || set >= len(eb.hashes) {
		return false
	}
	return ea.hashes[set] == eb.hashes[set]
}

func (c *Cache) Pipeline(id metadata.PipelineID) rhi.Pipeline {
	e, err := c.entry(id)
	if err != nil {
		return nil
	}
	return e.pipeline
}

// PipelineLayout returns the layout covering every set of id.
func (c *Cache) PipelineLayout(id metadata.PipelineID) rhi.PipelineLayout {
	e, err := c.entry(id)
	if err != nil {
		return nil
	}
	return e.lastLayout()
}

// PipelineLayoutForSet returns the layout covering sets [0..set] of id.
func (c *Cache) PipelineLayoutForSet(id metadata.PipelineID, set int) rhi.PipelineLayout {
	e, err := c.entry(id)
	if err != nil || set < 0 || set >= len(e.pipelineLayouts) {
		return nil
	}
	return e.pipelineLayouts[set]
}

func (c *Cache) SetLayouts(id metadata.PipelineID) []rhi.DescriptorSetLayout {
	e, err := c.entry(id)
	if err != nil {
		return nil
	}
	return append([]rhi.DescriptorSetLayout(nil), e.setLayouts...)
}

func (c *Cache) Bindings(id metadata.PipelineID, set int) []metadata.DescriptorBinding {
	e, err := c.entry(id)
	if err != nil || set < 0 || set >= len(e.bindings) {
		return nil
	}
	return append([]metadata.DescriptorBinding(nil), e.bindings[set]...)
}

// Hash returns the compatibility hash of set, or false if it does not exist.
func (c *Cache) Hash(id metadata.PipelineID, set int) (CompatibilityHash, bool) {
	e, err := c.entry(id)
	if err != nil || set < 0 || set >= len(e.hashes) {
		return 0, false
	}
	return e.hashes[set], true
}

func (c *Cache) PushConstants(id metadata.PipelineID) []metadata.PushConstantRange {
	e, err := c.entry(id)
	if err != nil {
		return nil
	}
	return append([]metadata.PushConstantRange(nil), e.pushConstants...)
}

// SetCount is the number of descriptor sets in the layout of id.
func (c *Cache) SetCount(id metadata.PipelineID) int {
	e, err := c.entry(id)
	if err != nil {
		return 0
	}
	return len(e.bindings)
}

func (c *Cache) Len() int { return len(c.entries) }

func (c *Cache) destroyLayouts(e *entry) {
	if !e.ownsLayouts {
		return
	}
	for _, l := range e.pipelineLayouts {
		c.device.DestroyPipelineLayout(l)
	}
	for _, l := range e.setLayouts {
		c.device.DestroyDescriptorSetLayout(l)
	}
	e.pipelineLayouts = nil
	e.setLayouts = nil
}

// Destroy releases every pipeline and the layouts the cache created.
func (c *Cache) Destroy() {
	for _, e := range c.entries {
		if e.pipeline != nil {
			c.device.DestroyPipeline(e.pipeline)
			e.pipeline = nil
		}
		c.destroyLayouts(e)
	}
	c.entries = nil
}
