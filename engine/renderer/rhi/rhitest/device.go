// Package rhitest provides a recording rhi.Device for tests. Nothing touches
// a GPU: objects are plain values and fences only signal when told to.
package rhitest

import (
	"errors"
	"fmt"

	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
)

// ErrWouldBlock is returned by WaitForFence when the fence is unsignaled and
// no OnWait hook signals it: a real device would block forever.
var ErrWouldBlock = errors.New("rhitest: wait on unsignaled fence would block")

// Object is the concrete type behind every handle produced by Device.
type Object struct {
	Kind string
	ID   int

	// Resource payloads, set depending on Kind.
	Data        []byte
	Desc        interface{}
	Signaled    bool
	Destroyed   bool
	ResetCount  int
	PoolBuffers []*Object
	// PoolSets are the live sets of a descriptor pool.
	PoolSets []*Object
}

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d", o.Kind, o.ID)
}

// Command is one recorded vkCmd* equivalent.
type Command struct {
	Name string
	Args []interface{}
}

// Device implements rhi.Device in memory.
type Device struct {
	Limit rhi.DeviceLimits

	Objects   []*Object
	Writes    []rhi.DescriptorWrite
	Destroyed []*Object
	Submits   []rhi.SubmitInfo
	Commands  map[*Object][]Command

	// Fail makes the named method return the error once.
	Fail map[string]error
	// OnWait runs when an unsignaled fence is waited, typically to signal it.
	OnWait func(fence *Object)
	// SignalOnSubmit makes every submitted fence signal immediately.
	SignalOnSubmit bool

	nextID int
}

var _ rhi.Device = (*Device)(nil)

func NewDevice() *Device {
	return &Device{
		Limit: rhi.DeviceLimits{
			MinUniformBufferOffsetAlignment: 16,
			MaxPushConstantsSize:            128,
			MaxBoundDescriptorSets:          8,
		},
		Commands: make(map[*Object][]Command),
		Fail:     make(map[string]error),
	}
}

func (d *Device) newObject(kind string, desc interface{}) *Object {
	o := &Object{Kind: kind, ID: d.nextID, Desc: desc}
	d.nextID++
	d.Objects = append(d.Objects, o)
	return o
}

func (d *Device) fail(method string) error {
	if err, ok := d.Fail[method]; ok {
		delete(d.Fail, method)
		return err
	}
	return nil
}

func (d *Device) destroy(h interface{}) {
	o, ok := h.(*Object)
	if !ok || o == nil {
		return
	}
	o.Destroyed = true
	d.Destroyed = append(d.Destroyed, o)
}

func (d *Device) record(cmd rhi.CommandBuffer, name string, args ...interface{}) {
	o := cmd.(*Object)
	d.Commands[o] = append(d.Commands[o], Command{Name: name, Args: args})
}

// CountObjects returns how many objects of kind were created.
func (d *Device) CountObjects(kind string) int {
	n := 0
	for _, o := range d.Objects {
		if o.Kind == kind {
			n++
		}
	}
	return n
}

// ObjectsOf returns the objects of kind in creation order.
func (d *Device) ObjectsOf(kind string) []*Object {
	var out []*Object
	for _, o := range d.Objects {
		if o.Kind == kind {
			out = append(out, o)
		}
	}
	return out
}

// CommandNames lists the recorded command names of cmd in order.
func (d *Device) CommandNames(cmd rhi.CommandBuffer) []string {
	var names []string
	for _, c := range d.Commands[cmd.(*Object)] {
		names = append(names, c.Name)
	}
	return names
}

// SignalFence marks a fence signaled, as the GPU would on completion.
func (d *Device) SignalFence(fence rhi.Fence) {
	fence.(*Object).Signaled = true
}

func (d *Device) Limits() rhi.DeviceLimits {
	return d.Limit
}

func (d *Device) CreateDescriptorSetLayout(desc rhi.DescriptorSetLayoutDesc) (rhi.DescriptorSetLayout, error) {
	if err := d.fail("CreateDescriptorSetLayout"); err != nil {
		return nil, err
	}
	return d.newObject("DescriptorSetLayout", desc), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout rhi.DescriptorSetLayout) { d.destroy(layout) }

func (d *Device) CreateDescriptorPool(desc rhi.DescriptorPoolDesc) (rhi.DescriptorPool, error) {
	if err := d.fail("CreateDescriptorPool"); err != nil {
		return nil, err
	}
	return d.newObject("DescriptorPool", desc), nil
}

func (d *Device) DestroyDescriptorPool(pool rhi.DescriptorPool) { d.destroy(pool) }

func (d *Device) AllocateDescriptorSet(pool rhi.DescriptorPool, layout rhi.DescriptorSetLayout, variableCount uint32) (rhi.DescriptorSet, error) {
	if err := d.fail("AllocateDescriptorSet"); err != nil {
		return nil, err
	}
	p := pool.(*Object)
	if desc, ok := p.Desc.(rhi.DescriptorPoolDesc); ok && uint32(len(p.PoolSets)) >= desc.MaxSets {
		return nil, fmt.Errorf("rhitest: %s is out of sets (%d)", p, desc.MaxSets)
	}
	o := d.newObject("DescriptorSet", layout)
	p.PoolSets = append(p.PoolSets, o)
	return o, nil
}

func (d *Device) ResetDescriptorPool(pool rhi.DescriptorPool) error {
	if err := d.fail("ResetDescriptorPool"); err != nil {
		return err
	}
	p := pool.(*Object)
	for _, set := range p.PoolSets {
		set.Destroyed = true
	}
	p.PoolSets = nil
	p.ResetCount++
	return nil
}

func (d *Device) UpdateDescriptorSets(writes []rhi.DescriptorWrite) {
	d.Writes = append(d.Writes, writes...)
}

type PipelineLayoutDesc struct {
	SetLayouts    []rhi.DescriptorSetLayout
	PushConstants []metadata.PushConstantRange
}

func (d *Device) CreatePipelineLayout(setLayouts []rhi.DescriptorSetLayout, pushConstants []metadata.PushConstantRange) (rhi.PipelineLayout, error) {
	if err := d.fail("CreatePipelineLayout"); err != nil {
		return nil, err
	}
	desc := PipelineLayoutDesc{
		SetLayouts:    append([]rhi.DescriptorSetLayout(nil), setLayouts...),
		PushConstants: append([]metadata.PushConstantRange(nil), pushConstants...),
	}
	return d.newObject("PipelineLayout", desc), nil
}

func (d *Device) DestroyPipelineLayout(layout rhi.PipelineLayout) { d.destroy(layout) }

func (d *Device) CreateBuffer(desc rhi.BufferDesc) (rhi.Buffer, error) {
	if err := d.fail("CreateBuffer"); err != nil {
		return nil, err
	}
	o := d.newObject("Buffer", desc)
	o.Data = make([]byte, desc.Size)
	return o, nil
}

func (d *Device) WriteBuffer(buffer rhi.Buffer, offset uint64, data []byte) error {
	if err := d.fail("WriteBuffer"); err != nil {
		return err
	}
	o := buffer.(*Object)
	if offset+uint64(len(data)) > uint64(len(o.Data)) {
		return fmt.Errorf("rhitest: write of %d bytes at %d overflows %s of %d bytes", len(data), offset, o, len(o.Data))
	}
	copy(o.Data[offset:], data)
	return nil
}

func (d *Device) DestroyBuffer(buffer rhi.Buffer) { d.destroy(buffer) }

func (d *Device) CreateImage(desc rhi.ImageDesc) (rhi.Image, error) {
	if err := d.fail("CreateImage"); err != nil {
		return nil, err
	}
	return d.newObject("Image", desc), nil
}

func (d *Device) DestroyImage(image rhi.Image) { d.destroy(image) }

func (d *Device) CreateImageView(image rhi.Image) (rhi.ImageView, error) {
	if err := d.fail("CreateImageView"); err != nil {
		return nil, err
	}
	return d.newObject("ImageView", image), nil
}

func (d *Device) DestroyImageView(view rhi.ImageView) { d.destroy(view) }

func (d *Device) CreateSampler(desc rhi.SamplerDesc) (rhi.Sampler, error) {
	if err := d.fail("CreateSampler"); err != nil {
		return nil, err
	}
	return d.newObject("Sampler", desc), nil
}

func (d *Device) DestroySampler(sampler rhi.Sampler) { d.destroy(sampler) }

func (d *Device) CreateShaderModule(code []byte) (rhi.ShaderModule, error) {
	if err := d.fail("CreateShaderModule"); err != nil {
		return nil, err
	}
	o := d.newObject("ShaderModule", nil)
	o.Data = append([]byte(nil), code...)
	return o, nil
}

func (d *Device) DestroyShaderModule(module rhi.ShaderModule) { d.destroy(module) }

func (d *Device) CreateRenderPass(desc rhi.RenderPassDesc) (rhi.RenderPass, error) {
	if err := d.fail("CreateRenderPass"); err != nil {
		return nil, err
	}
	return d.newObject("RenderPass", desc), nil
}

func (d *Device) DestroyRenderPass(pass rhi.RenderPass) { d.destroy(pass) }

func (d *Device) CreateFramebuffer(desc rhi.FramebufferDesc) (rhi.Framebuffer, error) {
	if err := d.fail("CreateFramebuffer"); err != nil {
		return nil, err
	}
	return d.newObject("Framebuffer", desc), nil
}

func (d *Device) DestroyFramebuffer(fb rhi.Framebuffer) { d.destroy(fb) }

func (d *Device) CreateGraphicsPipeline(desc rhi.GraphicsPipelineDesc) (rhi.Pipeline, error) {
	if err := d.fail("CreateGraphicsPipeline"); err != nil {
		return nil, err
	}
	return d.newObject("Pipeline", desc), nil
}

func (d *Device) DestroyPipeline(pipeline rhi.Pipeline) { d.destroy(pipeline) }

func (d *Device) CreateCommandPool() (rhi.CommandPool, error) {
	if err := d.fail("CreateCommandPool"); err != nil {
		return nil, err
	}
	return d.newObject("CommandPool", nil), nil
}

func (d *Device) DestroyCommandPool(pool rhi.CommandPool) {
	for _, cb := range pool.(*Object).PoolBuffers {
		d.destroy(cb)
	}
	d.destroy(pool)
}

func (d *Device) AllocateCommandBuffer(pool rhi.CommandPool) (rhi.CommandBuffer, error) {
	if err := d.fail("AllocateCommandBuffer"); err != nil {
		return nil, err
	}
	p := pool.(*Object)
	cb := d.newObject("CommandBuffer", p)
	p.PoolBuffers = append(p.PoolBuffers, cb)
	return cb, nil
}

func (d *Device) ResetCommandPool(pool rhi.CommandPool) error {
	if err := d.fail("ResetCommandPool"); err != nil {
		return err
	}
	p := pool.(*Object)
	p.ResetCount++
	for _, cb := range p.PoolBuffers {
		delete(d.Commands, cb)
	}
	return nil
}

func (d *Device) BeginCommandBuffer(cmd rhi.CommandBuffer) error {
	if err := d.fail("BeginCommandBuffer"); err != nil {
		return err
	}
	d.record(cmd, "Begin")
	return nil
}

func (d *Device) EndCommandBuffer(cmd rhi.CommandBuffer) error {
	if err := d.fail("EndCommandBuffer"); err != nil {
		return err
	}
	d.record(cmd, "End")
	return nil
}

func (d *Device) CmdBeginRenderPass(cmd rhi.CommandBuffer, info rhi.RenderPassBeginInfo) {
	d.record(cmd, "BeginRenderPass", info)
}

func (d *Device) CmdEndRenderPass(cmd rhi.CommandBuffer) {
	d.record(cmd, "EndRenderPass")
}

func (d *Device) CmdBindPipeline(cmd rhi.CommandBuffer, pipeline rhi.Pipeline) {
	d.record(cmd, "BindPipeline", pipeline)
}

func (d *Device) CmdBindDescriptorSets(cmd rhi.CommandBuffer, layout rhi.PipelineLayout, firstSet uint32, sets []rhi.DescriptorSet, dynamicOffsets []uint32) {
	d.record(cmd, "BindDescriptorSets", layout, firstSet, append([]rhi.DescriptorSet(nil), sets...), append([]uint32(nil), dynamicOffsets...))
}

func (d *Device) CmdPushConstants(cmd rhi.CommandBuffer, layout rhi.PipelineLayout, stages metadata.ShaderStage, offset uint32, data []byte) {
	d.record(cmd, "PushConstants", layout, stages, offset, append([]byte(nil), data...))
}

func (d *Device) CmdBindVertexBuffer(cmd rhi.CommandBuffer, buffer rhi.Buffer, offset uint64) {
	d.record(cmd, "BindVertexBuffer", buffer, offset)
}

func (d *Device) CmdDraw(cmd rhi.CommandBuffer, vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	d.record(cmd, "Draw", vertexCount, instanceCount, firstVertex, firstInstance)
}

func (d *Device) CreateFence(signaled bool) (rhi.Fence, error) {
	if err := d.fail("CreateFence"); err != nil {
		return nil, err
	}
	o := d.newObject("Fence", nil)
	o.Signaled = signaled
	return o, nil
}

func (d *Device) DestroyFence(fence rhi.Fence) { d.destroy(fence) }

func (d *Device) WaitForFence(fence rhi.Fence) error {
	if err := d.fail("WaitForFence"); err != nil {
		return err
	}
	o := fence.(*Object)
	if !o.Signaled && d.OnWait != nil {
		d.OnWait(o)
	}
	if !o.Signaled {
		return ErrWouldBlock
	}
	return nil
}

func (d *Device) ResetFence(fence rhi.Fence) error {
	if err := d.fail("ResetFence"); err != nil {
		return err
	}
	o := fence.(*Object)
	o.Signaled = false
	o.ResetCount++
	return nil
}

func (d *Device) Submit(info rhi.SubmitInfo, fence rhi.Fence) error {
	if err := d.fail("Submit"); err != nil {
		return err
	}
	if o, ok := fence.(*Object); ok && o.Signaled {
		return fmt.Errorf("rhitest: submit with signaled fence %s", o)
	}
	d.Submits = append(d.Submits, info)
	if d.SignalOnSubmit {
		if o, ok := fence.(*Object); ok {
			o.Signaled = true
		}
	}
	return nil
}

func (d *Device) WaitIdle() error {
	if err := d.fail("WaitIdle"); err != nil {
		return err
	}
	for _, o := range d.ObjectsOf("Fence") {
		o.Signaled = true
	}
	return nil
}
