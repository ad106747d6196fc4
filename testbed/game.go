// Package testbed renders a small two-pass scene through the bindless
// renderer to exercise it on a real device.
package testbed

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/bindless/engine/assets"
	"github.com/spaghettifunk/bindless/engine/assets/loaders"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/math"
	"github.com/spaghettifunk/bindless/engine/renderer"
	"github.com/spaghettifunk/bindless/engine/renderer/bindless"
	"github.com/spaghettifunk/bindless/engine/renderer/frame"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/pipeline"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi"
	"github.com/spaghettifunk/bindless/engine/systems"
)

const (
	patternProgram   = "pattern"
	compositeProgram = "composite"
)

type Options struct {
	AssetsDir string `toml:"assets_dir"`
	// Frames to render before exiting. Zero renders until interrupted.
	Frames uint64 `toml:"frames"`
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`
	Debug  bool   `toml:"debug"`
}

func DefaultOptions() Options {
	return Options{
		AssetsDir: "testbed/assets",
		Width:     640,
		Height:    360,
	}
}

// LoadOptions reads the [testbed] table of the engine config file.
func LoadOptions(path string) (Options, error) {
	file := struct {
		Testbed Options `toml:"testbed"`
	}{Testbed: DefaultOptions()}

	data, err := os.ReadFile(path)
	if err != nil {
		return file.Testbed, err
	}
	if err := toml.Unmarshal(data, &file); err != nil {
		return file.Testbed, fmt.Errorf("failed to decode testbed options: %w", err)
	}
	if file.Testbed.Width == 0 || file.Testbed.Height == 0 {
		return file.Testbed, fmt.Errorf("testbed extent %dx%d is empty: %w", file.Testbed.Width, file.Testbed.Height, core.ErrInvalidConfig)
	}
	return file.Testbed, nil
}

// frameData is read by shaders from the bindless uniform table.
type frameData struct {
	Time       float32
	FrameIndex uint32
	Extent     [2]float32
}

type patternParams struct {
	// x: scale, y: speed
	Scale math.Vec4
}

type compositeParams struct {
	Transform math.Mat4
	Tint      math.Vec4
}

type program struct {
	id      metadata.PipelineID
	modules []rhi.ShaderModule
}

type quad struct {
	params metadata.DrawParamsHandle
}

type frameTargets struct {
	image       rhi.Image
	view        rhi.ImageView
	framebuffer rhi.Framebuffer
	texture     metadata.TextureHandle
	uniform     rhi.Buffer
	uniformSlot metadata.BufferHandle
}

type TestGame struct {
	options Options
	device  rhi.Device
	assets  *assets.AssetManager
	system  *renderer.System
	jobs    *systems.JobSystem

	extent  metadata.Extent2D
	sampler rhi.Sampler

	patternPass   rhi.RenderPass
	compositePass rhi.RenderPass
	output        frameTargets
	frames        []frameTargets

	vertices rhi.Buffer
	programs map[string]*program

	pattern metadata.DrawParamsHandle
	quads   []quad

	frameCount uint64
}

// quadVertices is a unit quad as two triangles: position xy, uv.
var quadVertices = []float32{
	-0.5, -0.5, 0, 0,
	0.5, -0.5, 1, 0,
	0.5, 0.5, 1, 1,
	-0.5, -0.5, 0, 0,
	0.5, 0.5, 1, 1,
	-0.5, 0.5, 0, 1,
}

func NewTestGame(options Options, config core.RendererConfig, device rhi.Device, am *assets.AssetManager) (*TestGame, error) {
	jobs, err := systems.NewJobSystem(2, 0)
	if err != nil {
		return nil, err
	}
	system, err := renderer.NewSystem(device, config)
	if err != nil {
		if err := jobs.Shutdown(); err != nil {
			core.LogError("failed to shut down job system: %s", err)
		}
		return nil, err
	}
	return &TestGame{
		options:  options,
		device:   device,
		assets:   am,
		system:   system,
		jobs:     jobs,
		extent:   metadata.Extent2D{Width: options.Width, Height: options.Height},
		programs: make(map[string]*program),
	}, nil
}

func (g *TestGame) System() *renderer.System { return g.system }

// Initialize creates every GPU resource of the scene. On error the caller
// must still call Shutdown.
func (g *TestGame) Initialize() error {
	var err error
	g.sampler, err = g.device.CreateSampler(rhi.SamplerDesc{Linear: true})
	if err != nil {
		return err
	}

	g.patternPass, err = g.device.CreateRenderPass(rhi.RenderPassDesc{
		ColorFormat:      rhi.FormatRGBA8Unorm,
		SampledAfterPass: true,
	})
	if err != nil {
		return err
	}
	g.compositePass, err = g.device.CreateRenderPass(rhi.RenderPassDesc{
		ColorFormat: rhi.FormatRGBA8Unorm,
	})
	if err != nil {
		return err
	}

	if err := g.createTargets(); err != nil {
		return err
	}
	if err := g.createGeometry(); err != nil {
		return err
	}
	if err := g.declareParams(); err != nil {
		return err
	}
	for _, name := range []string{patternProgram, compositeProgram} {
		if err := g.loadProgram(name); err != nil {
			return err
		}
	}
	core.LogInfo("Testbed initialized (%dx%d, %d frames in flight).", g.extent.Width, g.extent.Height, len(g.frames))
	return nil
}

func (g *TestGame) createTargets() error {
	registry := g.system.Registry()

	image, view, fb, err := g.colorTarget(g.compositePass, rhi.ImageUsageColorAttachment)
	if err != nil {
		return err
	}
	g.output = frameTargets{image: image, view: view, framebuffer: fb}

	g.frames = make([]frameTargets, g.system.Ring().FramesInFlight())
	for i := range g.frames {
		t := &g.frames[i]
		t.image, t.view, t.framebuffer, err = g.colorTarget(g.patternPass, rhi.ImageUsageColorAttachment|rhi.ImageUsageSampled)
		if err != nil {
			return err
		}
		if t.texture, err = registry.StoreTexture(t.view, g.sampler); err != nil {
			return err
		}

		t.uniform, err = g.device.CreateBuffer(rhi.BufferDesc{
			Size:        16,
			Usage:       metadata.BufferUsageUniform,
			HostVisible: true,
		})
		if err != nil {
			return err
		}
		if t.uniformSlot, err = registry.StoreBuffer(t.uniform, metadata.BufferUsageUniform); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) colorTarget(pass rhi.RenderPass, usage rhi.ImageUsage) (rhi.Image, rhi.ImageView, rhi.Framebuffer, error) {
	image, err := g.device.CreateImage(rhi.ImageDesc{
		Width:  g.extent.Width,
		Height: g.extent.Height,
		Format: rhi.FormatRGBA8Unorm,
		Usage:  usage,
	})
	if err != nil {
		return nil, nil, nil, err
	}
	view, err := g.device.CreateImageView(image)
	if err != nil {
		g.device.DestroyImage(image)
		return nil, nil, nil, err
	}
	fb, err := g.device.CreateFramebuffer(rhi.FramebufferDesc{
		RenderPass:  pass,
		Attachments: []rhi.ImageView{view},
		Extent:      g.extent,
	})
	if err != nil {
		g.device.DestroyImageView(view)
		g.device.DestroyImage(image)
		return nil, nil, nil, err
	}
	return image, view, fb, nil
}

func (g *TestGame) createGeometry() error {
	var err error
	g.vertices, err = g.device.CreateBuffer(rhi.BufferDesc{
		Size:        uint64(len(quadVertices) * 4),
		Usage:       metadata.BufferUsageVertex,
		HostVisible: true,
	})
	if err != nil {
		return err
	}
	return g.device.WriteBuffer(g.vertices, 0, encode(quadVertices))
}

// declareParams lays out one pattern record and two quads. The pattern
// scale differs per frame slot so each copy of the records is visible.
func (g *TestGame) declareParams() error {
	dp := g.system.DrawParams()

	var err error
	if g.pattern, err = bindless.DeclareParams[patternParams](dp); err != nil {
		return err
	}
	for frameIndex := range g.frames {
		scale := patternParams{Scale: math.NewVec4(8+4*float32(frameIndex), 1.5, 0, 0)}
		if err := bindless.DefineParams(dp, g.pattern, scale, uint32(frameIndex)); err != nil {
			return err
		}
	}

	layout := []compositeParams{
		{
			Transform: mul(math.NewMat4Translation(-0.45, 0, 0), math.NewMat4Scale(0.8, 1.4, 1)),
			Tint:      math.NewVec4(1, 1, 1, 1),
		},
		{
			Transform: mul(math.NewMat4Translation(0.45, 0, 0), math.NewMat4Scale(0.8, 1.4, 1)),
			Tint:      math.NewVec4(1, 0.6, 0.3, 1),
		},
	}
	for _, params := range layout {
		h, err := bindless.DeclareParams[compositeParams](dp)
		if err != nil {
			return err
		}
		if err := bindless.DefineParams(dp, h, params, bindless.AllFrames); err != nil {
			return err
		}
		g.quads = append(g.quads, quad{params: h})
	}
	return dp.Build()
}

// loadProgram creates the pipeline of a vertex and fragment shader pair. A
// program that already exists is replaced; its old pipeline stays in the
// cache until shutdown.
func (g *TestGame) loadProgram(name string) error {
	// Both stages are read and parsed in parallel; modules are created here.
	var vertexSrc, fragmentSrc *loaders.ShaderSource
	err := g.jobs.Run(
		func() (err error) {
			vertexSrc, err = g.assets.LoadShader(name, metadata.ShaderStageVertex)
			return err
		},
		func() (err error) {
			fragmentSrc, err = g.assets.LoadShader(name, metadata.ShaderStageFragment)
			return err
		},
	)
	if err != nil {
		return err
	}
	vertex, err := g.shader(vertexSrc)
	if err != nil {
		return err
	}
	fragment, err := g.shader(fragmentSrc)
	if err != nil {
		g.device.DestroyShaderModule(vertex.Module)
		return err
	}

	pass := g.compositePass
	if name == patternProgram {
		pass = g.patternPass
	}
	state := metadata.DefaultFixedFunctionState(g.extent)
	state.CullMode = metadata.FaceCullModeNone
	state.DepthTestEnable = false
	state.DepthWriteEnable = false
	state.BlendEnable = name == compositeProgram

	id, err := g.system.Pipelines().CreateGraphicsPipeline(vertex, fragment, pipeline.GraphicsPipelineInfo{
		State:      state,
		RenderPass: pass,
	})
	if err != nil {
		g.device.DestroyShaderModule(vertex.Module)
		g.device.DestroyShaderModule(fragment.Module)
		return err
	}

	p, ok := g.programs[name]
	if !ok {
		p = &program{}
		g.programs[name] = p
	}
	p.id = id
	p.modules = append(p.modules, vertex.Module, fragment.Module)
	return nil
}

func (g *TestGame) shader(src *loaders.ShaderSource) (pipeline.ShaderInstance, error) {
	module, err := g.device.CreateShaderModule(src.Code)
	if err != nil {
		return pipeline.ShaderInstance{}, err
	}
	instance := pipeline.ShaderInstance{Module: module, Reflection: src.Reflection}
	if len(src.Reflection.SpecializationConstants) > 0 {
		// Constant 0 sizes the texture table as the shader sees it.
		instance.Specialization = map[uint32]uint32{0: uint32(len(g.frames))}
	}
	return instance, nil
}

// Reload rebuilds the program a changed shader file belongs to. Failures are
// logged and the previous pipeline stays in use.
func (g *TestGame) Reload(event assets.AssetEvent) {
	if event.Type != metadata.ResourceTypeShader || event.Removed {
		return
	}
	name, _, _ := strings.Cut(filepath.Base(event.Path), ".")
	if _, ok := g.programs[name]; !ok {
		return
	}
	if err := g.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device before reload: %s", err)
		return
	}
	if err := g.loadProgram(name); err != nil {
		core.LogError("failed to reload %s, keeping previous pipeline: %s", name, err)
		return
	}
	core.LogInfo("Reloaded program %s (pipeline %d).", name, g.programs[name].id)
}

// Frame records and submits one frame.
func (g *TestGame) Frame(elapsed float64) error {
	state, err := g.system.BeginFrame()
	if err != nil {
		return err
	}
	targets := g.frames[state.FrameIndex()]

	uniform := frameData{
		Time:       float32(elapsed),
		FrameIndex: state.FrameIndex(),
		Extent:     [2]float32{float32(g.extent.Width), float32(g.extent.Height)},
	}
	if err := g.device.WriteBuffer(targets.uniform, 0, encode(uniform)); err != nil {
		return err
	}

	if err := g.drawPattern(state, targets); err != nil {
		return err
	}
	if err := g.drawComposite(state, targets); err != nil {
		return err
	}

	if err := g.system.EndFrame(rhi.SubmitInfo{}); err != nil {
		return err
	}
	g.frameCount++
	return nil
}

func (g *TestGame) drawPattern(state *renderer.RenderState, targets frameTargets) error {
	state.BeginRenderPass(rhi.RenderPassBeginInfo{
		RenderPass:  g.patternPass,
		Framebuffer: targets.framebuffer,
		Extent:      g.extent,
		ClearColor:  [4]float32{0, 0, 0, 1},
	})
	defer state.EndRenderPass()

	if err := g.bindCommon(state, g.programs[patternProgram].id, g.pattern); err != nil {
		return err
	}
	if err := state.PushConstants([2]uint32{}, [2]uint32{uint32(targets.uniformSlot), 0}); err != nil {
		return err
	}
	// Fullscreen triangle generated from the vertex index.
	state.Draw(3, 1, 0, 0)
	return nil
}

func (g *TestGame) drawComposite(state *renderer.RenderState, targets frameTargets) error {
	state.BeginRenderPass(rhi.RenderPassBeginInfo{
		RenderPass:  g.compositePass,
		Framebuffer: g.output.framebuffer,
		Extent:      g.extent,
		ClearColor:  [4]float32{0.05, 0.05, 0.08, 1},
	})
	defer state.EndRenderPass()

	state.BindVertexBuffer(g.vertices, 0)
	for _, q := range g.quads {
		if err := g.bindCommon(state, g.programs[compositeProgram].id, q.params); err != nil {
			return err
		}
		if err := state.PushConstants(
			[2]uint32{uint32(targets.uniformSlot), 0},
			[2]uint32{uint32(targets.texture), uint32(targets.uniformSlot)},
		); err != nil {
			return err
		}
		state.Draw(uint32(len(quadVertices)/4), 1, 0, 0)
	}
	return nil
}

func (g *TestGame) bindCommon(state *renderer.RenderState, id metadata.PipelineID, params metadata.DrawParamsHandle) error {
	if err := state.BindPipeline(id); err != nil {
		return err
	}
	if err := state.BindBindlessDescriptors(g.system.Registry().DescriptorSet()); err != nil {
		return err
	}
	return state.BindDrawParams(params)
}

func (g *TestGame) FrameCount() uint64 { return g.frameCount }

// Shutdown releases the scene. Images and buffers go through the frame
// ring so they are freed together with its pending resources.
func (g *TestGame) Shutdown() {
	if g.system == nil {
		return
	}
	if err := g.device.WaitIdle(); err != nil {
		core.LogError("failed to wait for device idle: %s", err)
	}
	for _, t := range append(g.frames, g.output) {
		if t.framebuffer != nil {
			g.device.DestroyFramebuffer(t.framebuffer)
		}
		if t.image != nil || t.view != nil {
			g.system.DestroyAfterSubmit(frame.DeferredImage{Image: t.image, View: t.view})
		}
		if t.uniform != nil {
			g.system.DestroyAfterSubmit(frame.DeferredBuffer{Buffer: t.uniform})
		}
	}
	if g.vertices != nil {
		g.system.DestroyAfterSubmit(frame.DeferredBuffer{Buffer: g.vertices})
	}
	g.system.Destroy()

	for _, p := range g.programs {
		for _, m := range p.modules {
			g.device.DestroyShaderModule(m)
		}
	}
	for _, pass := range []rhi.RenderPass{g.patternPass, g.compositePass} {
		if pass != nil {
			g.device.DestroyRenderPass(pass)
		}
	}
	if g.sampler != nil {
		g.device.DestroySampler(g.sampler)
	}
	if err := g.jobs.Shutdown(); err != nil {
		core.LogError("failed to shut down job system: %s", err)
	}

	m := g.system.Metrics()
	core.LogInfo("Testbed rendered %d frames (%.0f fps, %.2f ms avg, %.2f ms fence wait, %d binds skipped of %d).",
		g.frameCount, m.FPS(), m.FrameTime(), m.FenceWaitTime(), m.SkippedBinds, m.SkippedBinds+m.IssuedBinds)
	g.system = nil
}
