package testbed

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/bindless/engine/assets"
	"github.com/spaghettifunk/bindless/engine/assets/loaders"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/rhi/rhitest"
	"github.com/spaghettifunk/bindless/engine/systems"
)

var spirvHeader = []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00}

// stageAssets copies the shipped reflection manifests next to placeholder
// bytecode, so the test does not need glslc.
func stageAssets(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	shaders := filepath.Join(root, assets.ShaderDir)
	require.NoError(t, os.Mkdir(shaders, 0o755))

	manifests, err := filepath.Glob(filepath.Join("assets", assets.ShaderDir, "*"+loaders.ReflectionExtension))
	require.NoError(t, err)
	require.Len(t, manifests, 4)
	for _, m := range manifests {
		data, err := os.ReadFile(m)
		require.NoError(t, err)
		dst := filepath.Join(shaders, filepath.Base(m))
		require.NoError(t, os.WriteFile(dst, data, 0o644))

		spv := dst[:len(dst)-len(loaders.ReflectionExtension)] + loaders.ShaderExtension
		require.NoError(t, os.WriteFile(spv, spirvHeader, 0o644))
	}
	return root
}

type fixture struct {
	dev  *rhitest.Device
	game *TestGame
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	am, err := assets.NewAssetManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = am.Shutdown() })
	require.NoError(t, am.Initialize(stageAssets(t)))

	dev := rhitest.NewDevice()
	dev.SignalOnSubmit = true

	options := DefaultOptions()
	game, err := NewTestGame(options, core.DefaultConfig().Renderer, dev, am)
	require.NoError(t, err)
	require.NoError(t, game.Initialize())
	return &fixture{dev: dev, game: game}
}

func TestGameInitialize(t *testing.T) {
	f := newFixture(t)
	defer f.game.Shutdown()

	frames := int(core.DefaultFramesInFlight)
	assert.Equal(t, 2, f.dev.CountObjects("Pipeline"))
	assert.Equal(t, 4, f.dev.CountObjects("ShaderModule"))
	assert.Equal(t, frames+1, f.dev.CountObjects("Image"))
	assert.Equal(t, frames, f.game.System().Registry().TextureCount())
	assert.Equal(t, frames, f.game.System().Registry().BufferCount())
	assert.True(t, f.game.System().DrawParams().IsBuilt())
	assert.Equal(t, 3, f.game.System().DrawParams().Len())

	// Pattern scale differs per frame slot.
	first, err := f.game.System().DrawParams().Record(f.game.pattern, 0)
	require.NoError(t, err)
	second, err := f.game.System().DrawParams().Record(f.game.pattern, 1)
	require.NoError(t, err)
	assert.NotEqual(t, first, second)
}

func TestGameFrameRecordsBothPasses(t *testing.T) {
	f := newFixture(t)
	defer f.game.Shutdown()

	for i := 0; i < 3; i++ {
		require.NoError(t, f.game.Frame(float64(i)*0.016))
	}
	assert.Len(t, f.dev.Submits, 3)
	assert.Equal(t, uint64(3), f.game.FrameCount())

	cmd := f.game.System().Ring().GetCommandBuffer()
	names := f.dev.CommandNames(cmd)
	count := func(name string) int {
		n := 0
		for _, c := range names {
			if c == name {
				n++
			}
		}
		return n
	}
	assert.Equal(t, 2, count("BeginRenderPass"))
	assert.Equal(t, 3, count("Draw"))
	assert.Equal(t, 2, count("BindPipeline"))
	// Bindless once, then the draw params of the pattern and both quads.
	assert.Equal(t, 4, count("BindDescriptorSets"))

	m := f.game.System().Metrics()
	assert.Equal(t, uint64(3*3), m.SkippedBinds)
	assert.Equal(t, uint64(3*6), m.IssuedBinds)
}

func TestGameFrameWritesFrameUniform(t *testing.T) {
	f := newFixture(t)
	defer f.game.Shutdown()

	require.NoError(t, f.game.Frame(2.5))

	uniform := f.game.frames[0].uniform.(*rhitest.Object)
	assert.Equal(t, encode(frameData{Time: 2.5, FrameIndex: 0, Extent: [2]float32{640, 360}}), uniform.Data)
}

func TestGameReload(t *testing.T) {
	f := newFixture(t)
	defer f.game.Shutdown()

	before := f.game.programs[compositeProgram].id
	path := filepath.Join("x", "composite.fragment.spv")

	f.game.Reload(assets.AssetEvent{Path: path, Type: metadata.ResourceTypeShader, Removed: true})
	f.game.Reload(assets.AssetEvent{Path: filepath.Join("x", "other.fragment.spv"), Type: metadata.ResourceTypeShader})
	f.game.Reload(assets.AssetEvent{Path: "engine.toml", Type: metadata.ResourceTypeConfig})
	assert.Equal(t, 2, f.dev.CountObjects("Pipeline"))

	f.game.Reload(assets.AssetEvent{Path: path, Type: metadata.ResourceTypeShader})
	assert.Equal(t, 3, f.dev.CountObjects("Pipeline"))
	assert.NotEqual(t, before, f.game.programs[compositeProgram].id)

	require.NoError(t, f.game.Frame(0))
}

func TestGameShutdownReleasesResources(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.game.Frame(0))
	f.game.Shutdown()
	f.game.Shutdown()
	assert.ErrorIs(t, <-f.game.jobs.Submit(func() error { return nil }), systems.ErrJobSystemClosed)

	for _, kind := range []string{"Image", "ImageView", "Framebuffer", "Buffer", "ShaderModule", "Pipeline", "RenderPass", "Sampler", "Fence"} {
		for _, o := range f.dev.ObjectsOf(kind) {
			assert.True(t, o.Destroyed, "%s leaked", o)
		}
	}
}

func TestLoadOptions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[log]
level = "debug"

[testbed]
frames = 120
width = 320
`), 0o644))

	options, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, uint64(120), options.Frames)
	assert.Equal(t, uint32(320), options.Width)
	assert.Equal(t, uint32(360), options.Height)
	assert.Equal(t, "testbed/assets", options.AssetsDir)

	require.NoError(t, os.WriteFile(path, []byte("[testbed]\nheight = 0\n"), 0o644))
	_, err = LoadOptions(path)
	assert.ErrorIs(t, err, core.ErrInvalidConfig)
}
