package assets

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/bindless/engine/assets/loaders"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
)

const quadVertex = `
name = "quad"
stage = "vertex"

[[vertex_attributes]]
location = 0
format = "float32x2"
`

func writeShader(t *testing.T, dir, name string, stage metadata.ShaderStage, manifest string) string {
	t.Helper()
	path := loaders.ShaderPath(dir, name, stage)
	require.NoError(t, os.WriteFile(path, []byte{0x03, 0x02, 0x23, 0x07}, 0o644))
	require.NoError(t, os.WriteFile(loaders.ReflectionPath(path), []byte(manifest), 0o644))
	return path
}

func newManager(t *testing.T, dir string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	t.Cleanup(func() { _ = am.Shutdown() })
	require.NoError(t, am.Initialize(dir))
	return am
}

func waitEvent(t *testing.T, am *AssetManager, path string) AssetEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-am.Events():
			require.True(t, ok, "event channel closed")
			if e.Path == path {
				return e
			}
		case <-timeout:
			t.Fatalf("no event for %s", path)
		}
	}
}

func TestAssetManagerIndexesDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, ShaderDir), 0o755))
	spv := writeShader(t, filepath.Join(dir, ShaderDir), "quad", metadata.ShaderStageVertex, quadVertex)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))

	am := newManager(t, dir)

	info, ok := am.Info(spv)
	require.True(t, ok)
	assert.Equal(t, metadata.ResourceTypeShader, info.Type)

	_, ok = am.Info(loaders.ReflectionPath(spv))
	assert.False(t, ok, "manifests are indexed under their shader")
	_, ok = am.Info(filepath.Join(dir, "notes.txt"))
	assert.False(t, ok)
}

func shaderDir(t *testing.T) (string, string) {
	t.Helper()
	dir := t.TempDir()
	shaders := filepath.Join(dir, ShaderDir)
	require.NoError(t, os.Mkdir(shaders, 0o755))
	return dir, shaders
}

func TestAssetManagerLoadShader(t *testing.T) {
	dir, shaders := shaderDir(t)
	writeShader(t, shaders, "quad", metadata.ShaderStageVertex, quadVertex)
	am := newManager(t, dir)

	src, err := am.LoadShader("quad", metadata.ShaderStageVertex)
	require.NoError(t, err)
	assert.Equal(t, "quad", src.Reflection.Name)
	assert.Len(t, src.Reflection.VertexAttributes, 1)

	info, _ := am.Info(loaders.ShaderPath(shaders, "quad", metadata.ShaderStageVertex))
	assert.False(t, info.LastLoaded.IsZero())

	_, err = am.LoadShader("quad", metadata.ShaderStageFragment)
	assert.Error(t, err)
}

func TestAssetManagerReportsManifestChangesAsShader(t *testing.T) {
	dir := t.TempDir()
	spv := writeShader(t, dir, "quad", metadata.ShaderStageVertex, quadVertex)
	am := newManager(t, dir)

	require.NoError(t, os.WriteFile(loaders.ReflectionPath(spv), []byte(quadVertex+"\n"), 0o644))

	e := waitEvent(t, am, spv)
	assert.Equal(t, metadata.ResourceTypeShader, e.Type)
	assert.False(t, e.Removed)
}

func TestAssetManagerTracksNewAndRemovedFiles(t *testing.T) {
	dir := t.TempDir()
	am := newManager(t, dir)

	path := filepath.Join(dir, "blob.bin")
	require.NoError(t, os.WriteFile(path, []byte("abc"), 0o644))
	waitEvent(t, am, path)

	res, err := am.LoadAsset(path, nil)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), res.Data)
	require.NoError(t, am.UnloadAsset(res))

	require.NoError(t, os.Remove(path))
	e := waitEvent(t, am, path)
	assert.True(t, e.Removed)
	_, ok := am.Info(path)
	assert.False(t, ok)
}

func TestAssetManagerWatchSingleFile(t *testing.T) {
	assetsDir := t.TempDir()
	configDir := t.TempDir()
	config := filepath.Join(configDir, "engine.toml")
	require.NoError(t, os.WriteFile(config, []byte("[log]\n"), 0o644))

	am := newManager(t, assetsDir)
	require.NoError(t, am.Watch(config))

	require.NoError(t, os.WriteFile(filepath.Join(configDir, "other.toml"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(config, []byte("[log]\nlevel = \"debug\"\n"), 0o644))

	e := waitEvent(t, am, config)
	assert.Equal(t, metadata.ResourceTypeConfig, e.Type)
	_, ok := am.Info(filepath.Join(configDir, "other.toml"))
	assert.False(t, ok)
}

func TestAssetManagerShutdownClosesEvents(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Shutdown())
	require.NoError(t, am.Shutdown())

	_, ok := <-am.Events()
	assert.False(t, ok)
	assert.Error(t, am.Initialize(t.TempDir()))
}
