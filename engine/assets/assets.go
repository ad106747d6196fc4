// Package assets indexes the files under an asset directory, loads them
// through per-type loaders and reports changes as they happen on disk.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/bindless/engine/assets/loaders"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
)

const eventBuffer = 64

// ShaderDir is where LoadShader looks, relative to the asset root.
const ShaderDir = "shaders"

type AssetInfo struct {
	Path       string
	Type       metadata.ResourceType
	LastLoaded time.Time
}

/** @brief A tracked asset that was created, written or removed. */
type AssetEvent struct {
	Path    string
	Type    metadata.ResourceType
	Removed bool
}

type AssetManager struct {
	root    string
	assets  map[string]AssetInfo
	watched map[string]struct{}
	loaders map[metadata.ResourceType]Loader

	mutex sync.RWMutex

	done     chan struct{}
	wg       sync.WaitGroup
	fsnotify *fsnotify.Watcher
	isClosed bool
	events   chan AssetEvent
}

func NewAssetManager() (*AssetManager, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	am := &AssetManager{
		assets:   make(map[string]AssetInfo),
		watched:  make(map[string]struct{}),
		loaders:  make(map[metadata.ResourceType]Loader),
		fsnotify: fsWatch,
		events:   make(chan AssetEvent, eventBuffer),
		done:     make(chan struct{}),
	}
	am.registerLoader(metadata.ResourceTypeShader, &loaders.ShaderLoader{})
	am.registerLoader(metadata.ResourceTypeBinary, &loaders.BinaryLoader{})

	am.wg.Add(1)
	go am.start()
	return am, nil
}

// Initialize indexes assetsDir recursively and starts watching it.
func (am *AssetManager) Initialize(assetsDir string) error {
	root := filepath.Clean(assetsDir)
	am.mutex.Lock()
	am.root = root
	am.mutex.Unlock()
	return am.addRecursive(root)
}

// Watch tracks a single file outside the asset directory, such as the
// engine config. Its directory is watched; events for siblings are ignored
// unless they are tracked too.
func (am *AssetManager) Watch(path string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	path = filepath.Clean(path)
	if _, err := os.Stat(path); err != nil {
		return err
	}
	if err := am.fsnotify.Add(filepath.Dir(path)); err != nil {
		return err
	}
	am.mutex.Lock()
	am.watched[path] = struct{}{}
	am.mutex.Unlock()
	am.track(path)
	return nil
}

// Events delivers changes to tracked assets. It is closed by Shutdown.
func (am *AssetManager) Events() <-chan AssetEvent {
	return am.events
}

// AddRecursive starts watching the named directory and all sub-directories.
func (am *AssetManager) addRecursive(name string) error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	return am.watchRecursive(name)
}

// Register loaders for each asset type
func (am *AssetManager) registerLoader(assetType metadata.ResourceType, loader Loader) {
	am.loaders[assetType] = loader
}

// Info returns the index entry of a tracked asset.
func (am *AssetManager) Info(path string) (AssetInfo, bool) {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	info, ok := am.assets[filepath.Clean(path)]
	return info, ok
}

// LoadAsset loads a tracked asset with the loader registered for its type.
func (am *AssetManager) LoadAsset(path string, params interface{}) (*metadata.Resource, error) {
	path = filepath.Clean(path)

	am.mutex.Lock()
	asset, exists := am.assets[path]
	if exists {
		asset.LastLoaded = time.Now()
		am.assets[path] = asset
	}
	am.mutex.Unlock()
	if !exists {
		return nil, fmt.Errorf("asset not found: %s", path)
	}

	loader, loaderExists := am.loaders[asset.Type]
	if !loaderExists {
		return nil, fmt.Errorf("no loader registered for asset type: %s", asset.Type)
	}

	res, err := loader.Load(path, params)
	if err != nil {
		core.LogError("failed to load %s: %s", path, err)
		return nil, err
	}
	return res, nil
}

// LoadShader loads the compiled stage shaders/<name>.<stage>.spv under the asset root.
func (am *AssetManager) LoadShader(name string, stage metadata.ShaderStage) (*loaders.ShaderSource, error) {
	am.mutex.RLock()
	dir := filepath.Join(am.root, ShaderDir)
	am.mutex.RUnlock()

	res, err := am.LoadAsset(loaders.ShaderPath(dir, name, stage), nil)
	if err != nil {
		return nil, err
	}
	return res.Data.(*loaders.ShaderSource), nil
}

func (am *AssetManager) UnloadAsset(asset *metadata.Resource) error {
	path := filepath.Clean(asset.FullPath)
	am.mutex.RLock()
	info, exists := am.assets[path]
	am.mutex.RUnlock()
	if !exists {
		return fmt.Errorf("asset not found: %s", path)
	}
	return am.loaders[info.Type].Unload(asset)
}

// Shutdown stops the watcher and closes the event channel.
func (am *AssetManager) Shutdown() error {
	if am.isClosed {
		return nil
	}
	am.isClosed = true
	close(am.done)
	am.wg.Wait()
	return nil
}

func (am *AssetManager) start() {
	defer am.wg.Done()
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			am.handleEvent(e)

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError(err.Error())

		case <-am.done:
			am.fsnotify.Close()
			close(am.events)
			return
		}
	}
}

func (am *AssetManager) handleEvent(e fsnotify.Event) {
	name := filepath.Clean(e.Name)

	if e.Op&fsnotify.Create != 0 {
		if s, err := os.Stat(name); err == nil && s.IsDir() {
			if err := am.watchRecursive(name); err != nil {
				core.LogWarn("failed to watch %s: %s", name, err)
			}
			return
		}
	}

	path, assetType := assetKey(name)
	if assetType == metadata.ResourceTypeNone || !am.inScope(path) {
		return
	}

	switch {
	case e.Op&(fsnotify.Create|fsnotify.Write) != 0:
		am.track(path)
		am.notify(AssetEvent{Path: path, Type: assetType})
	case e.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
		// A removed manifest leaves the shader tracked; only the bytecode decides.
		if name == path {
			am.removeAsset(path)
		}
		am.notify(AssetEvent{Path: path, Type: assetType, Removed: name == path})
	}
}

// inScope reports whether path is under the asset root or watched explicitly.
func (am *AssetManager) inScope(path string) bool {
	am.mutex.RLock()
	defer am.mutex.RUnlock()
	if am.root != "" && strings.HasPrefix(path, am.root+string(filepath.Separator)) {
		return true
	}
	_, ok := am.watched[path]
	return ok
}

func (am *AssetManager) notify(e AssetEvent) {
	select {
	case am.events <- e:
	default:
		core.LogWarn("asset event queue full, dropping %s", e.Path)
	}
}

// watchRecursive adds all directories under the given one to the watch list
// and indexes every file found.
func (am *AssetManager) watchRecursive(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return am.fsnotify.Add(walkPath)
		}
		am.track(walkPath)
		return nil
	})
}

// Handle the creation or modification of a file
func (am *AssetManager) track(path string) {
	key, assetType := assetKey(filepath.Clean(path))
	if assetType == metadata.ResourceTypeNone {
		return
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	if _, exists := am.assets[key]; exists {
		return
	}
	am.assets[key] = AssetInfo{
		Path: key,
		Type: assetType,
	}
}

// Remove the asset from the index if it was deleted
func (am *AssetManager) removeAsset(path string) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	delete(am.assets, path)
}

// assetKey maps a file to the asset it belongs to. A reflection manifest
// belongs to the shader next to it.
func assetKey(path string) (string, metadata.ResourceType) {
	switch {
	case strings.HasSuffix(path, loaders.ReflectionExtension):
		return strings.TrimSuffix(path, loaders.ReflectionExtension) + loaders.ShaderExtension, metadata.ResourceTypeShader
	case filepath.Ext(path) == loaders.ShaderExtension:
		return path, metadata.ResourceTypeShader
	case filepath.Ext(path) == ".toml":
		return path, metadata.ResourceTypeConfig
	case filepath.Ext(path) == ".bin":
		return path, metadata.ResourceTypeBinary
	default:
		return path, metadata.ResourceTypeNone
	}
}
