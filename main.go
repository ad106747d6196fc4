/*
Testbed application: renders the two-pass scene through the bindless
renderer and reloads shaders and config as they change on disk.
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/spaghettifunk/bindless/engine/assets"
	"github.com/spaghettifunk/bindless/engine/core"
	"github.com/spaghettifunk/bindless/engine/platform"
	"github.com/spaghettifunk/bindless/engine/renderer/metadata"
	"github.com/spaghettifunk/bindless/engine/renderer/vulkan"
	"github.com/spaghettifunk/bindless/testbed"
)

func main() {
	configPath := flag.String("config", "bindless.toml", "engine config file")
	flag.Parse()

	config, err := core.LoadConfig(*configPath)
	if err != nil {
		core.LogFatal("failed to load config: %s", err)
	}
	if err := config.Apply(); err != nil {
		core.LogFatal("failed to apply config: %s", err)
	}
	options, err := testbed.LoadOptions(*configPath)
	if err != nil {
		core.LogFatal("failed to load testbed options: %s", err)
	}

	p, err := platform.New()
	if err != nil {
		core.LogFatal("failed to create platform: %s", err)
	}
	if err := p.Startup("bindless testbed", options.Width, options.Height); err != nil {
		core.LogFatal("failed to start platform: %s", err)
	}
	defer p.Shutdown()

	vc, err := vulkan.New(p, vulkan.VulkanConfig{
		ApplicationName: "bindless testbed",
		Debug:           options.Debug,
	})
	if err != nil {
		core.LogFatal("failed to initialize vulkan: %s", err)
	}
	defer vc.Shutdown()

	am, err := assets.NewAssetManager()
	if err != nil {
		core.LogFatal("failed to create asset manager: %s", err)
	}
	defer am.Shutdown()
	if err := am.Initialize(options.AssetsDir); err != nil {
		core.LogFatal("failed to index assets: %s", err)
	}
	if err := am.Watch(*configPath); err != nil {
		core.LogWarn("config will not be reloaded: %s", err)
	}

	game, err := testbed.NewTestGame(options, config.Renderer, vc, am)
	if err != nil {
		core.LogFatal("failed to create testbed: %s", err)
	}
	defer game.Shutdown()
	if err := game.Initialize(); err != nil {
		core.LogError("failed to initialize testbed: %s", err)
		return
	}

	// signal channel to capture system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)

	for p.PumpMessages() {
		select {
		case <-sigCh:
			core.LogInfo("Interrupted, shutting down.")
			return
		case e := <-am.Events():
			handleAssetEvent(e, *configPath, game)
		default:
		}

		if err := game.Frame(p.Elapsed()); err != nil {
			core.LogError("frame %d failed: %s", game.FrameCount(), err)
			return
		}
		if options.Frames > 0 && game.FrameCount() >= options.Frames {
			return
		}
	}
}

func handleAssetEvent(e assets.AssetEvent, configPath string, game *testbed.TestGame) {
	switch e.Type {
	case metadata.ResourceTypeConfig:
		if e.Removed {
			return
		}
		config, err := core.LoadConfig(configPath)
		if err != nil {
			core.LogError("failed to reload config: %s", err)
			return
		}
		if err := config.Apply(); err != nil {
			core.LogError("failed to apply config: %s", err)
			return
		}
		core.LogInfo("Config reloaded; renderer capacities apply on next start.")
	case metadata.ResourceTypeShader:
		game.Reload(e)
	}
}
