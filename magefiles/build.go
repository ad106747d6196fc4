//go:build mage

package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

const shaderDir = "testbed/assets/shaders"

var shaderStages = map[string]string{
	".vert": "vertex",
	".frag": "fragment",
}

// Compiles the testbed GLSL sources to SPIR-V next to their reflection manifests.
func (Build) Shaders() error {
	return buildShaders()
}

// Builds the testbed binary.
func (Build) Testbed() error {
	mg.Deps(Build.Shaders)
	_, err := executeCmd("go", withArgs("build", "-o", "bin/testbed", "."), withStream())
	return err
}

func buildShaders() error {
	for ext, stage := range shaderStages {
		sources, err := filepath.Glob(filepath.Join(shaderDir, "*"+ext))
		if err != nil {
			return err
		}
		for _, src := range sources {
			out := fmt.Sprintf("%s.%s.spv", strings.TrimSuffix(src, ext), stage)
			if _, err := executeCmd("glslc", withArgs("--target-env=vulkan1.2", src, "-o", out), withStream()); err != nil {
				return err
			}
		}
	}
	return nil
}
