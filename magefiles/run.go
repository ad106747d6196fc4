//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
)

type Run mg.Namespace

// Compiles the shaders and runs the testbed.
func (Run) Testbed() error {
	if err := buildShaders(); err != nil {
		return err
	}
	fmt.Println("Run testbed...")
	if _, err := executeCmd("go", withArgs("run", ".", "-config", "bindless.toml"), withStream()); err != nil {
		return err
	}
	return nil
}

// Runs the unit tests. None of them need a GPU.
func (Run) Test() error {
	_, err := executeCmd("go", withArgs("test", "./..."), withStream())
	return err
}
