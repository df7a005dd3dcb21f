//go:build mage

package main

import (
	"fmt"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binaryName = "yomibackfill"
	mainPkg    = "./cmd/yomibackfill"
)

var Default = Build

// Build builds the binary into the project directory
func Build() error {
	fmt.Println("Building", binaryName)
	return sh.RunV("go", "build", "-o", binaryName, mainPkg)
}

// Install installs the binary into $GOPATH/bin
func Install() error {
	mg.Deps(Test)
	return sh.RunV("go", "install", mainPkg)
}

// Test runs all tests with the race detector
func Test() error {
	return sh.RunV("go", "test", "-race", "./...")
}

// Cover writes a coverage profile and prints the per function summary
func Cover() error {
	if err := sh.RunV("go", "test", "-coverprofile=coverage.out", "./..."); err != nil {
		return err
	}
	return sh.RunV("go", "tool", "cover", "-func=coverage.out")
}

// Lint runs go vet
func Lint() error {
	return sh.RunV("go", "vet", "./...")
}

// Clean removes build artifacts
func Clean() error {
	for _, f := range []string{binaryName, "coverage.out"} {
		if err := sh.Rm(f); err != nil {
			return err
		}
	}
	return nil
}
