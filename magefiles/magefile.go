//go:build mage

// Package main contains Mage build targets for review-engine developer tooling.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"

	"github.com/pdiddy/review-engine/internal/settings"
)

const (
	binDir  = "bin"
	binName = "review-engine"
	cmdPkg  = "./cmd/review-engine"
)

// projectDirs lists the working directories a review project expects.
var projectDirs = []string{
	"search",
	".review",
}

// hookScript runs the gate before every commit.
const hookScript = `#!/bin/sh
exec review-engine check
`

// Init prepares the current directory as a review project: the search
// directory, a default settings.yaml and the pre-commit hook.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}

	if _, err := os.Stat(settings.FileName); os.IsNotExist(err) {
		if err := settings.Save(".", settings.Default()); err != nil {
			return err
		}
		fmt.Println("  ", settings.FileName)
	}

	if fi, err := os.Stat(".git"); err == nil && fi.IsDir() {
		hook := filepath.Join(".git", "hooks", "pre-commit")
		if err := os.MkdirAll(filepath.Dir(hook), 0o755); err != nil {
			return fmt.Errorf("creating hooks directory: %w", err)
		}
		if err := os.WriteFile(hook, []byte(hookScript), 0o755); err != nil {
			return fmt.Errorf("writing pre-commit hook: %w", err)
		}
		fmt.Println("  ", hook)
	}
	fmt.Println("Review project initialized.")
	return nil
}

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	version, err := sh.Output("git", "describe", "--tags", "--always", "--dirty")
	if err != nil {
		version = "dev"
	}
	out := filepath.Join(binDir, binName)
	ldflags := "-X main.version=" + version
	if err := sh.RunV("go", "build", "-ldflags", ldflags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s (%s)\n", out, version)
	return nil
}

// Test runs the unit tests.
func Test() error {
	return sh.RunV("go", "test", "./...")
}

// Vet runs go vet over every package.
func Vet() error {
	return sh.RunV("go", "vet", "./...")
}

// Check vets, tests and builds.
func Check() {
	mg.SerialDeps(Vet, Test, Build)
}

// Stats prints project metrics: Go packages, test functions and
// documentation word count.
func Stats() error {
	pkgs, err := sh.Output("go", "list", "./...")
	if err != nil {
		return err
	}
	tests, err := countTests(".")
	if err != nil {
		return err
	}
	docWords, err := countDocWords("docs")
	if err != nil {
		return err
	}

	fmt.Printf("Packages (Go):           %d\n", len(strings.Fields(pkgs)))
	fmt.Printf("Test functions (Go):     %d\n", tests)
	fmt.Printf("Words (documentation):   %d\n", docWords)
	return nil
}

// countTests counts top-level Test functions in _test.go files.
func countTests(root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), "_") || d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, "_test.go") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		sc := bufio.NewScanner(bytes.NewReader(data))
		for sc.Scan() {
			if strings.HasPrefix(sc.Text(), "func Test") {
				total++
			}
		}
		return sc.Err()
	})
	return total, err
}

// countDocWords walks the docs directory and counts words in .md and .yaml files.
func countDocWords(root string) (int, error) {
	total := 0
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch filepath.Ext(path) {
		case ".md", ".yaml", ".yml":
		default:
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		total += len(bytes.Fields(data))
		return nil
	})
	return total, err
}
