//go:build tools
// +build tools

// Package tools declares Go tool dependencies, the same blank-import
// pattern smoynes-elsie/internal/tools.go uses to pin stringer without
// letting it leak into a normal build: the packages this file imports are
// run via `go generate`, never linked into the kernel itself.
package tools

import (
	_ "golang.org/x/tools/cmd/stringer"
)
