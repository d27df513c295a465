package handlers

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aretw0/strata/pkg/document"
	"github.com/aretw0/strata/pkg/execpath"
	"github.com/aretw0/strata/pkg/macro"
)

// Include replaces the invocation by the parsed content of another document.
// Relative paths are taken from the directory of the including document.
//
//	function: include
//	file: parts/header.yaml
type Include struct {
	Parser *document.Parser
	// Macros resolves the included document in its own source context.
	// Without it the result is resolved by the caller.
	Macros *macro.Resolver
}

func (h *Include) Apply(ctx context.Context, _ string, args map[string]any) (any, error) {
	file, err := stringArg(args, "file")
	if err != nil {
		return nil, err
	}
	path := relativeToSource(ctx, file)
	doc, err := h.Parser.ParseFile(path)
	if err != nil {
		return nil, err
	}
	if h.Macros == nil {
		return doc, nil
	}

	p := execpath.FromContext(ctx)
	p.PushFile(filepath.Base(path))
	out, err := h.Macros.Resolve(document.WithSource(ctx, path), doc)
	if err != nil {
		return nil, err
	}
	p.Pop()
	return out, nil
}

// RealPath returns the absolute path of an existing file or directory.
//
//	function: file/realpath
//	path: assets/logo.png
type RealPath struct{}

func (RealPath) Apply(ctx context.Context, _ string, args map[string]any) (any, error) {
	file, err := stringArg(args, "path", "file")
	if err != nil {
		return nil, err
	}
	path := relativeToSource(ctx, file)
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("resolving %s: %w", file, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	return abs, nil
}

func relativeToSource(ctx context.Context, file string) string {
	if filepath.IsAbs(file) {
		return file
	}
	if src := document.SourceFromContext(ctx); src != "" {
		return filepath.Join(filepath.Dir(src), file)
	}
	return file
}
