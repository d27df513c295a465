// Package document parses build documents into the generic tree consumed by
// the builder: map[string]any for mappings, []any for sequences, and plain
// scalars.
//
// YAML (.yaml, .yml) and JSON with comments (.json, .jsonc) are supported.
// Before parsing, "%name%" tokens in the raw text are replaced by configured
// variables.
package document

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/aretw0/strata/pkg/core"
)

// ContentKey is the root key holding the sequence of top-level node specs.
const ContentKey = "content"

// RemoteIDPrefixKey is the root key overriding the remote id prefix.
const RemoteIDPrefixKey = "remoteIdPrefix"

// Parser decodes documents.
type Parser struct {
	// Variables are substituted for "%name%" tokens before decoding.
	Variables map[string]string
}

// ParseFile reads and decodes the document at path.
func (p *Parser) ParseFile(path string) (any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	v, err := p.Parse(filepath.Ext(path), data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return v, nil
}

// Parse decodes data according to the file extension ext.
func (p *Parser) Parse(ext string, data []byte) (any, error) {
	data = []byte(Substitute(string(data), p.Variables))

	var out any
	switch strings.ToLower(ext) {
	case ".json", ".jsonc":
		dec := json.NewDecoder(bytes.NewReader(jsonc.ToJSON(data)))
		dec.UseNumber()
		if err := dec.Decode(&out); err != nil {
			return nil, fmt.Errorf("%w: parsing json: %w", core.ErrValidation, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(data, &out); err != nil {
			return nil, fmt.Errorf("%w: parsing yaml: %w", core.ErrValidation, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported document format %q", core.ErrValidation, ext)
	}
	return Normalize(out), nil
}

// Normalize converts decoder specific shapes into the generic tree: mappings
// with non-string keys get stringified keys and JSON numbers become int or
// float64.
func Normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = Normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = Normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = Normalize(val)
		}
		return t
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return int(i)
		}
		f, _ := t.Float64()
		return f
	}
	return v
}

var variablePattern = regexp.MustCompile(`%([A-Za-z0-9_.\-]*)%`)

// Substitute replaces "%name%" tokens with vars[name]. Unknown tokens are
// left as they are and "%%" yields a single "%".
func Substitute(text string, vars map[string]string) string {
	if !strings.Contains(text, "%") {
		return text
	}
	return variablePattern.ReplaceAllStringFunc(text, func(tok string) string {
		name := tok[1 : len(tok)-1]
		if name == "" {
			return "%"
		}
		if v, ok := vars[name]; ok {
			return v
		}
		return tok
	})
}

// BaseName returns the file name of path without directory and extension.
// It is the default remote id prefix of a document.
func BaseName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

type sourceKey struct{}

// WithSource returns a context recording the path of the document being
// processed. Relative includes are resolved against its directory.
func WithSource(ctx context.Context, path string) context.Context {
	return context.WithValue(ctx, sourceKey{}, path)
}

// SourceFromContext returns the document path recorded by WithSource.
func SourceFromContext(ctx context.Context) string {
	s, _ := ctx.Value(sourceKey{}).(string)
	return s
}
