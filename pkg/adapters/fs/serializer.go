package fs

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/aretw0/strata/pkg/core"
	"github.com/aretw0/strata/pkg/document"
)

// Serializer reads and writes the records stored by the repository: items
// and content type schemas.
type Serializer interface {
	Decode(r io.Reader, v any) error
	Encode(v any) ([]byte, error)
}

// DefaultSerializers returns the serializers by file extension.
func DefaultSerializers() map[string]Serializer {
	return map[string]Serializer{
		".json": JSONSerializer{},
		".yaml": YAMLSerializer{},
		".yml":  YAMLSerializer{},
	}
}

// JSONSerializer stores records as indented JSON. Numbers are decoded
// exactly; integral values come back as int.
type JSONSerializer struct{}

func (JSONSerializer) Decode(r io.Reader, v any) error {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid json: %w", err)
	}
	return nil
}

func (JSONSerializer) Encode(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// YAMLSerializer stores records as YAML documents.
type YAMLSerializer struct{}

func (YAMLSerializer) Decode(r io.Reader, v any) error {
	if err := yaml.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("invalid yaml: %w", err)
	}
	return nil
}

func (YAMLSerializer) Encode(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// normalizeItem brings decoded field values to the shapes the builder
// writes: string keyed maps, []any sequences, int and float64 numbers.
func normalizeItem(item *core.Item) {
	for lang, layer := range item.Fields {
		if layer == nil {
			item.Fields[lang] = map[string]any{}
			continue
		}
		document.Normalize(layer)
	}
	if item.Options != nil {
		document.Normalize(item.Options)
	}
}
