package sample

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML list of samples:
//
//	- id: s1
//	  files: [a.fastq, b.fastq]
//	  lane: 1          # extension field, decoded into the field's type
//	  meta: {run: x}
//
// Relative file paths are resolved against the directory of path. Keys that
// are neither built-in attributes nor extension fields are stored in Meta.
func LoadFile(path string, typ *RecordType) (*Samples, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read samples file: %w", err)
	}
	return Parse(data, filepath.Dir(path), typ)
}

// Parse decodes a YAML sample list. base resolves relative file paths.
func Parse(data []byte, base string, typ *RecordType) (*Samples, error) {
	if typ == nil {
		typ = DefaultType()
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse samples: %w", err)
	}
	out := New(typ)
	if doc.Kind == 0 || len(doc.Content) == 0 {
		return out, nil
	}
	list := doc.Content[0]
	if list.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("parse samples: line %d: expected a list of samples", list.Line)
	}
	for idx, node := range list.Content {
		item, err := decodeSampleNode(node, base, typ)
		if err != nil {
			return nil, fmt.Errorf("parse samples: entry %d (line %d): %w", idx, node.Line, err)
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func decodeSampleNode(node *yaml.Node, base string, typ *RecordType) (*Sample, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("expected a mapping")
	}
	item := typ.New("")
	hasID := false
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		value := node.Content[i+1]
		switch key {
		case AttrID:
			var id any
			if err := value.Decode(&id); err != nil {
				return nil, fmt.Errorf("id: %w", err)
			}
			if id == nil {
				return nil, fmt.Errorf("id must not be empty")
			}
			item.ID = fmt.Sprint(id)
			hasID = item.ID != ""
		case AttrFiles:
			var files []string
			if err := value.Decode(&files); err != nil {
				return nil, fmt.Errorf("files: %w", err)
			}
			for i, file := range files {
				if !filepath.IsAbs(file) && base != "" {
					files[i] = filepath.Join(base, file)
				}
			}
			item.Files = files
		case AttrMeta:
			var meta map[string]any
			if err := value.Decode(&meta); err != nil {
				return nil, fmt.Errorf("meta: %w", err)
			}
			item.Meta = MergeMaps(item.Meta, meta).(map[string]any)
		case AttrInstanceID, AttrProcessed, AttrFailureReason, AttrRuns:
			return nil, fmt.Errorf("%s cannot be set from a samples file", key)
		default:
			def, ok := typ.defaultOf(key)
			if !ok {
				var extra any
				if err := value.Decode(&extra); err != nil {
					return nil, fmt.Errorf("%s: %w", key, err)
				}
				item.Meta[key] = extra
				continue
			}
			ptr := reflect.New(reflect.TypeOf(def))
			if err := value.Decode(ptr.Interface()); err != nil {
				return nil, fmt.Errorf("%s: %w", key, err)
			}
			item.attrs[key] = ptr.Elem().Interface()
		}
	}
	if !hasID {
		return nil, fmt.Errorf("id is required")
	}
	return item, nil
}
