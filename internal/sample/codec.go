package sample

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

type wireSample struct {
	ID            string                     `json:"id"`
	InstanceID    uuid.UUID                  `json:"instance_id"`
	Files         []string                   `json:"files"`
	Processed     bool                       `json:"processed"`
	Meta          map[string]any             `json:"meta,omitempty"`
	FailureReason string                     `json:"failure_reason,omitempty"`
	Runs          map[string]bool            `json:"runs,omitempty"`
	Attrs         map[string]json.RawMessage `json:"attrs,omitempty"`
}

type wireSamples struct {
	Samples []wireSample `json:"samples"`
	Outputs []Output     `json:"outputs,omitempty"`
	Globs   []OutputGlob `json:"globs,omitempty"`
}

// MarshalJSON encodes the collection, including instance identifiers and
// extension attributes, for transfer to and from runner contexts.
func (s *Samples) MarshalJSON() ([]byte, error) {
	wire := wireSamples{
		Samples: make([]wireSample, 0, len(s.Items)),
		Outputs: s.Outputs,
		Globs:   s.Globs,
	}
	for _, item := range s.Items {
		ws := wireSample{
			ID:            item.ID,
			InstanceID:    item.instanceID,
			Files:         item.Files,
			Processed:     item.Processed,
			Meta:          item.Meta,
			FailureReason: item.FailureReason,
			Runs:          item.Runs,
		}
		if len(item.attrs) > 0 {
			ws.Attrs = make(map[string]json.RawMessage, len(item.attrs))
			for name, value := range item.attrs {
				raw, err := json.Marshal(value)
				if err != nil {
					return nil, fmt.Errorf("encode attribute %q of %s: %w", name, item.ID, err)
				}
				ws.Attrs[name] = raw
			}
		}
		wire.Samples = append(wire.Samples, ws)
	}
	return json.Marshal(wire)
}

// Decode rebuilds a collection encoded by Samples.MarshalJSON. Extension
// attributes are decoded into the type of their declared default; attributes
// unknown to t are rejected.
func (t *RecordType) Decode(data []byte) (*Samples, error) {
	var wire wireSamples
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, fmt.Errorf("decode samples: %w", err)
	}
	out := &Samples{Type: t, Outputs: wire.Outputs, Globs: wire.Globs}
	for _, ws := range wire.Samples {
		item := t.New(ws.ID, ws.Files...)
		if ws.InstanceID != uuid.Nil {
			item.instanceID = ws.InstanceID
		}
		item.Processed = ws.Processed
		item.FailureReason = ws.FailureReason
		if ws.Meta != nil {
			item.Meta = ws.Meta
		}
		if ws.Runs != nil {
			item.Runs = ws.Runs
		}
		for name, raw := range ws.Attrs {
			def, ok := t.defaultOf(name)
			if !ok {
				return nil, fmt.Errorf("decode sample %s: unknown attribute %q", ws.ID, name)
			}
			value, err := decodeValue(raw, def)
			if err != nil {
				return nil, fmt.Errorf("decode sample %s attribute %q: %w", ws.ID, name, err)
			}
			item.attrs[name] = value
		}
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func decodeValue(raw json.RawMessage, def any) (any, error) {
	if elems, ok := tupleElements(raw); ok {
		tuple := make(Tuple, 0, len(elems))
		for _, elem := range elems {
			value, err := decodeValue(elem, def)
			if err != nil {
				return nil, err
			}
			tuple = append(tuple, value)
		}
		return tuple, nil
	}
	ptr := reflect.New(reflect.TypeOf(def))
	if err := json.Unmarshal(raw, ptr.Interface()); err != nil {
		return nil, err
	}
	return ptr.Elem().Interface(), nil
}

func tupleElements(raw json.RawMessage) ([]json.RawMessage, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false
	}
	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &wrapper); err != nil || len(wrapper) != 1 {
		return nil, false
	}
	body, ok := wrapper[tupleKey]
	if !ok {
		return nil, false
	}
	var elems []json.RawMessage
	if err := json.Unmarshal(body, &elems); err != nil {
		return nil, false
	}
	return elems, true
}
