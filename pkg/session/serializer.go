package session

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Serializer names.
const (
	SerializerJSON = "json"
	SerializerGob  = "gob"
	SerializerYAML = "yaml"
)

func init() {
	// Nested values decoded from other encodings must survive a gob round trip.
	gob.Register(map[string]any{})
	gob.Register([]any{})
}

// Serializer converts session Data to and from the blob stored by a SaveHandler.
type Serializer interface {
	Encode(d Data) ([]byte, error)
	Decode(b []byte) (Data, error)
}

// NewSerializer returns the serializer registered under name.
func NewSerializer(name string) (Serializer, error) {
	switch name {
	case SerializerJSON:
		return jsonSerializer{}, nil
	case SerializerGob:
		return gobSerializer{}, nil
	case SerializerYAML:
		return yamlSerializer{}, nil
	default:
		return nil, configError("unknown serialize handler %q", name)
	}
}

type jsonSerializer struct{}

func (jsonSerializer) Encode(d Data) ([]byte, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding session json: %w", err)
	}
	return b, nil
}

func (jsonSerializer) Decode(b []byte) (Data, error) {
	d := make(Data)
	if len(b) == 0 {
		return d, nil
	}
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decoding session json: %w", err)
	}
	return d, nil
}

type gobSerializer struct{}

func (gobSerializer) Encode(d Data) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(d); err != nil {
		return nil, fmt.Errorf("encoding session gob: %w", err)
	}
	return buf.Bytes(), nil
}

func (gobSerializer) Decode(b []byte) (Data, error) {
	d := make(Data)
	if len(b) == 0 {
		return d, nil
	}
	if err := gob.NewDecoder(bytes.NewReader(b)).Decode(&d); err != nil {
		return nil, fmt.Errorf("decoding session gob: %w", err)
	}
	return d, nil
}

type yamlSerializer struct{}

func (yamlSerializer) Encode(d Data) ([]byte, error) {
	b, err := yaml.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encoding session yaml: %w", err)
	}
	return b, nil
}

func (yamlSerializer) Decode(b []byte) (Data, error) {
	d := make(Data)
	if len(b) == 0 {
		return d, nil
	}
	if err := yaml.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("decoding session yaml: %w", err)
	}
	if d == nil {
		d = make(Data)
	}
	return d, nil
}
