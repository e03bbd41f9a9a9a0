package requirement

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/aecoa/aecoa/errors"
)

// Format is a requirement table encoding
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatTOML Format = "toml"
)

// FormatFromPath infers the encoding from a file extension
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".toml":
		return FormatTOML, nil
	}
	return "", errors.NewInvalidRequestError("unsupported requirement table extension %q (want .yaml, .json or .toml)", filepath.Ext(path))
}

// LoadFile reads and validates a requirement table
func LoadFile(path string) (*Table, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read requirement table %s", path)
	}
	t, err := Parse(data, format)
	if err != nil {
		return nil, errors.Wrapf(err, "requirement table %s", path)
	}
	return t, nil
}

// Parse decodes a requirement table and validates it.
// Unknown fields are rejected so misspelled keys do not silently drop constraints.
func Parse(data []byte, format Format) (*Table, error) {
	var t Table
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&t); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequirement, "decode yaml: "+err.Error())
		}
	case FormatJSON:
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&t); err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequirement, "decode json: "+err.Error())
		}
	case FormatTOML:
		md, err := toml.Decode(string(data), &t)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInvalidRequirement, "decode toml: "+err.Error())
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, errors.Wrapf(errors.ErrInvalidRequirement, "unknown toml keys: %v", undecoded)
		}
	default:
		return nil, errors.NewInvalidRequestError("unsupported requirement table format %q", format)
	}

	if err := t.Validate(); err != nil {
		return nil, err
	}
	return &t, nil
}

// Encode writes the table in the given format
func (t *Table) Encode(format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		var buf bytes.Buffer
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(t); err != nil {
			return nil, errors.Wrap(err, "encode yaml")
		}
		return buf.Bytes(), nil
	case FormatJSON:
		return json.MarshalIndent(t, "", "  ")
	case FormatTOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(t); err != nil {
			return nil, errors.Wrap(err, "encode toml")
		}
		return buf.Bytes(), nil
	}
	return nil, errors.NewInvalidRequestError("unsupported requirement table format %q", format)
}
