package measurement

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/aecoa/aecoa/errors"
	"github.com/aecoa/aecoa/internal/util"
)

// Document is the on-disk form of a measurement index.
// Drivers optionally carries run-level driver values such as gfa_m2.
type Document struct {
	Drivers      map[string]float64 `json:"drivers,omitempty" yaml:"drivers,omitempty"`
	Measurements []Measurement      `json:"measurements" yaml:"measurements"`
}

// LoadFile reads a measurement index from .json, .yaml/.yml or .csv
func LoadFile(path string) (*Index, map[string]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "read measurement index %s", path)
	}

	var doc *Document
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		doc, err = ParseJSON(data)
	case ".yaml", ".yml":
		doc, err = ParseYAML(data)
	case ".csv":
		var ms []Measurement
		ms, err = ParseCSV(bytes.NewReader(data))
		doc = &Document{Measurements: ms}
	default:
		return nil, nil, errors.NewInvalidRequestError("unsupported measurement index extension %q (want .json, .yaml or .csv)", filepath.Ext(path))
	}
	if err != nil {
		return nil, nil, errors.Wrapf(err, "measurement index %s", path)
	}
	return NewIndex(doc.Measurements), doc.Drivers, nil
}

// ParseJSON accepts either a Document or a bare array of measurements
func ParseJSON(data []byte) (*Document, error) {
	var doc Document
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &doc.Measurements); err != nil {
			return nil, errors.WrapInvalidRequest(err, "decode measurements json")
		}
	} else if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, errors.WrapInvalidRequest(err, "decode measurements json")
	}
	return &doc, doc.Validate()
}

// ParseYAML accepts either a Document or a bare sequence of measurements
func ParseYAML(data []byte) (*Document, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return nil, errors.WrapInvalidRequest(err, "decode measurements yaml")
	}

	var doc Document
	var err error
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		err = node.Content[0].Decode(&doc.Measurements)
	} else {
		err = node.Decode(&doc)
	}
	if err != nil {
		return nil, errors.WrapInvalidRequest(err, "decode measurements yaml")
	}
	return &doc, doc.Validate()
}

var csvColumns = []string{"entity_id", "category", "parameter", "value", "unit", "source_ref"}

// ParseCSV reads measurements from CSV with a header row.
// Required columns: entity_id, parameter, value, unit. Column order is free.
func ParseCSV(r io.Reader) ([]Measurement, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.WrapInvalidRequest(err, "read csv header")
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[util.NormalizeKey(h)] = i
	}
	for _, required := range []string{"entity_id", "parameter", "value", "unit"} {
		if _, ok := col[required]; !ok {
			return nil, errors.NewInvalidRequestError("csv header missing column %q (known columns: %s)", required, strings.Join(csvColumns, ", "))
		}
	}

	field := func(record []string, name string) string {
		i, ok := col[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var ms []Measurement
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapInvalidRequest(err, fmt.Sprintf("csv line %d", line))
		}
		value, err := strconv.ParseFloat(field(record, "value"), 64)
		if err != nil {
			return nil, errors.NewInvalidRequestError("csv line %d: value %q is not a number", line, field(record, "value"))
		}
		ms = append(ms, Measurement{
			EntityID:  field(record, "entity_id"),
			Category:  field(record, "category"),
			Parameter: field(record, "parameter"),
			Value:     value,
			Unit:      field(record, "unit"),
			SourceRef: field(record, "source_ref"),
		})
	}

	doc := Document{Measurements: ms}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return ms, nil
}

// Validate checks every measurement and driver value
func (d *Document) Validate() error {
	var problems []string
	for i, m := range d.Measurements {
		if err := measurementValidate.Struct(m); err != nil {
			var verrs validator.ValidationErrors
			if errors.As(err, &verrs) {
				for _, fe := range verrs {
					problems = append(problems, fmt.Sprintf("measurements[%d].%s failed %q", i, fe.Field(), fe.Tag()))
				}
				continue
			}
			problems = append(problems, err.Error())
		}
	}
	for name, v := range d.Drivers {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			problems = append(problems, fmt.Sprintf("driver %s is not finite", name))
		}
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.NewInvalidRequestError("invalid measurements: %s", strings.Join(problems, "; "))
}
