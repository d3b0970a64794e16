// Package fixtures reads record files (JSON or YAML) and documents (text,
// PDF, office formats) and saves their records through the searchable
// binding of their record type.
package fixtures

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/hyperjump/ruiji/internal/extract"
	"github.com/hyperjump/ruiji/internal/models"
)

// fixtureNamespace derives stable IDs for records that do not carry one, so
// importing the same file twice updates instead of duplicating.
var fixtureNamespace = uuid.MustParse("0b7c6f52-2f0e-4c55-9d8b-5a3e1f7c9d21")

// document is a file holding several records of one default type.
type document struct {
	Type    string               `json:"type" yaml:"type"`
	Records []models.RecordInput `json:"records" yaml:"records"`
}

// Supported reports whether path has an extension Parse understands.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json", ".yaml", ".yml":
		return true
	}
	return extract.Supported(ext)
}

// ReadFile reads and parses the record file at path.
func ReadFile(path string) ([]models.RecordInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(path, data)
}

// Parse decodes data as a single record, a list of records, or a document
// with a default type and a records list. The format is chosen by the
// extension of path. Records without a type take the document type, then
// the name of the directory holding the file. Records without an ID get one
// derived from the file path and their position.
func Parse(path string, data []byte) ([]models.RecordInput, error) {
	var unmarshal func([]byte, interface{}) error
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		unmarshal = json.Unmarshal
	case ".yaml", ".yml":
		unmarshal = yaml.Unmarshal
	default:
		if extract.Supported(ext) {
			return parseDocument(path, data)
		}
		return nil, fmt.Errorf("unsupported record file %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var probe interface{}
	if err := unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	var records []models.RecordInput
	defaultType := ""
	switch v := probe.(type) {
	case []interface{}:
		if err := unmarshal(data, &records); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case map[string]interface{}:
		if _, ok := v["records"]; ok {
			var doc document
			if err := unmarshal(data, &doc); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			records, defaultType = doc.Records, doc.Type
		} else {
			var rec models.RecordInput
			if err := unmarshal(data, &rec); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
			records = []models.RecordInput{rec}
		}
	default:
		return nil, fmt.Errorf("parse %s: expected a record, a list or a records document", path)
	}

	if defaultType == "" {
		defaultType = dirType(path)
	}
	abs := absPath(path)
	for i := range records {
		if records[i].Type == "" {
			records[i].Type = defaultType
		}
		if records[i].ID == "" {
			records[i].ID = uuid.NewSHA1(fixtureNamespace, []byte(abs+"#"+strconv.Itoa(i))).String()
		}
	}
	return records, nil
}

// parseDocument turns a document into one record of the type named by its
// directory, with title, body, source and format fields. Documents without
// text yield no record.
func parseDocument(path string, data []byte) ([]models.RecordInput, error) {
	ext := filepath.Ext(path)
	text, err := extract.Bytes(data, ext)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", path, err)
	}
	if text == "" {
		return nil, nil
	}
	base := filepath.Base(path)
	return []models.RecordInput{{
		ID:   uuid.NewSHA1(fixtureNamespace, []byte(absPath(path))).String(),
		Type: dirType(path),
		Fields: map[string]interface{}{
			"title":  strings.TrimSuffix(base, ext),
			"body":   text,
			"source": base,
			"format": strings.TrimPrefix(strings.ToLower(ext), "."),
		},
	}}, nil
}

func dirType(path string) string {
	return filepath.Base(filepath.Dir(path))
}

func absPath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}
