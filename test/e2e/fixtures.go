package e2e

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/ruiji/internal/models"
)

type fixtureDocument struct {
	Type    string               `json:"type" yaml:"type"`
	Records []models.RecordInput `json:"records" yaml:"records"`
}

// WriteFixtureFiles writes the corpus as fixture documents of recordType into
// dir, perFile articles per file, alternating between JSON and YAML. It
// returns the paths written.
func WriteFixtureFiles(dir, recordType string, c *Corpus, perFile int) ([]string, error) {
	if perFile <= 0 {
		perFile = 10
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	inputs := c.RecordInputs("")
	var paths []string
	for start := 0; start < len(inputs); start += perFile {
		end := start + perFile
		if end > len(inputs) {
			end = len(inputs)
		}
		doc := fixtureDocument{Type: recordType, Records: inputs[start:end]}

		n := len(paths)
		var (
			data []byte
			err  error
			path string
		)
		if n%2 == 0 {
			path = filepath.Join(dir, fmt.Sprintf("batch-%02d.json", n))
			data, err = json.MarshalIndent(doc, "", "  ")
		} else {
			path = filepath.Join(dir, fmt.Sprintf("batch-%02d.yaml", n))
			data, err = yaml.Marshal(doc)
		}
		if err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}
