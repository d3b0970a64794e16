package vectorsearch

import (
	"encoding/json"

	"github.com/hyperjump/ruiji/internal/models"
)

// Serializer turns a record into the text submitted to the provider.
type Serializer func(rec *models.Record) (string, error)

// JSONSerializer renders the record ID and fields as JSON, leaving out the
// named fields. encoding/json writes map keys in sorted order, so the output
// is stable for a given record.
func JSONSerializer(exclude ...string) Serializer {
	skip := make(map[string]bool, len(exclude))
	for _, f := range exclude {
		skip[f] = true
	}
	return func(rec *models.Record) (string, error) {
		out := make(map[string]interface{}, len(rec.Fields)+1)
		for k, v := range rec.Fields {
			if skip[k] {
				continue
			}
			out[k] = v
		}
		if !skip["id"] {
			out["id"] = rec.ID
		}
		b, err := json.Marshal(out)
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
}
