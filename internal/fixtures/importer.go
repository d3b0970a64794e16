package fixtures

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/storage"
	"github.com/hyperjump/ruiji/internal/vectorsearch"
	"github.com/hyperjump/ruiji/pkg/utils"
)

// recordKey identifies a stored record.
type recordKey struct {
	recordType string
	id         string
}

// Result summarizes the import of one file or directory.
type Result struct {
	Files   int `json:"files"`
	Saved   int `json:"saved"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"` // records of undeclared types
	Removed int `json:"removed"` // records dropped from a re-imported file
}

func (r *Result) add(o Result) {
	r.Files += o.Files
	r.Saved += o.Saved
	r.Failed += o.Failed
	r.Skipped += o.Skipped
	r.Removed += o.Removed
}

// Importer saves the records of fixture files through the registry and
// remembers which records each file produced.
type Importer struct {
	registry *vectorsearch.Registry
	log      *zap.Logger

	mu     sync.Mutex
	byFile map[string][]recordKey
}

// NewImporter creates an importer over registry.
func NewImporter(registry *vectorsearch.Registry, log *zap.Logger) *Importer {
	return &Importer{
		registry: registry,
		log:      utils.Named(log, "fixtures"),
		byFile:   make(map[string][]recordKey),
	}
}

// ImportFile saves every record of the file at path. Records whose type is
// not declared are skipped. Save failures are collected and the rest of the
// file is still imported. Records an earlier import of the file produced that
// are no longer in it are deleted.
func (im *Importer) ImportFile(ctx context.Context, path string) (Result, error) {
	res := Result{Files: 1}
	inputs, err := ReadFile(path)
	if err != nil {
		return res, err
	}

	var errs error
	keys := make([]recordKey, 0, len(inputs))
	for _, in := range inputs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		s, err := im.registry.Get(in.Type)
		if err != nil {
			res.Skipped++
			im.log.Debug("skipping record of undeclared type", zap.String("path", path), zap.String("record_type", in.Type))
			continue
		}
		rec, err := s.Save(ctx, in)
		if rec != nil {
			keys = append(keys, recordKey{recordType: rec.Type, id: rec.ID})
		}
		if err != nil {
			res.Failed++
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		res.Saved++
	}

	im.mu.Lock()
	clean := filepath.Clean(path)
	previous := im.byFile[clean]
	im.byFile[clean] = keys
	im.mu.Unlock()

	current := make(map[recordKey]bool, len(keys))
	for _, k := range keys {
		current[k] = true
	}
	var stale []recordKey
	for _, k := range previous {
		if !current[k] {
			stale = append(stale, k)
		}
	}
	res.Removed = len(stale)
	errs = multierr.Append(errs, im.deleteRecords(ctx, stale))

	im.log.Info("imported file",
		zap.String("path", path),
		zap.Int("saved", res.Saved),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Int("removed", res.Removed))
	return res, errs
}

// ImportDir imports every supported file under dir.
func (im *Importer) ImportDir(ctx context.Context, dir string, recursive bool) (Result, error) {
	var total Result
	var errs error
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && !recursive {
				return filepath.SkipDir
			}
			return nil
		}
		if !Supported(path) {
			return nil
		}
		res, err := im.ImportFile(ctx, path)
		total.add(res)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		errs = multierr.Append(errs, err)
		return nil
	})
	return total, multierr.Append(err, errs)
}

// RemoveFile deletes the records the file at path produced when it was last
// imported. Records already gone from the store are ignored.
func (im *Importer) RemoveFile(ctx context.Context, path string) error {
	path = filepath.Clean(path)
	im.mu.Lock()
	keys := im.byFile[path]
	delete(im.byFile, path)
	im.mu.Unlock()

	errs := im.deleteRecords(ctx, keys)
	if len(keys) > 0 {
		im.log.Info("removed records of deleted file", zap.String("path", path), zap.Int("count", len(keys)))
	}
	return errs
}

// deleteRecords deletes keys through their bindings. Undeclared types and
// records already gone from the store are ignored.
func (im *Importer) deleteRecords(ctx context.Context, keys []recordKey) error {
	var errs error
	for _, k := range keys {
		s, err := im.registry.Get(k.recordType)
		if err != nil {
			continue
		}
		if err := s.Delete(ctx, k.id); err != nil && !errors.Is(err, storage.ErrNotFound) {
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}
