package keymap

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Mapping is entity -> label -> concrete provider key. A nil value records
// that the label could not be resolved for the entity; such labels are never
// fetched and never fabricated by derivation.
type Mapping map[string]map[string]*string

// Set records the key chosen for an (entity, label) pair. key == "" records
// an unresolvable label (null in the artifact).
func (m Mapping) Set(entity, label, key string) {
	labels, ok := m[entity]
	if !ok {
		labels = make(map[string]*string)
		m[entity] = labels
	}
	if key == "" {
		labels[label] = nil
		return
	}
	labels[label] = &key
}

// Get returns the concrete key for an (entity, label) pair, or "" when the
// pair is unmapped or explicitly null.
func (m Mapping) Get(entity, label string) string {
	if key, ok := m[entity][label]; ok && key != nil {
		return *key
	}
	return ""
}

// Merge overlays other onto m, label by label. Later sources win per label;
// labels only present in m survive, so manual edits and retired labels are
// never deleted by a run that does not recompute them.
func (m Mapping) Merge(other Mapping) {
	for entity, labels := range other {
		if _, ok := m[entity]; !ok {
			m[entity] = make(map[string]*string)
		}
		for label, key := range labels {
			m[entity][label] = key
		}
	}
}

// Load reads and merges every mapping artifact in paths, in order. Missing
// files are skipped; a malformed file is skipped with a warning so one bad
// hand edit cannot block a run.
func Load(paths ...string) Mapping {
	merged := make(Mapping)
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				zap.L().Warn("keymap: unreadable mapping artifact",
					zap.String("path", path), zap.Error(err))
			}
			continue
		}
		var m Mapping
		if err := json.Unmarshal(data, &m); err != nil {
			zap.L().Warn("keymap: skipping malformed mapping artifact",
				zap.String("path", path), zap.Error(err))
			continue
		}
		merged.Merge(m)
	}
	return merged
}

// Write persists the mapping as indented JSON via a temp file and atomic
// rename, keeping the artifact human-editable between runs.
func Write(path string, m Mapping) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "keymap: marshal mapping")
	}
	data = append(data, '\n')

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return eris.Wrapf(err, "keymap: create dir %s", dir)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return eris.Wrap(err, "keymap: create temp file")
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) //nolint:errcheck

	if _, err := tmp.Write(data); err != nil {
		tmp.Close() //nolint:errcheck
		return eris.Wrap(err, "keymap: write temp file")
	}
	if err := tmp.Close(); err != nil {
		return eris.Wrap(err, "keymap: close temp file")
	}
	if err := os.Rename(tmpName, path); err != nil {
		return eris.Wrapf(err, "keymap: rename into %s", path)
	}
	return nil
}
