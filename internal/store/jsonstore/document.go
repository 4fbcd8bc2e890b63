// Package jsonstore implements the canonical JSON-file task store adapter:
// a single JSON document of task entries, one optional sibling Markdown
// file per task for its free-form description, and a PID-stamped file
// lock serializing concurrent writers.
package jsonstore

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"

	"github.com/nadimtuhin/loopwork/internal/task"
)

// Feature describes one entry of the document's optional "features" map.
type Feature struct {
	Name     string       `json:"name,omitempty"`
	Priority task.Priority `json:"priority,omitempty"`
}

// document is the on-disk shape of the store file.
type document struct {
	Tasks    []*task.Task        `json:"tasks"`
	Features map[string]*Feature `json:"features,omitempty"`
}

// load reads and parses the store file. A missing file is reported as
// task.ErrStoreNotFound; malformed JSON as task.ErrStoreCorrupt.
func load(path string) (*document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(task.ErrStoreNotFound, "jsonstore: %s", path)
		}
		return nil, errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: read %s: %v", path, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(task.ErrStoreCorrupt, "jsonstore: parse %s: %v", path, err)
	}
	if doc.Tasks == nil {
		doc.Tasks = []*task.Task{}
	}
	return &doc, nil
}

// save writes the document atomically: write to a temp file in the same
// directory, then rename over the original, so no reader ever observes a
// truncated document.
func save(path string, doc *document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: marshal %s: %v", path, err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: write %s: %v", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return errors.Wrapf(task.ErrStoreWriteFailed, "jsonstore: rename %s: %v", tmp, err)
	}
	return nil
}

// findByID returns the task entry with the given id, or nil.
func (d *document) findByID(id string) *task.Task {
	for _, t := range d.Tasks {
		if t.ID == id {
			return t
		}
	}
	return nil
}
