package queue

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// queueFile is the top-level wrapper of both the primary persisted
// file and its backup sibling.
type queueFile struct {
	Queue []*Item `json:"queue"`
}

func backupPathFor(path string) string {
	return path + ".backup"
}

// readQueueFile loads and decodes one persisted queue document.
func readQueueFile(path string) ([]*Item, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc queueFile
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("queue file '%s' is corrupt: %w", path, err)
	}
	if doc.Queue == nil {
		return nil, fmt.Errorf("queue file '%s' is corrupt: missing queue wrapper", path)
	}
	for i, item := range doc.Queue {
		if item == nil {
			return nil, fmt.Errorf("queue file '%s' is corrupt: null entry at index %d", path, i)
		}
	}

	return doc.Queue, nil
}

// writeQueueFile encodes the items and writes them to path via a
// temp-file-plus-atomic-rename sequence, so a crash mid-write can
// never leave a half-written document at path.
func writeQueueFile(path string, items []*Item) error {
	encoded, err := json.MarshalIndent(queueFile{Queue: items}, "", "  ")
	if err != nil {
		return err
	}

	temp, err := os.CreateTemp(filepath.Dir(path), ".queue-*")
	if err != nil {
		return err
	}
	defer os.Remove(temp.Name())

	_, err = temp.Write(encoded)
	if closeErr := temp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	return os.Rename(temp.Name(), path)
}

// writeBackupFile writes the backup sibling in full. The backup is a
// plain truncate-and-write: it is always written before the primary,
// so at any moment at least one of the two files is intact.
func writeBackupFile(path string, items []*Item) error {
	encoded, err := json.MarshalIndent(queueFile{Queue: items}, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(backupPathFor(path), encoded, 0o644)
}
