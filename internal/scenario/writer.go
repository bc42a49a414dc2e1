package scenario

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/renameio/v2"
)

// backupStamp is the timestamp layout embedded in backup file names.
const backupStamp = "20060102_150405"

// UpdateTimeline validates and writes a replacement timeline document for a
// team (path relative to the scenarios root). The previous file, when one
// exists, is copied to backups/ with a timestamped name, so every replaced
// version stays recoverable. Returns the backup path, empty when the
// timeline is new.
func (l *Loader) UpdateTimeline(file string, raw []byte) (string, error) {
	var doc struct {
		ID      string           `json:"id"`
		Name    string           `json:"name"`
		Injects []map[string]any `json:"injects"`
	}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrMalformed, file, err)
	}
	seen := make(map[string]struct{}, len(doc.Injects))
	for i, fields := range doc.Injects {
		inj, err := parseInject(fields)
		if err != nil {
			return "", fmt.Errorf("%w: %s: inject %d: %v", ErrMalformed, file, i, err)
		}
		if _, dup := seen[inj.ID]; dup {
			return "", fmt.Errorf("%w: %s: duplicate inject id %q", ErrMalformed, file, inj.ID)
		}
		seen[inj.ID] = struct{}{}
	}

	path := filepath.Join(l.root, file)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create timeline dir: %w", err)
	}

	backup := ""
	if prev, err := os.ReadFile(path); err == nil {
		backupDir := filepath.Join(l.root, "backups")
		if err := os.MkdirAll(backupDir, 0o755); err != nil {
			return "", fmt.Errorf("create backup dir: %w", err)
		}
		stamp := time.Now().Format(backupStamp)
		backup = filepath.Join(backupDir, fmt.Sprintf("%s.%s.bak", filepath.Base(file), stamp))
		// Replacements within the same second get a numeric suffix so no
		// backup is ever overwritten.
		for n := 1; ; n++ {
			if _, err := os.Stat(backup); os.IsNotExist(err) {
				break
			}
			backup = filepath.Join(backupDir, fmt.Sprintf("%s.%s-%d.bak", filepath.Base(file), stamp, n))
		}
		if err := renameio.WriteFile(backup, prev, 0o644); err != nil {
			return "", fmt.Errorf("backup timeline %s: %w", file, err)
		}
	}

	pretty, err := json.MarshalIndent(json.RawMessage(raw), "", "  ")
	if err != nil {
		pretty = raw
	}
	if err := renameio.WriteFile(path, pretty, 0o644); err != nil {
		return "", fmt.Errorf("write timeline %s: %w", file, err)
	}

	l.logger.Info().Str("file", file).Int("injects", len(doc.Injects)).Msg("timeline updated")
	return backup, nil
}
