package library

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const (
	iqMaxUploadBytes = 500 << 20 // 500 MB
	iqSampleRate     = 1024000   // assumed rate for duration estimates
	iqBytesPerSample = 8         // complex64
)

var iqExtensions = map[string]struct{}{
	".iq":    {},
	".dat":   {},
	".raw":   {},
	".cfile": {},
}

// IQFile is one IQ library entry.
type IQFile struct {
	Filename        string  `json:"filename"`
	Path            string  `json:"path"`
	Size            int64   `json:"size"`
	SizeMB          float64 `json:"size_mb"`
	DurationSeconds float64 `json:"duration_seconds"`
	NumSamples      int64   `json:"num_samples"`
	Modified        float64 `json:"modified"`
	Format          string  `json:"format"`
}

// IQLibrary serves raw sample recordings from a flat directory.
type IQLibrary struct {
	root   string
	logger zerolog.Logger
}

func NewIQLibrary(root string, logger zerolog.Logger) *IQLibrary {
	return &IQLibrary{root: root, logger: logger}
}

// Root returns the IQ library directory.
func (l *IQLibrary) Root() string {
	return l.root
}

// EnsureDirs creates the library directory.
func (l *IQLibrary) EnsureDirs() error {
	return os.MkdirAll(l.root, 0o755)
}

func iqEntry(name string, size int64, modified float64) IQFile {
	samples := size / iqBytesPerSample
	return IQFile{
		Filename:        name,
		Path:            "/iq_library/" + name,
		Size:            size,
		SizeMB:          math.Round(float64(size)/(1<<20)*100) / 100,
		DurationSeconds: math.Round(float64(samples)/iqSampleRate*10) / 10,
		NumSamples:      samples,
		Modified:        modified,
		Format:          strings.TrimPrefix(strings.ToLower(filepath.Ext(name)), "."),
	}
}

// List returns the IQ files sorted by filename.
func (l *IQLibrary) List() ([]IQFile, error) {
	entries, err := os.ReadDir(l.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []IQFile{}, nil
		}
		return nil, fmt.Errorf("scan iq library: %w", err)
	}

	out := make([]IQFile, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if _, ok := iqExtensions[ext]; !ok {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, iqEntry(e.Name(), info.Size(), float64(info.ModTime().UnixMilli())/1000))
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Filename < out[b].Filename })
	return out, nil
}

// Save validates and stores an uploaded recording. The size must be a
// positive multiple of 8 bytes (complex64 samples).
func (l *IQLibrary) Save(filename string, content []byte) (IQFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if _, ok := iqExtensions[ext]; !ok {
		return IQFile{}, fmt.Errorf("%w: unsupported file type %s", ErrRejected, ext)
	}
	if len(content) > iqMaxUploadBytes {
		return IQFile{}, fmt.Errorf("%w: %s exceeds %d MB limit", ErrRejected, filename, iqMaxUploadBytes>>20)
	}
	if len(content) == 0 || len(content)%iqBytesPerSample != 0 {
		return IQFile{}, fmt.Errorf("%w: %s size must be a positive multiple of %d bytes", ErrRejected, filename, iqBytesPerSample)
	}

	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return IQFile{}, fmt.Errorf("create iq library dir: %w", err)
	}

	final := uniqueName(l.root, sanitizeFilename(filename))
	path := filepath.Join(l.root, final)
	if err := renameio.WriteFile(path, content, 0o644); err != nil {
		return IQFile{}, fmt.Errorf("write %s: %w", final, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return IQFile{}, fmt.Errorf("stat %s: %w", final, err)
	}
	l.logger.Info().Str("file", final).Int("bytes", len(content)).Msg("iq file stored")
	return iqEntry(final, info.Size(), float64(info.ModTime().UnixMilli())/1000), nil
}

// Delete removes a file addressed by its public path (/iq_library/...).
func (l *IQLibrary) Delete(publicPath string) error {
	rel, ok := strings.CutPrefix(publicPath, "/iq_library/")
	if !ok || rel == "" {
		return fmt.Errorf("%w: %s", ErrInvalidPath, publicPath)
	}
	path, err := confine(l.root, rel)
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, publicPath)
		}
		return fmt.Errorf("stat %s: %w", publicPath, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrInvalidPath, publicPath)
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete %s: %w", publicPath, err)
	}
	l.logger.Info().Str("path", publicPath).Msg("iq file deleted")
	return nil
}
