package library

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/renameio/v2"
	"github.com/rs/zerolog"
)

const mediaMaxUploadBytes = 10 << 20 // 10 MB

var mediaMimeTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".svg":  "image/svg+xml",
}

// MediaFile is one library entry with its display metadata.
type MediaFile struct {
	Filename string  `json:"filename"`
	Path     string  `json:"path"`
	Size     int64   `json:"size"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Modified float64 `json:"modified"`
	MimeType string  `json:"mime_type"`
}

// MediaLibrary serves image files under <root>/library.
type MediaLibrary struct {
	root   string
	logger zerolog.Logger
}

func NewMediaLibrary(root string, logger zerolog.Logger) *MediaLibrary {
	return &MediaLibrary{root: root, logger: logger}
}

// Root returns the media root directory.
func (m *MediaLibrary) Root() string {
	return m.root
}

// EnsureDirs creates the library directory tree.
func (m *MediaLibrary) EnsureDirs() error {
	return os.MkdirAll(filepath.Join(m.root, "library"), 0o755)
}

// List walks the library recursively and returns supported image files
// sorted by filename.
func (m *MediaLibrary) List() ([]MediaFile, error) {
	libraryDir := filepath.Join(m.root, "library")
	if _, err := os.Stat(libraryDir); os.IsNotExist(err) {
		return []MediaFile{}, nil
	}

	var out []MediaFile
	err := filepath.WalkDir(libraryDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := strings.ToLower(filepath.Ext(d.Name()))
		mime, ok := mediaMimeTypes[ext]
		if !ok {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(m.root, path)
		if err != nil {
			return nil
		}

		entry := MediaFile{
			Filename: d.Name(),
			Path:     "/media/" + filepath.ToSlash(rel),
			Size:     info.Size(),
			Modified: float64(info.ModTime().UnixMilli()) / 1000,
			MimeType: mime,
		}
		if ext != ".svg" {
			if w, h, err := imageDimensions(path); err == nil {
				entry.Width, entry.Height = w, h
			}
		}
		out = append(out, entry)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan media library: %w", err)
	}

	sort.Slice(out, func(a, b int) bool { return out[a].Filename < out[b].Filename })
	if out == nil {
		out = []MediaFile{}
	}
	return out, nil
}

func imageDimensions(path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = f.Close() }()
	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, err
	}
	return cfg.Width, cfg.Height, nil
}

// Save validates and stores an uploaded file, auto-renaming on conflicts.
func (m *MediaLibrary) Save(filename string, content []byte) (MediaFile, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	mime, ok := mediaMimeTypes[ext]
	if !ok {
		return MediaFile{}, fmt.Errorf("%w: unsupported file type %s", ErrRejected, ext)
	}
	if len(content) > mediaMaxUploadBytes {
		return MediaFile{}, fmt.Errorf("%w: %s exceeds %d MB limit", ErrRejected, filename, mediaMaxUploadBytes>>20)
	}
	if ext != ".svg" {
		if _, _, err := image.DecodeConfig(bytes.NewReader(content)); err != nil {
			return MediaFile{}, fmt.Errorf("%w: %s is not a decodable image", ErrRejected, filename)
		}
	}

	libraryDir := filepath.Join(m.root, "library")
	if err := os.MkdirAll(libraryDir, 0o755); err != nil {
		return MediaFile{}, fmt.Errorf("create library dir: %w", err)
	}

	final := uniqueName(libraryDir, sanitizeFilename(filename))
	path := filepath.Join(libraryDir, final)
	if err := renameio.WriteFile(path, content, 0o644); err != nil {
		return MediaFile{}, fmt.Errorf("write %s: %w", final, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return MediaFile{}, fmt.Errorf("stat %s: %w", final, err)
	}

	entry := MediaFile{
		Filename: final,
		Path:     "/media/library/" + final,
		Size:     info.Size(),
		Modified: float64(info.ModTime().UnixMilli()) / 1000,
		MimeType: mime,
	}
	if ext != ".svg" {
		if w, h, err := imageDimensions(path); err == nil {
			entry.Width, entry.Height = w, h
		}
	}
	m.logger.Info().Str("file", final).Int("bytes", len(content)).Msg("media file stored")
	return entry, nil
}

// Delete removes a file addressed by its public path (/media/library/...).
func (m *MediaLibrary) Delete(publicPath string) error {
	rel, ok := strings.CutPrefix(publicPath, "/media/library/")
	if !ok || rel == "" {
		return fmt.Errorf("%w: %s", ErrInvalidPath, publicPath)
	}
	path, err := confine(filepath.Join(m.root, "library"), rel)
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
	m.logger.Info().Str("path", publicPath).Msg("media file deleted")
	return nil
}

// uniqueName appends -1, -2, ... until the name is free in dir.
func uniqueName(dir, name string) string {
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	candidate := name
	for counter := 1; ; counter++ {
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
		candidate = fmt.Sprintf("%s-%d%s", base, counter, ext)
	}
}
