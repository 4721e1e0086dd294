// Package media stores uploaded photographs and recordings as opaque blobs.
package media

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// MediaType categorizes stored media.
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeAudio MediaType = "audio"
)

// Valid reports whether t is a media type that can be ingested.
func (t MediaType) Valid() bool {
	return t == MediaTypeImage || t == MediaTypeAudio
}

// ErrNotFound is returned when a blob does not exist.
var ErrNotFound = errors.New("media not found")

// StoredMedia describes a persisted blob.
type StoredMedia struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	MimeType  string    `json:"mime_type"`
	Type      MediaType `json:"type"`
	Size      int64     `json:"size"`
	Digest    string    `json:"digest"`
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
}

// SaveRequest contains data for storing a blob.
type SaveRequest struct {
	Data     []byte
	Filename string
	MimeType string
	Type     MediaType
}

// Store is the blob storage abstraction used by ingestion and the sweeper.
type Store interface {
	// Save persists data under a fresh opaque path.
	Save(ctx context.Context, req SaveRequest) (*StoredMedia, error)

	// Open returns the blob stored under the given opaque path.
	Open(ctx context.Context, mediaPath string) (io.ReadCloser, *StoredMedia, error)

	// Delete removes a blob by ID.
	Delete(ctx context.Context, id string) error

	// List returns all blobs, oldest first.
	List(ctx context.Context) ([]*StoredMedia, error)
}

// StoreConfig configures FileSystemStore.
type StoreConfig struct {
	BaseDir       string `yaml:"base_dir" json:"base_dir"`
	BaseURL       string `yaml:"base_url" json:"base_url"`
	MaxUploadSize int64  `yaml:"max_upload_size" json:"max_upload_size"`
}

// DefaultStoreConfig returns default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		BaseDir:       "./data/media",
		BaseURL:       "/media",
		MaxUploadSize: DefaultMaxUploadSize,
	}
}

// FileSystemStore implements Store on the local filesystem. Every blob is
// written as <id><ext> with a meta/<id>.json sidecar.
type FileSystemStore struct {
	config    StoreConfig
	logger    *slog.Logger
	mu        sync.RWMutex
	metaCache map[string]*StoredMedia
}

// NewFileSystemStore creates a new filesystem-based blob store.
func NewFileSystemStore(cfg StoreConfig, logger *slog.Logger) *FileSystemStore {
	if logger == nil {
		logger = slog.Default()
	}

	defaults := DefaultStoreConfig()
	if cfg.BaseDir == "" {
		cfg.BaseDir = defaults.BaseDir
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaults.BaseURL
	}
	cfg.BaseURL = "/" + strings.Trim(cfg.BaseURL, "/")
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = defaults.MaxUploadSize
	}

	return &FileSystemStore{
		config:    cfg,
		logger:    logger.With("component", "media-store"),
		metaCache: make(map[string]*StoredMedia),
	}
}

// BaseURL returns the normalized URL prefix of every saved media path.
func (s *FileSystemStore) BaseURL() string {
	return s.config.BaseURL
}

// EnsureDir creates the storage directories if they don't exist.
func (s *FileSystemStore) EnsureDir() error {
	for _, dir := range []string{s.config.BaseDir, s.metaDir()} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}
	return nil
}

// Save stores the blob and returns its metadata. The blob file is written
// before its sidecar, and removed again if the sidecar cannot be written.
func (s *FileSystemStore) Save(ctx context.Context, req SaveRequest) (*StoredMedia, error) {
	if len(req.Data) == 0 {
		return nil, errors.New("no data provided")
	}
	if int64(len(req.Data)) > s.config.MaxUploadSize {
		return nil, fmt.Errorf("file size %d exceeds maximum %d", len(req.Data), s.config.MaxUploadSize)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	id := uuid.New().String()
	sum := blake2b.Sum256(req.Data)

	filename := sanitizeFilename(req.Filename)
	if filename == "" {
		filename = "file"
	}
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !IsAllowedExtension(ext) {
		if byMime := extFromMIME(req.MimeType); byMime != "" {
			ext = byMime
		}
	}

	blob := &StoredMedia{
		ID:        id,
		Filename:  filename,
		MimeType:  req.MimeType,
		Type:      req.Type,
		Size:      int64(len(req.Data)),
		Digest:    hex.EncodeToString(sum[:]),
		Path:      path.Join(s.config.BaseURL, id+ext),
		CreatedAt: time.Now().UTC(),
	}

	if err := s.EnsureDir(); err != nil {
		return nil, err
	}

	dataPath := filepath.Join(s.config.BaseDir, id+ext)
	if err := os.WriteFile(dataPath, req.Data, 0600); err != nil {
		return nil, fmt.Errorf("writing data file: %w", err)
	}

	metaData, err := json.Marshal(blob)
	if err != nil {
		os.Remove(dataPath)
		return nil, fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(id), metaData, 0600); err != nil {
		os.Remove(dataPath)
		return nil, fmt.Errorf("writing metadata file: %w", err)
	}

	s.mu.Lock()
	s.metaCache[id] = blob
	s.mu.Unlock()

	s.logger.Debug("media saved",
		"id", id,
		"filename", filename,
		"type", blob.Type,
		"size", blob.Size,
	)

	return blob, nil
}

// Open returns the blob stored under mediaPath, which may be either the
// full opaque path returned by Save or its base name.
func (s *FileSystemStore) Open(ctx context.Context, mediaPath string) (io.ReadCloser, *StoredMedia, error) {
	id, err := s.idFromPath(mediaPath)
	if err != nil {
		return nil, nil, err
	}

	blob, err := s.getMeta(id)
	if err != nil {
		return nil, nil, err
	}

	file, err := os.Open(filepath.Join(s.config.BaseDir, path.Base(blob.Path)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, blob, fmt.Errorf("%w: %s", ErrNotFound, mediaPath)
		}
		return nil, blob, fmt.Errorf("opening data file: %w", err)
	}
	return file, blob, nil
}

// Delete removes a blob and its sidecar by ID.
func (s *FileSystemStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return errors.New("id is required")
	}

	blob, err := s.getMeta(id)
	if err != nil {
		return err
	}

	dataPath := filepath.Join(s.config.BaseDir, path.Base(blob.Path))
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("deleting data file: %w", err)
	}
	if err := os.Remove(s.metaPath(id)); err != nil && !os.IsNotExist(err) {
		s.logger.Warn("failed to delete metadata file", "id", id, "error", err)
	}

	s.mu.Lock()
	delete(s.metaCache, id)
	s.mu.Unlock()

	s.logger.Debug("media deleted", "id", id)
	return nil
}

// List returns every stored blob, oldest first.
func (s *FileSystemStore) List(ctx context.Context) ([]*StoredMedia, error) {
	entries, err := os.ReadDir(s.metaDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading meta directory: %w", err)
	}

	var results []*StoredMedia
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		blob, err := s.getMeta(strings.TrimSuffix(entry.Name(), ".json"))
		if err != nil {
			s.logger.Warn("skipping unreadable sidecar", "file", entry.Name(), "error", err)
			continue
		}
		results = append(results, blob)
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].CreatedAt.Before(results[j].CreatedAt)
	})
	return results, nil
}

// idFromPath maps an opaque media path back to the blob ID.
func (s *FileSystemStore) idFromPath(mediaPath string) (string, error) {
	base := path.Base(mediaPath)
	id := strings.TrimSuffix(base, path.Ext(base))
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("%w: %s", ErrNotFound, mediaPath)
	}
	return id, nil
}

func (s *FileSystemStore) metaDir() string {
	return filepath.Join(s.config.BaseDir, "meta")
}

func (s *FileSystemStore) metaPath(id string) string {
	return filepath.Join(s.metaDir(), id+".json")
}

// getMeta retrieves metadata from cache or file.
func (s *FileSystemStore) getMeta(id string) (*StoredMedia, error) {
	s.mu.RLock()
	if blob, ok := s.metaCache[id]; ok {
		s.mu.RUnlock()
		return blob, nil
	}
	s.mu.RUnlock()

	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("reading metadata: %w", err)
	}

	var blob StoredMedia
	if err := json.Unmarshal(data, &blob); err != nil {
		return nil, fmt.Errorf("parsing metadata: %w", err)
	}

	s.mu.Lock()
	s.metaCache[id] = &blob
	s.mu.Unlock()

	return &blob, nil
}

// sanitizeFilename removes path components and control characters.
func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	if name == "." || name == "/" {
		return ""
	}

	var result strings.Builder
	for _, r := range name {
		if r >= 32 && r != 127 {
			result.WriteRune(r)
		}
	}

	sanitized := result.String()
	if len(sanitized) > 255 {
		ext := filepath.Ext(sanitized)
		sanitized = sanitized[:255-len(ext)] + ext
	}
	return sanitized
}

// extFromMIME returns a file extension for the accepted MIME types.
func extFromMIME(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/jpeg"):
		return ".jpg"
	case strings.HasPrefix(mime, "image/png"):
		return ".png"
	case strings.HasPrefix(mime, "image/gif"):
		return ".gif"
	case strings.HasPrefix(mime, "image/webp"):
		return ".webp"
	case strings.HasPrefix(mime, "image/tiff"):
		return ".tiff"
	case strings.HasPrefix(mime, "image/bmp"):
		return ".bmp"
	case strings.HasPrefix(mime, "audio/mpeg"), strings.HasPrefix(mime, "audio/mp3"):
		return ".mp3"
	case strings.HasPrefix(mime, "audio/ogg"):
		return ".ogg"
	case strings.HasPrefix(mime, "audio/wav"), strings.HasPrefix(mime, "audio/x-wav"):
		return ".wav"
	case strings.HasPrefix(mime, "audio/flac"), strings.HasPrefix(mime, "audio/x-flac"):
		return ".flac"
	case strings.HasPrefix(mime, "audio/mp4"), strings.HasPrefix(mime, "audio/x-m4a"):
		return ".m4a"
	case strings.HasPrefix(mime, "audio/webm"):
		return ".weba"
	default:
		return ""
	}
}
