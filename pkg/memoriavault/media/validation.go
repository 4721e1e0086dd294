package media

import (
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"slices"
	"strings"
)

// DefaultMaxUploadSize is the upload cap applied when none is configured.
const DefaultMaxUploadSize int64 = 20 * 1024 * 1024 // 20MB

// ErrInvalid marks uploads rejected by the Validator.
var ErrInvalid = errors.New("invalid upload")

// AllowedMimeTypes defines permitted MIME types for each media category.
var AllowedMimeTypes = map[MediaType][]string{
	MediaTypeImage: {
		"image/jpeg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/tiff",
		"image/bmp",
	},
	MediaTypeAudio: {
		"audio/mpeg",
		"audio/mp3",
		"audio/ogg",
		"audio/wav",
		"audio/x-wav",
		"audio/wave",
		"audio/flac",
		"audio/x-flac",
		"audio/webm",
		"audio/mp4",
		"audio/x-m4a",
		"video/ogg", // OGG can be audio or video
	},
}

// ValidationConfig contains upload limits.
type ValidationConfig struct {
	MaxUploadSize int64 `yaml:"max_upload_size" json:"max_upload_size"`
}

// ValidationResult contains validation output.
type ValidationResult struct {
	MimeType string
	Type     MediaType
	Size     int64
}

// Validator checks uploads before anything is persisted.
type Validator struct {
	config ValidationConfig
}

// NewValidator creates a new validator.
func NewValidator(config ValidationConfig) *Validator {
	if config.MaxUploadSize <= 0 {
		config.MaxUploadSize = DefaultMaxUploadSize
	}
	return &Validator{config: config}
}

// MaxUploadSize returns the effective size cap.
func (v *Validator) MaxUploadSize() int64 {
	return v.config.MaxUploadSize
}

// Validate checks presence, size, declared media type and MIME type.
// declared may be empty, in which case the type is derived from the MIME
// type. mimeType may be empty, in which case it is sniffed from the content.
func (v *Validator) Validate(data []byte, filename, mimeType string, declared MediaType) (*ValidationResult, error) {
	result := &ValidationResult{Size: int64(len(data))}

	if result.Size == 0 {
		return result, fmt.Errorf("%w: empty media", ErrInvalid)
	}
	if result.Size > v.config.MaxUploadSize {
		return result, fmt.Errorf("%w: file size %d exceeds maximum %d", ErrInvalid, result.Size, v.config.MaxUploadSize)
	}

	mimeType = normalizeMime(mimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = DetectMimeType(data, filename)
	}
	result.MimeType = mimeType

	if declared == "" {
		declared = CategorizeType(mimeType)
	}
	if !declared.Valid() {
		return result, fmt.Errorf("%w: unsupported media type %q", ErrInvalid, declared)
	}
	result.Type = declared

	if !slices.Contains(AllowedMimeTypes[declared], mimeType) {
		return result, fmt.Errorf("%w: MIME type %s is not allowed for %s", ErrInvalid, mimeType, declared)
	}
	return result, nil
}

// DetectMimeType uses http.DetectContentType and extension heuristics.
func DetectMimeType(data []byte, filename string) string {
	detected := normalizeMime(http.DetectContentType(data))
	if detected != "application/octet-stream" && detected != "text/plain" {
		return detected
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".tif", ".tiff":
		return "image/tiff"
	case ".mp3":
		return "audio/mpeg"
	case ".m4a":
		return "audio/mp4"
	case ".ogg":
		return "audio/ogg"
	case ".wav":
		return "audio/wav"
	case ".flac":
		return "audio/flac"
	case ".weba":
		return "audio/webm"
	}
	return detected
}

// CategorizeType maps a MIME type to a MediaType, or "" when the type is
// neither image nor audio.
func CategorizeType(mimeType string) MediaType {
	mimeType = normalizeMime(mimeType)
	switch {
	case strings.HasPrefix(mimeType, "image/"):
		return MediaTypeImage
	case strings.HasPrefix(mimeType, "audio/"), mimeType == "video/ogg":
		return MediaTypeAudio
	default:
		return ""
	}
}

// AllowedExtensions returns file extensions for allowed types.
func AllowedExtensions() []string {
	return []string{
		".jpg", ".jpeg", ".png", ".gif", ".webp", ".tif", ".tiff", ".bmp",
		".mp3", ".m4a", ".ogg", ".wav", ".flac", ".weba",
	}
}

// IsAllowedExtension checks if a file extension is allowed.
func IsAllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return slices.Contains(AllowedExtensions(), ext)
}

// normalizeMime strips parameters, e.g. "image/jpeg; charset=utf-8".
func normalizeMime(mimeType string) string {
	mimeType, _, _ = strings.Cut(mimeType, ";")
	return strings.ToLower(strings.TrimSpace(mimeType))
}
