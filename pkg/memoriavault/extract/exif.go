package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// FileMetadata reads capture date and GPS location from image EXIF data.
// Audio files carry no usable capture metadata and yield an empty result.
type FileMetadata struct{}

// NewFileMetadata creates the EXIF metadata extractor.
func NewFileMetadata() *FileMetadata { return &FileMetadata{} }

// ExtractMetadata implements MetadataExtractor. Images without EXIF are not
// an error; they simply yield no metadata.
func (FileMetadata) ExtractMetadata(ctx context.Context, data []byte, mediaType media.MediaType) (md Metadata, err error) {
	if mediaType != media.MediaTypeImage {
		return Metadata{}, nil
	}
	if err := ctx.Err(); err != nil {
		return Metadata{}, err
	}

	defer func() {
		if r := recover(); r != nil {
			md, err = Metadata{}, fmt.Errorf("exif: malformed data: %v", r)
		}
	}()

	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, io.EOF) || exif.IsCriticalError(err) {
			return Metadata{}, nil
		}
		// Non-critical errors still return a usable *Exif.
		if x == nil {
			return Metadata{}, nil
		}
	}

	if taken, derr := x.DateTime(); derr == nil && !taken.IsZero() {
		md.Date = taken.Format("2006-01-02")
	}
	if lat, lon, lerr := x.LatLong(); lerr == nil {
		md.Location = FormatGPS(lat, lon)
	}
	return md, nil
}

// FormatGPS renders coordinates as stored in Record.Location.
func FormatGPS(lat, lon float64) string {
	return fmt.Sprintf("GPS: %.6f, %.6f", lat, lon)
}
