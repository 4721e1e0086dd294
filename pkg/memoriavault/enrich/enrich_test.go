package enrich

import (
	"context"
	"errors"
	"testing"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/extract"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

func fixedMetadata(md extract.Metadata, err error) extract.MetadataExtractor {
	return extract.MetadataExtractorFunc(func(context.Context, []byte, media.MediaType) (extract.Metadata, error) {
		return md, err
	})
}

func TestEnricher_Enrich(t *testing.T) {
	failure := errors.New("corrupt exif")

	tests := []struct {
		name      string
		extractor extract.MetadataExtractor
		hint      string
		want      Fields
		wantErr   bool
	}{
		{
			name:      "metadata wins over hint",
			extractor: fixedMetadata(extract.Metadata{Date: "1954:06:12 10:30:00", Location: "GPS: 1.000000, 2.000000"}, nil),
			hint:      "2000-01-01",
			want:      Fields{CapturedDate: "1954-06-12", Location: "GPS: 1.000000, 2.000000"},
		},
		{
			name:      "hint when metadata has no date",
			extractor: fixedMetadata(extract.Metadata{}, nil),
			hint:      "1954-06-12",
			want:      Fields{CapturedDate: "1954-06-12"},
		},
		{
			name:      "hint when metadata fails",
			extractor: fixedMetadata(extract.Metadata{Date: "1999-01-01"}, failure),
			hint:      "1954-06-12",
			want:      Fields{CapturedDate: "1954-06-12"},
			wantErr:   true,
		},
		{
			name:      "hint when metadata date is garbage",
			extractor: fixedMetadata(extract.Metadata{Date: "0000:00:00 00:00:00"}, nil),
			hint:      "1954/06/12",
			want:      Fields{CapturedDate: "1954-06-12"},
		},
		{
			name: "absent when neither",
			want: Fields{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := New(tt.extractor).Enrich(context.Background(), []byte("x"), media.MediaTypeImage, tt.hint)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Enrich() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Enrich() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"", "", false},
		{"1954-06-12", "1954-06-12", false},
		{" 1954:06:12 ", "1954-06-12", false},
		{"1954-06-12T08:00:00Z", "1954-06-12", false},
		{"June 1954", "", true},
		{"1954-13-40", "", true},
	}
	for _, tt := range tests {
		got, err := NormalizeDate(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("NormalizeDate(%q) = %q, %v; want %q, wantErr %v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
}
