package media

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileSystemStore_Save(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := StoreConfig{
		BaseDir:       filepath.Join(tmpDir, "media"),
		MaxUploadSize: 1024,
	}
	store := NewFileSystemStore(cfg, nil)
	ctx := context.Background()

	tests := []struct {
		name    string
		req     SaveRequest
		wantExt string
		wantErr bool
	}{
		{
			name: "save image",
			req: SaveRequest{
				Data:     []byte("fake image data"),
				Filename: "grandma.png",
				MimeType: "image/png",
				Type:     MediaTypeImage,
			},
			wantExt: ".png",
		},
		{
			name: "save audio without extension",
			req: SaveRequest{
				Data:     []byte("fake audio data"),
				Filename: "recording",
				MimeType: "audio/mpeg",
				Type:     MediaTypeAudio,
			},
			wantExt: ".mp3",
		},
		{
			name: "path components are stripped",
			req: SaveRequest{
				Data:     []byte("fake image data"),
				Filename: "../../etc/passwd.jpg",
				MimeType: "image/jpeg",
				Type:     MediaTypeImage,
			},
			wantExt: ".jpg",
		},
		{
			name:    "empty data should fail",
			req:     SaveRequest{Data: []byte{}, Filename: "empty.png"},
			wantErr: true,
		},
		{
			name:    "oversized data should fail",
			req:     SaveRequest{Data: make([]byte, 2048), Filename: "big.png"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.Save(ctx, tt.req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Save() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if !strings.HasPrefix(got.Path, "/media/") {
				t.Errorf("Save() path = %q, want /media/ prefix", got.Path)
			}
			if filepath.Ext(got.Path) != tt.wantExt {
				t.Errorf("Save() ext = %q, want %q", filepath.Ext(got.Path), tt.wantExt)
			}
			if strings.Contains(got.Filename, "/") {
				t.Errorf("Save() filename not sanitized: %q", got.Filename)
			}
			if len(got.Digest) != 64 {
				t.Errorf("Save() digest length = %d, want 64", len(got.Digest))
			}
		})
	}
}

func TestFileSystemStore_OpenRoundTrip(t *testing.T) {
	store := NewFileSystemStore(StoreConfig{BaseDir: t.TempDir()}, nil)
	ctx := context.Background()

	saved, err := store.Save(ctx, SaveRequest{
		Data:     []byte("hello blob"),
		Filename: "note.wav",
		MimeType: "audio/wav",
		Type:     MediaTypeAudio,
	})
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}

	// A fresh store must read the sidecar from disk.
	reopened := NewFileSystemStore(StoreConfig{BaseDir: store.config.BaseDir}, nil)
	rc, meta, err := reopened.Open(ctx, saved.Path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("ReadAll() error = %v", err)
	}
	if string(data) != "hello blob" {
		t.Errorf("Open() data = %q", data)
	}
	if meta.ID != saved.ID || meta.Type != MediaTypeAudio {
		t.Errorf("Open() meta = %+v, want id %s", meta, saved.ID)
	}
}

func TestFileSystemStore_OpenUnknown(t *testing.T) {
	store := NewFileSystemStore(StoreConfig{BaseDir: t.TempDir()}, nil)

	for _, p := range []string{"/media/not-a-uuid.png", "/media/3f1c1bb0-4a39-4f57-9d0e-8d7a3f4e2b10.png", "../../secret"} {
		if _, _, err := store.Open(context.Background(), p); !errors.Is(err, ErrNotFound) {
			t.Errorf("Open(%q) error = %v, want ErrNotFound", p, err)
		}
	}
}

func TestFileSystemStore_DeleteAndList(t *testing.T) {
	store := NewFileSystemStore(StoreConfig{BaseDir: t.TempDir()}, nil)
	ctx := context.Background()

	var ids []string
	for _, name := range []string{"a.png", "b.png", "c.mp3"} {
		m, err := store.Save(ctx, SaveRequest{Data: []byte(name), Filename: name, Type: MediaTypeImage})
		if err != nil {
			t.Fatalf("Setup failed: %v", err)
		}
		ids = append(ids, m.ID)
	}

	all, err := store.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("List() returned %d items, want 3", len(all))
	}

	if err := store.Delete(ctx, ids[1]); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := store.Delete(ctx, ids[1]); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}

	all, _ = store.List(ctx)
	if len(all) != 2 {
		t.Errorf("List() after delete returned %d items, want 2", len(all))
	}
	for _, m := range all {
		if m.ID == ids[1] {
			t.Errorf("deleted blob %s still listed", m.ID)
		}
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"photo.jpg", "photo.jpg"},
		{"/abs/path/photo.jpg", "photo.jpg"},
		{`C:\Users\me\scan.png`, "scan.png"},
		{"bad\x00name.png", "badname.png"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.input); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}
