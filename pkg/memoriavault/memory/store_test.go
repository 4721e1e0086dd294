package memory

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

func floatPtr(v float64) *float64 { return &v }

func newRecord(title, text string) *Record {
	return &Record{
		Title:     title,
		Text:      text,
		MediaPath: "/media/" + title + ".jpg",
		MediaType: media.MediaTypeImage,
	}
}

// storeFactories runs every contract test against each Store backend.
func storeFactories() map[string]func(t *testing.T) Store {
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store {
			return NewMemStore(nil)
		},
		"sqlite": func(t *testing.T) Store {
			s, err := OpenSQLite(SQLiteConfig{Path: filepath.Join(t.TempDir(), "test.db")}, nil)
			if err != nil {
				t.Fatalf("Setup failed: %v", err)
			}
			t.Cleanup(func() { s.Close() })
			return s
		},
	}
}

func TestStore_CommitAndGet(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			rec := newRecord("Grandma on the farm", "Summer of 1954")
			rec.CapturedDate = "1954-06-12"
			rec.Location = "GPS: 45.500000, -73.560000"
			rec.Person = "Grandma"
			rec.Sentiment = floatPtr(0.42)

			if err := store.Commit(ctx, rec); err != nil {
				t.Fatalf("Commit() error = %v", err)
			}
			if rec.ID == 0 || rec.CreatedAt.IsZero() {
				t.Fatalf("Commit() did not assign id/timestamps: %+v", rec)
			}

			got, err := store.Get(ctx, rec.ID)
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got.Title != rec.Title || got.Text != rec.Text || got.CapturedDate != "1954-06-12" ||
				got.Location != rec.Location || got.Person != "Grandma" || got.MediaPath != rec.MediaPath {
				t.Errorf("Get() = %+v, want %+v", got, rec)
			}
			if got.Sentiment == nil || *got.Sentiment != 0.42 {
				t.Errorf("Get() sentiment = %v, want 0.42", got.Sentiment)
			}
			if !got.CreatedAt.Equal(rec.CreatedAt) {
				t.Errorf("Get() created_at = %v, want %v", got.CreatedAt, rec.CreatedAt)
			}

			if _, err := store.Get(ctx, rec.ID+100); !errors.Is(err, ErrNotFound) {
				t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
			}
		})
	}
}

func TestStore_CommitRejectsInvalid(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			tests := []struct {
				name string
				rec  *Record
			}{
				{"nil", nil},
				{"blank title", newRecord("  ", "text")},
				{"bad media type", &Record{Title: "x", MediaPath: "/media/x", MediaType: "video"}},
				{"no media path", &Record{Title: "x", MediaType: media.MediaTypeAudio}},
				{"sentiment out of range", &Record{Title: "x", MediaPath: "/m", MediaType: media.MediaTypeAudio, Sentiment: floatPtr(1.5)}},
			}
			for _, tt := range tests {
				if err := store.Commit(context.Background(), tt.rec); !errors.Is(err, ErrInvalidRecord) {
					t.Errorf("%s: Commit() error = %v, want ErrInvalidRecord", tt.name, err)
				}
			}
			if stats, _ := store.Stats(context.Background()); stats.Total != 0 {
				t.Errorf("invalid commits left %d records", stats.Total)
			}
		})
	}
}

func TestStore_QueryAndRemove(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			a := newRecord("Grandma on the farm", "")
			b := newRecord("Wedding", "grandma danced")
			b.Person = "Rose"
			c := newRecord("Harbor", "boats at dawn")
			for _, r := range []*Record{a, b, c} {
				if err := store.Commit(ctx, r); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			hits, err := store.Query(ctx, []QueryTerm{{Text: "grandma"}})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(hits) != 2 || hits[0].ID != b.ID || hits[1].ID != a.ID {
				t.Fatalf("Query() ids = %v, want [%d %d]", hitIDs(hits), b.ID, a.ID)
			}
			if !hits[1].InField(FieldTitle) || hits[0].InField(FieldTitle) {
				t.Errorf("Query() field attribution wrong: %+v", hits)
			}

			hits, _ = store.Query(ctx, []QueryTerm{{Text: "ros", Prefix: true}})
			if len(hits) != 1 || hits[0].ID != b.ID || !hits[0].InField(FieldPerson) {
				t.Errorf("prefix Query() = %+v, want person match on %d", hits, b.ID)
			}

			if err := store.Remove(ctx, a.ID); err != nil {
				t.Fatalf("Remove() error = %v", err)
			}
			if err := store.Remove(ctx, a.ID); !errors.Is(err, ErrNotFound) {
				t.Errorf("second Remove() error = %v, want ErrNotFound", err)
			}
			hits, _ = store.Query(ctx, []QueryTerm{{Text: "farm"}})
			if len(hits) != 0 {
				t.Errorf("removed record still searchable: %v", hitIDs(hits))
			}

			ref, err := store.MediaReferenced(ctx, c.MediaPath)
			if err != nil || !ref {
				t.Errorf("MediaReferenced(%q) = %v, %v; want true", c.MediaPath, ref, err)
			}
			ref, _ = store.MediaReferenced(ctx, a.MediaPath)
			if ref {
				t.Errorf("MediaReferenced() true for removed record")
			}
		})
	}
}

func TestStore_ListNewestFirst(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			var ids []int64
			for i := 0; i < 5; i++ {
				r := newRecord(fmt.Sprintf("memory %d", i), "")
				if err := store.Commit(ctx, r); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
				ids = append(ids, r.ID)
				time.Sleep(time.Millisecond)
			}

			page, err := store.List(ctx, 2, 1)
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(page) != 2 || page[0].ID != ids[3] || page[1].ID != ids[2] {
				t.Errorf("List(2, 1) = %v, want ids %d, %d", page, ids[3], ids[2])
			}

			all, _ := store.List(ctx, 0, 0)
			if len(all) != 5 || all[0].ID != ids[4] {
				t.Errorf("List(0, 0) returned %d records, want 5 starting at %d", len(all), ids[4])
			}

			empty, err := store.List(ctx, 10, 50)
			if err != nil || len(empty) != 0 {
				t.Errorf("List() past the end = %v, %v", empty, err)
			}
		})
	}
}

func TestStore_Stats(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			img := newRecord("a", "")
			img.Sentiment = floatPtr(0.5)
			aud := newRecord("b", "")
			aud.MediaType = media.MediaTypeAudio
			aud.Sentiment = floatPtr(-0.2)
			none := newRecord("c", "")
			for _, r := range []*Record{img, aud, none} {
				if err := store.Commit(ctx, r); err != nil {
					t.Fatalf("Setup failed: %v", err)
				}
			}

			stats, err := store.Stats(ctx)
			if err != nil {
				t.Fatalf("Stats() error = %v", err)
			}
			if stats.Total != 3 || stats.ByMediaType[media.MediaTypeImage] != 2 || stats.ByMediaType[media.MediaTypeAudio] != 1 {
				t.Errorf("Stats() = %+v", stats)
			}
			if stats.AverageSentiment == nil || *stats.AverageSentiment != 0.15 {
				t.Errorf("Stats() average = %v, want 0.15", stats.AverageSentiment)
			}
		})
	}
}

func TestStore_ConcurrentCommits(t *testing.T) {
	for name, factory := range storeFactories() {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			ctx := context.Background()

			const n = 20
			var wg sync.WaitGroup
			ids := make(chan int64, n)
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					r := newRecord(fmt.Sprintf("batch item%d", i), "shared words")
					if err := store.Commit(ctx, r); err != nil {
						errs <- err
						return
					}
					ids <- r.ID
				}(i)
			}
			wg.Wait()
			close(ids)
			close(errs)

			for err := range errs {
				t.Fatalf("Commit() error = %v", err)
			}
			seen := map[int64]bool{}
			for id := range ids {
				if seen[id] {
					t.Fatalf("duplicate id %d", id)
				}
				seen[id] = true
			}

			hits, err := store.Query(ctx, []QueryTerm{{Text: "shared"}})
			if err != nil {
				t.Fatalf("Query() error = %v", err)
			}
			if len(hits) != n {
				t.Errorf("Query() returned %d hits, want %d", len(hits), n)
			}
		})
	}
}

func TestMemStore_CancelledCommitIsInvisible(t *testing.T) {
	store := NewMemStore(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := newRecord("never stored", "ghost")
	if err := store.Commit(ctx, rec); !errors.Is(err, context.Canceled) {
		t.Fatalf("Commit() error = %v, want context.Canceled", err)
	}
	if hits, _ := store.Query(context.Background(), []QueryTerm{{Text: "ghost"}}); len(hits) != 0 {
		t.Errorf("cancelled commit is searchable: %v", hitIDs(hits))
	}
	if store.index.Len() != 0 {
		t.Errorf("cancelled commit left %d indexed records", store.index.Len())
	}
}

func TestMemStore_UnpublishedPostingsAreFiltered(t *testing.T) {
	store := NewMemStore(nil)
	// Postings written but record not yet published, as mid-commit.
	store.index.Add(99, Document{FieldTitle: "pending"})

	if hits, _ := store.Query(context.Background(), []QueryTerm{{Text: "pending"}}); len(hits) != 0 {
		t.Errorf("unpublished record returned by Query: %v", hitIDs(hits))
	}
}
