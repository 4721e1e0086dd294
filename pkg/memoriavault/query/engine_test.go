package query

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	promclient "github.com/prometheus/client_golang/prometheus"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
	"github.com/jholhewres/memoriavault/pkg/memoriavault/metrics"
)

func commit(t *testing.T, store memory.Store, title, text, person string) *memory.Record {
	t.Helper()
	rec := &memory.Record{
		Title:     title,
		Text:      text,
		Person:    person,
		MediaPath: "/media/" + strings.ReplaceAll(title, " ", "-") + ".jpg",
		MediaType: media.MediaTypeImage,
	}
	if err := store.Commit(context.Background(), rec); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return rec
}

func newEngine(t *testing.T, store memory.Store, cfg Config) *Engine {
	t.Helper()
	m, err := metrics.New("test", promclient.NewRegistry())
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	e, err := NewEngine(store, cfg, m, nil)
	if err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	return e
}

func ids(results []Result) []int64 {
	out := make([]int64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}

func TestSearch_GrandmaLetter(t *testing.T) {
	store := memory.NewMemStore(nil)
	rec := &memory.Record{
		Title:        "Grandma Letter",
		Text:         "Dear grandma, the monsoon came early this year.",
		CapturedDate: "1954-06-12",
		Location:     "Bengaluru",
		Sentiment:    func() *float64 { v := 0.12; return &v }(),
		MediaPath:    "/media/letter.jpg",
		MediaType:    media.MediaTypeImage,
	}
	if err := store.Commit(context.Background(), rec); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	e := newEngine(t, store, Config{})

	results, err := e.Search(context.Background(), "grandma")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Search() = %d results, want 1", len(results))
	}
	got := results[0]
	if got.ID != rec.ID || got.Title != "Grandma Letter" || got.Date != "1954-06-12" {
		t.Errorf("Search() result = %+v", got)
	}
	if got.Sentiment == nil || *got.Sentiment != 0.12 {
		t.Errorf("sentiment = %v, want 0.12", got.Sentiment)
	}
	if !strings.Contains(got.Snippet, "Dear <mark>grandma</mark>,") {
		t.Errorf("snippet = %q, want highlighted grandma", got.Snippet)
	}
}

func TestSearch_EmptyQuery(t *testing.T) {
	store := memory.NewMemStore(nil)
	commit(t, store, "anything", "", "")
	e := newEngine(t, store, Config{})

	for _, q := range []string{"", "   ", "!!! ---", "*"} {
		results, err := e.Search(context.Background(), q)
		if err != nil {
			t.Errorf("Search(%q) error = %v, want nil", q, err)
		}
		if results == nil || len(results) != 0 {
			t.Errorf("Search(%q) = %v, want empty non-nil", q, results)
		}
	}
}

func TestSearch_NoMatch(t *testing.T) {
	store := memory.NewMemStore(nil)
	commit(t, store, "Beach day", "sand and sun", "")
	e := newEngine(t, store, Config{})

	results, err := e.Search(context.Background(), "mountain")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Search() = %+v, want none", results)
	}
}

func TestSearch_RanksTitleMatchesFirst(t *testing.T) {
	store := memory.NewMemStore(nil)
	titleOld := commit(t, store, "Wedding photos", "", "")
	textA := commit(t, store, "Church", "after the wedding we danced", "")
	personB := commit(t, store, "Reception", "cake", "wedding planner")
	titleNew := commit(t, store, "Wedding cake", "three tiers", "")
	commit(t, store, "Unrelated", "nothing here", "")

	e := newEngine(t, store, Config{})
	results, err := e.Search(context.Background(), "WEDDING")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}

	want := []int64{titleNew.ID, titleOld.ID, personB.ID, textA.ID}
	if got := ids(results); !reflect.DeepEqual(got, want) {
		t.Errorf("Search() order = %v, want %v", got, want)
	}
}

func TestSearch_Deterministic(t *testing.T) {
	store := memory.NewMemStore(nil)
	for _, title := range []string{"summer one", "summer two", "summer three", "winter"} {
		commit(t, store, title, "a summer memory", "")
	}
	e := newEngine(t, store, Config{})

	first, err := e.Search(context.Background(), "summer")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	second, err := e.Search(context.Background(), "summer")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated search differs:\n%+v\n%+v", first, second)
	}
}

func TestSearch_MaxResults(t *testing.T) {
	store := memory.NewMemStore(nil)
	for i := 0; i < 5; i++ {
		commit(t, store, "album", "", "")
	}
	e := newEngine(t, store, Config{MaxResults: 3})

	results, err := e.Search(context.Background(), "album")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 3 {
		t.Errorf("Search() = %d results, want 3", len(results))
	}
}

func TestSearch_PrefixAndFallbackSnippet(t *testing.T) {
	store := memory.NewMemStore(nil)
	rec := commit(t, store, "Grandpa fishing", "", "")
	e := newEngine(t, store, Config{HighlightOpen: "[", HighlightClose: "]"})

	results, err := e.Search(context.Background(), "gran*")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 1 || results[0].ID != rec.ID {
		t.Fatalf("Search(gran*) = %+v", results)
	}
	if results[0].Snippet != "[Grandpa] fishing" {
		t.Errorf("snippet = %q, want title fallback", results[0].Snippet)
	}
}

func TestSearch_SkipsVanishedRecords(t *testing.T) {
	store := memory.NewMemStore(nil)
	gone := commit(t, store, "old negative", "", "")
	kept := commit(t, store, "new negative", "", "")
	if err := store.Remove(context.Background(), gone.ID); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	e := newEngine(t, store, Config{})

	results, err := e.Search(context.Background(), "negative")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if got := ids(results); !reflect.DeepEqual(got, []int64{kept.ID}) {
		t.Errorf("Search() = %v, want only %d", got, kept.ID)
	}
}

type flakyStore struct {
	*memory.MemStore
}

func (flakyStore) Get(context.Context, int64) (*memory.Record, error) {
	return nil, errors.New("disk I/O error")
}

func TestSearch_HydrationError(t *testing.T) {
	mem := memory.NewMemStore(nil)
	commit(t, mem, "letter", "", "")
	e := newEngine(t, flakyStore{mem}, Config{})

	if _, err := e.Search(context.Background(), "letter"); err == nil {
		t.Error("Search() error = nil, want hydration error")
	}
}

func TestEngine_GetReturnsCopy(t *testing.T) {
	store := memory.NewMemStore(nil)
	rec := commit(t, store, "Postcard", "from Lisbon", "")
	e := newEngine(t, store, Config{})

	got, err := e.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	got.Title = "changed"

	again, err := e.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if again.Title != "Postcard" {
		t.Errorf("cached record mutated: %q", again.Title)
	}
	if _, err := e.Get(context.Background(), rec.ID+1); !errors.Is(err, memory.ErrNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrNotFound", err)
	}
}

func TestSearch_IndicScripts(t *testing.T) {
	store := memory.NewMemStore(nil)
	diary := commit(t, store, "Diary", "आज का दिन अच्छा था", "")
	letter := commit(t, store, "Letter", "नमस्ते दादी, ಬೆಂಗಳೂರು से प्यार", "")
	e := newEngine(t, store, Config{})

	tests := []struct {
		query   string
		want    []int64
		snippet string
	}{
		{"दादी", []int64{letter.ID}, "नमस्ते <mark>दादी</mark>, ಬೆಂಗಳೂರು से प्यार"},
		{"ಬೆಂಗಳೂರು", []int64{letter.ID}, "नमस्ते दादी, <mark>ಬೆಂಗಳೂರು</mark> से प्यार"},
		{"दिन", []int64{diary.ID}, "आज का <mark>दिन</mark> अच्छा था"},
		{"द", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			results, err := e.Search(context.Background(), tt.query)
			if err != nil {
				t.Fatalf("Search(%q) error = %v", tt.query, err)
			}
			if got := ids(results); len(got) != len(tt.want) || (len(got) > 0 && !reflect.DeepEqual(got, tt.want)) {
				t.Fatalf("Search(%q) = %v, want %v", tt.query, got, tt.want)
			}
			if len(results) > 0 && results[0].Snippet != tt.snippet {
				t.Errorf("Search(%q) snippet = %q, want %q", tt.query, results[0].Snippet, tt.snippet)
			}
		})
	}
}

func TestSearch_SnippetIsBounded(t *testing.T) {
	store := memory.NewMemStore(nil)
	commit(t, store, "Grandma dashes", strings.Repeat("-", 100000), "")
	commit(t, store, "Spaced out", "word"+strings.Repeat(" .", 50000)+" grandma", "")
	e := newEngine(t, store, Config{SnippetMaxRunes: 64})

	results, err := e.Search(context.Background(), "grandma")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("Search() returned %d results, want 2", len(results))
	}
	for _, r := range results {
		if n := len([]rune(r.Snippet)); n > 64+2*len(ellipsis)+len("<mark></mark>") {
			t.Errorf("result %d snippet has %d runes", r.ID, n)
		}
		if !strings.HasSuffix(r.Snippet, ellipsis) && !strings.Contains(r.Snippet, "<mark>grandma</mark>") {
			t.Errorf("result %d snippet = %q", r.ID, r.Snippet)
		}
	}
}
