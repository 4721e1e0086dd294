package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// termInsertBatch bounds the rows per postings INSERT so a long transcript
// stays under SQLite's bound-parameter limit.
const termInsertBatch = 200

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path        string `yaml:"path"`
	JournalMode string `yaml:"journal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// SQLiteStore persists records in a memories table and their postings in a
// memory_terms table. Both are written in the same transaction, so readers
// never observe one without the other.
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// OpenSQLite opens or creates the database and applies pending migrations.
func OpenSQLite(cfg SQLiteConfig, logger *slog.Logger) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = "./data/memoriavault.db"
	}
	if cfg.JournalMode == "" {
		cfg.JournalMode = "WAL"
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5000
	}

	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create database directory %q: %w", dir, err)
	}

	// _txlock=immediate takes the write lock at BEGIN, so two committers
	// queue on the busy timeout instead of failing a lock upgrade.
	dsn := fmt.Sprintf("%s?_journal_mode=%s&_busy_timeout=%d&_foreign_keys=on&_txlock=immediate",
		cfg.Path, cfg.JournalMode, cfg.BusyTimeout)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database %q: %w", cfg.Path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := NewSQLiteMigrator(db).Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return newSQLiteStore(db, logger), nil
}

func newSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "memory-store", "backend", "sqlite"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Commit implements Store.
func (s *SQLiteStore) Commit(ctx context.Context, rec *Record) error {
	if err := checkRecord(rec); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	var sentiment sql.NullFloat64
	if rec.Sentiment != nil {
		sentiment = sql.NullFloat64{Float64: *rec.Sentiment, Valid: true}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO memories (title, text, captured_date, location, sentiment, media_path, media_type, person, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.Title, rec.Text, nullString(rec.CapturedDate), nullString(rec.Location), sentiment,
		rec.MediaPath, string(rec.MediaType), nullString(rec.Person), now.UnixNano(), now.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert memory: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("read memory id: %w", err)
	}

	if err := insertTerms(ctx, tx, id, rec.Document()); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now

	s.logger.Debug("memory committed", "id", id, "media_type", rec.MediaType)
	return nil
}

type termRow struct {
	term  string
	field Field
	spans []byte
}

func insertTerms(ctx context.Context, tx *sql.Tx, id int64, doc Document) error {
	var rows []termRow
	for _, field := range Fields {
		postings := postingsOf(doc[field])
		terms := make([]string, 0, len(postings))
		for term := range postings {
			if validUTF8Term(term) {
				terms = append(terms, term)
			}
		}
		sort.Strings(terms)
		for _, term := range terms {
			spans, err := json.Marshal(postings[term])
			if err != nil {
				return fmt.Errorf("encode spans: %w", err)
			}
			rows = append(rows, termRow{term: term, field: field, spans: spans})
		}
	}

	for start := 0; start < len(rows); start += termInsertBatch {
		end := min(start+termInsertBatch, len(rows))
		batch := rows[start:end]

		var b strings.Builder
		b.WriteString("INSERT INTO memory_terms (term, memory_id, field, spans) VALUES ")
		args := make([]any, 0, len(batch)*4)
		for i, r := range batch {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString("(?, ?, ?, ?)")
			args = append(args, r.term, id, string(r.field), string(r.spans))
		}
		if _, err := tx.ExecContext(ctx, b.String(), args...); err != nil {
			return fmt.Errorf("index memory: %w", err)
		}
	}
	return nil
}

const recordColumns = `id, title, text, captured_date, location, sentiment, media_path, media_type, person, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		rec                    Record
		date, location, person sql.NullString
		sentiment              sql.NullFloat64
		mediaType              string
		createdAt, updatedAt   int64
	)
	if err := row.Scan(&rec.ID, &rec.Title, &rec.Text, &date, &location, &sentiment,
		&rec.MediaPath, &mediaType, &person, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	rec.CapturedDate = date.String
	rec.Location = location.String
	rec.Person = person.String
	rec.MediaType = media.MediaType(mediaType)
	if sentiment.Valid {
		v := sentiment.Float64
		rec.Sentiment = &v
	}
	rec.CreatedAt = time.Unix(0, createdAt).UTC()
	rec.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &rec, nil
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, id int64) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM memories WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get memory %d: %w", id, err)
	}
	return rec, nil
}

// List implements Store.
func (s *SQLiteStore) List(ctx context.Context, limit, offset int) ([]*Record, error) {
	limit, offset = normalizePage(limit, offset)

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM memories ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list memories: %w", err)
	}
	defer rows.Close()

	out := []*Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan memory: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Query implements Store.
func (s *SQLiteStore) Query(ctx context.Context, terms []QueryTerm) ([]Hit, error) {
	terms = dedupeTerms(terms)
	if len(terms) == 0 {
		return nil, nil
	}

	var (
		conds []string
		args  []any
		exact []any
	)
	for _, t := range terms {
		if t.Prefix {
			conds = append(conds, "(term >= ? AND term < ?)")
			args = append(args, t.Text, t.Text+string(utf8.MaxRune))
			continue
		}
		exact = append(exact, t.Text)
	}
	if len(exact) > 0 {
		conds = append(conds, "term IN ("+strings.TrimSuffix(strings.Repeat("?, ", len(exact)), ", ")+")")
		args = append(args, exact...)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT memory_id, term, field, spans FROM memory_terms WHERE `+strings.Join(conds, " OR "),
		args...)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	defer rows.Close()

	hits := make(map[int64]*Hit)
	for rows.Next() {
		var (
			id          int64
			term, field string
			rawSpans    string
		)
		if err := rows.Scan(&id, &term, &field, &rawSpans); err != nil {
			return nil, fmt.Errorf("scan posting: %w", err)
		}
		var spans []Span
		if err := json.Unmarshal([]byte(rawSpans), &spans); err != nil {
			return nil, fmt.Errorf("decode spans for memory %d: %w", id, err)
		}
		h := hits[id]
		if h == nil {
			h = &Hit{ID: id}
			hits[id] = h
		}
		h.Matches = append(h.Matches, Match{Term: term, Field: Field(field), Spans: spans})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}

	out := make([]Hit, 0, len(hits))
	for _, h := range hits {
		sortMatches(h.Matches)
		out = append(out, *h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

// Remove implements Store.
func (s *SQLiteStore) Remove(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM memory_terms WHERE memory_id = ?`, id); err != nil {
		return fmt.Errorf("delete postings: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM memories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete memory: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return tx.Commit()
}

// MediaReferenced implements Store.
func (s *SQLiteStore) MediaReferenced(ctx context.Context, mediaPath string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM memories WHERE media_path = ?)`, mediaPath).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check media reference: %w", err)
	}
	return exists, nil
}

// Stats implements Store.
func (s *SQLiteStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByMediaType: map[media.MediaType]int{}}

	rows, err := s.db.QueryContext(ctx, `SELECT media_type, COUNT(*) FROM memories GROUP BY media_type`)
	if err != nil {
		return nil, fmt.Errorf("count memories: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var mt string
		var n int
		if err := rows.Scan(&mt, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		stats.ByMediaType[media.MediaType(mt)] = n
		stats.Total += n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var avg sql.NullFloat64
	if err := s.db.QueryRowContext(ctx,
		`SELECT AVG(sentiment) FROM memories WHERE sentiment IS NOT NULL`).Scan(&avg); err != nil {
		return nil, fmt.Errorf("average sentiment: %w", err)
	}
	if avg.Valid {
		v := roundTo(avg.Float64, 2)
		stats.AverageSentiment = &v
	}
	return stats, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
