// Package memory holds committed memory records and the inverted index that
// makes them searchable.
package memory

import (
	"errors"
	"time"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/media"
)

// ErrNotFound is returned when a record ID is unknown.
var ErrNotFound = errors.New("memory not found")

// Record is one digitized memory. Records are created once at commit and
// never mutated afterwards.
type Record struct {
	ID           int64           `json:"id"`
	Title        string          `json:"title"`
	Text         string          `json:"text"`
	CapturedDate string          `json:"date,omitempty"`
	Location     string          `json:"location,omitempty"`
	Sentiment    *float64        `json:"sentiment,omitempty"`
	MediaPath    string          `json:"media_path"`
	MediaType    media.MediaType `json:"media_type"`
	Person       string          `json:"person,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	if r.Sentiment != nil {
		s := *r.Sentiment
		c.Sentiment = &s
	}
	return &c
}

// Document returns the searchable fields of r.
func (r *Record) Document() Document {
	return Document{
		FieldTitle:  r.Title,
		FieldText:   r.Text,
		FieldPerson: r.Person,
	}
}

// Field names a searchable record field.
type Field string

const (
	FieldTitle  Field = "title"
	FieldText   Field = "text"
	FieldPerson Field = "person"
)

// Fields lists the indexed fields in index order.
var Fields = []Field{FieldTitle, FieldText, FieldPerson}

// Document is the field text handed to the index for one record.
type Document map[Field]string

// Span is a half-open byte range [Start, End) into a field value.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Match is one query term found in one field of a record.
type Match struct {
	Term  string `json:"term"`
	Field Field  `json:"field"`
	Spans []Span `json:"spans"`
}

// Hit is a record matched by a query, with the per-field match spans.
type Hit struct {
	ID      int64
	Matches []Match
}

// InField reports whether any match of h is in field f.
func (h Hit) InField(f Field) bool {
	for _, m := range h.Matches {
		if m.Field == f {
			return true
		}
	}
	return false
}

// Terms returns the distinct matched index terms of h.
func (h Hit) Terms() []string {
	seen := make(map[string]struct{}, len(h.Matches))
	var terms []string
	for _, m := range h.Matches {
		if _, ok := seen[m.Term]; ok {
			continue
		}
		seen[m.Term] = struct{}{}
		terms = append(terms, m.Term)
	}
	return terms
}

// Stats summarizes the committed records.
type Stats struct {
	Total            int                     `json:"total"`
	ByMediaType      map[media.MediaType]int `json:"by_media_type"`
	AverageSentiment *float64                `json:"average_sentiment,omitempty"`
}
