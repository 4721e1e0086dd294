package query

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jholhewres/memoriavault/pkg/memoriavault/memory"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    []memory.QueryTerm
		wantErr error
	}{
		{"single", "Grandma", []memory.QueryTerm{{Text: "grandma"}}, nil},
		{"punctuation splits", "mother's day", []memory.QueryTerm{{Text: "mother"}, {Text: "s"}, {Text: "day"}}, nil},
		{"duplicates dropped", "beach BEACH beach", []memory.QueryTerm{{Text: "beach"}}, nil},
		{"prefix", "gran*", []memory.QueryTerm{{Text: "gran", Prefix: true}}, nil},
		{"prefix on last part only", "new-yor*", []memory.QueryTerm{{Text: "new"}, {Text: "yor", Prefix: true}}, nil},
		{"exact and prefix kept apart", "gran gran*", []memory.QueryTerm{{Text: "gran"}, {Text: "gran", Prefix: true}}, nil},
		{"blank", "   ", nil, ErrEmptyQuery},
		{"symbols only", "*** ?!", nil, ErrEmptyQuery},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.query)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Parse(%q) error = %v, want %v", tt.query, err, tt.wantErr)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.query, got, tt.want)
			}
		})
	}
}

func TestSnippet(t *testing.T) {
	grandma := []memory.QueryTerm{{Text: "grandma"}}

	tests := []struct {
		name      string
		source    string
		terms     []memory.QueryTerm
		maxTokens int
		maxRunes  int
		want      string
	}{
		{
			name:      "whole text highlighted",
			source:    "Dear Grandma, love from grandma's kids",
			terms:     grandma,
			maxTokens: 32,
			want:      "Dear <mark>Grandma</mark>, love from <mark>grandma</mark>'s kids",
		},
		{
			name:      "window cut on both sides",
			source:    "one two three four five six grandma eight nine ten eleven twelve",
			terms:     grandma,
			maxTokens: 4,
			want:      "...six <mark>grandma</mark> eight nine...",
		},
		{
			name:      "no match shows the start",
			source:    "one two three four five",
			terms:     grandma,
			maxTokens: 2,
			want:      "one two...",
		},
		{
			name:      "prefix term",
			source:    "grandpa and grandma",
			terms:     []memory.QueryTerm{{Text: "grand", Prefix: true}},
			maxTokens: 32,
			want:      "<mark>grandpa</mark> and <mark>grandma</mark>",
		},
		{
			name:      "window clamped at the end",
			source:    "a b c d grandma",
			terms:     grandma,
			maxTokens: 3,
			want:      "...c d <mark>grandma</mark>",
		},
		{
			name:      "no tokens",
			source:    "  ...  ",
			terms:     grandma,
			maxTokens: 8,
			want:      "...",
		},
		{
			name:      "no tokens capped by runes",
			source:    strings.Repeat("-", 1000),
			terms:     grandma,
			maxTokens: 8,
			maxRunes:  10,
			want:      "----------...",
		},
		{
			name:      "separator run capped by runes",
			source:    "word" + strings.Repeat(" .", 5000) + " grandma",
			terms:     grandma,
			maxTokens: 32,
			maxRunes:  20,
			want:      "...<mark>grandma</mark>",
		},
		{
			name:      "rune cap snaps to token edges",
			source:    "alpha beta gamma delta grandma epsilon zeta eta theta iota kappa",
			terms:     grandma,
			maxTokens: 32,
			maxRunes:  24,
			want:      "...delta <mark>grandma</mark> epsilon...",
		},
		{
			name:      "rune cap counts runes not bytes",
			source:    "नमस्ते दादी आज का दिन अच्छा था",
			terms:     []memory.QueryTerm{{Text: "दादी"}},
			maxTokens: 32,
			maxRunes:  12,
			want:      "...<mark>दादी</mark> आज का...",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := snippet(tt.source, tt.terms, tt.maxTokens, tt.maxRunes, "<mark>", "</mark>")
			if got != tt.want {
				t.Errorf("snippet() = %q, want %q", got, tt.want)
			}
		})
	}
}
