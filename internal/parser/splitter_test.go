package parser

import (
	"errors"
	"math/rand"
	"reflect"
	"strings"
	"testing"
	"unicode/utf8"

	"document-qa/internal/models"
)

func TestNewSplitter_InvalidConfig(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
	}{
		{"zero size", 0, 0},
		{"negative size", -5, 0},
		{"negative overlap", 10, -1},
		{"overlap equals size", 10, 10},
		{"overlap above size", 10, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter("\n", tt.size, tt.overlap)
			if !errors.Is(err, models.ErrInvalidConfig) {
				t.Fatalf("expected ErrInvalidConfig, got %v", err)
			}
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	s, err := NewSplitter("\n", 1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	for _, in := range []string{"", "   ", "\n\n\t"} {
		if chunks := s.Split(in); len(chunks) != 0 {
			t.Fatalf("expected no chunks for %q, got %v", in, chunks)
		}
	}
}

func TestSplit_ShortText(t *testing.T) {
	s, err := NewSplitter("\n", 1000, 200)
	if err != nil {
		t.Fatal(err)
	}
	chunks := s.Split("Hello world")
	if len(chunks) != 1 || chunks[0] != "Hello world" {
		t.Fatalf("expected single chunk, got %v", chunks)
	}
}

func TestSplit_OverlapAtSeparator(t *testing.T) {
	s, err := NewSplitter("\n", 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Split("one\ntwo\nthree\nfour\nfive")
	want := []string{"one\ntwo\n", "two\nthree\n", "four\nfive"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplit_OversizedPiece(t *testing.T) {
	s, err := NewSplitter("\n", 5, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Split("abcdefghij\nxy")
	want := []string{"abcdefghij\n", "xy"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestSplit_EmptySeparatorCountsRunes(t *testing.T) {
	s, err := NewSplitter("", 3, 1)
	if err != nil {
		t.Fatal(err)
	}
	got := s.Split("héllo")
	want := []string{"hél", "llo"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func randomText(r *rand.Rand) string {
	words := []string{"tumor", "stage", "the", "patient", "ß", "日本", "biopsy", "", "lymph node"}
	var b strings.Builder
	n := r.Intn(200)
	for i := 0; i < n; i++ {
		b.WriteString(words[r.Intn(len(words))])
		if r.Intn(4) == 0 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	return b.String()
}

func TestSplitSpans_Properties(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	configs := []struct {
		sep     string
		size    int
		overlap int
	}{
		{"\n", 40, 10},
		{"\n", 1000, 200},
		{" ", 25, 5},
		{"", 7, 3},
	}
	for _, c := range configs {
		s, err := NewSplitter(c.sep, c.size, c.overlap)
		if err != nil {
			t.Fatal(err)
		}
		for i := 0; i < 200; i++ {
			text := randomText(r)
			spans := s.SplitSpans(text)

			if strings.TrimSpace(text) == "" {
				if len(spans) != 0 {
					t.Fatalf("expected no spans for blank text")
				}
				continue
			}
			if got := Reassemble(spans); got != text {
				t.Fatalf("reassembly mismatch for sep %q:\n got %q\nwant %q", c.sep, got, text)
			}
			if again := s.SplitSpans(text); !reflect.DeepEqual(spans, again) {
				t.Fatalf("split is not deterministic")
			}
			for j, sp := range spans {
				if text[sp.Start:sp.End] != sp.Text {
					t.Fatalf("span %d is not a substring at its offsets", j)
				}
				n := utf8.RuneCountInString(sp.Text)
				if n > c.size && len(s.SplitSpans(sp.Text)) != 1 {
					t.Fatalf("span %d has %d runes over size %d and is splittable", j, n, c.size)
				}
				if j > 0 {
					prev := spans[j-1]
					if sp.Start <= prev.Start {
						t.Fatalf("span %d does not advance", j)
					}
					if sp.Start < prev.End {
						shared := utf8.RuneCountInString(text[sp.Start:prev.End])
						if shared > c.overlap {
							t.Fatalf("span %d overlaps %d runes, limit %d", j, shared, c.overlap)
						}
					}
				}
			}
		}
	}
}

func TestSplitPage_SetsProvenance(t *testing.T) {
	s, err := NewSplitter("\n", 10, 5)
	if err != nil {
		t.Fatal(err)
	}
	page := models.PageExtract{Text: "one\ntwo\nthree\nfour\nfive", SourceFilename: "guide.pdf", PageNumber: 3}
	chunks := s.SplitPage(page)
	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.SourceFilename != "guide.pdf" || c.PageNumber != 3 || c.Index != i+1 {
			t.Fatalf("unexpected chunk provenance: %+v", c)
		}
	}
}
