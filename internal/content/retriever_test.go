package content

import (
	"errors"
	"log/slog"
	"testing"

	"github.com/examforge/examforge/internal/model"
)

type fakeSource struct {
	gotSubject string
	gotTopics  []string
	gotLang    string
	gotLimit   int

	chunks []model.ContentChunk
	err    error
}

func (f *fakeSource) SearchChunks(subject string, topics []string, language string, limit int) ([]model.ContentChunk, error) {
	f.gotSubject, f.gotTopics, f.gotLang, f.gotLimit = subject, topics, language, limit
	return f.chunks, f.err
}

func TestSearchPassesQueryThrough(t *testing.T) {
	src := &fakeSource{chunks: []model.ContentChunk{{Text: "x"}}}
	r := New(src, slog.Default())

	chunks, err := r.Search(Query{Subject: "Physics", Topics: []string{"Mechanics"}, Language: "en", Limit: 7})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(chunks) != 1 {
		t.Errorf("got %d chunks, want 1", len(chunks))
	}
	if src.gotSubject != "Physics" || src.gotLang != "en" || src.gotLimit != 7 {
		t.Errorf("query passed = %q/%q/%d", src.gotSubject, src.gotLang, src.gotLimit)
	}
	if len(src.gotTopics) != 1 || src.gotTopics[0] != "Mechanics" {
		t.Errorf("topics passed = %v", src.gotTopics)
	}
}

func TestSearchAppliesDefaultLimit(t *testing.T) {
	src := &fakeSource{}
	r := New(src, slog.Default())

	if _, err := r.Search(Query{Subject: "Physics"}); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if src.gotLimit != DefaultLimit {
		t.Errorf("limit = %d, want %d", src.gotLimit, DefaultLimit)
	}
}

func TestSearchEmptyIsNotError(t *testing.T) {
	r := New(&fakeSource{}, slog.Default())

	chunks, err := r.Search(Query{Subject: "Chemistry"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("got %d chunks, want 0", len(chunks))
	}
}

func TestSearchPropagatesSourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("db locked")}
	r := New(src, slog.Default())

	if _, err := r.Search(Query{Subject: "Physics"}); err == nil {
		t.Fatal("expected error")
	}
}
