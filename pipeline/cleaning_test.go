package pipeline

import (
	"strings"
	"testing"

	"textlabel/corpus"
)

func TestCleanNormalizesAndRejects(t *testing.T) {
	cleaner := NewTextCleaner()

	docs := []corpus.Document{
		{ID: "1", Text: "  You are   an idiot\x00\x01 http://spam.example/x  "},
		{ID: "2", Text: "   "},
		{ID: "3", Text: "Perfectly fine comment"},
		{ID: "4", Text: "Perfectly fine comment"},
	}

	cleaned, issues := cleaner.Clean(docs)

	if len(cleaned) != 2 {
		t.Fatalf("expected 2 documents to pass, got %d", len(cleaned))
	}
	if cleaned[0].ID != "1" || cleaned[1].ID != "3" {
		t.Fatalf("unexpected survivors: %v", cleaned)
	}
	if cleaned[0].Text != "You are an idiot" {
		t.Fatalf("unexpected cleaned text: %q", cleaned[0].Text)
	}

	if len(issues) != 2 {
		t.Fatalf("expected 2 issues, got %d", len(issues))
	}
	types := map[string]bool{}
	for _, issue := range issues {
		types[issue.Type] = true
	}
	if !types["empty_text"] || !types["duplicate"] {
		t.Fatalf("expected empty_text and duplicate issues, got %v", types)
	}

	stats := cleaner.Stats()
	if stats.TotalProcessed != 4 || stats.Passed != 2 || stats.Rejected != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestMaxLengthRule(t *testing.T) {
	rule := NewMaxLengthRule(10)
	doc := &corpus.Document{ID: "1", Text: strings.Repeat("x", 11)}
	if _, err := rule.Apply(doc); err == nil {
		t.Fatal("expected error for overlong text")
	}
	short := &corpus.Document{ID: "2", Text: "short"}
	if _, err := rule.Apply(short); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDuplicateRuleAllowsReapplyToSameDoc(t *testing.T) {
	rule := NewDuplicateRule()
	doc := &corpus.Document{ID: "1", Text: "same text"}
	if _, err := rule.Apply(doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := rule.Apply(doc); err != nil {
		t.Fatalf("re-applying to the same document must not error: %v", err)
	}
	other := &corpus.Document{ID: "2", Text: "same text"}
	if _, err := rule.Apply(other); err == nil {
		t.Fatal("expected duplicate error for different document")
	}
}

func TestURLStripRuleKeepsSurroundingText(t *testing.T) {
	rule := NewURLStripRule()
	doc := &corpus.Document{ID: "1", Text: "check https://example.com/path now"}
	result, err := rule.Apply(doc)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Contains(result.Text, "example.com") {
		t.Fatalf("url not stripped: %q", result.Text)
	}
	if !strings.Contains(result.Text, "check") || !strings.Contains(result.Text, "now") {
		t.Fatalf("surrounding text lost: %q", result.Text)
	}
}
