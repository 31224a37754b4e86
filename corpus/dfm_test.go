package corpus

import (
	"path/filepath"
	"reflect"
	"testing"
)

func testTexts() []string {
	return []string{
		"violent threat threat",
		"calm friendly message",
		"violent message",
	}
}

func TestBuildDFMCounts(t *testing.T) {
	tok := NewTokenizer(TokenizerConfig{MinTokenLength: 1})
	dfm, err := BuildDFM(testTexts(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dfm.Vocab.Size() != 5 {
		t.Fatalf("expected 5 terms, got %d", dfm.Vocab.Size())
	}
	if len(dfm.Rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(dfm.Rows))
	}

	threatIdx, ok := dfm.Vocab.Index("threat")
	if !ok {
		t.Fatal("expected term threat in vocabulary")
	}
	row := dfm.Rows[0]
	found := false
	for k, idx := range row.Indices {
		if idx == threatIdx {
			found = true
			if row.Values[k] != 2 {
				t.Fatalf("expected count 2 for threat, got %f", row.Values[k])
			}
		}
	}
	if !found {
		t.Fatal("threat missing from first row")
	}

	if dfm.TermFreq[threatIdx] != 2 || dfm.DocFreq[threatIdx] != 1 {
		t.Fatalf("unexpected frequencies for threat: tf=%f df=%d", dfm.TermFreq[threatIdx], dfm.DocFreq[threatIdx])
	}
}

func TestTrimRemapsVocabulary(t *testing.T) {
	tok := NewTokenizer(TokenizerConfig{MinTokenLength: 1})
	dfm, err := BuildDFM(testTexts(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Keep only terms appearing in at least two documents.
	trimmed, err := dfm.Trim(1, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTerms := []string{"violent", "message"}
	if !reflect.DeepEqual(trimmed.Vocab.Terms, wantTerms) {
		t.Fatalf("got terms %v, want %v", trimmed.Vocab.Terms, wantTerms)
	}
	for i, row := range trimmed.Rows {
		if row.Dim != len(wantTerms) {
			t.Fatalf("row %d has dim %d, want %d", i, row.Dim, len(wantTerms))
		}
		for _, idx := range row.Indices {
			if idx < 0 || idx >= len(wantTerms) {
				t.Fatalf("row %d has out-of-range index %d", i, idx)
			}
		}
	}

	if _, err := trimmed.Trim(1000, 1000); err == nil {
		t.Fatal("expected error when trimming removes every term")
	}
}

func TestVectorizeMatchesTrainingSpace(t *testing.T) {
	tok := NewTokenizer(TokenizerConfig{MinTokenLength: 1})
	dfm, err := BuildDFM(testTexts(), tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	vec := dfm.Vocab.Vectorize(tok.Tokenize("violent threat threat"))
	if vec.Dim != dfm.Vocab.Size() {
		t.Fatalf("vector dim %d does not match vocabulary %d", vec.Dim, dfm.Vocab.Size())
	}
	if !reflect.DeepEqual(vec, dfm.Rows[0]) {
		t.Fatalf("re-vectorized document differs from training row: %+v vs %+v", vec, dfm.Rows[0])
	}

	// Unseen terms are dropped, not appended.
	unseen := dfm.Vocab.Vectorize(tok.Tokenize("completely novel words"))
	if len(unseen.Indices) != 0 {
		t.Fatalf("expected empty vector for unseen terms, got %+v", unseen)
	}
	if unseen.Dim != dfm.Vocab.Size() {
		t.Fatalf("unseen vector dim %d does not match vocabulary %d", unseen.Dim, dfm.Vocab.Size())
	}
}

func TestVocabularySaveLoad(t *testing.T) {
	vocab := NewVocabulary([]string{"violent", "calm", "threat"})
	path := filepath.Join(t.TempDir(), "vocab.json")
	if err := vocab.Save(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	loaded, err := LoadVocabulary(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(loaded.Terms, vocab.Terms) {
		t.Fatalf("got %v, want %v", loaded.Terms, vocab.Terms)
	}
	if idx, ok := loaded.Index("threat"); !ok || idx != 2 {
		t.Fatalf("expected threat at index 2, got %d %v", idx, ok)
	}
}

func TestBuildDFMEmptyInput(t *testing.T) {
	tok := NewTokenizer(DefaultTokenizerConfig())
	if _, err := BuildDFM(nil, tok); err == nil {
		t.Fatal("expected error for empty input")
	}
	if _, err := BuildDFM([]string{"the a of"}, tok); err == nil {
		t.Fatal("expected error when no terms survive")
	}
}
