package corpus

import (
	"reflect"
	"testing"
)

func TestTokenizeFoldsCaseAndNormalizes(t *testing.T) {
	tok := NewTokenizer(TokenizerConfig{MinTokenLength: 1})

	got := tok.Tokenize("Ｈｅｌｌｏ WORLD")
	want := []string{"hello", "world"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeSplitsOnPunctuation(t *testing.T) {
	tok := NewTokenizer(TokenizerConfig{MinTokenLength: 1})

	got := tok.Tokenize("you're an idiot!!! seriously?")
	want := []string{"you're", "an", "idiot", "seriously"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeRemovesStopwordsAndNumbers(t *testing.T) {
	tok := NewTokenizer(DefaultTokenizerConfig())

	got := tok.Tokenize("the 100 attacks were very violent")
	want := []string{"attacks", "violent"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestTokenizeMinTokenLength(t *testing.T) {
	tok := NewTokenizer(TokenizerConfig{MinTokenLength: 3})

	got := tok.Tokenize("go is ok but bigger words stay")
	for _, token := range got {
		if runeLen(token) < 3 {
			t.Fatalf("token %q shorter than minimum", token)
		}
	}
}

func TestTokenizeEmptyText(t *testing.T) {
	tok := NewTokenizer(DefaultTokenizerConfig())
	if got := tok.Tokenize("   \t\n "); len(got) != 0 {
		t.Fatalf("expected no tokens, got %v", got)
	}
}

func TestTokenizeDeterministic(t *testing.T) {
	tok := NewTokenizer(DefaultTokenizerConfig())
	text := "Shut up or I will hurt you"
	first := tok.Tokenize(text)
	for i := 0; i < 5; i++ {
		if got := tok.Tokenize(text); !reflect.DeepEqual(got, first) {
			t.Fatalf("tokenization not deterministic: %v vs %v", got, first)
		}
	}
}
