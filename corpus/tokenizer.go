package corpus

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

type TokenizerConfig struct {
	RemoveNumbers   bool
	RemoveStopwords bool
	MinTokenLength  int
}

func DefaultTokenizerConfig() TokenizerConfig {
	return TokenizerConfig{
		RemoveNumbers:   true,
		RemoveStopwords: true,
		MinTokenLength:  2,
	}
}

// Tokenizer splits raw text into normalized terms. The same tokenizer
// instance must be used for training and prediction, otherwise documents
// end up in a different feature space.
type Tokenizer struct {
	config    TokenizerConfig
	folder    cases.Caser
	stopwords map[string]bool
}

func NewTokenizer(config TokenizerConfig) *Tokenizer {
	if config.MinTokenLength <= 0 {
		config.MinTokenLength = 1
	}
	t := &Tokenizer{
		config: config,
		folder: cases.Fold(),
	}
	if config.RemoveStopwords {
		t.stopwords = stopwordSet()
	}
	return t
}

// Tokenize applies NFKC normalization and Unicode case folding, then splits
// on anything that is not a letter, digit or apostrophe.
func (t *Tokenizer) Tokenize(text string) []string {
	text = norm.NFKC.String(text)
	text = t.folder.String(text)

	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '\''
	})

	tokens := make([]string, 0, len(fields))
	for _, tok := range fields {
		tok = strings.Trim(tok, "'")
		if tok == "" {
			continue
		}
		if runeLen(tok) < t.config.MinTokenLength {
			continue
		}
		if t.config.RemoveNumbers && isNumeric(tok) {
			continue
		}
		if t.stopwords != nil && t.stopwords[tok] {
			continue
		}
		tokens = append(tokens, tok)
	}
	return tokens
}

func runeLen(s string) int {
	n := 0
	for range s {
		n++
	}
	return n
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsNumber(r) {
			return false
		}
	}
	return true
}
