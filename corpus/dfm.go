package corpus

import (
	"encoding/json"
	"errors"
	"os"
	"sort"
)

// SparseVector is a bag-of-words count vector over a fixed vocabulary.
// Indices are sorted ascending and unique. Dim is the vocabulary size the
// vector was produced against; it must match the model's feature count at
// prediction time.
type SparseVector struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
	Dim     int       `json:"dim"`
}

// Vocabulary maps terms to feature indices. Frozen after building: vectors
// for new documents are produced against the same term ordering the training
// matrix used.
type Vocabulary struct {
	Terms []string
	index map[string]int
}

func NewVocabulary(terms []string) *Vocabulary {
	v := &Vocabulary{Terms: terms, index: make(map[string]int, len(terms))}
	for i, term := range terms {
		v.index[term] = i
	}
	return v
}

func (v *Vocabulary) Size() int {
	return len(v.Terms)
}

func (v *Vocabulary) Index(term string) (int, bool) {
	idx, ok := v.index[term]
	return idx, ok
}

// Vectorize counts tokens against the frozen vocabulary. Tokens outside the
// vocabulary are dropped, matching how a fitted document-feature matrix
// treats unseen terms.
func (v *Vocabulary) Vectorize(tokens []string) SparseVector {
	counts := make(map[int]float64)
	for _, tok := range tokens {
		if idx, ok := v.index[tok]; ok {
			counts[idx]++
		}
	}
	return sparseFromCounts(counts, len(v.Terms))
}

func (v *Vocabulary) Save(path string) error {
	if len(v.Terms) == 0 {
		return errors.New("vocabulary is empty")
	}
	payload, err := json.Marshal(v.Terms)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

func LoadVocabulary(path string) (*Vocabulary, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var terms []string
	if err := json.Unmarshal(payload, &terms); err != nil {
		return nil, err
	}
	if len(terms) == 0 {
		return nil, errors.New("vocabulary file is empty")
	}
	return NewVocabulary(terms), nil
}

// DFM is a document-feature matrix: one sparse count row per document.
type DFM struct {
	Vocab *Vocabulary
	Rows  []SparseVector

	// TermFreq[j] is the total count of term j across all documents,
	// DocFreq[j] the number of documents containing it. Both feed Trim.
	TermFreq []float64
	DocFreq  []int
}

// BuildDFM tokenizes every document and fits a vocabulary in first-seen
// term order.
func BuildDFM(texts []string, tokenizer *Tokenizer) (*DFM, error) {
	if len(texts) == 0 {
		return nil, errors.New("no documents")
	}
	if tokenizer == nil {
		return nil, errors.New("tokenizer is required")
	}

	index := make(map[string]int)
	var terms []string
	tokenized := make([][]string, len(texts))
	for i, text := range texts {
		tokens := tokenizer.Tokenize(text)
		tokenized[i] = tokens
		for _, tok := range tokens {
			if _, ok := index[tok]; !ok {
				index[tok] = len(terms)
				terms = append(terms, tok)
			}
		}
	}
	if len(terms) == 0 {
		return nil, errors.New("no terms survived tokenization")
	}

	vocab := NewVocabulary(terms)
	dfm := &DFM{
		Vocab:    vocab,
		Rows:     make([]SparseVector, len(texts)),
		TermFreq: make([]float64, len(terms)),
		DocFreq:  make([]int, len(terms)),
	}
	for i, tokens := range tokenized {
		counts := make(map[int]float64)
		for _, tok := range tokens {
			counts[index[tok]]++
		}
		for idx, count := range counts {
			dfm.TermFreq[idx] += count
			dfm.DocFreq[idx]++
		}
		dfm.Rows[i] = sparseFromCounts(counts, len(terms))
	}
	return dfm, nil
}

// Trim drops terms below the frequency thresholds and re-maps the remaining
// vocabulary, preserving term order. Rows are rewritten into the new space.
func (d *DFM) Trim(minTermFreq float64, minDocFreq int) (*DFM, error) {
	keep := make([]int, 0, len(d.Vocab.Terms))
	for j := range d.Vocab.Terms {
		if d.TermFreq[j] >= minTermFreq && d.DocFreq[j] >= minDocFreq {
			keep = append(keep, j)
		}
	}
	if len(keep) == 0 {
		return nil, errors.New("trimming removed every term")
	}

	remap := make(map[int]int, len(keep))
	terms := make([]string, len(keep))
	termFreq := make([]float64, len(keep))
	docFreq := make([]int, len(keep))
	for newIdx, oldIdx := range keep {
		remap[oldIdx] = newIdx
		terms[newIdx] = d.Vocab.Terms[oldIdx]
		termFreq[newIdx] = d.TermFreq[oldIdx]
		docFreq[newIdx] = d.DocFreq[oldIdx]
	}

	trimmed := &DFM{
		Vocab:    NewVocabulary(terms),
		Rows:     make([]SparseVector, len(d.Rows)),
		TermFreq: termFreq,
		DocFreq:  docFreq,
	}
	for i, row := range d.Rows {
		counts := make(map[int]float64)
		for k, oldIdx := range row.Indices {
			if newIdx, ok := remap[oldIdx]; ok {
				counts[newIdx] = row.Values[k]
			}
		}
		trimmed.Rows[i] = sparseFromCounts(counts, len(terms))
	}
	return trimmed, nil
}

func sparseFromCounts(counts map[int]float64, dim int) SparseVector {
	indices := make([]int, 0, len(counts))
	for idx := range counts {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	values := make([]float64, len(indices))
	for k, idx := range indices {
		values[k] = counts[idx]
	}
	return SparseVector{Indices: indices, Values: values, Dim: dim}
}
