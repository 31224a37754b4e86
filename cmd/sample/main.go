package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"textlabel/corpus"
	"textlabel/ml"
	"textlabel/pipeline"

	"github.com/jedib0t/go-pretty/v6/table"
)

func main() {
	modelPath := flag.String("model_path", "./models/lasso.model", "trained model path")
	vocabPath := flag.String("vocab_path", "./models/vocab.json", "vocabulary path")
	poolPath := flag.String("pool", "", "unlabeled CSV (id,text columns)")
	encoding := flag.String("encoding", "utf-8", "csv encoding (utf-8 or gbk)")
	count := flag.Int("count", 10, "number of items to select")
	flag.Parse()

	if *poolPath == "" {
		log.Fatal("pool is required")
	}
	if *count < 0 {
		log.Fatal("count must be non-negative")
	}

	model, err := ml.LoadModel("lasso_logistic", *modelPath)
	if err != nil {
		log.Fatalf("failed to load model: %v", err)
	}
	vocab, err := corpus.LoadVocabulary(*vocabPath)
	if err != nil {
		log.Fatalf("failed to load vocabulary: %v", err)
	}
	if vocab.Size() != model.NumFeatures() {
		log.Fatalf("vocabulary size %d does not match model features %d", vocab.Size(), model.NumFeatures())
	}

	docs, err := pipeline.ReadDocumentsCSV(*poolPath, *encoding)
	if err != nil {
		log.Fatalf("failed to read pool: %v", err)
	}
	if len(docs) == 0 {
		log.Fatal("pool is empty")
	}

	tokenizer := corpus.NewTokenizer(corpus.DefaultTokenizerConfig())
	pool := make([]corpus.SparseVector, len(docs))
	for i, doc := range docs {
		pool[i] = vocab.Vectorize(tokenizer.Tokenize(doc.Text))
	}

	n := *count
	if n > len(pool) {
		n = len(pool)
	}
	selections, err := ml.SelectUncertain(model, pool, n)
	if err != nil {
		log.Fatalf("selection failed: %v", err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Rank", "Doc ID", "Probability", "Score", "Text"})
	for rank, sel := range selections {
		t.AppendRow(table.Row{
			rank + 1,
			docs[sel.Index].ID,
			fmt.Sprintf("%.4f", sel.Probability),
			fmt.Sprintf("%.4f", sel.Score),
			snippet(docs[sel.Index].Text, 60),
		})
	}
	t.Render()
}

func snippet(text string, maxRunes int) string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return text
	}
	return string(runes[:maxRunes]) + "..."
}
