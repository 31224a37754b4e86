package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"textlabel/corpus"
	"textlabel/db"
	"textlabel/ml"
)

func TestMain(m *testing.M) {
	// Setup
	dbPath := "./test_http.db"
	db.InitDB(dbPath)

	code := m.Run()

	// Teardown
	db.Close()
	os.Remove(dbPath)
	os.Exit(code)
}

// testClassifier scores "hate" positively and "love" negatively.
func testClassifier() *Classifier {
	return &Classifier{
		Model: &ml.LassoLogistic{
			Weights:   []float64{2, -2},
			Intercept: 0,
		},
		Vocab:     corpus.NewVocabulary([]string{"hate", "love"}),
		Tokenizer: corpus.NewTokenizer(corpus.TokenizerConfig{MinTokenLength: 1}),
		Threshold: 0.5,
		ModelPath: "./models/test.model",
	}
}

func newTestMux() *http.ServeMux {
	mux := http.NewServeMux()
	RegisterHandlers(mux)
	return mux
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest("GET", "/api/health", nil)
	rr := httptest.NewRecorder()

	http.HandlerFunc(handleHealth).ServeHTTP(rr, req)

	if status := rr.Code; status != http.StatusOK {
		t.Errorf("handler returned wrong status code: got %v want %v", status, http.StatusOK)
	}

	expected := `{"status":"ok"}`
	if rr.Body.String() != expected+"\n" && rr.Body.String() != expected {
		t.Errorf("handler returned unexpected body: got %v want %v", rr.Body.String(), expected)
	}
}

func TestPredictHandler(t *testing.T) {
	SetClassifier(testClassifier())
	mux := newTestMux()

	body := bytes.NewBufferString(`{"text":"i hate hate hate this"}`)
	req := httptest.NewRequest("POST", "/api/predict", body)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", rr.Code, rr.Body.String())
	}
	var resp predictResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Label != 1 || resp.Probability <= 0.5 {
		t.Fatalf("expected positive prediction, got %+v", resp)
	}
	if resp.Cached {
		t.Fatal("first request must not be cached")
	}

	// Same text again comes out of the cache.
	rr = httptest.NewRecorder()
	req = httptest.NewRequest("POST", "/api/predict", bytes.NewBufferString(`{"text":"i hate hate hate this"}`))
	mux.ServeHTTP(rr, req)
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if !resp.Cached {
		t.Fatal("second request should be cached")
	}
}

func TestPredictHandlerWithoutModel(t *testing.T) {
	SetClassifier(nil)
	defer SetClassifier(testClassifier())

	mux := newTestMux()
	req := httptest.NewRequest("POST", "/api/predict", bytes.NewBufferString(`{"text":"anything"}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}

func TestPredictHandlerRejectsEmptyText(t *testing.T) {
	SetClassifier(testClassifier())
	mux := newTestMux()
	req := httptest.NewRequest("POST", "/api/predict", bytes.NewBufferString(`{}`))
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestQueueAndAnnotateFlow(t *testing.T) {
	SetClassifier(testClassifier())
	mux := newTestMux()

	docs := []corpus.Document{
		{ID: "q1", Text: "hate love"},     // balanced, most uncertain
		{ID: "q2", Text: "hate hate"},     // confidently positive
		{ID: "q3", Text: "love love"},     // confidently negative
		{ID: "q4", Text: "nothing known"}, // empty vector, sits at the intercept
	}
	if err := db.SaveDocuments(docs); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest("GET", "/api/queue?count=2", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", rr.Code, rr.Body.String())
	}

	var queueResp struct {
		PoolSize int         `json:"pool_size"`
		Items    []queueItem `json:"items"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &queueResp); err != nil {
		t.Fatal(err)
	}
	if len(queueResp.Items) != 2 {
		t.Fatalf("expected 2 queue items, got %d", len(queueResp.Items))
	}
	// q1 and q4 both sit exactly on the boundary; pool order breaks the tie.
	if queueResp.Items[0].DocID != "q1" || queueResp.Items[1].DocID != "q4" {
		t.Fatalf("unexpected queue order: %+v", queueResp.Items)
	}

	// The round is recorded against the serving model.
	rounds, err := db.LoadRounds(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(rounds) != 1 {
		t.Fatalf("expected 1 recorded round, got %d", len(rounds))
	}
	if rounds[0].ModelPath != "./models/test.model" {
		t.Fatalf("round recorded with wrong model path: %q", rounds[0].ModelPath)
	}
	if rounds[0].PoolSize != 4 || rounds[0].Selected != 2 {
		t.Fatalf("unexpected round bookkeeping: %+v", rounds[0])
	}

	// Annotate the top item and confirm it leaves the pool.
	annotation := bytes.NewBufferString(`{"doc_id":"q1","label":1,"annotator":"coder-a"}`)
	req = httptest.NewRequest("POST", "/api/annotate", annotation)
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d body %s", rr.Code, rr.Body.String())
	}

	unlabeled, err := db.QueryUnlabeled(100)
	if err != nil {
		t.Fatal(err)
	}
	for _, doc := range unlabeled {
		if doc.ID == "q1" {
			t.Fatal("annotated document still in unlabeled pool")
		}
	}

	labeled, err := db.QueryLabeled()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, doc := range labeled {
		if doc.ID == "q1" && doc.Label == 1 {
			found = true
		}
	}
	if !found {
		t.Fatal("annotation not persisted")
	}
}

func TestAnnotateValidation(t *testing.T) {
	mux := newTestMux()

	cases := []string{
		`{"label":1}`,                      // missing doc_id
		`{"doc_id":"q2"}`,                  // missing label
		`{"doc_id":"q2","label":5}`,        // non-binary label
		`{"doc_id":"missing","label":0}`,   // unknown document
		`not json`,                         // malformed body
	}
	for _, body := range cases {
		req := httptest.NewRequest("POST", "/api/annotate", bytes.NewBufferString(body))
		rr := httptest.NewRecorder()
		mux.ServeHTTP(rr, req)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("body %q: expected 400, got %d", body, rr.Code)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	mux := newTestMux()
	req := httptest.NewRequest("GET", "/api/metrics", nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var resp struct {
		TrainingLog []db.TrainingLog `json:"training_log"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
}
