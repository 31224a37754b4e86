package http

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"

	"textlabel/corpus"
	"textlabel/db"
	"textlabel/ml"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

// Classifier 当前服务的分类器：模型、词表和分词器必须来自同一次训练，
// 否则预测使用的特征空间与训练空间不一致。
type Classifier struct {
	Model     ml.ProbabilisticClassifier
	Vocab     *corpus.Vocabulary
	Tokenizer *corpus.Tokenizer
	Threshold float64
	ModelPath string
}

var (
	classifierMu sync.RWMutex
	classifier   *Classifier

	predictCache *lru.Cache[string, float64]

	poolLimit = 2000

	handlerLogger = zap.NewNop()
)

func init() {
	// Cache creation only fails for non-positive sizes.
	predictCache, _ = lru.New[string, float64](4096)
}

// SetClassifier 替换在线模型并清空预测缓存
func SetClassifier(c *Classifier) {
	classifierMu.Lock()
	classifier = c
	classifierMu.Unlock()
	predictCache.Purge()
}

// SetPoolLimit 设置一次排序考虑的未标注文档上限
func SetPoolLimit(limit int) {
	if limit > 0 {
		poolLimit = limit
	}
}

func currentClassifier() *Classifier {
	classifierMu.RLock()
	defer classifierMu.RUnlock()
	return classifier
}

func RegisterHandlers(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/health", handleHealth)
	mux.HandleFunc("POST /api/predict", handlePredict)
	mux.HandleFunc("GET /api/queue", handleQueue)
	mux.HandleFunc("POST /api/annotate", handleAnnotate)
	mux.HandleFunc("GET /api/metrics", handleMetrics)
	mux.HandleFunc("POST /api/train", handleTrain)
	mux.HandleFunc("GET /api/ws/queue", handleLiveQueue)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type predictRequest struct {
	Text string `json:"text"`
}

type predictResponse struct {
	Probability float64 `json:"probability"`
	Label       int     `json:"label"`
	Cached      bool    `json:"cached"`
}

func handlePredict(w http.ResponseWriter, r *http.Request) {
	var req predictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Text == "" {
		http.Error(w, "text is required", http.StatusBadRequest)
		return
	}

	c := currentClassifier()
	if c == nil {
		http.Error(w, "no model loaded", http.StatusServiceUnavailable)
		return
	}

	resp := predictResponse{}
	key := cacheKey(req.Text)
	if p, ok := predictCache.Get(key); ok {
		resp.Probability = p
		resp.Cached = true
	} else {
		vec := c.Vocab.Vectorize(c.Tokenizer.Tokenize(req.Text))
		p, err := c.Model.PredictProbability(vec)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		predictCache.Add(key, p)
		resp.Probability = p
	}
	if resp.Probability >= c.Threshold {
		resp.Label = 1
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

type queueItem struct {
	DocID       string  `json:"doc_id"`
	Text        string  `json:"text"`
	Probability float64 `json:"probability"`
	Score       float64 `json:"score"`
}

func handleQueue(w http.ResponseWriter, r *http.Request) {
	count := 10
	if countStr := r.URL.Query().Get("count"); countStr != "" {
		parsed, err := strconv.Atoi(countStr)
		if err != nil || parsed < 0 {
			http.Error(w, "count must be a non-negative integer", http.StatusBadRequest)
			return
		}
		count = parsed
	}

	c := currentClassifier()
	if c == nil {
		http.Error(w, "no model loaded", http.StatusServiceUnavailable)
		return
	}

	docs, err := db.QueryUnlabeled(poolLimit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	// The sampler treats count > pool size as a contract violation;
	// for the API a short queue is the expected answer.
	if count > len(docs) {
		count = len(docs)
	}

	pool := make([]corpus.SparseVector, len(docs))
	for i, doc := range docs {
		pool[i] = c.Vocab.Vectorize(c.Tokenizer.Tokenize(doc.Text))
	}

	selections, err := ml.SelectUncertain(c.Model, pool, count)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	items := make([]queueItem, len(selections))
	for i, sel := range selections {
		items[i] = queueItem{
			DocID:       docs[sel.Index].ID,
			Text:        docs[sel.Index].Text,
			Probability: sel.Probability,
			Score:       sel.Score,
		}
	}

	if len(items) > 0 {
		// Round bookkeeping must not block the labeling flow.
		if err := db.SaveRound(c.ModelPath, len(docs), len(items)); err != nil {
			handlerLogger.Warn("failed to record annotation round", zap.Error(err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"pool_size": len(docs),
		"items":     items,
	})
}

type annotateRequest struct {
	DocID     string `json:"doc_id"`
	Label     *int   `json:"label"`
	Annotator string `json:"annotator"`
}

func handleAnnotate(w http.ResponseWriter, r *http.Request) {
	var req annotateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.DocID == "" || req.Label == nil {
		http.Error(w, "doc_id and label are required", http.StatusBadRequest)
		return
	}
	if *req.Label != 0 && *req.Label != 1 {
		http.Error(w, "label must be 0 or 1", http.StatusBadRequest)
		return
	}

	if err := db.SaveAnnotation(req.DocID, *req.Label, req.Annotator); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	BroadcastAnnotation(req.DocID, *req.Label)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func handleMetrics(w http.ResponseWriter, r *http.Request) {
	logs, err := db.LoadTrainingLog()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"training_log": logs})
}

func cacheKey(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
