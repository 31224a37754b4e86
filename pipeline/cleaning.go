package pipeline

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"textlabel/corpus"
)

// CleaningRule 文本清洗规则
type CleaningRule interface {
	Apply(*corpus.Document) (*corpus.Document, error)
	Name() string
}

// QualityIssue 质量问题
type QualityIssue struct {
	Type      string    `json:"type"`
	Severity  string    `json:"severity"` // low, medium, high
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	DocID     string    `json:"doc_id"`
}

// TextCleaner 文本清洗器
type TextCleaner struct {
	rules      []CleaningRule
	issues     []QualityIssue
	issuesLock sync.RWMutex

	stats     CleaningStats
	statsLock sync.RWMutex
}

// CleaningStats 清洗统计
type CleaningStats struct {
	TotalProcessed int64            `json:"total_processed"`
	Passed         int64            `json:"passed"`
	Rejected       int64            `json:"rejected"`
	Issues         map[string]int64 `json:"issues"`
	LastClean      time.Time        `json:"last_clean"`
}

// NewTextCleaner 创建文本清洗器，带默认规则
func NewTextCleaner() *TextCleaner {
	cleaner := &TextCleaner{
		rules:  make([]CleaningRule, 0),
		issues: make([]QualityIssue, 0),
		stats: CleaningStats{
			Issues: make(map[string]int64),
		},
	}

	cleaner.AddRule(NewControlCharRule())
	cleaner.AddRule(NewURLStripRule())
	cleaner.AddRule(NewWhitespaceRule())
	cleaner.AddRule(NewEmptyTextRule())
	cleaner.AddRule(NewMaxLengthRule(10000))
	cleaner.AddRule(NewDuplicateRule())

	return cleaner
}

// AddRule 添加清洗规则
func (tc *TextCleaner) AddRule(rule CleaningRule) {
	tc.rules = append(tc.rules, rule)
}

// Clean 清洗一批文档，返回通过的文档和发现的质量问题
func (tc *TextCleaner) Clean(docs []corpus.Document) ([]corpus.Document, []QualityIssue) {
	var cleaned []corpus.Document
	var issues []QualityIssue

	tc.statsLock.Lock()
	defer tc.statsLock.Unlock()

	for i := range docs {
		tc.stats.TotalProcessed++

		doc := &docs[i]
		rejected := false
		for _, rule := range tc.rules {
			result, err := rule.Apply(doc)
			if err != nil {
				issue := QualityIssue{
					Type:      rule.Name(),
					Severity:  "high",
					Message:   err.Error(),
					Timestamp: time.Now(),
					DocID:     doc.ID,
				}
				issues = append(issues, issue)
				tc.recordIssue(rule.Name())
				rejected = true
				break
			}
			doc = result
		}

		if rejected {
			tc.stats.Rejected++
			continue
		}
		tc.stats.Passed++
		cleaned = append(cleaned, *doc)
	}

	tc.stats.LastClean = time.Now()
	tc.issuesLock.Lock()
	tc.issues = append(tc.issues, issues...)
	tc.issuesLock.Unlock()

	return cleaned, issues
}

// Stats 返回清洗统计快照
func (tc *TextCleaner) Stats() CleaningStats {
	tc.statsLock.RLock()
	defer tc.statsLock.RUnlock()

	snapshot := tc.stats
	snapshot.Issues = make(map[string]int64, len(tc.stats.Issues))
	for k, v := range tc.stats.Issues {
		snapshot.Issues[k] = v
	}
	return snapshot
}

func (tc *TextCleaner) recordIssue(ruleName string) {
	tc.stats.Issues[ruleName]++
}

// EmptyTextRule 拒绝空文本
type EmptyTextRule struct{}

func NewEmptyTextRule() *EmptyTextRule { return &EmptyTextRule{} }

func (r *EmptyTextRule) Name() string { return "empty_text" }

func (r *EmptyTextRule) Apply(doc *corpus.Document) (*corpus.Document, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return nil, errors.New("text is empty")
	}
	if doc.ID == "" {
		return nil, errors.New("document id is empty")
	}
	return doc, nil
}

// MaxLengthRule 拒绝超长文本
type MaxLengthRule struct {
	maxRunes int
}

func NewMaxLengthRule(maxRunes int) *MaxLengthRule {
	if maxRunes <= 0 {
		maxRunes = 10000
	}
	return &MaxLengthRule{maxRunes: maxRunes}
}

func (r *MaxLengthRule) Name() string { return "max_length" }

func (r *MaxLengthRule) Apply(doc *corpus.Document) (*corpus.Document, error) {
	count := 0
	for range doc.Text {
		count++
		if count > r.maxRunes {
			return nil, fmt.Errorf("text exceeds %d runes", r.maxRunes)
		}
	}
	return doc, nil
}

// ControlCharRule 去除控制字符
type ControlCharRule struct{}

func NewControlCharRule() *ControlCharRule { return &ControlCharRule{} }

func (r *ControlCharRule) Name() string { return "control_chars" }

func (r *ControlCharRule) Apply(doc *corpus.Document) (*corpus.Document, error) {
	doc.Text = strings.Map(func(c rune) rune {
		if unicode.IsControl(c) && c != '\n' && c != '\t' {
			return -1
		}
		return c
	}, doc.Text)
	return doc, nil
}

// URLStripRule 去除URL，链接本身对攻击性文本分类没有信号
type URLStripRule struct {
	pattern *regexp.Regexp
}

func NewURLStripRule() *URLStripRule {
	return &URLStripRule{
		pattern: regexp.MustCompile(`https?://\S+`),
	}
}

func (r *URLStripRule) Name() string { return "url_strip" }

func (r *URLStripRule) Apply(doc *corpus.Document) (*corpus.Document, error) {
	doc.Text = r.pattern.ReplaceAllString(doc.Text, " ")
	return doc, nil
}

// WhitespaceRule 归一化空白
type WhitespaceRule struct {
	pattern *regexp.Regexp
}

func NewWhitespaceRule() *WhitespaceRule {
	return &WhitespaceRule{pattern: regexp.MustCompile(`\s+`)}
}

func (r *WhitespaceRule) Name() string { return "whitespace" }

func (r *WhitespaceRule) Apply(doc *corpus.Document) (*corpus.Document, error) {
	doc.Text = strings.TrimSpace(r.pattern.ReplaceAllString(doc.Text, " "))
	return doc, nil
}

// DuplicateRule 拒绝重复文本
type DuplicateRule struct {
	seen map[string]string // normalized text -> first doc id
	mu   sync.Mutex
}

func NewDuplicateRule() *DuplicateRule {
	return &DuplicateRule{seen: make(map[string]string)}
}

func (r *DuplicateRule) Name() string { return "duplicate" }

func (r *DuplicateRule) Apply(doc *corpus.Document) (*corpus.Document, error) {
	key := strings.ToLower(strings.TrimSpace(doc.Text))

	r.mu.Lock()
	defer r.mu.Unlock()
	if first, ok := r.seen[key]; ok && first != doc.ID {
		return nil, fmt.Errorf("duplicate of document %s", first)
	}
	r.seen[key] = doc.ID
	return doc, nil
}
