package pipeline

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"textlabel/corpus"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

// IngestionConfig 数据摄取配置
type IngestionConfig struct {
	BatchSize int    `json:"batch_size" yaml:"batch_size"`
	Encoding  string `json:"encoding" yaml:"encoding"` // utf-8 (default) or gbk
	Source    string `json:"source" yaml:"source"`
}

// IngestionStats 摄取统计
type IngestionStats struct {
	TotalDocuments int64     `json:"total_documents"`
	Rejected       int64     `json:"rejected"`
	FilesProcessed int64     `json:"files_processed"`
	LastIngestion  time.Time `json:"last_ingestion"`
}

// DocumentStore 文档存储接口
type DocumentStore interface {
	SaveBatch(ctx context.Context, docs []corpus.Document) error
}

// CSVIngester 从CSV文件批量摄取文档
type CSVIngester struct {
	config  IngestionConfig
	cleaner *TextCleaner
	store   DocumentStore
	logger  *zap.Logger

	stats     IngestionStats
	statsLock sync.RWMutex

	watcher  *fsnotify.Watcher
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewCSVIngester 创建CSV摄取器
func NewCSVIngester(config IngestionConfig, store DocumentStore, logger *zap.Logger) *CSVIngester {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.Encoding == "" {
		config.Encoding = "utf-8"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CSVIngester{
		config:   config,
		cleaner:  NewTextCleaner(),
		store:    store,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// IngestFile 摄取单个CSV文件，返回保存的文档数
func (ci *CSVIngester) IngestFile(ctx context.Context, path string) (int, error) {
	docs, err := ReadDocumentsCSV(path, ci.config.Encoding)
	if err != nil {
		return 0, err
	}
	for i := range docs {
		if docs[i].Source == "" {
			docs[i].Source = ci.config.Source
		}
	}

	cleaned, issues := ci.cleaner.Clean(docs)
	if len(issues) > 0 {
		ci.logger.Warn("documents rejected during cleaning",
			zap.String("file", path),
			zap.Int("rejected", len(issues)))
	}

	saved := 0
	for start := 0; start < len(cleaned); start += ci.config.BatchSize {
		end := start + ci.config.BatchSize
		if end > len(cleaned) {
			end = len(cleaned)
		}
		if err := ci.store.SaveBatch(ctx, cleaned[start:end]); err != nil {
			return saved, fmt.Errorf("save batch: %w", err)
		}
		saved += end - start
	}

	ci.statsLock.Lock()
	ci.stats.TotalDocuments += int64(saved)
	ci.stats.Rejected += int64(len(issues))
	ci.stats.FilesProcessed++
	ci.stats.LastIngestion = time.Now()
	ci.statsLock.Unlock()

	ci.logger.Info("ingested file",
		zap.String("file", path),
		zap.Int("saved", saved),
		zap.Int("rejected", len(issues)))
	return saved, nil
}

// Watch 监视目录，新出现的CSV文件会被自动摄取
func (ci *CSVIngester) Watch(ctx context.Context, dir string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}
	ci.watcher = watcher

	ci.wg.Add(1)
	go func() {
		defer ci.wg.Done()
		defer watcher.Close()
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				if !strings.EqualFold(filepath.Ext(event.Name), ".csv") {
					continue
				}
				// Writers may still be flushing right after create.
				time.Sleep(200 * time.Millisecond)
				if _, err := ci.IngestFile(ctx, event.Name); err != nil {
					ci.logger.Error("failed to ingest dropped file",
						zap.String("file", event.Name),
						zap.Error(err))
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				ci.logger.Error("watcher error", zap.Error(err))
			case <-ci.stopChan:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	ci.logger.Info("watching drop directory", zap.String("dir", dir))
	return nil
}

// Stop 停止监视
func (ci *CSVIngester) Stop() {
	close(ci.stopChan)
	ci.wg.Wait()
}

// Stats 返回摄取统计快照
func (ci *CSVIngester) Stats() IngestionStats {
	ci.statsLock.RLock()
	defer ci.statsLock.RUnlock()
	return ci.stats
}

// ReadDocumentsCSV parses a CSV of unlabeled documents. The header must
// contain id and text columns; a source column is optional.
func ReadDocumentsCSV(path, encoding string) ([]corpus.Document, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := newCSVReader(file, encoding)
	if err != nil {
		return nil, err
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idCol, textCol, sourceCol, _, err := headerColumns(header, false)
	if err != nil {
		return nil, err
	}

	var docs []corpus.Document
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		doc := corpus.Document{ID: field(record, idCol), Text: field(record, textCol)}
		if sourceCol >= 0 {
			doc.Source = field(record, sourceCol)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ReadLabeledCSV parses a CSV of labeled documents. The header must contain
// id, text and label columns; labels must be 0 or 1.
func ReadLabeledCSV(path, encoding string) ([]corpus.LabeledDocument, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := newCSVReader(file, encoding)
	if err != nil {
		return nil, err
	}

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	idCol, textCol, sourceCol, labelCol, err := headerColumns(header, true)
	if err != nil {
		return nil, err
	}

	var docs []corpus.LabeledDocument
	line := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		line++
		label, err := strconv.Atoi(strings.TrimSpace(field(record, labelCol)))
		if err != nil || (label != 0 && label != 1) {
			return nil, fmt.Errorf("line %d: label must be 0 or 1, got %q", line, field(record, labelCol))
		}
		doc := corpus.LabeledDocument{
			Document: corpus.Document{ID: field(record, idCol), Text: field(record, textCol)},
			Label:    label,
		}
		if sourceCol >= 0 {
			doc.Source = field(record, sourceCol)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func newCSVReader(file *os.File, encoding string) (*csv.Reader, error) {
	var source io.Reader = file
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
	case "gbk":
		source = transform.NewReader(file, simplifiedchinese.GBK.NewDecoder())
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
	reader := csv.NewReader(source)
	reader.FieldsPerRecord = -1
	return reader, nil
}

func field(record []string, col int) string {
	if col < 0 || col >= len(record) {
		return ""
	}
	return record[col]
}

func headerColumns(header []string, requireLabel bool) (idCol, textCol, sourceCol, labelCol int, err error) {
	idCol, textCol, sourceCol, labelCol = -1, -1, -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "id", "doc_id":
			idCol = i
		case "text", "comment":
			textCol = i
		case "source":
			sourceCol = i
		case "label":
			labelCol = i
		}
	}
	if idCol < 0 || textCol < 0 {
		return 0, 0, 0, 0, errors.New("csv header must contain id and text columns")
	}
	if requireLabel && labelCol < 0 {
		return 0, 0, 0, 0, errors.New("csv header must contain a label column")
	}
	return idCol, textCol, sourceCol, labelCol, nil
}
