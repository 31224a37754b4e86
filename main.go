package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"textlabel/corpus"
	"textlabel/db"
	qhttp "textlabel/http"
	"textlabel/ml"
	"textlabel/pipeline"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"
)

type Config struct {
	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`
	Http struct {
		Port           int `yaml:"port"`
		TimeoutSeconds int `yaml:"timeout_seconds"`
	} `yaml:"http"`
	Log struct {
		Level      string `yaml:"level"`
		Path       string `yaml:"path"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
	} `yaml:"log"`
	Model struct {
		Path      string  `yaml:"path"`
		VocabPath string  `yaml:"vocab_path"`
		Threshold float64 `yaml:"threshold"`
	} `yaml:"model"`
	Ingest struct {
		WatchDir  string `yaml:"watch_dir"`
		Encoding  string `yaml:"encoding"`
		BatchSize int    `yaml:"batch_size"`
		Source    string `yaml:"source"`
	} `yaml:"ingest"`
	Pool struct {
		Limit int `yaml:"limit"`
	} `yaml:"pool"`
	Training struct {
		MinExamples int       `yaml:"min_examples"`
		TestRatio   float64   `yaml:"test_ratio"`
		MinTermFreq float64   `yaml:"min_term_freq"`
		MinDocFreq  int       `yaml:"min_doc_freq"`
		Folds       int       `yaml:"folds"`
		Lambdas     []float64 `yaml:"lambdas"`
		Workers     int       `yaml:"workers"`
	} `yaml:"training"`
}

func main() {
	// 1. Load config
	config, err := loadConfig("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := buildLogger(config)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer logger.Sync()

	// 2. Initialize database
	if err := db.InitDB(config.Database.Path); err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	logger.Info("database initialized", zap.String("path", config.Database.Path))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initializeServices(ctx, config, logger)

	// 3. Start HTTP server
	serverConfig := qhttp.DefaultServerConfig()
	if config.Http.Port > 0 {
		serverConfig.Port = config.Http.Port
	}
	if config.Http.TimeoutSeconds > 0 {
		serverConfig.Timeout = time.Duration(config.Http.TimeoutSeconds) * time.Second
	}
	server := qhttp.NewServer(serverConfig, logger)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server failed", zap.Error(err))
		}
	}()

	// 4. Handle graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	cancel()
	if err := server.Stop(); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := db.Close(); err != nil {
		logger.Error("failed to close database", zap.Error(err))
	}

	logger.Info("exiting")
}

func loadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	return &config, nil
}

func buildLogger(config *Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if config.Log.Level != "" {
		if err := level.Set(config.Log.Level); err != nil {
			return nil, err
		}
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	cores := []zapcore.Core{
		zapcore.NewCore(
			zapcore.NewConsoleEncoder(encoderConfig),
			zapcore.Lock(os.Stdout),
			level,
		),
	}
	if config.Log.Path != "" {
		rotated := &lumberjack.Logger{
			Filename:   config.Log.Path,
			MaxSize:    config.Log.MaxSizeMB,
			MaxBackups: config.Log.MaxBackups,
			MaxAge:     config.Log.MaxAgeDays,
		}
		cores = append(cores, zapcore.NewCore(
			zapcore.NewJSONEncoder(encoderConfig),
			zapcore.AddSync(rotated),
			level,
		))
	}
	return zap.New(zapcore.NewTee(cores...)), nil
}

func initializeServices(ctx context.Context, config *Config, logger *zap.Logger) {
	if config == nil {
		return
	}

	// Load the last trained model if one exists; the service can also run
	// cold until the first /api/train call.
	if config.Model.Path != "" && config.Model.VocabPath != "" {
		model, err := ml.LoadModel("lasso_logistic", config.Model.Path)
		if err != nil {
			logger.Warn("no model loaded at startup", zap.Error(err))
		} else {
			vocab, err := corpus.LoadVocabulary(config.Model.VocabPath)
			if err != nil {
				logger.Warn("model present but vocabulary missing", zap.Error(err))
			} else if vocab.Size() != model.NumFeatures() {
				logger.Warn("vocabulary does not match model, ignoring both",
					zap.Int("vocab_terms", vocab.Size()),
					zap.Int("model_features", model.NumFeatures()))
			} else {
				qhttp.SetClassifier(&qhttp.Classifier{
					Model:     model,
					Vocab:     vocab,
					Tokenizer: corpus.NewTokenizer(corpus.DefaultTokenizerConfig()),
					Threshold: threshold(config),
					ModelPath: config.Model.Path,
				})
				logger.Info("model loaded",
					zap.String("path", config.Model.Path),
					zap.Int("features", model.NumFeatures()))
			}
		}
	}

	qhttp.SetTrainingConfig(qhttp.TrainingConfig{
		ModelPath:   config.Model.Path,
		VocabPath:   config.Model.VocabPath,
		MinExamples: config.Training.MinExamples,
		TestRatio:   config.Training.TestRatio,
		Threshold:   threshold(config),
		MinTermFreq: config.Training.MinTermFreq,
		MinDocFreq:  config.Training.MinDocFreq,
		Tokenizer:   corpus.DefaultTokenizerConfig(),
		CrossVal: ml.CrossValConfig{
			Folds:   config.Training.Folds,
			Lambdas: config.Training.Lambdas,
			Workers: config.Training.Workers,
			Seed:    1,
		},
	})

	if config.Pool.Limit > 0 {
		qhttp.SetPoolLimit(config.Pool.Limit)
	}

	hub := qhttp.NewLiveHub(logger)
	qhttp.SetLiveHub(hub)
	go hub.Run(ctx)

	if config.Ingest.WatchDir != "" {
		ingester := pipeline.NewCSVIngester(pipeline.IngestionConfig{
			BatchSize: config.Ingest.BatchSize,
			Encoding:  config.Ingest.Encoding,
			Source:    config.Ingest.Source,
		}, sqliteStore{}, logger)
		if err := ingester.Watch(ctx, config.Ingest.WatchDir); err != nil {
			logger.Error("failed to watch drop directory", zap.Error(err))
		}
	}
}

func threshold(config *Config) float64 {
	if config.Model.Threshold > 0 && config.Model.Threshold < 1 {
		return config.Model.Threshold
	}
	return 0.5
}

// sqliteStore adapts the db package to the pipeline's DocumentStore.
type sqliteStore struct{}

func (sqliteStore) SaveBatch(ctx context.Context, docs []corpus.Document) error {
	return db.SaveDocuments(docs)
}
