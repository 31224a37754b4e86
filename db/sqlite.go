package db

import (
	"database/sql"
	"errors"
	"time"

	"textlabel/corpus"
	_ "github.com/mattn/go-sqlite3"
)

var database *sql.DB

// InitDB initializes the SQLite annotation store
func InitDB(path string) error {
	var err error
	database, err = sql.Open("sqlite3", path)
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS documents (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        doc_id TEXT NOT NULL UNIQUE,
        text TEXT NOT NULL,
        source TEXT,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS annotations (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        doc_id TEXT NOT NULL UNIQUE,
        label INTEGER NOT NULL,
        annotator TEXT,
        annotated_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS annotation_rounds (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_path TEXT,
        pool_size INTEGER,
        selected INTEGER,
        started_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY,
        model_name VARCHAR(50),
        lambda REAL,
        accuracy REAL,
        precision REAL,
        recall REAL,
        f1 REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `

	_, err = database.Exec(query)
	return err
}

func Close() error {
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

// SaveDocuments inserts a batch of documents, skipping duplicates by doc_id.
func SaveDocuments(docs []corpus.Document) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if len(docs) == 0 {
		return nil
	}

	tx, err := database.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
        INSERT OR IGNORE INTO documents (doc_id, text, source)
        VALUES (?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, doc := range docs {
		if doc.ID == "" || doc.Text == "" {
			tx.Rollback()
			return errors.New("document id and text are required")
		}
		if _, err := stmt.Exec(doc.ID, doc.Text, doc.Source); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// QueryUnlabeled returns documents without an annotation, oldest first.
func QueryUnlabeled(limit int) ([]corpus.Document, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := database.Query(`
        SELECT d.doc_id, d.text, d.source
        FROM documents d
        LEFT JOIN annotations a ON d.doc_id = a.doc_id
        WHERE a.doc_id IS NULL
        ORDER BY d.id
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []corpus.Document
	for rows.Next() {
		var doc corpus.Document
		var source sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Text, &source); err != nil {
			return nil, err
		}
		if source.Valid {
			doc.Source = source.String
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// QueryLabeled returns every annotated document with its label.
func QueryLabeled() ([]corpus.LabeledDocument, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT d.doc_id, d.text, d.source, a.label
        FROM documents d
        JOIN annotations a ON d.doc_id = a.doc_id
        ORDER BY d.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []corpus.LabeledDocument
	for rows.Next() {
		var doc corpus.LabeledDocument
		var source sql.NullString
		if err := rows.Scan(&doc.ID, &doc.Text, &source, &doc.Label); err != nil {
			return nil, err
		}
		if source.Valid {
			doc.Source = source.String
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SaveAnnotation records a human label for a document. Re-annotating a
// document replaces the previous label.
func SaveAnnotation(docID string, label int, annotator string) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	if docID == "" {
		return errors.New("doc_id is required")
	}
	if label != 0 && label != 1 {
		return errors.New("label must be 0 or 1")
	}

	var exists int
	err := database.QueryRow(`SELECT COUNT(1) FROM documents WHERE doc_id = ?`, docID).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return errors.New("unknown document")
	}

	_, err = database.Exec(`
        INSERT OR REPLACE INTO annotations (doc_id, label, annotator, annotated_at)
        VALUES (?, ?, ?, ?)`,
		docID, label, annotator, time.Now().UTC())
	return err
}

// SaveRound records one uncertainty-sampling selection round.
func SaveRound(modelPath string, poolSize, selected int) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO annotation_rounds (model_path, pool_size, selected)
        VALUES (?, ?, ?)`,
		modelPath, poolSize, selected)
	return err
}

type AnnotationRound struct {
	ModelPath string    `json:"model_path"`
	PoolSize  int       `json:"pool_size"`
	Selected  int       `json:"selected"`
	StartedAt time.Time `json:"started_at"`
}

// LoadRounds returns the most recent selection rounds, newest first.
func LoadRounds(limit int) ([]AnnotationRound, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := database.Query(`
        SELECT model_path, pool_size, selected, started_at
        FROM annotation_rounds
        ORDER BY id DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rounds []AnnotationRound
	for rows.Next() {
		var round AnnotationRound
		var modelPath sql.NullString
		if err := rows.Scan(&modelPath, &round.PoolSize, &round.Selected, &round.StartedAt); err != nil {
			return nil, err
		}
		if modelPath.Valid {
			round.ModelPath = modelPath.String
		}
		rounds = append(rounds, round)
	}
	return rounds, rows.Err()
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Lambda     float64   `json:"lambda"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	F1         float64   `json:"f1"`
	TrainedAt  time.Time `json:"trained_at"`
	DataPoints int       `json:"data_points"`
}

func SaveTrainingLog(entry TrainingLog) error {
	if database == nil {
		return errors.New("database not initialized")
	}
	_, err := database.Exec(`
        INSERT INTO training_log (model_name, lambda, accuracy, precision, recall, f1, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.Lambda, entry.Accuracy, entry.Precision, entry.Recall, entry.F1, entry.TrainedAt, entry.DataPoints)
	return err
}

func LoadTrainingLog() ([]TrainingLog, error) {
	if database == nil {
		return nil, errors.New("database not initialized")
	}
	rows, err := database.Query(`
        SELECT model_name, lambda, accuracy, precision, recall, f1, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var entry TrainingLog
		if err := rows.Scan(&entry.ModelName, &entry.Lambda, &entry.Accuracy, &entry.Precision, &entry.Recall, &entry.F1, &entry.TrainedAt, &entry.DataPoints); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
