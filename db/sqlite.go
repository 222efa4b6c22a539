package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var (
	mu       sync.RWMutex
	database *sql.DB
)

var ErrNotInitialized = errors.New("database not initialized")

// InitDB opens (or creates) the SQLite history database.
func InitDB(path string) error {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return err
	}

	query := `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        features TEXT NOT NULL,
        predicted_label INTEGER NOT NULL,
        result TEXT NOT NULL,
        confidence REAL,
        model_version VARCHAR(64),
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        model_version VARCHAR(64),
        accuracy REAL,
        precision REAL,
        recall REAL,
        trained_at DATETIME,
        data_points INTEGER
    );
    `
	if _, err := conn.Exec(query); err != nil {
		conn.Close()
		return err
	}

	mu.Lock()
	defer mu.Unlock()
	if database != nil {
		database.Close()
	}
	database = conn
	return nil
}

func Close() error {
	mu.Lock()
	defer mu.Unlock()
	if database == nil {
		return nil
	}
	err := database.Close()
	database = nil
	return err
}

func Initialized() bool {
	mu.RLock()
	defer mu.RUnlock()
	return database != nil
}

func conn() (*sql.DB, error) {
	mu.RLock()
	defer mu.RUnlock()
	if database == nil {
		return nil, ErrNotInitialized
	}
	return database, nil
}

type Prediction struct {
	ID           string             `json:"id"`
	Features     map[string]float64 `json:"features"`
	Label        int                `json:"label"`
	Result       string             `json:"result"`
	Confidence   float64            `json:"confidence"`
	ModelVersion string             `json:"model_version"`
	CreatedAt    time.Time          `json:"created_at"`
}

func SavePrediction(p Prediction) error {
	database, err := conn()
	if err != nil {
		return err
	}
	if p.ID == "" {
		return errors.New("prediction id required")
	}
	features, err := json.Marshal(p.Features)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err = database.Exec(`
        INSERT INTO predictions (id, features, predicted_label, result, confidence, model_version, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, string(features), p.Label, p.Result, p.Confidence, p.ModelVersion, p.CreatedAt)
	return err
}

// QueryPredictions returns the newest predictions first.
func QueryPredictions(limit int) ([]Prediction, error) {
	database, err := conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := database.Query(`
        SELECT id, features, predicted_label, result, confidence, model_version, created_at
        FROM predictions
        ORDER BY created_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	predictions := make([]Prediction, 0)
	for rows.Next() {
		var p Prediction
		var features string
		var confidence sql.NullFloat64
		var version sql.NullString
		if err := rows.Scan(&p.ID, &features, &p.Label, &p.Result, &confidence, &version, &p.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &p.Features); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", p.ID, err)
		}
		p.Confidence = confidence.Float64
		p.ModelVersion = version.String
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

type TrainingLog struct {
	ModelName    string    `json:"model_name"`
	ModelVersion string    `json:"model_version"`
	Accuracy     float64   `json:"accuracy"`
	Precision    float64   `json:"precision"`
	Recall       float64   `json:"recall"`
	TrainedAt    time.Time `json:"trained_at"`
	DataPoints   int       `json:"data_points"`
}

func SaveTrainingLog(entry TrainingLog) error {
	database, err := conn()
	if err != nil {
		return err
	}
	_, err = database.Exec(`
        INSERT INTO training_log (model_name, model_version, accuracy, precision, recall, trained_at, data_points)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.ModelName, entry.ModelVersion, entry.Accuracy, entry.Precision, entry.Recall, entry.TrainedAt, entry.DataPoints)
	return err
}

func LoadTrainingLog() ([]TrainingLog, error) {
	database, err := conn()
	if err != nil {
		return nil, err
	}
	rows, err := database.Query(`
        SELECT model_name, model_version, accuracy, precision, recall, trained_at, data_points
        FROM training_log
        ORDER BY trained_at DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var version sql.NullString
		if err := rows.Scan(&log.ModelName, &version, &log.Accuracy, &log.Precision, &log.Recall, &log.TrainedAt, &log.DataPoints); err != nil {
			return nil, err
		}
		log.ModelVersion = version.String
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
