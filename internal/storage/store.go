// Package storage persists appraisal records and the vision detection cache
// in SQLite. Appraised item payloads are encrypted at rest: inventory
// valuations are sensitive user data.
package storage

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"appraisald/internal/dedup"
)

// AppraisalStatus values for a stored record.
const (
	StatusPending  = "pending"
	StatusComplete = "complete"
	StatusFailed   = "failed"
)

// AppraisalRecord is a persisted report-generation result.
type AppraisalRecord struct {
	ID         string
	CreatedAt  time.Time
	Language   string
	Currency   string
	SingleItem bool
	Status     string
	FilePath   string
	FileName   string
	TotalValue float64
	Products   []*dedup.ReportableProduct
}

// Store defines the persistence interface for appraisals.
type Store interface {
	SaveAppraisal(record *AppraisalRecord) error
	GetAppraisal(id string) (*AppraisalRecord, error)
	ListAppraisals(limit int) ([]*AppraisalRecord, error)

	// Detection cache methods (vision.DetectionCache)
	GetDetectionCache(hash string) ([]byte, error)
	SetDetectionCache(hash string, payload []byte) error

	Close() error
}

// SQLiteStore implements Store using SQLite with encrypted item payloads.
type SQLiteStore struct {
	db            *sql.DB
	encryptionKey []byte
}

// NewSQLiteStore creates a new SQLite-based appraisal store.
func NewSQLiteStore(dbPath string, encryptionKey []byte) (*SQLiteStore, error) {
	// WAL mode and busy timeout for better concurrency
	dsn := fmt.Sprintf("%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db, encryptionKey: encryptionKey}
	if err := store.init(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	query := `
	CREATE TABLE IF NOT EXISTS appraisals (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		language TEXT NOT NULL,
		currency TEXT NOT NULL,
		single_item INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		file_path TEXT NOT NULL DEFAULT '',
		file_name TEXT NOT NULL DEFAULT '',
		total_value REAL NOT NULL DEFAULT 0,
		encrypted_products TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS detection_cache (
		request_hash TEXT PRIMARY KEY,
		payload TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`

	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

// SaveAppraisal inserts or replaces an appraisal record.
func (s *SQLiteStore) SaveAppraisal(record *AppraisalRecord) error {
	productsJSON, err := json.Marshal(record.Products)
	if err != nil {
		return fmt.Errorf("failed to marshal products: %w", err)
	}
	encrypted, err := Encrypt(productsJSON, s.encryptionKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt products: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT OR REPLACE INTO appraisals
		(id, created_at, language, currency, single_item, status, file_path, file_name, total_value, encrypted_products)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID,
		record.CreatedAt.Unix(),
		record.Language,
		record.Currency,
		boolToInt(record.SingleItem),
		record.Status,
		record.FilePath,
		record.FileName,
		record.TotalValue,
		encrypted,
	)
	if err != nil {
		return fmt.Errorf("failed to save appraisal: %w", err)
	}
	return nil
}

// GetAppraisal fetches one record by ID, or nil if absent.
func (s *SQLiteStore) GetAppraisal(id string) (*AppraisalRecord, error) {
	row := s.db.QueryRow(`
		SELECT id, created_at, language, currency, single_item, status, file_path, file_name, total_value, encrypted_products
		FROM appraisals WHERE id = ?`, id)

	record, err := s.scanAppraisal(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return record, err
}

// ListAppraisals returns the most recent records, newest first.
func (s *SQLiteStore) ListAppraisals(limit int) ([]*AppraisalRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, created_at, language, currency, single_item, status, file_path, file_name, total_value, encrypted_products
		FROM appraisals ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list appraisals: %w", err)
	}
	defer rows.Close()

	var records []*AppraisalRecord
	for rows.Next() {
		record, err := s.scanAppraisal(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanAppraisal(row rowScanner) (*AppraisalRecord, error) {
	var record AppraisalRecord
	var createdAt int64
	var singleItem int
	var encrypted string

	err := row.Scan(
		&record.ID,
		&createdAt,
		&record.Language,
		&record.Currency,
		&singleItem,
		&record.Status,
		&record.FilePath,
		&record.FileName,
		&record.TotalValue,
		&encrypted,
	)
	if err != nil {
		return nil, err
	}

	record.CreatedAt = time.Unix(createdAt, 0)
	record.SingleItem = singleItem != 0

	if encrypted != "" {
		productsJSON, err := Decrypt(encrypted, s.encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("failed to decrypt products for %s: %w", record.ID, err)
		}
		if err := json.Unmarshal(productsJSON, &record.Products); err != nil {
			return nil, fmt.Errorf("failed to unmarshal products for %s: %w", record.ID, err)
		}
	}

	return &record, nil
}

// GetDetectionCache returns the cached detection payload for a request
// hash, or nil on a miss.
func (s *SQLiteStore) GetDetectionCache(hash string) ([]byte, error) {
	var payload string
	err := s.db.QueryRow(`SELECT payload FROM detection_cache WHERE request_hash = ?`, hash).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read detection cache: %w", err)
	}
	return []byte(payload), nil
}

// SetDetectionCache stores a detection payload under a request hash.
func (s *SQLiteStore) SetDetectionCache(hash string, payload []byte) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO detection_cache (request_hash, payload, created_at)
		VALUES (?, ?, ?)`, hash, string(payload), time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to write detection cache: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
