package logic

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"ImageToText/models"
)

const Schema = `CREATE TABLE IF NOT EXISTS image_job (
	id               SERIAL PRIMARY KEY,
	image_path       TEXT NOT NULL,
	output_type      TEXT NOT NULL DEFAULT 'raw',
	description      TEXT,
	output_structure TEXT,
	status           TEXT NOT NULL DEFAULT 'pending',
	result_text      TEXT,
	result_json      TEXT,
	error_message    TEXT
)`

// Store persists image jobs in postgres.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("create image_job table: %w", err)
	}
	return nil
}

// CreateJob queues a new pending job and sets its id.
func (s *Store) CreateJob(ctx context.Context, job *models.ImageJob) error {
	err := s.db.QueryRowContext(ctx,
		"INSERT INTO image_job (image_path, output_type, description, output_structure, status) VALUES ($1, $2, $3, $4, $5) RETURNING id",
		job.ImagePath, job.OutputType, job.Description, job.OutputStructure, models.JobStatusPending,
	).Scan(&job.Id)
	if err != nil {
		return fmt.Errorf("insert image job: %w", err)
	}
	job.Status = models.JobStatusPending
	return nil
}

func (s *Store) PendingJobs(ctx context.Context, limit int) ([]models.ImageJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, image_path, output_type, COALESCE(description, ''), COALESCE(output_structure, ''), status FROM image_job WHERE status = $1 ORDER BY id LIMIT $2",
		models.JobStatusPending, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("select pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []models.ImageJob
	for rows.Next() {
		var job models.ImageJob
		if err := rows.Scan(&job.Id, &job.ImagePath, &job.OutputType, &job.Description, &job.OutputStructure, &job.Status); err != nil {
			return nil, fmt.Errorf("scan pending job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending jobs: %w", err)
	}

	return jobs, nil
}

// FinishJob stores the outcome of a job: its status, the extracted text and
// the raw result, or the error message.
func (s *Store) FinishJob(ctx context.Context, job *models.ImageJob) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE image_job SET status = $1, result_text = $2, result_json = $3, error_message = $4 WHERE id = $5",
		job.Status, job.ResultText, job.ResultJson, job.ErrorMessage, job.Id,
	)
	if err != nil {
		return fmt.Errorf("update image job %d: %w", job.Id, err)
	}
	return nil
}

// ApplyResult fills a job from a Process outcome. The extracted text is kept
// even when the full result cannot be encoded; in that case result_json stays
// empty, the encode failure is noted in error_message and returned.
func ApplyResult(job *models.ImageJob, result *models.ExtractionResult, processErr error) error {
	if processErr != nil {
		msg := processErr.Error()
		job.Status = models.JobStatusFailed
		job.ErrorMessage = &msg
		job.ResultText = nil
		job.ResultJson = nil
		return nil
	}

	text := PlainText(result, job.OutputType)
	job.Status = models.JobStatusFinished
	job.ResultText = &text
	job.ErrorMessage = nil
	job.ResultJson = nil

	raw, err := json.Marshal(result)
	if err != nil {
		err = fmt.Errorf("encode result of image job %d: %w", job.Id, err)
		msg := err.Error()
		job.ErrorMessage = &msg
		return err
	}
	rawStr := string(raw)
	job.ResultJson = &rawStr
	return nil
}
