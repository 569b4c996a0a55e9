package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfleet/streamvault/internal/models"
)

type JobRepository struct {
	db *sql.DB
}

func NewJobRepository(db *sql.DB) *JobRepository {
	return &JobRepository{db: db}
}

const jobColumns = `id, job_name, provider_id, status, last_execution, last_result,
	execution_count, last_provider_check, last_settings_check, last_policy_check,
	created_at, last_updated`

// GetJobHistory returns the row for (name, providerID), or nil when the job
// has never run.
func (r *JobRepository) GetJobHistory(name, providerID string) (*models.JobHistory, error) {
	row := r.db.QueryRow(`SELECT `+jobColumns+` FROM job_history
		WHERE job_name = $1 AND provider_id = $2`, name, providerID)

	j := &models.JobHistory{}
	var result []byte
	err := row.Scan(&j.ID, &j.JobName, &j.ProviderID, &j.Status, &j.LastExecution,
		&result, &j.ExecutionCount, &j.LastProviderCheck, &j.LastSettingsCheck,
		&j.LastPolicyCheck, &j.CreatedAt, &j.LastUpdated)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(result) > 0 && string(result) != "null" {
		j.LastResult = &models.JobResult{}
		if err := unmarshalJSON(result, j.LastResult); err != nil {
			return nil, fmt.Errorf("job %s last_result: %w", name, err)
		}
	}
	return j, nil
}

// UpdateJobStatus upserts the status of (name, providerID). Used to mark a
// job running before work starts, and cancelled from the outside.
func (r *JobRepository) UpdateJobStatus(name string, status models.JobStatus, providerID string) error {
	_, err := r.db.Exec(`INSERT INTO job_history (id, job_name, provider_id, status)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_name, provider_id) DO UPDATE SET
		 status = EXCLUDED.status, last_updated = now()`,
		uuid.New(), name, providerID, status)
	return err
}

// UpdateJobHistory records a finished run: status derives from result.Error,
// execution_count increments, and last_execution advances only on success so
// failed runs re-process the same window on retry (I5).
func (r *JobRepository) UpdateJobHistory(name string, result *models.JobResult, providerID string) error {
	status := models.JobCompleted
	if result != nil && result.Error != "" {
		status = models.JobFailed
	}
	query := `INSERT INTO job_history (id, job_name, provider_id, status, last_result, execution_count, last_execution)
		VALUES ($1, $2, $3, $4, $5, 1, CASE WHEN $6 THEN now() ELSE NULL END)
		ON CONFLICT (job_name, provider_id) DO UPDATE SET
		 status = EXCLUDED.status,
		 last_result = EXCLUDED.last_result,
		 execution_count = job_history.execution_count + 1,
		 last_execution = CASE WHEN $6 THEN now() ELSE job_history.last_execution END,
		 last_updated = now()`
	_, err := r.db.Exec(query, uuid.New(), name, providerID, status,
		mustJSON(result), status == models.JobCompleted)
	return err
}

// checkColumns whitelists the monitor watermark columns stored at the top
// level of the row (not inside last_result).
var checkColumns = map[string]bool{
	"last_provider_check": true,
	"last_settings_check": true,
	"last_policy_check":   true,
}

// UpdateCheckTimestamp advances one of the config-monitor watermarks.
func (r *JobRepository) UpdateCheckTimestamp(name, column string, t time.Time) error {
	if !checkColumns[column] {
		return fmt.Errorf("unknown check column %q", column)
	}
	query := fmt.Sprintf(`INSERT INTO job_history (id, job_name, provider_id, status, %s)
		VALUES ($1, $2, '', 'completed', $3)
		ON CONFLICT (job_name, provider_id) DO UPDATE SET
		 %s = EXCLUDED.%s, last_updated = now()`, column, column, column)
	_, err := r.db.Exec(query, uuid.New(), name, t)
	return err
}

// ResetInProgressJobs transitions every running row to cancelled. Called on
// startup before the scheduler arms any interval (P9).
func (r *JobRepository) ResetInProgressJobs() (int64, error) {
	res, err := r.db.Exec(`UPDATE job_history SET status = $1, last_updated = now()
		WHERE status = $2`, models.JobCancelled, models.JobRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ListJobHistory returns the most recent job rows for the control plane.
func (r *JobRepository) ListJobHistory(limit int) ([]*models.JobHistory, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(`SELECT `+jobColumns+` FROM job_history
		ORDER BY last_updated DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.JobHistory
	for rows.Next() {
		j := &models.JobHistory{}
		var result []byte
		if err := rows.Scan(&j.ID, &j.JobName, &j.ProviderID, &j.Status, &j.LastExecution,
			&result, &j.ExecutionCount, &j.LastProviderCheck, &j.LastSettingsCheck,
			&j.LastPolicyCheck, &j.CreatedAt, &j.LastUpdated); err != nil {
			return nil, err
		}
		if len(result) > 0 && string(result) != "null" {
			j.LastResult = &models.JobResult{}
			if err := unmarshalJSON(result, j.LastResult); err != nil {
				return nil, err
			}
		}
		out = append(out, j)
	}
	return out, rows.Err()
}
