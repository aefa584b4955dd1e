package repo

import (
	"context"
	"database/sql"

	"siteplan/internal/domain"
)

const taskColumns = `id,project_id,template_id,job_id,name,COALESCE(description,'') AS description,status,estimated_duration,scheduled_start,scheduled_end,is_milestone,created_at,updated_at`

func scanTask(sc interface{ Scan(...any) error }) (domain.Task, error) {
	var t domain.Task
	err := sc.Scan(&t.ID, &t.ProjectID, &t.TemplateID, &t.JobID, &t.Name, &t.Description,
		&t.Status, &t.EstimatedDuration, &t.ScheduledStart, &t.ScheduledEnd, &t.IsMilestone,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) InsertTask(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO project_tasks(id,project_id,template_id,job_id,name,description,status,estimated_duration,scheduled_start,scheduled_end,is_milestone,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.ProjectID, t.TemplateID, t.JobID, t.Name, nullable(t.Description), t.Status,
		t.EstimatedDuration, t.ScheduledStart, t.ScheduledEnd, t.IsMilestone, t.CreatedAt, t.UpdatedAt)
	return err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return scanTask(r.DB.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM project_tasks WHERE id=?`, id))
}

// ListTasks returns the project's tasks ordered by scheduled start (nulls
// last), then creation time, matching the store's read order.
func (r Repo) ListTasks(ctx context.Context, projectID string) ([]domain.Task, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM project_tasks WHERE project_id=?
		 ORDER BY scheduled_start IS NULL, scheduled_start, created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, rows.Err()
}

// UpdateTaskScheduleTx rewrites a task's schedule fields inside the caller's
// transaction. Used by the bulk writeback after generation/optimization.
func (r Repo) UpdateTaskScheduleTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE project_tasks SET status=?, scheduled_start=?, scheduled_end=?, estimated_duration=?, updated_at=? WHERE id=?`,
		t.Status, t.ScheduledStart, t.ScheduledEnd, t.EstimatedDuration, t.UpdatedAt, t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) DeleteTask(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM project_tasks WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertDependencyTx(ctx context.Context, tx *sql.Tx, d domain.TaskDependency) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO task_dependencies(id,project_id,predecessor_task_id,successor_task_id,dependency_type,created_at)
		 VALUES (?,?,?,?,?,?)`,
		d.ID, d.ProjectID, d.PredecessorID, d.SuccessorID, d.Type, d.CreatedAt)
	return err
}

func (r Repo) ListDependencies(ctx context.Context, projectID string) ([]domain.TaskDependency, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,project_id,predecessor_task_id,successor_task_id,dependency_type,created_at
		 FROM task_dependencies WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.TaskDependency
	for rows.Next() {
		var d domain.TaskDependency
		if err := rows.Scan(&d.ID, &d.ProjectID, &d.PredecessorID, &d.SuccessorID, &d.Type, &d.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, rows.Err()
}

func (r Repo) DeleteDependency(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM task_dependencies WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertJob(ctx context.Context, j domain.Job) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO jobs(id,project_id,name,description,scheduled_start_date,scheduled_end_date,created_at) VALUES (?,?,?,?,?,?,?)`,
		j.ID, j.ProjectID, j.Name, nullable(j.Description), j.ScheduledStartDate, j.ScheduledEndDate, j.CreatedAt)
	return err
}

func (r Repo) ListJobs(ctx context.Context, projectID string) ([]domain.Job, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,project_id,name,COALESCE(description,'') AS description,scheduled_start_date,scheduled_end_date,created_at
		 FROM jobs WHERE project_id=? ORDER BY scheduled_start_date IS NULL, scheduled_start_date, created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Job
	for rows.Next() {
		var j domain.Job
		if err := rows.Scan(&j.ID, &j.ProjectID, &j.Name, &j.Description, &j.ScheduledStartDate, &j.ScheduledEndDate, &j.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, j)
	}
	return res, rows.Err()
}
