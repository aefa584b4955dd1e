package repo

import (
	"context"
	"database/sql"

	"siteplan/internal/domain"
)

func (r Repo) InsertConstraint(ctx context.Context, c domain.SchedulingConstraint) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO scheduling_constraints(id,project_id,task_id,constraint_type,constraint_date,created_at)
		 VALUES (?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.TaskID, c.Type, c.ConstraintDate, c.CreatedAt)
	return err
}

func (r Repo) ListConstraints(ctx context.Context, projectID string) ([]domain.SchedulingConstraint, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,project_id,task_id,constraint_type,constraint_date,created_at
		 FROM scheduling_constraints WHERE project_id=? ORDER BY created_at, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SchedulingConstraint
	for rows.Next() {
		var c domain.SchedulingConstraint
		if err := rows.Scan(&c.ID, &c.ProjectID, &c.TaskID, &c.Type, &c.ConstraintDate, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) DeleteConstraint(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM scheduling_constraints WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConflict(sc interface{ Scan(...any) error }) (domain.SchedulingConflict, error) {
	var c domain.SchedulingConflict
	var tasksJSON, resourcesJSON string
	var note sql.NullString
	err := sc.Scan(&c.ID, &c.ProjectID, &c.Type, &c.Description, &tasksJSON, &resourcesJSON,
		&c.ResolutionStatus, &note, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if err != nil {
		return c, err
	}
	c.AffectedTasks = unmarshalStringSlice(tasksJSON)
	c.AffectedResources = unmarshalStringSlice(resourcesJSON)
	if note.Valid {
		c.ResolutionNote = note.String
	}
	return c, nil
}

const conflictColumns = `id,project_id,conflict_type,description,affected_tasks,affected_resources,resolution_status,resolution_note,created_at,updated_at`

func (r Repo) InsertConflictTx(ctx context.Context, tx *sql.Tx, c domain.SchedulingConflict) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO scheduling_conflicts(id,project_id,conflict_type,description,affected_tasks,affected_resources,resolution_status,resolution_note,created_at,updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		c.ID, c.ProjectID, c.Type, c.Description, marshalStringSlice(c.AffectedTasks),
		marshalStringSlice(c.AffectedResources), c.ResolutionStatus, nullable(c.ResolutionNote),
		c.CreatedAt, c.UpdatedAt)
	return err
}

// DeleteUnresolvedConflictsTx clears auto-detected conflicts before a fresh
// detection pass; resolved and ignored rows are kept as history.
func (r Repo) DeleteUnresolvedConflictsTx(ctx context.Context, tx *sql.Tx, projectID string) error {
	_, err := tx.ExecContext(ctx,
		`DELETE FROM scheduling_conflicts WHERE project_id=? AND resolution_status=?`,
		projectID, domain.ResolutionUnresolved)
	return err
}

func (r Repo) GetConflict(ctx context.Context, id string) (domain.SchedulingConflict, error) {
	return scanConflict(r.DB.QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM scheduling_conflicts WHERE id=?`, id))
}

func (r Repo) ListConflicts(ctx context.Context, projectID string) ([]domain.SchedulingConflict, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM scheduling_conflicts WHERE project_id=? ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SchedulingConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (r Repo) UpdateConflictResolutionTx(ctx context.Context, tx *sql.Tx, id, status, note, updatedAt string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE scheduling_conflicts SET resolution_status=?, resolution_note=?, updated_at=? WHERE id=?`,
		status, nullable(note), updatedAt, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertHistoryTx(ctx context.Context, tx *sql.Tx, h domain.SchedulingHistory) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO scheduling_history(id,project_id,operation,options_json,task_count,conflict_count,created_at)
		 VALUES (?,?,?,?,?,?,?)`,
		h.ID, h.ProjectID, h.Operation, h.OptionsJSON, h.TaskCount, h.ConflictCount, h.CreatedAt)
	return err
}

func (r Repo) ListHistory(ctx context.Context, projectID string) ([]domain.SchedulingHistory, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,project_id,operation,options_json,task_count,conflict_count,created_at
		 FROM scheduling_history WHERE project_id=? ORDER BY created_at DESC, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.SchedulingHistory
	for rows.Next() {
		var h domain.SchedulingHistory
		if err := rows.Scan(&h.ID, &h.ProjectID, &h.Operation, &h.OptionsJSON, &h.TaskCount, &h.ConflictCount, &h.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, h)
	}
	return res, rows.Err()
}
