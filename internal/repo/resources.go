package repo

import (
	"context"
	"database/sql"

	"siteplan/internal/domain"
)

func (r Repo) InsertResourceType(ctx context.Context, rt domain.ResourceType) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO resource_types(id,name,description,created_at) VALUES (?,?,?,?)`,
		rt.ID, rt.Name, nullable(rt.Description), rt.CreatedAt)
	return err
}

func (r Repo) ListResourceTypes(ctx context.Context) ([]domain.ResourceType, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,name,COALESCE(description,'') AS description,created_at FROM resource_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ResourceType
	for rows.Next() {
		var rt domain.ResourceType
		if err := rows.Scan(&rt.ID, &rt.Name, &rt.Description, &rt.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, rt)
	}
	return res, rows.Err()
}

func (r Repo) InsertResource(ctx context.Context, res domain.Resource) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO resources(id,resource_type_id,name,is_active,created_at) VALUES (?,?,?,?,?)`,
		res.ID, res.TypeID, res.Name, res.IsActive, res.CreatedAt)
	return err
}

func (r Repo) GetResource(ctx context.Context, id string) (domain.Resource, error) {
	var res domain.Resource
	err := r.DB.QueryRowContext(ctx,
		`SELECT id,resource_type_id,name,is_active,created_at FROM resources WHERE id=?`, id).
		Scan(&res.ID, &res.TypeID, &res.Name, &res.IsActive, &res.CreatedAt)
	if err == sql.ErrNoRows {
		return res, ErrNotFound
	}
	return res, err
}

// ListResources returns resources ordered by name; activeOnly filters to
// is_active rows.
func (r Repo) ListResources(ctx context.Context, activeOnly bool) ([]domain.Resource, error) {
	query := `SELECT id,resource_type_id,name,is_active,created_at FROM resources`
	if activeOnly {
		query += ` WHERE is_active=1`
	}
	query += ` ORDER BY name`
	rows, err := r.DB.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Resource
	for rows.Next() {
		var res domain.Resource
		if err := rows.Scan(&res.ID, &res.TypeID, &res.Name, &res.IsActive, &res.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func (r Repo) SetResourceActive(ctx context.Context, id string, active bool) error {
	res, err := r.DB.ExecContext(ctx, `UPDATE resources SET is_active=? WHERE id=?`, active, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) InsertAssignment(ctx context.Context, a domain.ResourceAssignment) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO resource_assignments(id,project_id,task_id,resource_id,assignment_start,assignment_end,allocation_percentage,created_at)
		 VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.ProjectID, a.TaskID, a.ResourceID, a.Start, a.End, a.AllocationPercentage, a.CreatedAt)
	return err
}

func (r Repo) ListAssignments(ctx context.Context, projectID string) ([]domain.ResourceAssignment, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id,project_id,task_id,resource_id,assignment_start,assignment_end,allocation_percentage,created_at
		 FROM resource_assignments WHERE project_id=? ORDER BY assignment_start, id`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.ResourceAssignment
	for rows.Next() {
		var a domain.ResourceAssignment
		if err := rows.Scan(&a.ID, &a.ProjectID, &a.TaskID, &a.ResourceID, &a.Start, &a.End, &a.AllocationPercentage, &a.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

func (r Repo) DeleteAssignment(ctx context.Context, id string) error {
	res, err := r.DB.ExecContext(ctx, `DELETE FROM resource_assignments WHERE id=?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
