package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func scanPipeline(row pgx.Row) (Pipeline, error) {
	var p Pipeline
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.Color, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func scanStage(row pgx.Row) (Stage, error) {
	var s Stage
	err := row.Scan(
		&s.ID, &s.PipelineID, &s.TenantID, &s.Name, &s.Description, &s.Color,
		&s.DefaultProbability, &s.Ordinal, &s.CreatedAt, &s.UpdatedAt,
	)
	return s, err
}

func (r *Repository) GetPipeline(ctx context.Context, tenantID, id uuid.UUID) (Pipeline, error) {
	p, err := scanPipeline(r.pool.QueryRow(ctx, getPipelineQuery, id, tenantID))
	if err != nil {
		return Pipeline{}, mapPgError(err)
	}
	return p, nil
}

func (r *Repository) ListPipelines(ctx context.Context, tenantID uuid.UUID) ([]Pipeline, error) {
	rows, err := r.pool.Query(ctx, listPipelinesQuery, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Pipeline, 0)
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *Repository) ListAllPipelines(ctx context.Context) ([]Pipeline, error) {
	rows, err := r.pool.Query(ctx, listAllPipelinesQuery)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Pipeline, 0)
	for rows.Next() {
		p, err := scanPipeline(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func (r *Repository) CreatePipeline(ctx context.Context, p Pipeline, stages []Stage) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, insertPipelineQuery,
			p.ID, p.TenantID, p.Name, p.Description, p.Color, p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return mapPgError(err)
		}

		batch := &pgx.Batch{}
		for _, s := range stages {
			batch.Queue(insertStageQuery,
				s.ID, s.PipelineID, s.TenantID, s.Name, s.Description, s.Color,
				s.DefaultProbability, s.Ordinal, s.CreatedAt, s.UpdatedAt,
			)
		}
		results := tx.SendBatch(ctx, batch)
		for range stages {
			if _, err := results.Exec(); err != nil {
				_ = results.Close()
				return mapPgError(err)
			}
		}
		return results.Close()
	})
}

func (r *Repository) UpdatePipeline(ctx context.Context, p Pipeline) error {
	tag, err := r.pool.Exec(ctx, updatePipelineQuery, p.ID, p.TenantID, p.Name, p.Description, p.Color, p.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) DeletePipeline(ctx context.Context, tenantID, id uuid.UUID) error {
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := scanPipeline(tx.QueryRow(ctx, getPipelineQuery+" FOR UPDATE", id, tenantID)); err != nil {
			return mapPgError(err)
		}

		var hasLeads bool
		if err := tx.QueryRow(ctx, pipelineHasLeadsQuery, id, tenantID).Scan(&hasLeads); err != nil {
			return err
		}
		if hasLeads {
			return ErrNotEmpty
		}

		if _, err := tx.Exec(ctx, deletePipelineStagesQuery, id, tenantID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, deletePipelineQuery, id, tenantID)
		return err
	})
}

func (r *Repository) GetStage(ctx context.Context, tenantID, id uuid.UUID) (Stage, error) {
	s, err := scanStage(r.pool.QueryRow(ctx, getStageQuery, id, tenantID))
	if err != nil {
		return Stage{}, mapPgError(err)
	}
	return s, nil
}

func (r *Repository) ListStages(ctx context.Context, tenantID, pipelineID uuid.UUID) ([]Stage, error) {
	rows, err := r.pool.Query(ctx, listStagesQuery, pipelineID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Stage, 0)
	for rows.Next() {
		s, err := scanStage(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *Repository) CreateStage(ctx context.Context, s Stage) error {
	_, err := r.pool.Exec(ctx, insertStageQuery,
		s.ID, s.PipelineID, s.TenantID, s.Name, s.Description, s.Color,
		s.DefaultProbability, s.Ordinal, s.CreatedAt, s.UpdatedAt,
	)
	return mapPgError(err)
}

func (r *Repository) UpdateStage(ctx context.Context, s Stage) error {
	tag, err := r.pool.Exec(ctx, updateStageQuery,
		s.ID, s.TenantID, s.Name, s.Description, s.Color, s.DefaultProbability, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) ReorderStages(ctx context.Context, tenantID, pipelineID uuid.UUID, ordinals []StageOrdinal) error {
	ids := make([]uuid.UUID, len(ordinals))
	values := make([]int32, len(ordinals))
	for i, o := range ordinals {
		ids[i] = o.StageID
		values[i] = int32(o.Ordinal)
	}

	return r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, deferOrdinalsQuery); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, reorderStagesQuery, pipelineID, tenantID, ids, values)
		if err != nil {
			return mapPgError(err)
		}
		if int(tag.RowsAffected()) != len(ordinals) {
			return ErrNotFound
		}
		return nil
	})
}

func (r *Repository) DeleteStage(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteStageQuery, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := r.pool.QueryRow(ctx, stageExistsQuery, id, tenantID).Scan(&exists); err != nil {
		return err
	}
	if exists {
		return ErrNotEmpty
	}
	return ErrNotFound
}
