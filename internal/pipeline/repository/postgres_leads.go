package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/evaldomacielf-sketch/jurisnexo-sub002/internal/pipeline/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func scanLead(row pgx.Row) (Lead, error) {
	var (
		l           Lead
		estimated   string
		actual      *string
		source      string
		priority    string
		status      string
		closeDate   *time.Time
		lastContact *time.Time
		closedAt    *time.Time
	)
	if err := row.Scan(
		&l.ID, &l.TenantID, &l.PipelineID, &l.StageID, &l.Position, &l.Title, &l.Description, &l.ContactRef,
		&estimated, &l.Currency, &l.Probability, &source, &priority, &status,
		&actual, &l.LostReason, &l.Tags, &l.AssignedTo, &closeDate, &lastContact,
		&l.StageChangedAt, &closedAt, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return Lead{}, err
	}

	value, err := decimal.NewFromString(estimated)
	if err != nil {
		return Lead{}, fmt.Errorf("estimated_value: %w", err)
	}
	l.EstimatedValue = value
	if actual != nil {
		v, err := decimal.NewFromString(*actual)
		if err != nil {
			return Lead{}, fmt.Errorf("actual_value: %w", err)
		}
		l.ActualValue = &v
	}
	l.Source = domain.LeadSource(source)
	l.Priority = domain.LeadPriority(priority)
	l.Status = domain.LeadStatus(status)
	l.ExpectedCloseDate = closeDate
	l.LastContactAt = lastContact
	l.ClosedAt = closedAt
	if l.Tags == nil {
		l.Tags = []string{}
	}
	return l, nil
}

func collectLeads(rows pgx.Rows) ([]Lead, error) {
	defer rows.Close()
	items := make([]Lead, 0)
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, l)
	}
	return items, rows.Err()
}

func (r *Repository) GetLead(ctx context.Context, tenantID, id uuid.UUID) (Lead, error) {
	l, err := scanLead(r.pool.QueryRow(ctx, getLeadQuery, id, tenantID))
	if err != nil {
		return Lead{}, mapPgError(err)
	}
	return l, nil
}

func (r *Repository) ListLeadsByStage(ctx context.Context, tenantID, stageID uuid.UUID) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, listLeadsByStageQuery, stageID, tenantID)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) ListLeadsByPipeline(ctx context.Context, tenantID, pipelineID uuid.UUID, filter LeadFilter) ([]Lead, error) {
	var status *string
	if filter.Status != nil {
		s := string(*filter.Status)
		status = &s
	}
	rows, err := r.pool.Query(ctx, listLeadsByPipelineQuery, pipelineID, tenantID, status, filter.CreatedFrom, filter.CreatedTo)
	if err != nil {
		return nil, err
	}
	return collectLeads(rows)
}

func (r *Repository) SearchLeads(ctx context.Context, tenantID uuid.UUID, q LeadQuery) ([]Lead, int, error) {
	var status, priority, pattern *string
	if q.Status != nil {
		v := string(*q.Status)
		status = &v
	}
	if q.Priority != nil {
		v := string(*q.Priority)
		priority = &v
	}
	if q.Search != "" {
		v := "%" + likeEscaper.Replace(q.Search) + "%"
		pattern = &v
	}
	args := []any{tenantID, q.PipelineID, q.StageID, status, priority, q.AssignedTo, pattern}

	var total int
	if err := r.pool.QueryRow(ctx, countLeadsQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	var limit *int
	if q.Limit > 0 {
		limit = &q.Limit
	}
	rows, err := r.pool.Query(ctx, searchLeadsQuery, append(args, limit, max(q.Offset, 0))...)
	if err != nil {
		return nil, 0, err
	}
	items, err := collectLeads(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// likeEscaper makes user input literal inside an ILIKE pattern.
var likeEscaper = strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`)

func (r *Repository) ListStagePositions(ctx context.Context, tenantID, stageID uuid.UUID) ([]LeadPosition, error) {
	rows, err := r.pool.Query(ctx, listStagePositionsQuery, stageID, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]LeadPosition, 0)
	for rows.Next() {
		var p LeadPosition
		if err := rows.Scan(&p.LeadID, &p.Position); err != nil {
			return nil, err
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func renumberTx(ctx context.Context, tx pgx.Tx, stageID uuid.UUID, renumber []LeadPosition) error {
	if len(renumber) == 0 {
		return nil
	}
	ids := make([]uuid.UUID, len(renumber))
	positions := make([]int64, len(renumber))
	for i, p := range renumber {
		ids[i] = p.LeadID
		positions[i] = p.Position
	}
	_, err := tx.Exec(ctx, renumberPositionsQuery, stageID, ids, positions)
	return err
}

func (r *Repository) InsertLead(ctx context.Context, lead Lead, renumber []LeadPosition) error {
	tags := lead.Tags
	if tags == nil {
		tags = []string{}
	}
	return r.inTx(ctx, func(tx pgx.Tx) error {
		if err := lockStagesTx(ctx, tx, lead.StageID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, deferPositionsQuery); err != nil {
			return err
		}
		if err := renumberTx(ctx, tx, lead.StageID, renumber); err != nil {
			return mapPgError(err)
		}
		_, err := tx.Exec(ctx, insertLeadQuery,
			lead.ID, lead.TenantID, lead.PipelineID, lead.StageID, lead.Position, lead.Title, lead.Description, lead.ContactRef,
			lead.EstimatedValue, lead.Currency, lead.Probability, string(lead.Source), string(lead.Priority), string(lead.Status), tags,
			lead.AssignedTo, lead.ExpectedCloseDate, lead.LastContactAt, lead.StageChangedAt, lead.CreatedAt, lead.UpdatedAt,
		)
		return mapPgError(err)
	})
}

func (r *Repository) UpdateLead(ctx context.Context, p LeadPatch) (Lead, error) {
	var source, priority *string
	if p.Source != nil {
		v := string(*p.Source)
		source = &v
	}
	if p.Priority != nil {
		v := string(*p.Priority)
		priority = &v
	}
	var tags []string
	if p.Tags != nil {
		tags = *p.Tags
		if tags == nil {
			tags = []string{}
		}
	}
	requireOpen := p.RequiresOpen()

	updated, err := scanLead(r.pool.QueryRow(ctx, updateLeadQuery,
		p.LeadID, p.TenantID, p.Title, p.Description, p.ContactRef, p.EstimatedValue, p.Probability,
		source, priority, tags, p.SetAssignee, p.AssignedTo, p.ExpectedCloseDate,
		p.LastContactAt, p.UpdatedAt, requireOpen,
	))
	if err == nil {
		return updated, nil
	}
	err = mapPgError(err)
	if err == ErrNotFound && requireOpen {
		if _, getErr := r.GetLead(ctx, p.TenantID, p.LeadID); getErr == nil {
			return Lead{}, ErrLeadClosed
		}
	}
	return Lead{}, err
}

// guardOpenLead locks the lead row and checks it is still where the caller
// saw it and still OPEN.
func guardOpenLead(ctx context.Context, tx pgx.Tx, tenantID, leadID, expectedStage uuid.UUID) (uuid.UUID, error) {
	var (
		stageID    uuid.UUID
		status     string
		pipelineID uuid.UUID
	)
	if err := tx.QueryRow(ctx, selectLeadForUpdateQuery, leadID, tenantID).Scan(&stageID, &status, &pipelineID); err != nil {
		return uuid.Nil, mapPgError(err)
	}
	if stageID != expectedStage {
		return uuid.Nil, ErrStaleLead
	}
	if domain.LeadStatus(status) != domain.StatusOpen {
		return uuid.Nil, ErrLeadClosed
	}
	return pipelineID, nil
}

func (r *Repository) ApplyMove(ctx context.Context, p MoveParams) (Lead, error) {
	var moved Lead
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		stages := []uuid.UUID{p.FromStageID, p.ToStageID}
		if p.FromStageID == p.ToStageID {
			stages = stages[:1]
		} else if p.ToStageID.String() < p.FromStageID.String() {
			stages = []uuid.UUID{p.ToStageID, p.FromStageID}
		}
		if err := lockStagesTx(ctx, tx, stages...); err != nil {
			return err
		}

		pipelineID, err := guardOpenLead(ctx, tx, p.TenantID, p.LeadID, p.FromStageID)
		if err != nil {
			return err
		}
		target, err := scanStage(tx.QueryRow(ctx, getStageQuery, p.ToStageID, p.TenantID))
		if err != nil {
			return mapPgError(err)
		}
		if target.PipelineID != pipelineID {
			return ErrNotFound
		}

		if _, err := tx.Exec(ctx, deferPositionsQuery); err != nil {
			return err
		}
		if err := renumberTx(ctx, tx, p.ToStageID, p.Renumber); err != nil {
			return mapPgError(err)
		}

		moved, err = scanLead(tx.QueryRow(ctx, applyMoveQuery,
			p.LeadID, p.TenantID, p.ToStageID, p.Position, p.Probability, p.StageChangedAt, p.UpdatedAt,
		))
		return mapPgError(err)
	})
	if err != nil {
		return Lead{}, err
	}
	return moved, nil
}

func (r *Repository) CloseLead(ctx context.Context, p CloseParams) (Lead, error) {
	var closed Lead
	err := r.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := guardOpenLead(ctx, tx, p.TenantID, p.LeadID, p.StageID); err != nil {
			return err
		}
		var actual *decimal.Decimal
		if p.ActualValue != nil {
			v := *p.ActualValue
			actual = &v
		}
		var err error
		closed, err = scanLead(tx.QueryRow(ctx, closeLeadQuery,
			p.LeadID, p.TenantID, string(p.Status), actual, p.LostReason, p.Probability, p.ClosedAt,
		))
		return mapPgError(err)
	})
	if err != nil {
		return Lead{}, err
	}
	return closed, nil
}

func (r *Repository) DeleteLead(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, deleteLeadQuery, id, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repository) AddActivity(ctx context.Context, a Activity) error {
	metadata := a.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}
	_, err := r.pool.Exec(ctx, insertActivityQuery,
		a.ID, a.LeadID, a.TenantID, string(a.Type), a.Title, metadata, a.ActorID, a.CreatedAt,
	)
	return err
}

func (r *Repository) ListActivities(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]Activity, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.pool.Query(ctx, listActivitiesQuery, leadID, tenantID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]Activity, 0)
	for rows.Next() {
		var (
			a        Activity
			kind     string
			metadata map[string]any
		)
		if err := rows.Scan(&a.ID, &a.LeadID, &a.TenantID, &kind, &a.Title, &metadata, &a.ActorID, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Type = domain.ActivityType(kind)
		a.Metadata = metadata
		items = append(items, a)
	}
	return items, rows.Err()
}
