package repository

import (
	"strings"
	"testing"
)

func TestLeadQueriesAreTenantScoped(t *testing.T) {
	queries := map[string]string{
		"getLead":             getLeadQuery,
		"listLeadsByStage":    listLeadsByStageQuery,
		"listLeadsByPipeline": listLeadsByPipelineQuery,
		"listStagePositions":  listStagePositionsQuery,
		"updateLead":          updateLeadQuery,
		"selectForUpdate":     selectLeadForUpdateQuery,
		"applyMove":           applyMoveQuery,
		"closeLead":           closeLeadQuery,
		"deleteLead":          deleteLeadQuery,
		"listActivities":      listActivitiesQuery,
	}

	for name, query := range queries {
		if !strings.Contains(strings.ToLower(query), "tenant_id = $2") {
			t.Fatalf("expected %s query to filter by tenant_id = $2", name)
		}
	}
}

func TestStageQueriesAreTenantScoped(t *testing.T) {
	for name, query := range map[string]string{
		"getStage":      getStageQuery,
		"listStages":    listStagesQuery,
		"updateStage":   updateStageQuery,
		"reorderStages": reorderStagesQuery,
		"deleteStage":   deleteStageQuery,
		"getPipeline":   getPipelineQuery,
	} {
		if !strings.Contains(strings.ToLower(query), "tenant_id = $2") {
			t.Fatalf("expected %s query to filter by tenant_id = $2", name)
		}
	}
}

func TestOrderedReadsSortByPosition(t *testing.T) {
	for name, query := range map[string]string{
		"listLeadsByStage":   listLeadsByStageQuery,
		"listStagePositions": listStagePositionsQuery,
	} {
		if !strings.Contains(strings.ToLower(query), "order by position asc") {
			t.Fatalf("expected %s to order by position", name)
		}
	}
	if !strings.Contains(strings.ToLower(listStagesQuery), "order by ordinal asc") {
		t.Fatal("stages must be listed by ordinal")
	}
	if !strings.Contains(strings.ToLower(listPipelinesQuery), "order by created_at asc") {
		t.Fatal("pipelines must be listed in creation order")
	}
}

func TestMoveLocksLeadRow(t *testing.T) {
	if !strings.HasSuffix(strings.TrimSpace(strings.ToLower(selectLeadForUpdateQuery)), "for update") {
		t.Fatal("lead guard must lock the row with FOR UPDATE")
	}
}

func TestRenumberIsBoundToStage(t *testing.T) {
	query := strings.ToLower(renumberPositionsQuery)
	for _, fragment := range []string{"unnest($2::uuid[])", "unnest($3::bigint[])", "l.stage_id = $1"} {
		if !strings.Contains(query, fragment) {
			t.Fatalf("expected renumber query fragment %q", fragment)
		}
	}
}

func TestUpdateLeadHonoursOpenGuard(t *testing.T) {
	if !strings.Contains(updateLeadQuery, "$16::bool = false OR status = 'OPEN'") {
		t.Fatal("update must skip closed leads when the open guard is set")
	}
}

func TestUpdateLeadKeepsUnpatchedColumns(t *testing.T) {
	query := strings.ToLower(updateLeadQuery)
	for _, column := range []string{
		"title", "description", "contact_ref", "estimated_value", "probability",
		"source", "priority", "tags", "expected_close_date", "last_contact_at",
	} {
		if !strings.Contains(query, column+" = coalesce(") {
			t.Fatalf("expected %s to keep its stored value when not patched", column)
		}
	}
	if !strings.Contains(query, "else assigned_to end") {
		t.Fatal("expected assigned_to to keep its stored value unless explicitly set")
	}
	for _, column := range []string{"status =", "stage_id =", "position ="} {
		if strings.Contains(strings.Split(query, "where")[0], column) {
			t.Fatalf("lead edit must not write %s", column)
		}
	}
}

func TestDeleteStageRefusesOccupiedStage(t *testing.T) {
	if !strings.Contains(strings.ToLower(deleteStageQuery), "not exists (select 1 from pipeline_leads") {
		t.Fatal("stage delete must refuse stages that still hold leads")
	}
}

func TestSearchLeadsIsTenantScopedAndPaged(t *testing.T) {
	for name, query := range map[string]string{"count": countLeadsQuery, "search": searchLeadsQuery} {
		if !strings.Contains(strings.ToLower(query), "where tenant_id = $1") {
			t.Fatalf("expected %s query to filter by tenant_id = $1", name)
		}
	}
	if !strings.Contains(searchLeadsQuery, "LIMIT $8 OFFSET $9") {
		t.Fatal("search must page with LIMIT and OFFSET")
	}
}

func TestLikeEscaperTreatsWildcardsLiterally(t *testing.T) {
	if got := likeEscaper.Replace(`50%_off\x`); got != `50\%\_off\\x` {
		t.Fatalf("unexpected escaped pattern %q", got)
	}
}
