package repository

const advisoryLockQuery = `SELECT pg_advisory_xact_lock(hashtextextended($1::text, 0))`

const deferPositionsQuery = `SET CONSTRAINTS uq_pipeline_leads_position DEFERRED`

const deferOrdinalsQuery = `SET CONSTRAINTS uq_pipeline_stages_ordinal DEFERRED`

const pipelineColumns = `id, tenant_id, name, description, color, created_at, updated_at`

const getPipelineQuery = `
	SELECT ` + pipelineColumns + `
	FROM pipelines
	WHERE id = $1 AND tenant_id = $2`

const listPipelinesQuery = `
	SELECT ` + pipelineColumns + `
	FROM pipelines
	WHERE tenant_id = $1
	ORDER BY created_at ASC, id ASC`

const listAllPipelinesQuery = `
	SELECT ` + pipelineColumns + `
	FROM pipelines
	ORDER BY tenant_id ASC, created_at ASC, id ASC`

const insertPipelineQuery = `
	INSERT INTO pipelines (id, tenant_id, name, description, color, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

const updatePipelineQuery = `
	UPDATE pipelines
	SET name = $3, description = $4, color = $5, updated_at = $6
	WHERE id = $1 AND tenant_id = $2`

const pipelineHasLeadsQuery = `
	SELECT EXISTS (SELECT 1 FROM pipeline_leads WHERE pipeline_id = $1 AND tenant_id = $2)`

const deletePipelineStagesQuery = `DELETE FROM pipeline_stages WHERE pipeline_id = $1 AND tenant_id = $2`

const deletePipelineQuery = `DELETE FROM pipelines WHERE id = $1 AND tenant_id = $2`

const stageColumns = `id, pipeline_id, tenant_id, name, description, color, default_probability, ordinal, created_at, updated_at`

const getStageQuery = `
	SELECT ` + stageColumns + `
	FROM pipeline_stages
	WHERE id = $1 AND tenant_id = $2`

const listStagesQuery = `
	SELECT ` + stageColumns + `
	FROM pipeline_stages
	WHERE pipeline_id = $1 AND tenant_id = $2
	ORDER BY ordinal ASC`

const insertStageQuery = `
	INSERT INTO pipeline_stages (id, pipeline_id, tenant_id, name, description, color, default_probability, ordinal, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

const updateStageQuery = `
	UPDATE pipeline_stages
	SET name = $3, description = $4, color = $5, default_probability = $6, updated_at = $7
	WHERE id = $1 AND tenant_id = $2`

const reorderStagesQuery = `
	UPDATE pipeline_stages AS s
	SET ordinal = v.ordinal, updated_at = now()
	FROM (SELECT unnest($3::uuid[]) AS id, unnest($4::int[]) AS ordinal) AS v
	WHERE s.id = v.id AND s.pipeline_id = $1 AND s.tenant_id = $2`

const deleteStageQuery = `
	DELETE FROM pipeline_stages
	WHERE id = $1 AND tenant_id = $2
	  AND NOT EXISTS (SELECT 1 FROM pipeline_leads WHERE stage_id = $1)`

const stageExistsQuery = `SELECT EXISTS (SELECT 1 FROM pipeline_stages WHERE id = $1 AND tenant_id = $2)`

const leadColumns = `
	id, tenant_id, pipeline_id, stage_id, position, title, description, contact_ref,
	estimated_value::text, currency, probability, source, priority, status,
	actual_value::text, lost_reason, tags, assigned_to, expected_close_date, last_contact_at,
	stage_changed_at, closed_at, created_at, updated_at`

const getLeadQuery = `
	SELECT ` + leadColumns + `
	FROM pipeline_leads
	WHERE id = $1 AND tenant_id = $2`

const listLeadsByStageQuery = `
	SELECT ` + leadColumns + `
	FROM pipeline_leads
	WHERE stage_id = $1 AND tenant_id = $2
	ORDER BY position ASC`

const listLeadsByPipelineQuery = `
	SELECT ` + leadColumns + `
	FROM pipeline_leads
	WHERE pipeline_id = $1 AND tenant_id = $2
	  AND ($3::text IS NULL OR status = $3)
	  AND ($4::timestamptz IS NULL OR created_at >= $4)
	  AND ($5::timestamptz IS NULL OR created_at < $5)
	ORDER BY stage_id, position ASC`

const searchLeadsFilter = `
	WHERE tenant_id = $1
	  AND ($2::uuid IS NULL OR pipeline_id = $2)
	  AND ($3::uuid IS NULL OR stage_id = $3)
	  AND ($4::text IS NULL OR status = $4)
	  AND ($5::text IS NULL OR priority = $5)
	  AND ($6::uuid IS NULL OR assigned_to = $6)
	  AND ($7::text IS NULL
	       OR title ILIKE $7 ESCAPE '\'
	       OR description ILIKE $7 ESCAPE '\'
	       OR contact_ref ILIKE $7 ESCAPE '\')`

const countLeadsQuery = `
	SELECT COUNT(*)
	FROM pipeline_leads` + searchLeadsFilter

const searchLeadsQuery = `
	SELECT ` + leadColumns + `
	FROM pipeline_leads` + searchLeadsFilter + `
	ORDER BY pipeline_id,
	         (SELECT s.ordinal FROM pipeline_stages s WHERE s.id = pipeline_leads.stage_id),
	         position ASC, id
	LIMIT $8 OFFSET $9`

const listStagePositionsQuery = `
	SELECT id, position
	FROM pipeline_leads
	WHERE stage_id = $1 AND tenant_id = $2
	ORDER BY position ASC`

const insertLeadQuery = `
	INSERT INTO pipeline_leads (
		id, tenant_id, pipeline_id, stage_id, position, title, description, contact_ref,
		estimated_value, currency, probability, source, priority, status, tags,
		assigned_to, expected_close_date, last_contact_at, stage_changed_at, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)`

const renumberPositionsQuery = `
	UPDATE pipeline_leads AS l
	SET position = v.position
	FROM (SELECT unnest($2::uuid[]) AS id, unnest($3::bigint[]) AS position) AS v
	WHERE l.id = v.id AND l.stage_id = $1`

const updateLeadQuery = `
	UPDATE pipeline_leads
	SET title = COALESCE($3, title),
	    description = COALESCE($4, description),
	    contact_ref = COALESCE($5, contact_ref),
	    estimated_value = COALESCE($6::numeric, estimated_value),
	    probability = COALESCE($7::int, probability),
	    source = COALESCE($8, source),
	    priority = COALESCE($9, priority),
	    tags = COALESCE($10::text[], tags),
	    assigned_to = CASE WHEN $11::bool THEN $12::uuid ELSE assigned_to END,
	    expected_close_date = COALESCE($13::date, expected_close_date),
	    last_contact_at = COALESCE($14::timestamptz, last_contact_at),
	    updated_at = $15
	WHERE id = $1 AND tenant_id = $2
	  AND ($16::bool = false OR status = 'OPEN')
	RETURNING ` + leadColumns

const selectLeadForUpdateQuery = `
	SELECT stage_id, status, pipeline_id
	FROM pipeline_leads
	WHERE id = $1 AND tenant_id = $2
	FOR UPDATE`

const applyMoveQuery = `
	UPDATE pipeline_leads
	SET stage_id = $3, position = $4, probability = $5,
	    stage_changed_at = COALESCE($6, stage_changed_at), updated_at = $7
	WHERE id = $1 AND tenant_id = $2
	RETURNING ` + leadColumns

const closeLeadQuery = `
	UPDATE pipeline_leads
	SET status = $3, actual_value = $4, lost_reason = $5, probability = $6, closed_at = $7, updated_at = $7
	WHERE id = $1 AND tenant_id = $2
	RETURNING ` + leadColumns

const deleteLeadQuery = `DELETE FROM pipeline_leads WHERE id = $1 AND tenant_id = $2`

const insertActivityQuery = `
	INSERT INTO pipeline_lead_activities (id, lead_id, tenant_id, type, title, metadata, actor_id, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (id) DO NOTHING`

const listActivitiesQuery = `
	SELECT id, lead_id, tenant_id, type, title, metadata, actor_id, created_at
	FROM pipeline_lead_activities
	WHERE lead_id = $1 AND tenant_id = $2
	ORDER BY created_at DESC
	LIMIT $3`
