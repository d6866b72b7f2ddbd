package postgresql

// Constraint names are matched in errors.go; keep them in sync.
func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE statuses (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				color VARCHAR(32) NOT NULL DEFAULT '',
				is_archived BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_statuses_is_archived ON statuses(is_archived);

			CREATE TABLE workflows (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				is_archived BOOLEAN NOT NULL DEFAULT false,
				created_by_user_id VARCHAR(255) NOT NULL DEFAULT '',
				updated_by_user_id VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			);

			CREATE INDEX idx_workflows_is_archived ON workflows(is_archived);
			CREATE INDEX idx_workflows_created_at ON workflows(created_at);

			CREATE TABLE workflow_steps (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				status_id VARCHAR(64) NOT NULL,
				step_order INTEGER NOT NULL,
				is_initial_step BOOLEAN NOT NULL DEFAULT false,
				is_final_step BOOLEAN NOT NULL DEFAULT false,
				metadata JSONB,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

				CONSTRAINT workflow_steps_status_fkey FOREIGN KEY (status_id) REFERENCES statuses(id),
				CONSTRAINT workflow_steps_workflow_status_key UNIQUE (workflow_id, status_id),
				CONSTRAINT workflow_steps_workflow_order_key UNIQUE (workflow_id, step_order),
				CONSTRAINT workflow_steps_workflow_step_key UNIQUE (workflow_id, id),
				CONSTRAINT workflow_steps_order_nonzero CHECK (step_order <> 0)
			);

			CREATE UNIQUE INDEX workflow_steps_single_initial_idx ON workflow_steps(workflow_id) WHERE is_initial_step;

			-- Composite foreign keys keep both endpoints inside the owning workflow.
			CREATE TABLE workflow_transitions (
				id VARCHAR(64) PRIMARY KEY,
				workflow_id VARCHAR(64) NOT NULL REFERENCES workflows(id) ON DELETE CASCADE,
				from_step_id VARCHAR(64) NOT NULL,
				to_step_id VARCHAR(64) NOT NULL,
				name VARCHAR(255) NOT NULL DEFAULT '',
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

				CONSTRAINT workflow_transitions_edge_key UNIQUE (workflow_id, from_step_id, to_step_id),
				CONSTRAINT workflow_transitions_from_fkey FOREIGN KEY (workflow_id, from_step_id)
					REFERENCES workflow_steps(workflow_id, id),
				CONSTRAINT workflow_transitions_to_fkey FOREIGN KEY (workflow_id, to_step_id)
					REFERENCES workflow_steps(workflow_id, id)
			);

			CREATE INDEX idx_workflow_transitions_from ON workflow_transitions(from_step_id);
			CREATE INDEX idx_workflow_transitions_to ON workflow_transitions(to_step_id);

			CREATE TABLE project_types (
				id VARCHAR(64) PRIMARY KEY,
				name VARCHAR(255) NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				default_workflow_id VARCHAR(64),
				icon_name VARCHAR(255) NOT NULL DEFAULT '',
				is_archived BOOLEAN NOT NULL DEFAULT false,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

				CONSTRAINT project_types_default_workflow_fkey FOREIGN KEY (default_workflow_id) REFERENCES workflows(id)
			);

			CREATE INDEX idx_project_types_default_workflow ON project_types(default_workflow_id);
		`,
	}
}
