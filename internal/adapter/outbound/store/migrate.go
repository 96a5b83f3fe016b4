package store

import "context"

// schema is applied with CREATE TABLE IF NOT EXISTS on every Open, mirroring
// the teacher's migrate-on-connect idiom (rakunlabs-at's MigrateDB) without
// pulling in a separate migration-file runner — this tree's schema is small
// enough that a single idempotent DDL batch is the idiomatic-Go-project
// choice over a golang-migrate dependency the examples don't otherwise use.
const schema = `
CREATE TABLE IF NOT EXISTS tenants (
	id TEXT PRIMARY KEY,
	email TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	active INTEGER NOT NULL DEFAULT 1,
	verified INTEGER NOT NULL DEFAULT 0,
	is_super_admin INTEGER NOT NULL DEFAULT 0,
	tenant_api_key_hash TEXT,
	direct_model_api_key_hash TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tenants_api_key_hash ON tenants(tenant_api_key_hash);
CREATE INDEX IF NOT EXISTS idx_tenants_direct_model_key_hash ON tenants(direct_model_api_key_hash);

CREATE TABLE IF NOT EXISTS applications (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	name TEXT NOT NULL,
	api_key_hash TEXT,
	active INTEGER NOT NULL DEFAULT 1,
	external_app_id TEXT,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_applications_api_key_hash ON applications(api_key_hash);
CREATE UNIQUE INDEX IF NOT EXISTS idx_applications_tenant_external ON applications(tenant_id, external_app_id);

CREATE TABLE IF NOT EXISTS subscriptions (
	tenant_id TEXT PRIMARY KEY REFERENCES tenants(id),
	type TEXT NOT NULL,
	monthly_quota INTEGER NOT NULL,
	current_month_usage INTEGER NOT NULL DEFAULT 0,
	usage_reset_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS upstream_api_configs (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	config_name TEXT NOT NULL,
	provider TEXT NOT NULL,
	base_url TEXT NOT NULL,
	api_key_encrypted TEXT NOT NULL,
	is_data_safe INTEGER NOT NULL DEFAULT 0,
	is_default_private_model INTEGER NOT NULL DEFAULT 0,
	private_model_names TEXT NOT NULL DEFAULT '[]',
	block_on_input_risk TEXT NOT NULL DEFAULT 'medium',
	block_on_output_risk TEXT NOT NULL DEFAULT 'medium'
);

CREATE TABLE IF NOT EXISTS model_routes (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	model_pattern TEXT NOT NULL,
	match_type TEXT NOT NULL,
	priority INTEGER NOT NULL DEFAULT 0,
	upstream_api_config_id TEXT NOT NULL REFERENCES upstream_api_configs(id),
	application_ids TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS scanner_packages (
	id TEXT PRIMARY KEY,
	code TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	author TEXT,
	version TEXT,
	license TEXT,
	description TEXT,
	type TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS scanners (
	id TEXT PRIMARY KEY,
	package_id TEXT NOT NULL REFERENCES scanner_packages(id),
	tag TEXT NOT NULL,
	name TEXT NOT NULL,
	description TEXT,
	type TEXT NOT NULL,
	definition TEXT NOT NULL,
	default_risk_level TEXT NOT NULL,
	default_scan_prompt INTEGER NOT NULL DEFAULT 1,
	default_scan_response INTEGER NOT NULL DEFAULT 1,
	active INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_scanners_active_tag ON scanners(tag) WHERE active = 1;

CREATE TABLE IF NOT EXISTS application_scanner_configs (
	application_id TEXT NOT NULL REFERENCES applications(id),
	scanner_id TEXT NOT NULL REFERENCES scanners(id),
	is_enabled INTEGER NOT NULL DEFAULT 1,
	risk_level TEXT,
	scan_prompt INTEGER,
	scan_response INTEGER,
	PRIMARY KEY (application_id, scanner_id)
);

CREATE TABLE IF NOT EXISTS package_purchases (
	id TEXT PRIMARY KEY,
	tenant_id TEXT NOT NULL REFERENCES tenants(id),
	package_id TEXT NOT NULL REFERENCES scanner_packages(id),
	status TEXT NOT NULL,
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS lists (
	id TEXT PRIMARY KEY,
	application_id TEXT NOT NULL REFERENCES applications(id),
	kind TEXT NOT NULL,
	name TEXT NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]',
	active INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS knowledge_bases (
	id TEXT PRIMARY KEY,
	application_id TEXT,
	bound_tag TEXT,
	index_path TEXT NOT NULL,
	total_pairs INTEGER NOT NULL DEFAULT 0,
	similarity_threshold REAL NOT NULL DEFAULT 0.7,
	global INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS qa_pairs (
	id TEXT PRIMARY KEY,
	kb_id TEXT NOT NULL REFERENCES knowledge_bases(id),
	question TEXT NOT NULL,
	answer TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS response_templates (
	application_id TEXT NOT NULL REFERENCES applications(id),
	identifier_type TEXT NOT NULL,
	identifier TEXT NOT NULL,
	language TEXT NOT NULL,
	content TEXT NOT NULL,
	PRIMARY KEY (application_id, identifier_type, identifier, language)
);

CREATE TABLE IF NOT EXISTS risk_type_configs (
	application_id TEXT PRIMARY KEY REFERENCES applications(id),
	legacy_flags TEXT NOT NULL DEFAULT '{}',
	high_threshold REAL NOT NULL DEFAULT 0.40,
	medium_threshold REAL NOT NULL DEFAULT 0.60,
	low_threshold REAL NOT NULL DEFAULT 0.95,
	trigger_level TEXT NOT NULL DEFAULT 'low'
);

CREATE TABLE IF NOT EXISTS data_leakage_policies (
	scope_id TEXT PRIMARY KEY,
	input_high_action TEXT,
	input_medium_action TEXT,
	input_low_action TEXT,
	output_high_action TEXT,
	output_medium_action TEXT,
	output_low_action TEXT,
	private_model_id TEXT
);

CREATE TABLE IF NOT EXISTS gateway_policies (
	scope_id TEXT PRIMARY KEY,
	high_action TEXT,
	medium_action TEXT,
	low_action TEXT
);

CREATE TABLE IF NOT EXISTS detection_results (
	request_id TEXT PRIMARY KEY,
	application_id TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	content TEXT NOT NULL,
	security_risk_level TEXT NOT NULL,
	security_categories TEXT NOT NULL DEFAULT '[]',
	compliance_risk_level TEXT NOT NULL,
	compliance_categories TEXT NOT NULL DEFAULT '[]',
	data_risk_level TEXT NOT NULL,
	data_categories TEXT NOT NULL DEFAULT '[]',
	suggest_action TEXT NOT NULL,
	suggest_answer TEXT,
	model_response TEXT,
	score REAL,
	image_paths TEXT NOT NULL DEFAULT '[]',
	created_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS appeal_records (
	id TEXT PRIMARY KEY,
	request_id TEXT NOT NULL,
	application_id TEXT NOT NULL,
	status TEXT NOT NULL,
	ai_review_note TEXT,
	human_reviewer_id TEXT,
	human_review_note TEXT,
	outcome TEXT,
	created_at TEXT NOT NULL,
	resolved_at TEXT
);
CREATE INDEX IF NOT EXISTS idx_appeal_request_id ON appeal_records(request_id);

CREATE TABLE IF NOT EXISTS appeal_configs (
	application_id TEXT PRIMARY KEY,
	human_review_enabled INTEGER NOT NULL DEFAULT 0,
	reviewer_emails TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS model_usage_daily (
	tenant_id TEXT NOT NULL,
	model TEXT NOT NULL,
	date TEXT NOT NULL,
	requests INTEGER NOT NULL DEFAULT 0,
	input_tokens INTEGER NOT NULL DEFAULT 0,
	output_tokens INTEGER NOT NULL DEFAULT 0,
	total_tokens INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (tenant_id, model, date)
);
`

func (s *Store) migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
