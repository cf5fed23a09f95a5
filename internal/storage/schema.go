package storage

// schemaStatements creates every table and secondary index the store needs,
// using a CREATE TABLE IF NOT EXISTS convention so startup is idempotent.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS namespaces (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		description TEXT,
		assignment_counts JSON NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,

	`CREATE TABLE IF NOT EXISTS assignments (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL,
		north_star TEXT NOT NULL,
		status TEXT NOT NULL,
		independent INTEGER NOT NULL,
		priority INTEGER NOT NULL,
		artifacts TEXT,
		decisions TEXT,
		blocked_reason TEXT,
		alignment_status TEXT,
		head_group_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS assignments_by_namespace ON assignments (namespace_id);`,
	`CREATE INDEX IF NOT EXISTS assignments_by_namespace_status ON assignments (namespace_id, status);`,
	`CREATE INDEX IF NOT EXISTS assignments_by_status ON assignments (status);`,

	`CREATE TABLE IF NOT EXISTS job_groups (
		id TEXT PRIMARY KEY,
		assignment_id TEXT NOT NULL,
		next_group_id TEXT,
		status TEXT NOT NULL,
		aggregated_result TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS job_groups_by_assignment ON job_groups (assignment_id);`,
	`CREATE INDEX IF NOT EXISTS job_groups_by_status ON job_groups (status);`,

	`CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL,
		job_type TEXT NOT NULL,
		harness TEXT NOT NULL,
		context TEXT,
		prompt TEXT,
		status TEXT NOT NULL,
		result TEXT,
		started_at INTEGER,
		completed_at INTEGER,
		metrics JSON NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS jobs_by_group ON jobs (group_id);`,
	`CREATE INDEX IF NOT EXISTS jobs_by_group_status ON jobs (group_id, status);`,
	`CREATE INDEX IF NOT EXISTS jobs_by_status ON jobs (status);`,

	`CREATE TABLE IF NOT EXISTS chat_threads (
		id TEXT PRIMARY KEY,
		namespace_id TEXT NOT NULL,
		title TEXT NOT NULL,
		mode TEXT NOT NULL,
		last_prompt_mode TEXT,
		assignment_id TEXT,
		claude_session_id TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS chat_threads_by_namespace ON chat_threads (namespace_id);`,
	`CREATE INDEX IF NOT EXISTS chat_threads_by_namespace_updated ON chat_threads (namespace_id, updated_at);`,
	`CREATE INDEX IF NOT EXISTS chat_threads_by_assignment ON chat_threads (assignment_id);`,

	`CREATE TABLE IF NOT EXISTS chat_messages (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		role TEXT NOT NULL,
		content TEXT NOT NULL,
		hint TEXT,
		created_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS chat_messages_by_thread ON chat_messages (thread_id);`,
	`CREATE INDEX IF NOT EXISTS chat_messages_by_thread_created ON chat_messages (thread_id, created_at);`,

	`CREATE TABLE IF NOT EXISTS chat_jobs (
		id TEXT PRIMARY KEY,
		thread_id TEXT NOT NULL,
		namespace_id TEXT NOT NULL,
		harness TEXT NOT NULL,
		context TEXT,
		prompt TEXT,
		status TEXT NOT NULL,
		result TEXT,
		started_at INTEGER,
		completed_at INTEGER,
		metrics JSON NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);`,
	`CREATE INDEX IF NOT EXISTS chat_jobs_by_namespace ON chat_jobs (namespace_id);`,
	`CREATE INDEX IF NOT EXISTS chat_jobs_by_status ON chat_jobs (status);`,
	`CREATE INDEX IF NOT EXISTS chat_jobs_by_namespace_status ON chat_jobs (namespace_id, status);`,
	`CREATE INDEX IF NOT EXISTS chat_jobs_by_thread ON chat_jobs (thread_id);`,
	`CREATE INDEX IF NOT EXISTS chat_jobs_by_thread_status ON chat_jobs (thread_id, status);`,
}
