package migrations

// DialectTemplate is used as the templating control for differing SQL syntax between our supported databases
type DialectTemplate struct {
	Binary            string
	IntegerPrimaryKey string
}

// MigrationSet provides a set of migrations that can be applied to a database.
type MigrationSet []MigrationData

// MigrationData provides the data for a single migration, including Up and Down SQL.
// Templated values are supported and will be substituted for database-specific values
// before the migrations are applied.
type MigrationData struct {
	SequenceNumber int64
	Name           string
	UpSQL          string
	DownSQL        string
}

// PipewrightMigrations is the set of migrations to set up the database for the pipewright build history.
var PipewrightMigrations = MigrationSet{
	{
		SequenceNumber: 1,
		Name:           "create_builds",
		UpSQL: `CREATE TABLE IF NOT EXISTS builds
				(
					build_id text NOT NULL PRIMARY KEY,
					build_created_at timestamp without time zone NOT NULL,
					build_updated_at timestamp without time zone NOT NULL,
					build_workflow_name text NOT NULL,
					build_event_kind text NOT NULL,
					build_ref text NOT NULL,
					build_commit_sha text NOT NULL,
					build_status text NOT NULL,
					build_timings text NOT NULL,
					build_error text
				);
				CREATE INDEX IF NOT EXISTS builds_created_at_id_desc_index ON builds(
					build_created_at DESC,
					build_id DESC);
				CREATE INDEX IF NOT EXISTS builds_status_index ON builds(build_status);`,
		DownSQL: `DROP INDEX builds_status_index;
				  DROP INDEX builds_created_at_id_desc_index;
				  DROP TABLE builds;`,
	},
	{
		SequenceNumber: 2,
		Name:           "create_jobs",
		UpSQL: `CREATE TABLE IF NOT EXISTS jobs
				(
					job_id text NOT NULL PRIMARY KEY,
					job_created_at timestamp without time zone NOT NULL,
					job_updated_at timestamp without time zone NOT NULL,
					job_build_id text NOT NULL,
					job_name text NOT NULL,
					job_description text NOT NULL,
					job_type text NOT NULL,
					job_runs_on text,
					job_matrix text,
					job_environment text,
					job_ref text NOT NULL,
					job_commit_sha text NOT NULL,
					job_status text NOT NULL,
					job_error text,
					job_timings text NOT NULL,
					job_timeout bigint NOT NULL,
					job_fingerprint text,
					job_indirect_to_job_id text,
					FOREIGN KEY (job_build_id) REFERENCES builds (build_id)
				);
				CREATE INDEX IF NOT EXISTS jobs_build_id_index ON jobs(job_build_id);
				CREATE INDEX IF NOT EXISTS jobs_fingerprint_index ON jobs(job_name, job_fingerprint);
				CREATE INDEX IF NOT EXISTS jobs_status_index ON jobs(job_status);`,
		DownSQL: `DROP INDEX jobs_status_index;
				  DROP INDEX jobs_fingerprint_index;
				  DROP INDEX jobs_build_id_index;
				  DROP TABLE jobs;`,
	},
	{
		SequenceNumber: 3,
		Name:           "create_steps",
		UpSQL: `CREATE TABLE IF NOT EXISTS steps
				(
					step_id text NOT NULL PRIMARY KEY,
					step_created_at timestamp without time zone NOT NULL,
					step_updated_at timestamp without time zone NOT NULL,
					step_job_id text NOT NULL,
					step_name text NOT NULL,
					step_description text NOT NULL,
					step_sequence integer NOT NULL,
					step_commands text NOT NULL,
					step_environment text,
					step_continue_on_error boolean NOT NULL,
					step_status text NOT NULL,
					step_error text,
					step_timings text NOT NULL,
					FOREIGN KEY (step_job_id) REFERENCES jobs (job_id)
				);
				CREATE INDEX IF NOT EXISTS steps_job_id_index ON steps(step_job_id);`,
		DownSQL: `DROP INDEX steps_job_id_index;
				  DROP TABLE steps;`,
	},
}
