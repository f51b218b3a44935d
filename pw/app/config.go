package app

import (
	"fmt"
	"path/filepath"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/runner"
	"github.com/pipewright/pipewright/server/api/rest/server"
	"github.com/pipewright/pipewright/server/services/queue"
	"github.com/pipewright/pipewright/server/store"
)

// DefaultStatusServerPort is the port the local status API server runs on.
const DefaultStatusServerPort = 3900

type PWConfig struct {
	WorkDir          string
	LogFilePath      logger.LogFilePath
	LogLevels        logger.LogLevelConfig
	DatabaseConfig   store.DatabaseConfig
	DatabaseFilePath string
	APIServerConfig  server.StatusAPIServerConfig
	SchedulerConfig  runner.SchedulerConfig
	ExecutorConfig   runner.ExecutorConfig
	LimitsConfig     queue.LimitsConfig
	JSON             bool
	Verbose          bool
}

// NewPWConfig builds the standard configuration for a pipewright work
// directory. The database and log file live under workDir; repoDir is the
// local repository that workflows are read from and built.
func NewPWConfig(workDir string, repoDir string, verbose bool, jsonOutput bool) *PWConfig {
	databaseFilePath := filepath.Join(workDir, "sqlite.db")
	return &PWConfig{
		WorkDir:     workDir,
		LogFilePath: logger.LogFilePath(filepath.Join(workDir, "pipewright.log")),
		DatabaseConfig: store.DatabaseConfig{
			ConnectionString:   store.DatabaseConnectionString(fmt.Sprintf("file:%s?cache=shared&_foreign_keys=1", databaseFilePath)),
			Driver:             store.Sqlite,
			MaxIdleConnections: store.DefaultDatabaseMaxIdleConnections,
			MaxOpenConnections: store.DefaultDatabaseMaxOpenConnections,
		},
		DatabaseFilePath: databaseFilePath,
		APIServerConfig: server.StatusAPIServerConfig{
			HTTPServerConfig: server.HTTPServerConfig{
				Address: fmt.Sprintf("localhost:%d", DefaultStatusServerPort),
			},
		},
		SchedulerConfig: runner.SchedulerConfig{
			ParallelJobs: runner.DefaultParallelJobs,
			Labels:       runner.DefaultRunnerLabels(),
		},
		ExecutorConfig: runner.ExecutorConfig{
			RepoDir: repoDir,
			IsLocal: false,
		},
		LimitsConfig: queue.DefaultLimits(),
		JSON:         jsonOutput,
		Verbose:      verbose,
	}
}
