package app

import (
	"context"
	"fmt"
	"os"

	"github.com/benbjohnson/clock"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/runner"
	"github.com/pipewright/pipewright/runner/logging"
	"github.com/pipewright/pipewright/server/api/rest/server"
	"github.com/pipewright/pipewright/server/services/queue"
	"github.com/pipewright/pipewright/server/store"
	"github.com/pipewright/pipewright/server/store/builds"
	"github.com/pipewright/pipewright/server/store/jobs"
	"github.com/pipewright/pipewright/server/store/migrations"
	"github.com/pipewright/pipewright/server/store/steps"
)

// App holds the fully wired pipewright backend for one work directory.
type App struct {
	LogFactory   logger.LogFactory
	DB           *store.DB
	BuildStore   store.BuildStore
	JobStore     store.JobStore
	StepStore    store.StepStore
	QueueService *queue.QueueService
	Scheduler    *runner.Scheduler
	APIServer    *server.StatusAPIServer
	StdLog       *logging.StructuredLogger
}

// New wires up the application from config. The returned cleanup function
// closes the database and must be called before the process exits.
func New(ctx context.Context, config *PWConfig) (*App, func(), error) {
	logRegistry, err := logger.NewLogRegistry(config.LogLevels)
	if err != nil {
		return nil, nil, fmt.Errorf("error creating log registry: %w", err)
	}
	var logFactory logger.LogFactory
	if config.Verbose {
		logFactory = logger.MakeLogrusLogFactoryStdOut(logRegistry)
	} else {
		logFactory, err = logger.MakeLogrusLogFactoryToFile(logRegistry, config.LogFilePath)
		if err != nil {
			return nil, nil, fmt.Errorf("error creating log file: %w", err)
		}
	}

	db, dbCleanup, err := store.NewDatabase(ctx, config.DatabaseConfig, migrations.NewPipewrightMigrateRunner(logFactory))
	if err != nil {
		return nil, nil, fmt.Errorf("error opening database: %w", err)
	}

	buildStore := builds.NewStore(db, logFactory)
	jobStore := jobs.NewStore(db, logFactory)
	stepStore := steps.NewStore(db, logFactory)
	clk := clock.New()

	queueService := queue.NewQueueService(db, buildStore, jobStore, stepStore, clk, logFactory, config.LimitsConfig)

	checkout := runner.NewGitCheckoutManager(logFactory)
	orchestrator := runner.NewOrchestrator(config.ExecutorConfig, checkout, jobStore, stepStore, clk, logFactory)
	scheduler := runner.NewJobScheduler(orchestrator, buildStore, clk, logFactory, config.SchedulerConfig)

	apiServer := server.NewStatusAPIServer(
		server.NewStatusAPIRouter(
			server.NewBuildAPI(queueService, buildStore, logFactory),
			server.NewRootAPI(logFactory),
			logFactory),
		config.APIServerConfig,
		logFactory)

	return &App{
		LogFactory:   logFactory,
		DB:           db,
		BuildStore:   buildStore,
		JobStore:     jobStore,
		StepStore:    stepStore,
		QueueService: queueService,
		Scheduler:    scheduler,
		APIServer:    apiServer,
		StdLog:       logging.NewStructuredLogger(logFactory, os.Stdout),
	}, dbCleanup, nil
}
