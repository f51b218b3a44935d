package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/api/rest/documents"
	"github.com/pipewright/pipewright/server/api/rest/server"
	"github.com/pipewright/pipewright/server/services/queue"
	"github.com/pipewright/pipewright/server/store/builds"
	"github.com/pipewright/pipewright/server/store/jobs"
	"github.com/pipewright/pipewright/server/store/steps"
	"github.com/pipewright/pipewright/server/store/store_test"
)

func newTestServer(t *testing.T) (*httptest.Server, *queue.QueueService) {
	registry, err := logger.NewLogRegistry("")
	require.NoError(t, err)
	logFactory := logger.MakeLogrusLogFactoryStdOut(registry)

	db, cleanup, err := store_test.Connect(logFactory)
	require.NoError(t, err)
	t.Cleanup(cleanup)

	buildStore := builds.NewStore(db, logFactory)
	jobStore := jobs.NewStore(db, logFactory)
	stepStore := steps.NewStore(db, logFactory)
	queueService := queue.NewQueueService(db, buildStore, jobStore, stepStore, clock.New(), logFactory, queue.DefaultLimits())

	router := server.NewStatusAPIRouter(
		server.NewBuildAPI(queueService, buildStore, logFactory),
		server.NewRootAPI(logFactory),
		logFactory)
	ts := httptest.NewServer(router)
	t.Cleanup(ts.Close)
	return ts, queueService
}

func enqueueTestBuild(t *testing.T, queueService *queue.QueueService) *models.BuildGraph {
	def := &models.WorkflowDefinition{
		Name:     "build",
		Triggers: models.Triggers{Push: &models.TriggerRule{}},
		Jobs: []models.JobDefinition{
			{
				Name: "test",
				Type: models.JobTypeExec,
				Steps: []models.StepDefinition{
					{Name: "unit", Commands: models.Commands{"go test ./..."}},
				},
			},
		},
	}
	event := &models.Event{Kind: models.EventKindPush, Ref: "refs/heads/main"}
	graph, err := queueService.EnqueueBuild(context.Background(), nil, def, event, nil)
	require.NoError(t, err)
	return graph
}

func TestPing(t *testing.T) {
	ts, _ := newTestServer(t)
	res, err := http.Get(ts.URL + "/api/v1/ping")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
}

func TestGetRootDocument(t *testing.T) {
	ts, _ := newTestServer(t)
	res, err := http.Get(ts.URL + "/api/v1/")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	doc := &documents.RootDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(doc))
	require.Equal(t, "/api/v1/builds", doc.BuildsURL)
}

func TestListAndGetBuilds(t *testing.T) {
	ts, queueService := newTestServer(t)
	graph := enqueueTestBuild(t, queueService)

	res, err := http.Get(ts.URL + "/api/v1/builds")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	list := &documents.BuildList{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(list))
	require.Len(t, list.Builds, 1)
	require.Equal(t, graph.Build.ID, list.Builds[0].ID)
	require.Equal(t, models.WorkflowStatusQueued, list.Builds[0].Status)

	res2, err := http.Get(ts.URL + list.Builds[0].URL)
	require.NoError(t, err)
	defer res2.Body.Close()
	require.Equal(t, http.StatusOK, res2.StatusCode)

	buildGraph := &documents.BuildGraph{}
	require.NoError(t, json.NewDecoder(res2.Body).Decode(buildGraph))
	require.Len(t, buildGraph.Jobs, 1)
	require.Equal(t, "test", buildGraph.Jobs[0].Job.Name.String())
	require.Len(t, buildGraph.Jobs[0].Steps, 1)
}

func TestGetBuildNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	res, err := http.Get(ts.URL + "/api/v1/builds/" + models.NewBuildID().String())
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusNotFound, res.StatusCode)

	errDoc := &documents.ErrorDocument{}
	require.NoError(t, json.NewDecoder(res.Body).Decode(errDoc))
	require.Equal(t, gerror.ErrCodeNotFound, errDoc.Code)
}

func TestGetBuildInvalidID(t *testing.T) {
	ts, _ := newTestServer(t)
	res, err := http.Get(ts.URL + "/api/v1/builds/not-a-build-id")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
}
