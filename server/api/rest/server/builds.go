package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/pipewright/pipewright/common/gerror"
	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/models"
	"github.com/pipewright/pipewright/server/api/rest/documents"
	"github.com/pipewright/pipewright/server/services/queue"
	"github.com/pipewright/pipewright/server/store"
)

const defaultBuildListLimit = 20

type BuildAPI struct {
	queueService *queue.QueueService
	buildStore   store.BuildStore
	*APIBase
}

func NewBuildAPI(
	queueService *queue.QueueService,
	buildStore store.BuildStore,
	logFactory logger.LogFactory) *BuildAPI {
	return &BuildAPI{
		queueService: queueService,
		buildStore:   buildStore,
		APIBase:      NewAPIBase(logFactory("BuildAPI")),
	}
}

// List returns recent builds, newest first. The page size can be set with
// the "limit" query parameter.
func (a *BuildAPI) List(w http.ResponseWriter, r *http.Request) {
	limit := defaultBuildListLimit
	if str := r.URL.Query().Get("limit"); str != "" {
		parsed, err := strconv.Atoi(str)
		if err != nil || parsed < 1 {
			a.Error(w, r, gerror.NewErrValidationFailed("limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	builds, err := a.buildStore.ListRecent(r.Context(), nil, limit)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.GotResource(w, r, documents.MakeBuildList(builds))
}

// Get returns one build together with all of its jobs and steps.
func (a *BuildAPI) Get(w http.ResponseWriter, r *http.Request) {
	buildID, err := models.ParseBuildID(chi.URLParam(r, "build_id"))
	if err != nil {
		a.Error(w, r, gerror.NewErrValidationFailed("invalid build id").Wrap(err))
		return
	}
	graph, err := a.queueService.ReadBuildGraph(r.Context(), nil, buildID)
	if err != nil {
		a.Error(w, r, err)
		return
	}
	a.GotResource(w, r, documents.MakeBuildGraph(graph))
}
