package server

import (
	"net/http"

	"github.com/pipewright/pipewright/common/logger"
	"github.com/pipewright/pipewright/common/version"
	"github.com/pipewright/pipewright/server/api/rest/documents"
	"github.com/pipewright/pipewright/server/api/rest/routes"
)

type RootAPI struct {
	*APIBase
}

func NewRootAPI(logFactory logger.LogFactory) *RootAPI {
	return &RootAPI{
		APIBase: NewAPIBase(logFactory("RootAPI")),
	}
}

func (a *RootAPI) GetRootDocument(w http.ResponseWriter, r *http.Request) {
	a.GotResource(w, r, &documents.RootDocument{
		Version:   version.VersionToString(),
		BuildsURL: routes.MakeBuildsLink(),
	})
}

// Ping answers with a bare 200 so clients and health checks can verify the
// server is up.
func (a *RootAPI) Ping(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
