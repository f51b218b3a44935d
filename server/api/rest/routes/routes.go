package routes

import (
	"fmt"

	"github.com/pipewright/pipewright/common/models"
)

// MakeRootLink returns the path of the API root document.
func MakeRootLink() string {
	return "/api/v1/"
}

// MakeBuildsLink returns the path of the build list endpoint.
func MakeBuildsLink() string {
	return "/api/v1/builds"
}

// MakeBuildLink returns the path of a single build's endpoint.
func MakeBuildLink(buildID models.BuildID) string {
	return fmt.Sprintf("/api/v1/builds/%s", buildID)
}
