package models

// JobGraph is a job instance together with its steps, in execution order.
type JobGraph struct {
	Job   *Job    `json:"job"`
	Steps []*Step `json:"steps"`
}

// BuildGraph is a build together with every job instance and step created
// when the workflow was enqueued.
type BuildGraph struct {
	Build *Build      `json:"build"`
	Jobs  []*JobGraph `json:"jobs"`
}

// FailedJobs returns the jobs that finished in a failed state.
func (m *BuildGraph) FailedJobs() []*JobGraph {
	var failed []*JobGraph
	for _, jobGraph := range m.Jobs {
		if jobGraph.Job.Status == WorkflowStatusFailed {
			failed = append(failed, jobGraph)
		}
	}
	return failed
}
