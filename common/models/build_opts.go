package models

// BuildOptions alter how a build is enqueued and run.
type BuildOptions struct {
	// JobsToRun restricts the build to the named job definitions. An empty
	// list runs every job in the workflow.
	JobsToRun []ResourceName
	// Force makes every job run even if a previously successful job with an
	// identical fingerprint exists.
	Force bool
}

// ShouldRunJob returns true if the named job is included in this build.
func (m *BuildOptions) ShouldRunJob(name ResourceName) bool {
	if len(m.JobsToRun) == 0 {
		return true
	}
	for _, jobName := range m.JobsToRun {
		if jobName == name {
			return true
		}
	}
	return false
}
