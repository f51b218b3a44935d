package documents

// RootDocument describes the API and links to its top-level resources.
type RootDocument struct {
	Version   string `json:"version"`
	BuildsURL string `json:"builds_url"`
}
