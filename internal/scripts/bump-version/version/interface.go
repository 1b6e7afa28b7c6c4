package version

// VersionData fills the app-info template
type VersionData struct {
	NAME    string
	VERSION string
}

// VersionControl is the subset of a vcs a release needs
type VersionControl interface {
	Dirty() (bool, error)
	TagExists(tag string) (bool, error)
	Add(path string) error
	Commit(message string) error
	Tag(version string) error
}

// VersionGenerator writes the versioned source file
type VersionGenerator interface {
	Generate(data VersionData) error
}
