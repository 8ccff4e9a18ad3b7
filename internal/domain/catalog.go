package domain

// ExecutionEngine names the compute backend a model build targets.
type ExecutionEngine string

const (
	ExecutionEngineCPU  ExecutionEngine = "cpu"
	ExecutionEngineCUDA ExecutionEngine = "cuda"
)

// SizeClass is coarse display metadata for download size expectations.
type SizeClass string

const (
	SizeClassSmall  SizeClass = "small"
	SizeClassMedium SizeClass = "medium"
	SizeClassLarge  SizeClass = "large"
)

// CatalogEntry describes one downloadable model artifact.
//
// SourcePath is the path portion of the artifact URL; the acquisition
// manager prepends each configured host prefix when building candidate
// URLs. Entries with ArchiveFileName set are compressed bundles that
// require extraction; entries with InstallFileName set are single files
// installed as-is.
type CatalogEntry struct {
	ID              string          `json:"id"`
	DisplayName     string          `json:"displayName"`
	Description     string          `json:"description,omitempty"`
	SourcePath      string          `json:"sourcePath"`
	ArchiveFileName string          `json:"archiveFileName,omitempty"`
	InstallFileName string          `json:"installFileName,omitempty"`
	ExecutionEngine ExecutionEngine `json:"executionEngine"`
	SizeClass       SizeClass       `json:"sizeClass"`
	Installed       bool            `json:"installed"`
	InstalledPath   string          `json:"installedPath,omitempty"`
}

// IsArchive reports whether the artifact needs an extraction step.
func (e CatalogEntry) IsArchive() bool {
	return e.ArchiveFileName != ""
}
