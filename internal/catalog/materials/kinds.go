package materials

// ArtifactKind names one of the JSON resources produced by the build step.
type ArtifactKind string

const (
	ArtifactFull        ArtifactKind = "materials.json"
	ArtifactFullMin     ArtifactKind = "materials-min.json"
	ArtifactSearchIndex ArtifactKind = "search-index.json"
	ArtifactCategories  ArtifactKind = "categories.json"
)

// Artifacts is the set of dataset kinds the format validator understands.
var Artifacts = []ArtifactKind{
	ArtifactFull,
	ArtifactFullMin,
	ArtifactSearchIndex,
	ArtifactCategories,
}

func (k ArtifactKind) Known() bool {
	for _, a := range Artifacts {
		if a == k {
			return true
		}
	}
	return false
}

// Manifest is the legacy file list, served next to the artifacts.
const Manifest = "file-list.json"

// LoadedVia records which path produced a dataset.
type LoadedVia string

const (
	LoadedViaProgressive LoadedVia = "progressive"
	LoadedViaComplete    LoadedVia = "complete"
	LoadedViaLegacy      LoadedVia = "legacy"
	LoadedViaMemory      LoadedVia = "memory-cache"
	LoadedViaPersistent  LoadedVia = "persistent-cache"
)
