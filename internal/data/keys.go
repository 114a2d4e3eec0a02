package data

const (
	// DepGitHubStars is the stargazer count of the GitHub repository (int).
	DepGitHubStars DependencyKey = "github.stars"

	// DepCratesDownloads is the all-time download count of the crate on
	// crates.io (int64).
	DepCratesDownloads DependencyKey = "cratesio.downloads"
)

// AllKeys lists every key the harness requests for a repository, in fetch
// order.
func AllKeys() []DependencyKey {
	return []DependencyKey{DepGitHubStars, DepCratesDownloads}
}
