package data

import "strings"

// DependencyKey uniquely identifies a piece of remote metadata.
type DependencyKey string

// FetchScope decides which part of a Subject keys the cache.
type FetchScope string

const (
	// ScopeRepo results are keyed by GitHub owner/repo.
	ScopeRepo FetchScope = "repo"
	// ScopeCrate results are keyed by crate name.
	ScopeCrate FetchScope = "crate"
)

// Subject identifies what metadata is fetched for: a GitHub repository
// and the crate published from it. Either half may be empty.
type Subject struct {
	Owner string
	Repo  string
	Crate string
}

// HasRepo reports whether the GitHub half is set.
func (s Subject) HasRepo() bool {
	return s.Owner != "" && s.Repo != ""
}

// CacheID returns the identity of s under scope, lower-cased. It is empty
// when s lacks the fields the scope needs.
func (s Subject) CacheID(scope FetchScope) string {
	switch scope {
	case ScopeRepo:
		if !s.HasRepo() {
			return ""
		}
		return strings.ToLower(s.Owner + "/" + s.Repo)
	case ScopeCrate:
		return strings.ToLower(s.Crate)
	default:
		return ""
	}
}
