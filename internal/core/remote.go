package core

import "time"

// RemoteRef identifies a remote skill source of the form owner/repo[@sha].
type RemoteRef struct {
	Owner string
	Repo  string
	SHA   string // empty for an unpinned (floating) ref
}

// Pinned reports whether the ref carries an explicit, immutable commit sha.
func (r RemoteRef) Pinned() bool {
	return r.SHA != ""
}

// String renders the ref back to its canonical "owner/repo[@sha]" form.
func (r RemoteRef) String() string {
	s := r.Owner + "/" + r.Repo
	if r.SHA != "" {
		s += "@" + r.SHA
	}
	return s
}

// RemoteEntry is the persisted cache state for one remote ref.
type RemoteEntry struct {
	SHA       string    `json:"sha"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// RemoteState is the full on-disk ledger of fetched remote skill refs.
type RemoteState struct {
	Remotes map[string]RemoteEntry `json:"remotes"`
}
