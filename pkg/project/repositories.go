package project

import (
	"github.com/replicate/cogset/pkg/cerrors"
	"github.com/replicate/cogset/pkg/revisionstore"
)

// ProjectRepositories is the VCS-level named-remote list, supplemented
// from the original GitWrapper/ProjectRepositories class (§9). It is
// distinct from a Tree's RemoteRegistry (C4): this one names where
// `commit`-time push/pull/fetch talk to, not where cached dataset
// objects live.
type ProjectRepositories struct {
	vcs         revisionstore.Backend
	defaultName string
}

func newProjectRepositories(vcs revisionstore.Backend) *ProjectRepositories {
	return &ProjectRepositories{vcs: vcs}
}

// List returns every VCS-level remote.
func (r *ProjectRepositories) List() ([]revisionstore.RemoteSpec, error) {
	specs, err := r.vcs.ListRemotes()
	if err != nil {
		return nil, cerrors.Vcs("list_remotes", err)
	}
	return specs, nil
}

// Add registers a VCS-level remote, making it the default if none is
// set yet.
func (r *ProjectRepositories) Add(name, url string) error {
	if err := r.vcs.AddRemote(name, url); err != nil {
		return cerrors.Vcs("add_remote", err)
	}
	if r.defaultName == "" {
		r.defaultName = name
	}
	return nil
}

// Remove deregisters a VCS-level remote.
func (r *ProjectRepositories) Remove(name string) error {
	if err := r.vcs.RemoveRemote(name); err != nil {
		return cerrors.Vcs("remove_remote", err)
	}
	if r.defaultName == name {
		r.defaultName = ""
	}
	return nil
}

// SetDefault names the remote used for unqualified push/pull/fetch.
func (r *ProjectRepositories) SetDefault(name string) error {
	specs, err := r.List()
	if err != nil {
		return err
	}
	for _, s := range specs {
		if s.Name == name {
			r.defaultName = name
			return nil
		}
	}
	return cerrors.UnknownRemote(name)
}

// GetDefault returns the default remote's name, or "" if none is set.
func (r *ProjectRepositories) GetDefault() string { return r.defaultName }
