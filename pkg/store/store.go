// Package store implements the Repository collaborator of spec.md section
// 6: get/put/delete/versions/root, assumed linearizable for a single
// writer. Grounded on the teacher's pkg/storage (interface-first design,
// BoltDB-backed implementation).
package store

import "github.com/steward-sh/steward/pkg/types"

// Repository is the durable-state collaborator the Tracker writes its
// instances through (spec.md section 6).
type Repository interface {
	// Get returns the group tree rooted at path, or (nil, false) if absent.
	Get(path string) (*types.Group, bool, error)

	// Put durably stores the group tree rooted at path.
	Put(path string, group *types.Group) error

	// Delete removes the group tree rooted at path.
	Delete(path string) error

	// Versions returns the historical version timestamps recorded for
	// path, most recent first.
	Versions(path string) ([]int64, error)

	// Root returns the root group tree.
	Root() (*types.Group, error)

	// PutInstance/GetInstance/ListInstances/DeleteInstance persist the
	// Tracker's per-instance state, keyed by run-spec path.
	PutInstance(runSpecPath string, instance *types.Instance) error
	GetInstance(runSpecPath, instanceID string) (*types.Instance, bool, error)
	ListInstances(runSpecPath string) ([]*types.Instance, error)
	ListAllInstances() ([]*types.Instance, error)
	DeleteInstance(runSpecPath, instanceID string) error

	// Close releases underlying resources.
	Close() error
}
