package storage

import (
	"errors"

	"github.com/cuemby/stevedore/pkg/types"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("not found")

// Store defines the interface for local state storage on the operator host
type Store interface {
	// Runs
	SaveRun(run *types.RunRecord) error
	GetRun(cluster, id string) (*types.RunRecord, error)
	ListRuns(cluster string, limit int) ([]*types.RunRecord, error)
	DeleteRuns(cluster string) error

	// Secrets
	PutSecret(secret *types.Secret) error
	GetSecret(cluster, name string) (*types.Secret, error)
	ListSecrets(cluster string) ([]*types.Secret, error)
	DeleteSecret(cluster, name string) error

	// Utility
	Close() error
}
