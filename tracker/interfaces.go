package tracker

import (
	"context"

	"github.com/alc6/schematrack/schema"
)

//go:generate mockgen -source=interfaces.go -destination=mocks/mock_interfaces.go -package=mocks

// SnapshotStore persists named snapshots
type SnapshotStore interface {
	// Exists reports whether a snapshot with the given name is stored
	Exists(name string) (bool, error)
	// Get loads a snapshot by name
	Get(name string) (*schema.Snapshot, error)
	// List returns every snapshot sorted ascending by timestamp
	List() ([]schema.Snapshot, error)
	// Latest returns the most recent snapshot
	Latest() (*schema.Snapshot, error)
	// Save writes a snapshot, replacing one with the same name
	Save(snap *schema.Snapshot) error
	// Delete removes a snapshot and reports whether it existed
	Delete(name string) (bool, error)
}

// SchemaExtractor reads the live schema of one database connection
type SchemaExtractor interface {
	// Extract returns the current tables keyed by name
	Extract(ctx context.Context) (schema.Schema, error)
	// Driver returns the label recorded as the snapshot database
	Driver() string
}
