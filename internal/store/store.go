// Package store persists prospects and discovery run bookkeeping. It is the
// authoritative uniqueness guard: the dedup filter upstream is only a
// pre-check, the unique constraints on osm_id and email decide.
package store

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/model"
)

// ErrDuplicateEmail indicates a prospect's email collides with an existing
// or earlier-in-batch record. Per-record and non-fatal to the batch.
var ErrDuplicateEmail = eris.New("store: duplicate email")

// Filter specifies criteria for listing prospects.
type Filter struct {
	// ToContact restricts to prospects worth emailing: no website, has an
	// email, not yet contacted.
	ToContact bool
	// Limit and Offset page the result set independently; zero means
	// no limit (or no offset).
	Limit  int
	Offset int
}

// InsertOutcome reports the fate of a single record in a batch insert.
type InsertOutcome struct {
	Prospect model.Prospect
	Err      error // nil = inserted; ErrDuplicateEmail = rejected
}

// InsertReport summarizes a batch insert. Partial success is normal:
// rejected records are reported here, never raised.
type InsertReport struct {
	Outcomes []InsertOutcome
	Inserted int
	Skipped  int // osm_id already present (lost race with another run)
	Rejected int // duplicate email
}

// Store defines the persistence operations used by the discovery pipeline.
type Store interface {
	ExistsByOSMID(ctx context.Context, osmID int64) (bool, error)
	FindByEmail(ctx context.Context, email string) (*model.Prospect, error)
	InsertProspects(ctx context.Context, prospects []model.Prospect) (*InsertReport, error)
	ListProspects(ctx context.Context, filter Filter) ([]model.Prospect, error)

	// Discovery run bookkeeping.
	CreateRun(ctx context.Context, areas []string) (string, error)
	CompleteRun(ctx context.Context, runID string, run *model.Run) error
	FailRun(ctx context.Context, runID string, errMsg string) error

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
