package store

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/prospect-cli/internal/model"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(":memory:")
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleProspect(osmID int64, email string) model.Prospect {
	return model.Prospect{
		OSMID:          osmID,
		Name:           "Biz",
		Email:          email,
		EmailValidated: email != "",
		Latitude:       48.13,
		Longitude:      -2.04,
		ScrapedAt:      time.Now().UTC(),
	}
}

func TestSQLiteInsertAndExists(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	exists, err := s.ExistsByOSMID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, exists)

	report, err := s.InsertProspects(ctx, []model.Prospect{sampleProspect(1, "a@biz.fr")})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Inserted)
	assert.NotZero(t, report.Outcomes[0].Prospect.ID)

	exists, err = s.ExistsByOSMID(ctx, 1)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteInsert_OSMIDConflictSkipped(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.InsertProspects(ctx, []model.Prospect{sampleProspect(1, "a@biz.fr")})
	require.NoError(t, err)

	report, err := s.InsertProspects(ctx, []model.Prospect{sampleProspect(1, "other@biz.fr")})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 0, report.Rejected)
}

func TestSQLiteInsert_DuplicateEmailRejectedPerRecord(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	// Batch with an in-batch email collision plus a clean record.
	batch := []model.Prospect{
		sampleProspect(1, "same@biz.fr"),
		sampleProspect(2, "same@biz.fr"),
		sampleProspect(3, ""),
	}
	report, err := s.InsertProspects(ctx, batch)
	require.NoError(t, err)

	assert.Equal(t, 2, report.Inserted)
	assert.Equal(t, 1, report.Rejected)
	assert.True(t, eris.Is(report.Outcomes[1].Err, ErrDuplicateEmail))

	// A later batch colliding with the stored email is rejected too.
	report, err = s.InsertProspects(ctx, []model.Prospect{sampleProspect(4, "same@biz.fr")})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Inserted)
	assert.Equal(t, 1, report.Rejected)
}

func TestSQLiteInsert_MultipleAbsentEmailsAllowed(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	report, err := s.InsertProspects(ctx, []model.Prospect{
		sampleProspect(1, ""),
		sampleProspect(2, ""),
		sampleProspect(3, ""),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Inserted)
	assert.Equal(t, 0, report.Rejected)
}

func TestSQLiteFindByEmail(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.InsertProspects(ctx, []model.Prospect{sampleProspect(1, "find@biz.fr")})
	require.NoError(t, err)

	p, err := s.FindByEmail(ctx, "find@biz.fr")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, int64(1), p.OSMID)
	assert.True(t, p.EmailValidated)

	p, err = s.FindByEmail(ctx, "missing@biz.fr")
	require.NoError(t, err)
	assert.Nil(t, p)

	p, err = s.FindByEmail(ctx, "")
	require.NoError(t, err)
	assert.Nil(t, p)
}

func TestSQLiteListProspects_ToContact(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	withSite := sampleProspect(1, "site@biz.fr")
	withSite.Website = "https://biz.fr"
	withSite.HasWebsite = true

	contacted := sampleProspect(2, "done@biz.fr")
	contacted.Contacted = true

	noEmail := sampleProspect(3, "")
	target := sampleProspect(4, "target@biz.fr")

	_, err := s.InsertProspects(ctx, []model.Prospect{withSite, contacted, noEmail, target})
	require.NoError(t, err)

	prospects, err := s.ListProspects(ctx, Filter{ToContact: true})
	require.NoError(t, err)
	require.Len(t, prospects, 1)
	assert.Equal(t, int64(4), prospects[0].OSMID)

	all, err := s.ListProspects(ctx, Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSQLiteListProspects_LimitOffset(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	for id := int64(1); id <= 5; id++ {
		_, err := s.InsertProspects(ctx, []model.Prospect{sampleProspect(id, "")})
		require.NoError(t, err)
	}

	page, err := s.ListProspects(ctx, Filter{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, int64(3), page[0].OSMID)
	assert.Equal(t, int64(4), page[1].OSMID)

	rest, err := s.ListProspects(ctx, Filter{Offset: 3})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, int64(4), rest[0].OSMID)
	assert.Equal(t, int64(5), rest[1].OSMID)
}

func TestSQLiteRunLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	runID, err := s.CreateRun(ctx, []string{"Iffendic", "Montfort-sur-Meu"})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	err = s.CompleteRun(ctx, runID, &model.Run{Fetched: 3, Inserted: 2, Known: 1})
	require.NoError(t, err)

	var status string
	var inserted int64
	err = s.db.QueryRowContext(ctx,
		`SELECT status, inserted FROM discovery_runs WHERE id = ?`, runID,
	).Scan(&status, &inserted)
	require.NoError(t, err)
	assert.Equal(t, "completed", status)
	assert.Equal(t, int64(2), inserted)

	failID, err := s.CreateRun(ctx, []string{"Nowhere"})
	require.NoError(t, err)
	require.NoError(t, s.FailRun(ctx, failID, "source unavailable"))

	var failMsg string
	err = s.db.QueryRowContext(ctx,
		`SELECT error FROM discovery_runs WHERE id = ?`, failID,
	).Scan(&failMsg)
	require.NoError(t, err)
	assert.Equal(t, "source unavailable", failMsg)
}
