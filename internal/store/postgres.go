package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/prospect-cli/internal/db"
	"github.com/sells-group/prospect-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresWithPool wraps an existing pool (used by tests with pgxmock).
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id              BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	osm_id          BIGINT NOT NULL UNIQUE,
	name            TEXT,
	category        TEXT,
	email           TEXT UNIQUE,
	phone           TEXT,
	website         TEXT,
	address         TEXT,
	postcode        TEXT,
	city            TEXT,
	latitude        DOUBLE PRECISION,
	longitude       DOUBLE PRECISION,
	scraped_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	has_website     BOOLEAN NOT NULL DEFAULT false,
	email_validated BOOLEAN NOT NULL DEFAULT false,
	contacted       BOOLEAN NOT NULL DEFAULT false,
	created_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS discovery_runs (
	id           TEXT PRIMARY KEY,
	areas        JSONB NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	fetched      BIGINT NOT NULL DEFAULT 0,
	inserted     BIGINT NOT NULL DEFAULT 0,
	known        BIGINT NOT NULL DEFAULT 0,
	rejected     BIGINT NOT NULL DEFAULT 0,
	error        TEXT,
	started_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	completed_at TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_prospects_contacted ON prospects(contacted);
CREATE INDEX IF NOT EXISTS idx_prospects_has_website ON prospects(has_website);
CREATE INDEX IF NOT EXISTS idx_discovery_runs_status ON discovery_runs(status);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) ExistsByOSMID(ctx context.Context, osmID int64) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM prospects WHERE osm_id = $1)`, osmID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: exists by osm id %d", osmID)
	}
	return exists, nil
}

const prospectColumns = `id, osm_id, name, category, email, phone, website, address,
	postcode, city, latitude, longitude, scraped_at, has_website, email_validated,
	contacted, created_at, updated_at`

func (s *PostgresStore) FindByEmail(ctx context.Context, email string) (*model.Prospect, error) {
	if email == "" {
		return nil, nil
	}
	row := s.pool.QueryRow(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE email = $1`, email,
	)
	p, err := scanProspect(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "postgres: find by email")
	}
	return p, nil
}

// InsertProspects inserts a batch one record at a time so a rejected record
// never fails its siblings. osm_id conflicts are skipped, email conflicts
// (against existing rows or earlier records in the same batch) are reported
// per record as ErrDuplicateEmail.
func (s *PostgresStore) InsertProspects(ctx context.Context, prospects []model.Prospect) (*InsertReport, error) {
	report := &InsertReport{}
	seenEmail := make(map[string]bool)

	for _, p := range prospects {
		if p.Email != "" && seenEmail[p.Email] {
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p, Err: ErrDuplicateEmail})
			report.Rejected++
			continue
		}

		var id int64
		err := s.pool.QueryRow(ctx, `
			INSERT INTO prospects (
				osm_id, name, category, email, phone, website, address,
				postcode, city, latitude, longitude, scraped_at,
				has_website, email_validated, contacted
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			ON CONFLICT (osm_id) DO NOTHING
			RETURNING id`,
			p.OSMID, nilIfEmpty(p.Name), nilIfEmpty(p.Category), nilIfEmpty(p.Email),
			nilIfEmpty(p.Phone), nilIfEmpty(p.Website), nilIfEmpty(p.Address),
			nilIfEmpty(p.Postcode), nilIfEmpty(p.City), p.Latitude, p.Longitude,
			p.ScrapedAt, p.HasWebsite, p.EmailValidated, p.Contacted,
		).Scan(&id)

		switch {
		case err == nil:
			p.ID = id
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p})
			report.Inserted++
			if p.Email != "" {
				seenEmail[p.Email] = true
			}
		case errors.Is(err, pgx.ErrNoRows):
			// ON CONFLICT (osm_id) DO NOTHING returned no row.
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p})
			report.Skipped++
		case db.UniqueViolation(err, "email"):
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p, Err: ErrDuplicateEmail})
			report.Rejected++
		default:
			return nil, eris.Wrapf(err, "postgres: insert prospect osm id %d", p.OSMID)
		}
	}

	return report, nil
}

func (s *PostgresStore) ListProspects(ctx context.Context, filter Filter) ([]model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects`
	if filter.ToContact {
		query += ` WHERE has_website = false AND email IS NOT NULL AND contacted = false`
	}
	query += ` ORDER BY id`

	args := []any{}
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += fmt.Sprintf(` OFFSET $%d`, len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list prospects")
	}
	defer rows.Close()

	var prospects []model.Prospect
	for rows.Next() {
		p, err := scanProspect(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan prospect")
		}
		prospects = append(prospects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: iterate prospects")
	}
	return prospects, nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, areas []string) (string, error) {
	id := uuid.New().String()
	areasJSON, err := json.Marshal(areas)
	if err != nil {
		return "", eris.Wrap(err, "postgres: marshal run areas")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO discovery_runs (id, areas, status) VALUES ($1, $2, $3)`,
		id, areasJSON, string(model.RunStatusRunning),
	)
	if err != nil {
		return "", eris.Wrap(err, "postgres: create run")
	}
	return id, nil
}

func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, run *model.Run) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE discovery_runs SET
			status = $2, fetched = $3, inserted = $4, known = $5, rejected = $6,
			completed_at = now()
		WHERE id = $1`,
		runID, string(model.RunStatusCompleted),
		run.Fetched, run.Inserted, run.Known, run.Rejected,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}
	return nil
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE discovery_runs SET status = $2, error = $3, completed_at = now() WHERE id = $1`,
		runID, string(model.RunStatusFailed), errMsg,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	return nil
}

// scanProspect reads one prospect row. Works for both pgx.Row and pgx.Rows.
func scanProspect(row pgx.Row) (*model.Prospect, error) {
	var (
		p                                model.Prospect
		name, category, email, phone     *string
		website, address, postcode, city *string
		latitude, longitude              *float64
	)
	err := row.Scan(
		&p.ID, &p.OSMID, &name, &category, &email, &phone, &website, &address,
		&postcode, &city, &latitude, &longitude, &p.ScrapedAt, &p.HasWebsite,
		&p.EmailValidated, &p.Contacted, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Name = deref(name)
	p.Category = deref(category)
	p.Email = deref(email)
	p.Phone = deref(phone)
	p.Website = deref(website)
	p.Address = deref(address)
	p.Postcode = deref(postcode)
	p.City = deref(city)
	if latitude != nil {
		p.Latitude = *latitude
	}
	if longitude != nil {
		p.Longitude = *longitude
	}
	return &p, nil
}

// nilIfEmpty returns nil for empty strings, allowing NULL storage so the
// unique email constraint ignores absent emails.
func nilIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
