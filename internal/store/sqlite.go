package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/prospect-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS prospects (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	osm_id          INTEGER NOT NULL UNIQUE,
	name            TEXT,
	category        TEXT,
	email           TEXT UNIQUE,
	phone           TEXT,
	website         TEXT,
	address         TEXT,
	postcode        TEXT,
	city            TEXT,
	latitude        REAL,
	longitude       REAL,
	scraped_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	has_website     BOOLEAN NOT NULL DEFAULT 0,
	email_validated BOOLEAN NOT NULL DEFAULT 0,
	contacted       BOOLEAN NOT NULL DEFAULT 0,
	created_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS discovery_runs (
	id           TEXT PRIMARY KEY,
	areas        TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'running',
	fetched      INTEGER NOT NULL DEFAULT 0,
	inserted     INTEGER NOT NULL DEFAULT 0,
	known        INTEGER NOT NULL DEFAULT 0,
	rejected     INTEGER NOT NULL DEFAULT 0,
	error        TEXT,
	started_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	completed_at DATETIME
);

CREATE INDEX IF NOT EXISTS idx_prospects_contacted ON prospects(contacted);
CREATE INDEX IF NOT EXISTS idx_prospects_has_website ON prospects(has_website);
CREATE INDEX IF NOT EXISTS idx_discovery_runs_status ON discovery_runs(status);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ExistsByOSMID(ctx context.Context, osmID int64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM prospects WHERE osm_id = ?)`, osmID,
	).Scan(&exists)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: exists by osm id %d", osmID)
	}
	return exists, nil
}

func (s *SQLiteStore) FindByEmail(ctx context.Context, email string) (*model.Prospect, error) {
	if email == "" {
		return nil, nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+prospectColumns+` FROM prospects WHERE email = ?`, email,
	)
	p, err := scanProspectSQL(row)
	if err != nil {
		if eris.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrap(err, "sqlite: find by email")
	}
	return p, nil
}

// sqliteUniqueViolation reports whether err is a UNIQUE constraint failure
// on the named column of the prospects table.
func sqliteUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed: prospects."+column)
}

// InsertProspects mirrors the Postgres implementation: per-record inserts,
// partial success, email collisions reported as ErrDuplicateEmail.
func (s *SQLiteStore) InsertProspects(ctx context.Context, prospects []model.Prospect) (*InsertReport, error) {
	report := &InsertReport{}
	seenEmail := make(map[string]bool)

	for _, p := range prospects {
		if p.Email != "" && seenEmail[p.Email] {
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p, Err: ErrDuplicateEmail})
			report.Rejected++
			continue
		}

		now := time.Now().UTC()
		res, err := s.db.ExecContext(ctx, `
			INSERT INTO prospects (
				osm_id, name, category, email, phone, website, address,
				postcode, city, latitude, longitude, scraped_at,
				has_website, email_validated, contacted, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(osm_id) DO NOTHING`,
			p.OSMID, nilIfEmpty(p.Name), nilIfEmpty(p.Category), nilIfEmpty(p.Email),
			nilIfEmpty(p.Phone), nilIfEmpty(p.Website), nilIfEmpty(p.Address),
			nilIfEmpty(p.Postcode), nilIfEmpty(p.City), p.Latitude, p.Longitude,
			p.ScrapedAt, p.HasWebsite, p.EmailValidated, p.Contacted, now, now,
		)

		switch {
		case err == nil:
			n, raErr := res.RowsAffected()
			if raErr != nil {
				return nil, eris.Wrap(raErr, "sqlite: rows affected")
			}
			if n == 0 {
				report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p})
				report.Skipped++
				continue
			}
			if id, idErr := res.LastInsertId(); idErr == nil {
				p.ID = id
			}
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p})
			report.Inserted++
			if p.Email != "" {
				seenEmail[p.Email] = true
			}
		case sqliteUniqueViolation(err, "email"):
			report.Outcomes = append(report.Outcomes, InsertOutcome{Prospect: p, Err: ErrDuplicateEmail})
			report.Rejected++
		default:
			return nil, eris.Wrapf(err, "sqlite: insert prospect osm id %d", p.OSMID)
		}
	}

	return report, nil
}

func (s *SQLiteStore) ListProspects(ctx context.Context, filter Filter) ([]model.Prospect, error) {
	query := `SELECT ` + prospectColumns + ` FROM prospects`
	if filter.ToContact {
		query += ` WHERE has_website = 0 AND email IS NOT NULL AND contacted = 0`
	}
	query += ` ORDER BY id`

	args := []any{}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	} else if filter.Offset > 0 {
		// SQLite refuses OFFSET without LIMIT; -1 means unlimited.
		query += ` LIMIT -1`
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list prospects")
	}
	defer rows.Close() //nolint:errcheck

	var prospects []model.Prospect
	for rows.Next() {
		p, err := scanProspectSQL(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan prospect")
		}
		prospects = append(prospects, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: iterate prospects")
	}
	return prospects, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, areas []string) (string, error) {
	id := uuid.New().String()
	areasJSON, err := json.Marshal(areas)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: marshal run areas")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO discovery_runs (id, areas, status, started_at) VALUES (?, ?, ?, ?)`,
		id, string(areasJSON), string(model.RunStatusRunning), time.Now().UTC(),
	)
	if err != nil {
		return "", eris.Wrap(err, "sqlite: create run")
	}
	return id, nil
}

func (s *SQLiteStore) CompleteRun(ctx context.Context, runID string, run *model.Run) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE discovery_runs SET
			status = ?, fetched = ?, inserted = ?, known = ?, rejected = ?,
			completed_at = ?
		WHERE id = ?`,
		string(model.RunStatusCompleted),
		run.Fetched, run.Inserted, run.Known, run.Rejected,
		time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete run %s", runID)
	}
	return nil
}

func (s *SQLiteStore) FailRun(ctx context.Context, runID string, errMsg string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE discovery_runs SET status = ?, error = ?, completed_at = ? WHERE id = ?`,
		string(model.RunStatusFailed), errMsg, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: fail run %s", runID)
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanProspectSQL(row scanner) (*model.Prospect, error) {
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
