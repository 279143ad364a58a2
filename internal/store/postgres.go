package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/InhaCentury20/pass/internal/db"
	"github.com/InhaCentury20/pass/internal/model"
	"github.com/InhaCentury20/pass/internal/units"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const announcementColumns = `announcement_id, listing_number, COALESCE(board_id, ''), title,
	COALESCE(source_organization, ''), COALESCE(department, ''), COALESCE(category, ''),
	COALESCE(housing_type, ''), COALESCE(source_url, ''), COALESCE(original_pdf_url, ''),
	COALESCE(board_text, ''), COALESCE(address_detail, ''), COALESCE(region, ''),
	total_households, post_date, apply_date, application_end_date,
	COALESCE(application_link, ''), COALESCE(homepage_link, ''), extracted_at`

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
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
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for bulk importers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS announcements (
	announcement_id      BIGSERIAL PRIMARY KEY,
	listing_number       BIGINT UNIQUE,
	board_id             TEXT,
	title                TEXT NOT NULL,
	source_organization  TEXT,
	department           TEXT,
	category             TEXT,
	housing_type         TEXT,
	source_url           TEXT UNIQUE,
	original_pdf_url     TEXT,
	board_text           TEXT,
	post_date            DATE,
	apply_date           DATE,
	application_end_date DATE,
	application_link     TEXT,
	homepage_link        TEXT,
	address_detail       TEXT,
	region               TEXT,
	total_households     INTEGER NOT NULL DEFAULT 0,
	min_deposit          DOUBLE PRECISION,
	max_deposit          DOUBLE PRECISION,
	monthly_rent         DOUBLE PRECISION,
	price                JSONB,
	eligibility          JSONB,
	schedules            JSONB,
	extracted_at         TIMESTAMPTZ,
	visited_at           TIMESTAMPTZ,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT now()
);

ALTER TABLE announcements ADD COLUMN IF NOT EXISTS visited_at TIMESTAMPTZ;

CREATE INDEX IF NOT EXISTS idx_announcements_title ON announcements(title);
CREATE INDEX IF NOT EXISTS idx_announcements_post_date ON announcements(post_date DESC);
CREATE INDEX IF NOT EXISTS idx_announcements_pending ON announcements(announcement_id) WHERE extracted_at IS NULL;
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// MaxListingNumber returns the largest listing number of a fully visited
// announcement, or nil when there is none. Rows stored by a run that failed
// before MarkVisited do not count, so the next run fetches them again.
func (s *PostgresStore) MaxListingNumber(ctx context.Context) (*int64, error) {
	var max *int64
	if err := s.pool.QueryRow(ctx,
		`SELECT MAX(listing_number) FROM announcements WHERE visited_at IS NOT NULL`,
	).Scan(&max); err != nil {
		return nil, eris.Wrap(err, "postgres: max listing number")
	}
	return max, nil
}

// MarkVisited records that the crawl finished with the announcement.
func (s *PostgresStore) MarkVisited(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE announcements SET visited_at = $1 WHERE announcement_id = $2`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: mark visited %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: mark visited: announcement %d not found", id)
	}
	return nil
}

// UpsertAnnouncement inserts or refreshes a board announcement keyed on its
// listing number and returns the row id. Derived fields are left untouched.
func (s *PostgresStore) UpsertAnnouncement(ctx context.Context, a *model.Announcement) (int64, error) {
	if a == nil || a.ListingNumber == nil {
		return 0, eris.New("postgres: upsert announcement without listing number")
	}

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO announcements (listing_number, board_id, title, source_organization, department,
			category, housing_type, source_url, original_pdf_url, board_text, post_date, apply_date,
			application_link, homepage_link, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (listing_number) DO UPDATE SET
			board_id = EXCLUDED.board_id,
			title = EXCLUDED.title,
			source_organization = EXCLUDED.source_organization,
			department = EXCLUDED.department,
			category = EXCLUDED.category,
			housing_type = EXCLUDED.housing_type,
			source_url = EXCLUDED.source_url,
			original_pdf_url = EXCLUDED.original_pdf_url,
			board_text = EXCLUDED.board_text,
			post_date = EXCLUDED.post_date,
			apply_date = EXCLUDED.apply_date,
			application_link = COALESCE(EXCLUDED.application_link, announcements.application_link),
			homepage_link = COALESCE(EXCLUDED.homepage_link, announcements.homepage_link),
			updated_at = EXCLUDED.updated_at
		RETURNING announcement_id`,
		*a.ListingNumber, model.String(a.BoardID), a.Title, model.String(a.Organization),
		model.String(a.Department), model.String(a.Category), model.String(a.HousingType),
		model.String(a.SourceURL), model.String(a.PDFURL), model.String(a.BoardText),
		a.PostDate, a.ApplyDate, model.String(a.ApplicationLink), model.String(a.HomepageLink),
		time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: upsert announcement %d", *a.ListingNumber)
	}
	a.ID = id
	return id, nil
}

// GetAnnouncement loads one announcement. It returns nil when the id is unknown.
func (s *PostgresStore) GetAnnouncement(ctx context.Context, id int64) (*model.Announcement, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+announcementColumns+` FROM announcements WHERE announcement_id = $1`, id)
	a, err := scanAnnouncement(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get announcement %d", id)
	}
	return a, nil
}

// ListAnnouncements returns announcements in ascending listing order.
func (s *PostgresStore) ListAnnouncements(ctx context.Context, opts ListOpts) ([]model.Announcement, error) {
	query := `SELECT ` + announcementColumns + ` FROM announcements WHERE true`
	args := []any{}

	if opts.Pending && !opts.All {
		query += ` AND extracted_at IS NULL`
	}
	query += ` ORDER BY listing_number ASC NULLS LAST, announcement_id ASC`
	if opts.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, opts.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list announcements")
	}
	defer rows.Close()

	var out []model.Announcement
	for rows.Next() {
		a, err := scanAnnouncement(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan announcement")
		}
		out = append(out, *a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list announcements iterate")
}

func scanAnnouncement(row pgx.Row) (*model.Announcement, error) {
	var a model.Announcement
	err := row.Scan(
		&a.ID, &a.ListingNumber, &a.BoardID, &a.Title,
		&a.Organization, &a.Department, &a.Category,
		&a.HousingType, &a.SourceURL, &a.PDFURL,
		&a.BoardText, &a.AddressDetail, &a.Region,
		&a.TotalHouseholds, &a.PostDate, &a.ApplyDate, &a.ApplicationEnd,
		&a.ApplicationLink, &a.HomepageLink, &a.ExtractedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

const baseEligibilityQuery = `SELECT eligibility FROM announcements
	WHERE title LIKE $1 AND title NOT LIKE '%추가%'
	ORDER BY post_date DESC NULLS LAST, announcement_id DESC
	LIMIT 1`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// BaseEligibility returns the eligibility profile of the most recent
// non-addendum announcement whose title contains name. It returns nil when no
// such announcement exists or it has no profile yet.
func (s *PostgresStore) BaseEligibility(ctx context.Context, name string) (*model.EligibilityProfile, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, baseEligibilityQuery, "%"+likeEscaper.Replace(name)+"%").Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: base eligibility %q", name)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var p model.EligibilityProfile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal eligibility")
	}
	return &p, nil
}

// SaveDerived writes every derived field of one announcement in a single
// transaction. Nothing is written when any step fails.
func (s *PostgresStore) SaveDerived(ctx context.Context, id int64, d model.Derived) error {
	prices := d.Prices
	if prices == nil {
		prices = []model.PriceRecord{}
	}
	priceJSON, err := json.Marshal(prices)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal prices")
	}
	eligibilityJSON, err := json.Marshal(d.Eligibility)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal eligibility")
	}
	scheduleJSON, err := json.Marshal(d.Schedule)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal schedule")
	}

	var applicationEnd *time.Time
	if d.ApplicationEnd != nil {
		if t, ok := units.ParseDay(*d.ApplicationEnd); ok {
			applicationEnd = &t
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: save derived: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	tag, err := tx.Exec(ctx,
		`UPDATE announcements SET
			min_deposit = $1, max_deposit = $2, monthly_rent = $3,
			price = $4, eligibility = $5, schedules = $6,
			region = $7, address_detail = $8, application_end_date = $9,
			total_households = $10, application_link = $11, homepage_link = $12,
			extracted_at = $13, updated_at = $13
		WHERE announcement_id = $14`,
		d.MinDeposit, d.MaxDeposit, d.MonthlyRent,
		priceJSON, eligibilityJSON, scheduleJSON,
		d.Region, d.AddressDetail, applicationEnd,
		d.TotalHouseholds, d.ApplicationLink, d.HomepageLink,
		now, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: save derived %d", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: save derived: announcement %d not found", id)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrapf(err, "postgres: save derived %d: commit", id)
	}
	return nil
}
