package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/FairForge/marketplace/internal/addons"
	"github.com/lib/pq"
)

// Config holds database configuration
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN renders the lib/pq connection string.
func (c Config) DSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, sslMode)
}

// Postgres is an add-on store backed by PostgreSQL.
type Postgres struct {
	db *sql.DB
}

var _ addons.Store = (*Postgres)(nil)

// NewPostgres creates a new PostgreSQL connection
func NewPostgres(cfg Config) (*Postgres, error) {
	db, err := sql.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &Postgres{db: db}, nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping verifies the database connection
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// CreateTables creates the necessary database tables
func (p *Postgres) CreateTables(ctx context.Context) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS addons (
			id BIGINT PRIMARY KEY,
			slug VARCHAR(255) NOT NULL UNIQUE,
			name VARCHAR(255) NOT NULL DEFAULT '',
			type INTEGER NOT NULL DEFAULT 1,
			status INTEGER NOT NULL DEFAULT 0,
			is_listed BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS addon_authors (
			addon_id BIGINT NOT NULL REFERENCES addons(id) ON DELETE CASCADE,
			user_id BIGINT NOT NULL,
			role VARCHAR(32) NOT NULL,
			PRIMARY KEY (addon_id, user_id)
		)`,
	}

	for _, query := range queries {
		if _, err := p.db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("create table: %w", err)
		}
	}

	return nil
}

// CreateAddon inserts an add-on and its authors.
func (p *Postgres) CreateAddon(ctx context.Context, a *addons.Addon) error {
	query := `INSERT INTO addons (id, slug, name, type, status, is_listed) VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := p.db.ExecContext(ctx, query, a.ID, a.Slug, a.Name, int(a.Type), int(a.Status), a.IsListed)
	if err != nil {
		return fmt.Errorf("insert addon: %w", err)
	}
	for _, au := range a.Authors {
		if err := p.AddAuthor(ctx, a.ID, au); err != nil {
			return err
		}
	}
	return nil
}

// AddAuthor grants a user a role on an add-on.
func (p *Postgres) AddAuthor(ctx context.Context, addonID int64, au addons.Author) error {
	query := `INSERT INTO addon_authors (addon_id, user_id, role) VALUES ($1, $2, $3)
		ON CONFLICT (addon_id, user_id) DO UPDATE SET role = EXCLUDED.role`
	if _, err := p.db.ExecContext(ctx, query, addonID, au.UserID, string(au.Role)); err != nil {
		return fmt.Errorf("insert author: %w", err)
	}
	return nil
}

func (p *Postgres) All() addons.QuerySet { return &pgQuery{db: p.db} }

func (p *Postgres) Valid() addons.QuerySet {
	return p.Filter(addons.Filter{Statuses: addons.ValidStatuses})
}

func (p *Postgres) Filter(f addons.Filter) addons.QuerySet {
	return &pgQuery{db: p.db, filter: f}
}

type pgQuery struct {
	db     *sql.DB
	filter addons.Filter
}

func (q *pgQuery) ByID(ctx context.Context, id int64) (*addons.Addon, error) {
	return q.get(ctx, "id = $1", id)
}

func (q *pgQuery) BySlug(ctx context.Context, slug string) (*addons.Addon, error) {
	return q.get(ctx, "slug = $1", slug)
}

// where builds the WHERE clause for a lookup condition plus the filter.
func (q *pgQuery) where(cond string, arg interface{}) (string, []interface{}) {
	clauses := []string{cond}
	args := []interface{}{arg}

	if len(q.filter.Types) > 0 {
		types := make([]int64, len(q.filter.Types))
		for i, t := range q.filter.Types {
			types[i] = int64(t)
		}
		args = append(args, pq.Array(types))
		clauses = append(clauses, fmt.Sprintf("type = ANY($%d)", len(args)))
	}
	if len(q.filter.Statuses) > 0 {
		statuses := make([]int64, len(q.filter.Statuses))
		for i, s := range q.filter.Statuses {
			statuses[i] = int64(s)
		}
		args = append(args, pq.Array(statuses))
		clauses = append(clauses, fmt.Sprintf("status = ANY($%d)", len(args)))
	}
	return strings.Join(clauses, " AND "), args
}

func (q *pgQuery) get(ctx context.Context, cond string, arg interface{}) (*addons.Addon, error) {
	where, args := q.where(cond, arg)
	query := `SELECT id, slug, name, type, status, is_listed FROM addons WHERE ` + where

	var (
		a           addons.Addon
		typ, status int
	)
	err := q.db.QueryRowContext(ctx, query, args...).Scan(
		&a.ID,
		&a.Slug,
		&a.Name,
		&typ,
		&status,
		&a.IsListed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, addons.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query addon: %w", err)
	}
	a.Type = addons.Type(typ)
	a.Status = addons.Status(status)

	authors, err := q.authors(ctx, a.ID)
	if err != nil {
		return nil, err
	}
	a.Authors = authors
	return &a, nil
}

func (q *pgQuery) authors(ctx context.Context, addonID int64) ([]addons.Author, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT user_id, role FROM addon_authors WHERE addon_id = $1 ORDER BY user_id`, addonID)
	if err != nil {
		return nil, fmt.Errorf("query authors: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []addons.Author
	for rows.Next() {
		var (
			au   addons.Author
			role string
		)
		if err := rows.Scan(&au.UserID, &role); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		au.Role = addons.Role(role)
		out = append(out, au)
	}
	return out, rows.Err()
}
