package postgres

import (
	"context"
	"strings"

	dbutil "github.com/flarebyte/datamove/internal/dao/dbutil"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// cityForgeDDL creates the CityForge tables. Statements are idempotent and
// ordered so that referenced tables exist first.
var cityForgeDDL = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id SERIAL PRIMARY KEY,
		email VARCHAR(120) NOT NULL UNIQUE,
		password_hash VARCHAR(128) NOT NULL,
		first_name VARCHAR(50) NOT NULL,
		last_name VARCHAR(50) NOT NULL,
		role VARCHAR(20) NOT NULL DEFAULT 'user',
		is_active BOOLEAN DEFAULT TRUE,
		created_date TIMESTAMP DEFAULT now(),
		last_login TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS tags (
		id SERIAL PRIMARY KEY,
		name VARCHAR(500) NOT NULL UNIQUE,
		created_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS cards (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		website_url VARCHAR(255),
		phone_number VARCHAR(20),
		email VARCHAR(100),
		address VARCHAR(255),
		address_override_url VARCHAR(500),
		contact_name VARCHAR(100),
		featured BOOLEAN DEFAULT FALSE,
		image_url VARCHAR(255),
		created_by INTEGER REFERENCES users(id),
		approved BOOLEAN DEFAULT TRUE,
		approved_by INTEGER REFERENCES users(id),
		approved_date TIMESTAMP,
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS cards_name_idx ON cards(name)`,
	`CREATE TABLE IF NOT EXISTS card_tags (
		card_id INTEGER NOT NULL REFERENCES cards(id),
		tag_id INTEGER NOT NULL REFERENCES tags(id),
		PRIMARY KEY (card_id, tag_id)
	)`,
	`CREATE TABLE IF NOT EXISTS card_submissions (
		id SERIAL PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		description TEXT,
		website_url VARCHAR(255),
		phone_number VARCHAR(20),
		email VARCHAR(100),
		address VARCHAR(255),
		address_override_url VARCHAR(500),
		contact_name VARCHAR(100),
		image_url VARCHAR(255),
		tags_text TEXT,
		status VARCHAR(20) DEFAULT 'pending',
		submitted_by INTEGER NOT NULL REFERENCES users(id),
		reviewed_by INTEGER REFERENCES users(id),
		review_notes TEXT,
		card_id INTEGER REFERENCES cards(id),
		created_date TIMESTAMP DEFAULT now(),
		reviewed_date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS card_modifications (
		id SERIAL PRIMARY KEY,
		card_id INTEGER NOT NULL REFERENCES cards(id),
		name VARCHAR(255) NOT NULL,
		description TEXT,
		website_url VARCHAR(255),
		phone_number VARCHAR(20),
		email VARCHAR(100),
		address VARCHAR(255),
		address_override_url VARCHAR(500),
		contact_name VARCHAR(100),
		image_url VARCHAR(255),
		tags_text TEXT,
		status VARCHAR(20) DEFAULT 'pending',
		submitted_by INTEGER NOT NULL REFERENCES users(id),
		reviewed_by INTEGER REFERENCES users(id),
		review_notes TEXT,
		created_date TIMESTAMP DEFAULT now(),
		reviewed_date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS reviews (
		id SERIAL PRIMARY KEY,
		card_id INTEGER NOT NULL REFERENCES cards(id),
		user_id INTEGER NOT NULL REFERENCES users(id),
		rating INTEGER NOT NULL CHECK (rating BETWEEN 1 AND 5),
		title VARCHAR(200),
		comment TEXT,
		approved BOOLEAN DEFAULT FALSE,
		approved_by INTEGER REFERENCES users(id),
		approved_date TIMESTAMP,
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS reviews_card_idx ON reviews(card_id)`,
	`CREATE TABLE IF NOT EXISTS resource_categories (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		display_order INTEGER DEFAULT 0,
		created_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS resource_items (
		id SERIAL PRIMARY KEY,
		title VARCHAR(200) NOT NULL,
		url VARCHAR(500) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(100) NOT NULL,
		category_id INTEGER REFERENCES resource_categories(id),
		phone VARCHAR(20),
		address VARCHAR(500),
		icon VARCHAR(50) NOT NULL DEFAULT 'building',
		display_order INTEGER DEFAULT 0,
		is_active BOOLEAN DEFAULT TRUE,
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS quick_access_items (
		id SERIAL PRIMARY KEY,
		identifier VARCHAR(50) NOT NULL UNIQUE,
		title VARCHAR(100) NOT NULL,
		subtitle VARCHAR(100) NOT NULL,
		phone VARCHAR(20) NOT NULL,
		color VARCHAR(20) NOT NULL DEFAULT 'blue',
		icon VARCHAR(50) NOT NULL DEFAULT 'building',
		display_order INTEGER DEFAULT 0,
		is_active BOOLEAN DEFAULT TRUE,
		created_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS resource_config (
		id SERIAL PRIMARY KEY,
		key VARCHAR(100) NOT NULL UNIQUE,
		value TEXT NOT NULL,
		description VARCHAR(500),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS forum_categories (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL UNIQUE,
		description TEXT,
		slug VARCHAR(120) NOT NULL UNIQUE,
		display_order INTEGER DEFAULT 0,
		is_active BOOLEAN DEFAULT TRUE,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS forum_category_requests (
		id SERIAL PRIMARY KEY,
		name VARCHAR(100) NOT NULL,
		description TEXT,
		justification TEXT,
		status VARCHAR(20) DEFAULT 'pending',
		requested_by INTEGER NOT NULL REFERENCES users(id),
		reviewed_by INTEGER REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		reviewed_date TIMESTAMP,
		review_notes TEXT,
		category_id INTEGER REFERENCES forum_categories(id)
	)`,
	`CREATE TABLE IF NOT EXISTS forum_threads (
		id SERIAL PRIMARY KEY,
		category_id INTEGER NOT NULL REFERENCES forum_categories(id),
		title VARCHAR(255) NOT NULL,
		slug VARCHAR(280) NOT NULL,
		is_pinned BOOLEAN DEFAULT FALSE,
		is_locked BOOLEAN DEFAULT FALSE,
		report_count INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS forum_posts (
		id SERIAL PRIMARY KEY,
		thread_id INTEGER NOT NULL REFERENCES forum_threads(id),
		content TEXT NOT NULL,
		is_first_post BOOLEAN DEFAULT FALSE,
		report_count INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now(),
		edited_by INTEGER REFERENCES users(id),
		edited_date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS forum_reports (
		id SERIAL PRIMARY KEY,
		thread_id INTEGER NOT NULL REFERENCES forum_threads(id),
		post_id INTEGER REFERENCES forum_posts(id),
		reason VARCHAR(50) NOT NULL,
		details TEXT,
		status VARCHAR(20) DEFAULT 'pending',
		reported_by INTEGER NOT NULL REFERENCES users(id),
		reviewed_by INTEGER REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		reviewed_date TIMESTAMP,
		resolution_notes TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS help_wanted_posts (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(50) NOT NULL,
		status VARCHAR(20) DEFAULT 'open',
		location VARCHAR(255),
		budget VARCHAR(100),
		contact_preference VARCHAR(50) DEFAULT 'message',
		report_count INTEGER NOT NULL DEFAULT 0,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	// parent_id is checked at commit so replies may precede their parent in a batch
	`CREATE TABLE IF NOT EXISTS help_wanted_comments (
		id SERIAL PRIMARY KEY,
		post_id INTEGER NOT NULL REFERENCES help_wanted_posts(id),
		content TEXT NOT NULL,
		parent_id INTEGER REFERENCES help_wanted_comments(id) DEFERRABLE INITIALLY DEFERRED,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS help_wanted_reports (
		id SERIAL PRIMARY KEY,
		post_id INTEGER NOT NULL REFERENCES help_wanted_posts(id),
		reason VARCHAR(50) NOT NULL,
		details TEXT,
		status VARCHAR(20) DEFAULT 'pending',
		reported_by INTEGER NOT NULL REFERENCES users(id),
		reviewed_by INTEGER REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		reviewed_date TIMESTAMP,
		resolution_notes TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS indexing_jobs (
		id SERIAL PRIMARY KEY,
		resource_id INTEGER NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'pending',
		pages_indexed INTEGER DEFAULT 0,
		total_pages INTEGER DEFAULT 0,
		last_error TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		retry_count INTEGER DEFAULT 0,
		created_date TIMESTAMPTZ DEFAULT now(),
		updated_date TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS token_blacklist (
		id SERIAL PRIMARY KEY,
		jti VARCHAR(36) NOT NULL UNIQUE,
		token_type VARCHAR(10) NOT NULL,
		user_id INTEGER REFERENCES users(id),
		revoked_at TIMESTAMP NOT NULL DEFAULT now(),
		expires_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS support_tickets (
		id SERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		description TEXT NOT NULL,
		category VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL DEFAULT 'open',
		priority VARCHAR(20) DEFAULT 'normal',
		is_anonymous BOOLEAN NOT NULL DEFAULT FALSE,
		created_by INTEGER NOT NULL REFERENCES users(id),
		assigned_to INTEGER REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now(),
		resolved_date TIMESTAMP,
		closed_date TIMESTAMP
	)`,
	`CREATE TABLE IF NOT EXISTS support_ticket_messages (
		id SERIAL PRIMARY KEY,
		ticket_id INTEGER NOT NULL REFERENCES support_tickets(id),
		content TEXT NOT NULL,
		is_internal_note BOOLEAN NOT NULL DEFAULT FALSE,
		created_by INTEGER NOT NULL REFERENCES users(id),
		created_date TIMESTAMP DEFAULT now(),
		updated_date TIMESTAMP DEFAULT now()
	)`,
}

// EnsureSchema creates the CityForge tables inside schema if they do not exist.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool, schema string) error {
	if schema == "" {
		schema = "public"
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return dbutil.ErrWrap("schema.begin", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()
	ident := pgx.Identifier{schema}.Sanitize()
	stmts := append([]string{
		`CREATE SCHEMA IF NOT EXISTS ` + ident,
		`SET LOCAL search_path TO ` + ident,
	}, cityForgeDDL...)
	for i, s := range stmts {
		if _, err := tx.Exec(ctx, s); err != nil {
			return dbutil.ErrWrap("schema.exec", err, dbutil.ParamSummary("schema", schema), dbutil.ParamSummary("stmt", i))
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return dbutil.ErrWrap("schema.commit", err, dbutil.ParamSummary("schema", schema))
	}
	return nil
}

// Tables lists the tables EnsureSchema creates, in creation order.
func Tables() []string {
	const prefix = "CREATE TABLE IF NOT EXISTS "
	var out []string
	for _, s := range cityForgeDDL {
		if rest, ok := strings.CutPrefix(s, prefix); ok {
			out = append(out, strings.Fields(rest)[0])
		}
	}
	return out
}
