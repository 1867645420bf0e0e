// Package sqlite is the relational store behind the consumer and the query endpoints.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/webitel/post-feed-service/internal/domain/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS authors (
	id    INTEGER PRIMARY KEY,
	name  TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS posts (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT    NOT NULL,
	content    TEXT    NOT NULL,
	author_id  INTEGER NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS posts_author_id ON posts (author_id);
`

type Store struct {
	db *sql.DB
}

// Open connects to dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers anyway; one connection also keeps ":memory:" databases shared.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts post and returns it with the store-assigned id and creation time.
func (s *Store) Create(ctx context.Context, post model.Post) (model.Post, error) {
	createdAt := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (title, content, author_id, created_at) VALUES (?, ?, ?, ?)`,
		post.Title, post.Content, post.AuthorID, createdAt.UnixMilli(),
	)
	if err != nil {
		return model.Post{}, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Post{}, fmt.Errorf("insert post: last id: %w", err)
	}

	post.ID = strconv.FormatInt(id, 10)
	post.CreatedAt = time.UnixMilli(createdAt.UnixMilli()).UTC()
	return post, nil
}

// ListPosts returns every post in creation order.
func (s *Store) ListPosts(ctx context.Context) ([]model.Post, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, content, author_id, created_at FROM posts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()

	posts := make([]model.Post, 0)
	for rows.Next() {
		var (
			p         model.Post
			id        int64
			createdAt int64
		)
		if err := rows.Scan(&id, &p.Title, &p.Content, &p.AuthorID, &createdAt); err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		p.ID = strconv.FormatInt(id, 10)
		p.CreatedAt = time.UnixMilli(createdAt).UTC()
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

// ListAuthors returns every author ordered by id.
func (s *Store) ListAuthors(ctx context.Context) ([]model.Author, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email FROM authors ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list authors: %w", err)
	}
	defer rows.Close()

	authors := make([]model.Author, 0)
	for rows.Next() {
		var a model.Author
		if err := rows.Scan(&a.ID, &a.Name, &a.Email); err != nil {
			return nil, fmt.Errorf("scan author: %w", err)
		}
		authors = append(authors, a)
	}
	return authors, rows.Err()
}

// GetAuthor returns model.ErrNotFound for unknown ids.
func (s *Store) GetAuthor(ctx context.Context, id int64) (model.Author, error) {
	var a model.Author
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM authors WHERE id = ?`, id).
		Scan(&a.ID, &a.Name, &a.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Author{}, fmt.Errorf("author %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return model.Author{}, fmt.Errorf("get author %d: %w", id, err)
	}
	return a, nil
}

// UpsertAuthors inserts authors whose ids are not present yet.
func (s *Store) UpsertAuthors(ctx context.Context, authors []model.Author) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO authors (id, name, email) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, a := range authors {
		if _, err := stmt.ExecContext(ctx, a.ID, a.Name, a.Email); err != nil {
			return fmt.Errorf("insert author %d: %w", a.ID, err)
		}
	}
	return tx.Commit()
}
