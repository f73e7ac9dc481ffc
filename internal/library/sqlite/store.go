// Package sqlite provides the SQLite-backed image library store.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ehallam/gmassist/internal/library"
	"github.com/ehallam/gmassist/internal/library/sqlite/migrations"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
	"github.com/ehallam/gmassist/internal/platform/storage/sqlitemigrate"
)

// Store persists the image library in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens the library database and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("library path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open library db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping library db: %w", err)
	}
	if err := sqlitemigrate.Apply(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// AddFolder inserts one folder record.
func (s *Store) AddFolder(ctx context.Context, name string) (library.Folder, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return library.Folder{}, fmt.Errorf("folder name is required")
	}
	now := time.Now().UTC()
	res, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO folders (name, created_at) VALUES (?, ?)", name, toMillis(now))
	if err != nil {
		return library.Folder{}, fmt.Errorf("insert folder: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return library.Folder{}, fmt.Errorf("folder id: %w", err)
	}
	return library.Folder{ID: id, Name: name, CreatedAt: now}, nil
}

// AddImage inserts one image record.
func (s *Store) AddImage(ctx context.Context, folderID int64, name, path string) (library.Image, error) {
	name = strings.TrimSpace(name)
	path = strings.TrimSpace(path)
	if path == "" {
		return library.Image{}, gmerrors.New(gmerrors.CodeLibraryImagePathEmpty, "image path is required")
	}
	if name == "" {
		name = filepath.Base(path)
	}
	now := time.Now().UTC()
	res, err := s.sqlDB.ExecContext(ctx,
		"INSERT INTO images (folder_id, name, path, created_at) VALUES (?, ?, ?, ?)",
		folderID, name, path, toMillis(now))
	if err != nil {
		return library.Image{}, fmt.Errorf("insert image: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return library.Image{}, fmt.Errorf("image id: %w", err)
	}
	return library.Image{ID: id, FolderID: folderID, Name: name, Path: path, CreatedAt: now}, nil
}

// GetImage fetches one image by id.
func (s *Store) GetImage(ctx context.Context, id int64) (library.Image, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, folder_id, name, path, created_at FROM images WHERE id = ?", id)
	return scanImage(row)
}

// GetImageByPath fetches one image by its stable path reference.
func (s *Store) GetImageByPath(ctx context.Context, path string) (library.Image, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		"SELECT id, folder_id, name, path, created_at FROM images WHERE path = ?", strings.TrimSpace(path))
	return scanImage(row)
}

// ListImages returns a folder's images, newest first.
func (s *Store) ListImages(ctx context.Context, folderID int64) ([]library.Image, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT id, folder_id, name, path, created_at FROM images WHERE folder_id = ? ORDER BY created_at DESC, id DESC",
		folderID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	defer rows.Close()
	return collectImages(rows)
}

// AddTag inserts one tag, returning the existing record when the name is
// already present.
func (s *Store) AddTag(ctx context.Context, name string) (library.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return library.Tag{}, gmerrors.New(gmerrors.CodeLibraryTagNameEmpty, "tag name is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO tags (name) VALUES (?)", name); err != nil {
		return library.Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	var tag library.Tag
	row := s.sqlDB.QueryRowContext(ctx, "SELECT id, name FROM tags WHERE name = ?", name)
	if err := row.Scan(&tag.ID, &tag.Name); err != nil {
		return library.Tag{}, fmt.Errorf("fetch tag: %w", err)
	}
	return tag, nil
}

// TagImage associates a tag with an image. Repeated calls are no-ops.
func (s *Store) TagImage(ctx context.Context, imageID, tagID int64) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO image_tags (image_id, tag_id) VALUES (?, ?)", imageID, tagID); err != nil {
		return fmt.Errorf("tag image: %w", err)
	}
	return nil
}

// ImagesByTag returns the images carrying the tag, newest first.
func (s *Store) ImagesByTag(ctx context.Context, tagID int64) ([]library.Image, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT i.id, i.folder_id, i.name, i.path, i.created_at
FROM images i
JOIN image_tags it ON it.image_id = i.id
WHERE it.tag_id = ?
ORDER BY i.created_at DESC, i.id DESC`, tagID)
	if err != nil {
		return nil, fmt.Errorf("images by tag: %w", err)
	}
	defer rows.Close()
	return collectImages(rows)
}

// ListTags returns all tags ordered by name.
func (s *Store) ListTags(ctx context.Context) ([]library.Tag, error) {
	rows, err := s.sqlDB.QueryContext(ctx, "SELECT id, name FROM tags ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []library.Tag
	for rows.Next() {
		var tag library.Tag
		if err := rows.Scan(&tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (library.Image, error) {
	var img library.Image
	var createdAt int64
	if err := row.Scan(&img.ID, &img.FolderID, &img.Name, &img.Path, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.Image{}, gmerrors.New(gmerrors.CodeNotFound, "image not found")
		}
		return library.Image{}, fmt.Errorf("scan image: %w", err)
	}
	img.CreatedAt = fromMillis(createdAt)
	return img, nil
}

func collectImages(rows *sql.Rows) ([]library.Image, error) {
	var images []library.Image
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}
