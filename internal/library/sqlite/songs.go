package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ehallam/gmassist/internal/library"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

const songColumns = "id, title, artist, album, source, source_id, source_url, duration_ms, local_path, added_at"

// UpsertSong inserts a song or updates the metadata of the record it
// duplicates. Remote songs deduplicate on (source, source id), local files
// on their path; a song with neither always inserts.
func (s *Store) UpsertSong(ctx context.Context, song library.Song) (library.Song, error) {
	song.Title = strings.TrimSpace(song.Title)
	if song.Title == "" {
		return library.Song{}, gmerrors.New(gmerrors.CodeLibrarySongTitleEmpty, "song title is required")
	}
	if song.Source == "" {
		song.Source = library.SongSourceURL
	}

	existing, err := s.findDuplicateSong(ctx, song)
	if err != nil {
		return library.Song{}, err
	}
	if existing != nil {
		song.ID = existing.ID
		song.AddedAt = existing.AddedAt
		if _, err := s.sqlDB.ExecContext(ctx, `
UPDATE songs SET title = ?, artist = ?, album = ?, source_url = ?, duration_ms = ?, local_path = ?
WHERE id = ?`,
			song.Title, song.Artist, song.Album, song.SourceURL, song.DurationMS, song.LocalPath, song.ID); err != nil {
			return library.Song{}, fmt.Errorf("update song: %w", err)
		}
		return song, nil
	}

	song.AddedAt = time.Now().UTC()
	res, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO songs (title, artist, album, source, source_id, source_url, duration_ms, local_path, added_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		song.Title, song.Artist, song.Album, string(song.Source), song.SourceID,
		song.SourceURL, song.DurationMS, song.LocalPath, toMillis(song.AddedAt))
	if err != nil {
		return library.Song{}, fmt.Errorf("insert song: %w", err)
	}
	song.ID, err = res.LastInsertId()
	if err != nil {
		return library.Song{}, fmt.Errorf("song id: %w", err)
	}
	return song, nil
}

func (s *Store) findDuplicateSong(ctx context.Context, song library.Song) (*library.Song, error) {
	var row *sql.Row
	switch {
	case song.SourceID != "":
		row = s.sqlDB.QueryRowContext(ctx,
			"SELECT "+songColumns+" FROM songs WHERE source = ? AND source_id = ?",
			string(song.Source), song.SourceID)
	case song.Source == library.SongSourceFile && song.LocalPath != "":
		row = s.sqlDB.QueryRowContext(ctx,
			"SELECT "+songColumns+" FROM songs WHERE source = ? AND local_path = ?",
			string(library.SongSourceFile), song.LocalPath)
	default:
		return nil, nil
	}

	found, err := scanSong(row)
	if err != nil {
		if gmerrors.CodeOf(err) == gmerrors.CodeNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &found, nil
}

// ListSongs returns the whole song collection, newest first.
func (s *Store) ListSongs(ctx context.Context) ([]library.Song, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT "+songColumns+" FROM songs ORDER BY added_at DESC, id DESC")
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()
	return collectSongs(rows)
}

// TagSong associates a tag with a song. Repeated calls are no-ops.
func (s *Store) TagSong(ctx context.Context, songID, tagID int64) error {
	if _, err := s.sqlDB.ExecContext(ctx,
		"INSERT OR IGNORE INTO song_tags (song_id, tag_id) VALUES (?, ?)", songID, tagID); err != nil {
		return fmt.Errorf("tag song: %w", err)
	}
	return nil
}

// SongsByTag returns the songs carrying the tag, newest first.
func (s *Store) SongsByTag(ctx context.Context, tagID int64) ([]library.Song, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT s.id, s.title, s.artist, s.album, s.source, s.source_id, s.source_url, s.duration_ms, s.local_path, s.added_at
FROM songs s
JOIN song_tags st ON st.song_id = s.id
WHERE st.tag_id = ?
ORDER BY s.added_at DESC, s.id DESC`, tagID)
	if err != nil {
		return nil, fmt.Errorf("songs by tag: %w", err)
	}
	defer rows.Close()
	return collectSongs(rows)
}

func scanSong(row rowScanner) (library.Song, error) {
	var song library.Song
	var source string
	var addedAt int64
	if err := row.Scan(&song.ID, &song.Title, &song.Artist, &song.Album, &source,
		&song.SourceID, &song.SourceURL, &song.DurationMS, &song.LocalPath, &addedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return library.Song{}, gmerrors.New(gmerrors.CodeNotFound, "song not found")
		}
		return library.Song{}, fmt.Errorf("scan song: %w", err)
	}
	song.Source = library.SongSource(source)
	song.AddedAt = fromMillis(addedAt)
	return song, nil
}

func collectSongs(rows *sql.Rows) ([]library.Song, error) {
	var songs []library.Song
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, err
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}
