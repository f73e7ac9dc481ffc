// Package library models the GM's campaign image collection. The
// controller consumes stable image references (paths) from it; the tag and
// folder records exist so GM tooling can browse and filter. Management UI
// lives outside this repository.
package library

import (
	"context"
	"time"
)

// Folder groups images, mirroring the on-disk campaign layout.
type Folder struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Image is one displayable campaign asset. Path doubles as the stable
// reference the controller broadcasts to the player surface.
type Image struct {
	ID        int64
	FolderID  int64
	Name      string
	Path      string
	CreatedAt time.Time
}

// Tag labels images and songs for retrieval during play.
type Tag struct {
	ID   int64
	Name string
}

// SongSource identifies where a song's audio lives.
type SongSource string

const (
	SongSourceSpotify SongSource = "spotify"
	SongSourceFile    SongSource = "file"
	SongSourceURL     SongSource = "url"
)

// Song is one ambience or theme track in the campaign collection. The
// record only locates the audio; playback happens in external tooling.
type Song struct {
	ID         int64
	Title      string
	Artist     string
	Album      string
	Source     SongSource
	SourceID   string
	SourceURL  string
	DurationMS int64
	LocalPath  string
	AddedAt    time.Time
}

// Store persists the campaign asset library.
type Store interface {
	AddFolder(ctx context.Context, name string) (Folder, error)
	AddImage(ctx context.Context, folderID int64, name, path string) (Image, error)
	GetImage(ctx context.Context, id int64) (Image, error)
	GetImageByPath(ctx context.Context, path string) (Image, error)
	ListImages(ctx context.Context, folderID int64) ([]Image, error)
	AddTag(ctx context.Context, name string) (Tag, error)
	TagImage(ctx context.Context, imageID, tagID int64) error
	ImagesByTag(ctx context.Context, tagID int64) ([]Image, error)
	ListTags(ctx context.Context) ([]Tag, error)
	UpsertSong(ctx context.Context, song Song) (Song, error)
	ListSongs(ctx context.Context) ([]Song, error)
	TagSong(ctx context.Context, songID, tagID int64) error
	SongsByTag(ctx context.Context, tagID int64) ([]Song, error)
	Close() error
}
