package library

import (
	"path/filepath"
	"regexp"
	"strings"

	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

var (
	spotifyURIPattern = regexp.MustCompile(`^spotify:track:([A-Za-z0-9]+)$`)
	spotifyURLPattern = regexp.MustCompile(`open\.spotify\.com/track/([A-Za-z0-9]+)`)
)

// ParseLink resolves a pasted song reference into its source fields. It
// recognizes Spotify track URIs and share URLs, generic http(s) URLs, and
// local file paths (absolute or file://). The returned song carries only
// location fields; title and the rest of the metadata come from the
// caller.
func ParseLink(input string) (Song, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Song{}, gmerrors.New(gmerrors.CodeLibrarySongLinkEmpty, "song link is required")
	}

	if m := spotifyURIPattern.FindStringSubmatch(input); m != nil {
		return spotifySong(m[1]), nil
	}
	if m := spotifyURLPattern.FindStringSubmatch(input); m != nil {
		return spotifySong(m[1]), nil
	}

	if strings.HasPrefix(input, "http://") || strings.HasPrefix(input, "https://") {
		return Song{Source: SongSourceURL, SourceURL: input}, nil
	}

	if path, ok := strings.CutPrefix(input, "file://"); ok {
		return Song{Source: SongSourceFile, LocalPath: filepath.Clean(path)}, nil
	}
	if filepath.IsAbs(input) {
		return Song{Source: SongSourceFile, LocalPath: filepath.Clean(input)}, nil
	}

	// Anything else is treated as an opaque remote reference.
	return Song{Source: SongSourceURL, SourceURL: input}, nil
}

func spotifySong(trackID string) Song {
	return Song{
		Source:    SongSourceSpotify,
		SourceID:  trackID,
		SourceURL: "https://open.spotify.com/track/" + trackID,
	}
}
