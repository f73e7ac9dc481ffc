// Package errors provides structured error handling for gmassist.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Display state errors
	CodeGeometryOutOfRange  Code = "DISPLAY_GEOMETRY_OUT_OF_RANGE"
	CodeOverlayWithoutImage Code = "DISPLAY_OVERLAY_WITHOUT_IMAGE"
	CodeCombatantNameEmpty  Code = "DISPLAY_COMBATANT_NAME_EMPTY"

	// Storage errors
	CodeStorageFailure Code = "STORAGE_FAILURE"
	CodeNotFound       Code = "NOT_FOUND"

	// Player surface errors
	CodeChannelDisconnected Code = "CHANNEL_DISCONNECTED"
	CodeProtocolViolation   Code = "CHANNEL_PROTOCOL_VIOLATION"
	CodeLaunchTimeout       Code = "SURFACE_LAUNCH_TIMEOUT"
	CodeLaunchFailed        Code = "SURFACE_LAUNCH_FAILED"
	CodeSurfaceClosed       Code = "SURFACE_CLOSED"

	// Library errors
	CodeLibraryImagePathEmpty Code = "LIBRARY_IMAGE_PATH_EMPTY"
	CodeLibraryTagNameEmpty   Code = "LIBRARY_TAG_NAME_EMPTY"
	CodeLibrarySongLinkEmpty  Code = "LIBRARY_SONG_LINK_EMPTY"
	CodeLibrarySongTitleEmpty Code = "LIBRARY_SONG_TITLE_EMPTY"
)

// HTTPStatus maps domain codes to HTTP status codes for the control API.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, bad input
	case CodeGeometryOutOfRange,
		CodeCombatantNameEmpty,
		CodeLibraryImagePathEmpty,
		CodeLibraryTagNameEmpty,
		CodeLibrarySongLinkEmpty,
		CodeLibrarySongTitleEmpty:
		return http.StatusBadRequest

	// Conflict - operation disallowed in the current state
	case CodeOverlayWithoutImage,
		CodeSurfaceClosed:
		return http.StatusConflict

	// Not found
	case CodeNotFound:
		return http.StatusNotFound

	// Upstream unavailable - the player surface is unreachable
	case CodeChannelDisconnected,
		CodeLaunchTimeout,
		CodeLaunchFailed:
		return http.StatusServiceUnavailable

	// Internal
	case CodeStorageFailure,
		CodeProtocolViolation,
		CodeUnknown:
		return http.StatusInternalServerError

	default:
		return http.StatusInternalServerError
	}
}
