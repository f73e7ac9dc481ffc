package controller

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/ehallam/gmassist/internal/display"
	"github.com/ehallam/gmassist/internal/library"
	gmerrors "github.com/ehallam/gmassist/internal/platform/errors"
)

// API is the localhost control surface for GM tooling. It exposes the
// coordinator's operation set and a read-only view of the image library
// over JSON; the management UI itself lives outside this repository.
type API struct {
	co  *Coordinator
	lib library.Store
}

// NewAPI builds the control API handler.
func NewAPI(co *Coordinator, lib library.Store) http.Handler {
	api := &API{co: co, lib: lib}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/display", api.getDisplay)
	mux.HandleFunc("PUT /v1/display/image", api.putImage)
	mux.HandleFunc("PUT /v1/display/overlay", api.putOverlay)
	mux.HandleFunc("PUT /v1/display/geometry", api.putGeometry)
	mux.HandleFunc("POST /v1/display/front", api.postFront)
	mux.HandleFunc("POST /v1/initiative/round", api.postRound)
	mux.HandleFunc("PUT /v1/initiative/combatants", api.putCombatants)
	mux.HandleFunc("POST /v1/player/open", api.postOpen)
	mux.HandleFunc("POST /v1/player/close", api.postClose)
	mux.HandleFunc("GET /v1/library/images", api.listImages)
	mux.HandleFunc("GET /v1/library/songs", api.listSongs)
	mux.HandleFunc("POST /v1/library/songs", api.postSong)
	mux.HandleFunc("GET /v1/library/tags", api.listTags)

	return mux
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload != nil {
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			log.Printf("encode response: %v", err)
		}
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := gmerrors.CodeOf(err)
	writeJSON(w, code.HTTPStatus(), errorResponse{Code: string(code), Message: err.Error()})
}

func decodeBody(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "MALFORMED_BODY", Message: err.Error()})
		return false
	}
	return true
}

func (a *API) getDisplay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.co.State())
}

func (a *API) putImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ref string `json:"ref"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.co.SetActiveImage(r.Context(), req.Ref); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.co.State())
}

func (a *API) putOverlay(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Visible bool `json:"visible"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.co.SetOverlayVisible(r.Context(), req.Visible); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.co.State())
}

func (a *API) putGeometry(w http.ResponseWriter, r *http.Request) {
	var req display.OverlayGeometry
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.co.SetOverlayGeometry(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.co.State())
}

func (a *API) postFront(w http.ResponseWriter, r *http.Request) {
	if err := a.co.RequestBringToFront(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, nil)
}

func (a *API) postRound(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Delta int `json:"delta"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.co.AdvanceInitiativeRound(r.Context(), req.Delta); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.co.State())
}

func (a *API) putCombatants(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Combatants []display.Combatant `json:"combatants"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if err := a.co.SetCombatants(r.Context(), req.Combatants); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, a.co.State())
}

func (a *API) postOpen(w http.ResponseWriter, r *http.Request) {
	if err := a.co.OpenPlayer(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, nil)
}

func (a *API) postClose(w http.ResponseWriter, r *http.Request) {
	if err := a.co.ClosePlayer(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, nil)
}

func (a *API) listImages(w http.ResponseWriter, r *http.Request) {
	if a.lib == nil {
		writeJSON(w, http.StatusOK, []library.Image{})
		return
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		tagID, err := strconv.ParseInt(tag, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "MALFORMED_TAG_ID", Message: err.Error()})
			return
		}
		images, err := a.lib.ImagesByTag(r.Context(), tagID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, images)
		return
	}

	folderID, err := strconv.ParseInt(r.URL.Query().Get("folder"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: "MALFORMED_FOLDER_ID", Message: "folder query parameter is required"})
		return
	}
	images, err := a.lib.ListImages(r.Context(), folderID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, images)
}

func (a *API) listSongs(w http.ResponseWriter, r *http.Request) {
	if a.lib == nil {
		writeJSON(w, http.StatusOK, []library.Song{})
		return
	}
	if tag := r.URL.Query().Get("tag"); tag != "" {
		tagID, err := strconv.ParseInt(tag, 10, 64)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: "MALFORMED_TAG_ID", Message: err.Error()})
			return
		}
		songs, err := a.lib.SongsByTag(r.Context(), tagID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, songs)
		return
	}

	songs, err := a.lib.ListSongs(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, songs)
}

// postSong resolves a pasted link into source fields and upserts the song.
func (a *API) postSong(w http.ResponseWriter, r *http.Request) {
	if a.lib == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Code: "LIBRARY_UNAVAILABLE", Message: "no library configured"})
		return
	}
	var req struct {
		Link       string `json:"link"`
		Title      string `json:"title"`
		Artist     string `json:"artist"`
		Album      string `json:"album"`
		DurationMS int64  `json:"durationMs"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	song, err := library.ParseLink(req.Link)
	if err != nil {
		writeError(w, err)
		return
	}
	song.Title = req.Title
	song.Artist = req.Artist
	song.Album = req.Album
	song.DurationMS = req.DurationMS

	saved, err := a.lib.UpsertSong(r.Context(), song)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, saved)
}

func (a *API) listTags(w http.ResponseWriter, r *http.Request) {
	if a.lib == nil {
		writeJSON(w, http.StatusOK, []library.Tag{})
		return
	}
	tags, err := a.lib.ListTags(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tags)
}
