// Package display holds the canonical representation of what the player
// surface should render: the active image plus an optional initiative
// overlay. The controller process owns the single live State; the player
// surface holds a read-only replica fed over the state channel.
package display

import (
	"fmt"
	"strings"

	"github.com/ehallam/gmassist/internal/platform/errors"
)

// OverlayGeometry positions and scales the initiative overlay. X and Y are
// normalized to the surface size so placement survives resolution changes.
type OverlayGeometry struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	ScaleX float64 `json:"scaleX"`
	ScaleY float64 `json:"scaleY"`
}

// DefaultOverlayGeometry anchors the overlay near the top-right corner at
// full scale, mirroring the overlay defaults of the desktop app.
func DefaultOverlayGeometry() OverlayGeometry {
	return OverlayGeometry{X: 0.75, Y: 0.05, ScaleX: 1, ScaleY: 1}
}

// Validate checks that positions are within [0,1] and scales are positive.
func (g OverlayGeometry) Validate() error {
	if g.X < 0 || g.X > 1 || g.Y < 0 || g.Y > 1 {
		return errors.WithMetadata(errors.CodeGeometryOutOfRange,
			fmt.Sprintf("overlay position (%v, %v) outside [0,1]", g.X, g.Y),
			map[string]string{"x": fmt.Sprint(g.X), "y": fmt.Sprint(g.Y)})
	}
	if g.ScaleX <= 0 || g.ScaleY <= 0 {
		return errors.WithMetadata(errors.CodeGeometryOutOfRange,
			fmt.Sprintf("overlay scale (%v, %v) must be positive", g.ScaleX, g.ScaleY),
			map[string]string{"scaleX": fmt.Sprint(g.ScaleX), "scaleY": fmt.Sprint(g.ScaleY)})
	}
	return nil
}

// Combatant is one entry in the initiative order.
type Combatant struct {
	Name       string `json:"name"`
	ColorTag   string `json:"colorTag"`
	Conditions int    `json:"conditions"`
}

// Initiative is the current round number and the ordered combatant list.
// Ordering is the single source of truth for turn order.
type Initiative struct {
	Round      int         `json:"round"`
	Combatants []Combatant `json:"combatants"`
}

// Equal reports whether two initiative values are identical, including
// combatant order.
func (i Initiative) Equal(other Initiative) bool {
	if i.Round != other.Round || len(i.Combatants) != len(other.Combatants) {
		return false
	}
	for idx, c := range i.Combatants {
		if c != other.Combatants[idx] {
			return false
		}
	}
	return true
}

// State is what the player surface should currently show.
//
// The one-shot bring-to-front signal is deliberately not part of State: it
// is a channel message, not persisted display state.
type State struct {
	ActiveImageRef string          `json:"activeImageRef"`
	OverlayVisible bool            `json:"overlayVisible"`
	Overlay        OverlayGeometry `json:"overlayGeometry"`
	Initiative     Initiative      `json:"initiative"`
}

// DefaultState is the first-run state: no image, overlay hidden at the
// default geometry, round zero.
func DefaultState() State {
	return State{Overlay: DefaultOverlayGeometry()}
}

// Equal reports whether two states are identical.
func (s State) Equal(other State) bool {
	return s.ActiveImageRef == other.ActiveImageRef &&
		s.OverlayVisible == other.OverlayVisible &&
		s.Overlay == other.Overlay &&
		s.Initiative.Equal(other.Initiative)
}

// Clone returns a deep copy so callers can hand out state without sharing
// the combatant slice.
func (s State) Clone() State {
	out := s
	if s.Initiative.Combatants != nil {
		out.Initiative.Combatants = append([]Combatant(nil), s.Initiative.Combatants...)
	}
	return out
}

// Normalize enforces the structural invariants: an empty image ref forces
// the overlay hidden, and the round never goes negative.
func (s *State) Normalize() {
	if strings.TrimSpace(s.ActiveImageRef) == "" {
		s.ActiveImageRef = ""
		s.OverlayVisible = false
	}
	if s.Initiative.Round < 0 {
		s.Initiative.Round = 0
	}
}
