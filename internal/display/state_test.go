package display

import (
	stderrors "errors"
	"testing"

	"github.com/ehallam/gmassist/internal/platform/errors"
)

func TestOverlayGeometryValidate(t *testing.T) {
	valid := OverlayGeometry{X: 0.5, Y: 0.25, ScaleX: 1.2, ScaleY: 0.8}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid geometry, got %v", err)
	}

	cases := []OverlayGeometry{
		{X: -0.1, Y: 0, ScaleX: 1, ScaleY: 1},
		{X: 1.5, Y: 0, ScaleX: 1, ScaleY: 1},
		{X: 0, Y: 2, ScaleX: 1, ScaleY: 1},
		{X: 0, Y: 0, ScaleX: 0, ScaleY: 1},
		{X: 0, Y: 0, ScaleX: 1, ScaleY: -2},
	}
	for _, g := range cases {
		err := g.Validate()
		if err == nil {
			t.Fatalf("expected %+v to be rejected", g)
		}
		if !stderrors.Is(err, errors.New(errors.CodeGeometryOutOfRange, "")) {
			t.Fatalf("expected geometry code, got %v", err)
		}
	}
}

func TestNormalizeForcesOverlayOffWithoutImage(t *testing.T) {
	s := State{ActiveImageRef: "  ", OverlayVisible: true}
	s.Normalize()
	if s.OverlayVisible {
		t.Fatal("expected overlay forced off with no image")
	}
	if s.ActiveImageRef != "" {
		t.Fatalf("expected blank ref normalized to empty, got %q", s.ActiveImageRef)
	}
}

func TestNormalizeClampsRound(t *testing.T) {
	s := State{Initiative: Initiative{Round: -3}}
	s.Normalize()
	if s.Initiative.Round != 0 {
		t.Fatalf("expected round clamped to 0, got %d", s.Initiative.Round)
	}
}

func TestStateEqualAndClone(t *testing.T) {
	s := State{
		ActiveImageRef: "maps/crypt.png",
		OverlayVisible: true,
		Overlay:        DefaultOverlayGeometry(),
		Initiative: Initiative{
			Round:      3,
			Combatants: []Combatant{{Name: "Ann", ColorTag: "red", Conditions: 2}},
		},
	}

	clone := s.Clone()
	if !s.Equal(clone) {
		t.Fatal("expected clone to equal original")
	}

	clone.Initiative.Combatants[0].Conditions = 5
	if s.Initiative.Combatants[0].Conditions != 2 {
		t.Fatal("expected clone to own its combatant slice")
	}
	if s.Equal(clone) {
		t.Fatal("expected mutated clone to differ")
	}
}
