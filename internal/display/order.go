package display

import (
	"sort"
	"strings"
)

// SortCombatants orders combatants for the initiative overlay: most active
// conditions first so the GM can triage at a glance, then name
// (case-insensitive), then color tag as the final deterministic tie-break.
// The sort is stable, so re-sorting an already ordered list is a no-op.
func SortCombatants(combatants []Combatant) {
	sort.SliceStable(combatants, func(i, j int) bool {
		return lessCombatant(combatants[i], combatants[j])
	})
}

func lessCombatant(a, b Combatant) bool {
	if a.Conditions != b.Conditions {
		return a.Conditions > b.Conditions
	}
	an := strings.ToLower(a.Name)
	bn := strings.ToLower(b.Name)
	if an != bn {
		return an < bn
	}
	return a.ColorTag < b.ColorTag
}
