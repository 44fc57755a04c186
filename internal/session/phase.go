package session

import "strings"

// Phase is the coarse progress of a session
type Phase string

const (
	PhaseIdle        Phase = "idle"
	PhaseChecking    Phase = "checking"
	PhaseDiscovering Phase = "discovering"
	PhaseForging     Phase = "forging"
	PhaseDone        Phase = "done"
)

var phaseRank = map[Phase]int{
	PhaseIdle:        0,
	PhaseChecking:    1,
	PhaseDiscovering: 2,
	PhaseForging:     3,
	PhaseDone:        4,
}

// ParsePhase maps a backend step label onto a Phase
func ParsePhase(s string) (Phase, bool) {
	p := Phase(strings.ToLower(strings.TrimSpace(s)))
	_, ok := phaseRank[p]
	return p, ok
}

// Advance returns next if it is further along than p, otherwise p.
// Phases never move backwards within a session.
func (p Phase) Advance(next Phase) Phase {
	if phaseRank[next] > phaseRank[p] {
		return next
	}
	return p
}

func (p Phase) String() string {
	return string(p)
}
