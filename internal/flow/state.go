// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

// State is the verdict gate. Transitions are made only by the engine and
// are not validated here: once a terminal verdict (Block, Reset, Allow) is
// set, the engine must not move the flow back to Setup or Inspect for the
// rest of the key's occupancy.
type State uint8

const (
	StateSetup State = iota
	StateInspect
	StateBlock
	StateReset
	StateAllow
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateInspect:
		return "inspect"
	case StateBlock:
		return "block"
	case StateReset:
		return "reset"
	case StateAllow:
		return "allow"
	default:
		return "invalid"
	}
}

// Terminal reports whether s is a verdict.
func (s State) Terminal() bool { return s > StateInspect }
