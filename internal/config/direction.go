package config

import "fmt"

// Direction says which way a metric improves.
type Direction int

const (
	Minimize Direction = iota
	Maximize
)

// ParseDirection accepts exactly "MIN" or "MAX".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "MIN":
		return Minimize, nil
	case "MAX":
		return Maximize, nil
	default:
		return 0, fmt.Errorf("%w: %s must be MIN or MAX, got %q", ErrConfiguration, EnvDirection, s)
	}
}

func (d Direction) String() string {
	switch d {
	case Minimize:
		return "MIN"
	case Maximize:
		return "MAX"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Improves reports whether current is at least as good as best. Ties count as improvement.
func (d Direction) Improves(current, best float64) bool {
	if d == Minimize {
		return current <= best
	}
	return current >= best
}
