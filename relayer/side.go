package relayer

import "fmt"

// Side names one end of a Link. The names carry no role: either side can
// be the source of packets, acknowledgements or client updates.
type Side int

const (
	SideA Side = iota
	SideB
)

// Other returns the opposite side.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	switch s {
	case SideA:
		return "A"
	case SideB:
		return "B"
	default:
		return fmt.Sprintf("Side(%d)", int(s))
	}
}
