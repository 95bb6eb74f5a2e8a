package wire

import "strconv"

// Phase identifies a slot within a mailbox's message history: one of the two
// fixed PAKE/version phases, or a numbered application phase. On the wire a
// Phase is always a JSON string - "pake", "version", or a decimal integer
// like "0" - so the Go representation is just a string with convenience
// constructors/accessors layered on top.
type Phase string

const (
	// PhasePake carries the PAKE key-establishment message.
	PhasePake Phase = "pake"

	// PhaseVersion carries the post-PAKE version/capabilities message.
	PhaseVersion Phase = "version"
)

// NumberedPhase renders an application phase index in its wire form.
func NumberedPhase(n uint64) Phase {
	return Phase(strconv.FormatUint(n, 10))
}

// Number reports the numeric value of an application phase, or false if this
// Phase is one of the two fixed tags.
func (p Phase) Number() (uint64, bool) {
	if p == PhasePake || p == PhaseVersion {
		return 0, false
	}
	n, err := strconv.ParseUint(string(p), 10, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// String implements fmt.Stringer.
func (p Phase) String() string {
	return string(p)
}
