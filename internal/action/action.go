// Package action defines the verdict type shared by filter objects, rules,
// and the content-filtering engine.
package action

import "github.com/AdguardTeam/golibs/errors"

// Action is the verdict a filter callback, a rule, or the engine returns for
// a request.
type Action int

// Allowed actions.
const (
	// Nomatch is the sentinel meaning "this filter or rule did not apply".
	// It never leaves the engine as a final verdict for a request; the
	// engine substitutes the configuration's default action instead.
	Nomatch Action = iota
	Accept
	Reject
	Virus
	Phishing
	Malware
	AlwaysTrust
)

// names holds the canonical text form of each action, indexed by its value.
var names = [...]string{
	Nomatch:     "nomatch",
	Accept:      "accept",
	Reject:      "reject",
	Virus:       "virus",
	Phishing:    "phishing",
	Malware:     "malware",
	AlwaysTrust: "always_trust",
}

// ErrUnknownAction is returned by [FromText] when the text does not name a
// known action.
const ErrUnknownAction errors.Error = "unknown action"

// FromText parses the textual name of an action, as it appears in a
// configuration document.  An unknown name is a load-time error.
func FromText(s string) (a Action, err error) {
	for i, n := range names {
		if n == s {
			return Action(i), nil
		}
	}

	return Nomatch, ErrUnknownAction
}

// String returns the canonical text form of a.  It implements the
// [fmt.Stringer] interface.
func (a Action) String() (s string) {
	if int(a) < 0 || int(a) >= len(names) {
		return "!bad_action!"
	}

	return names[a]
}

// IsMatch reports whether a represents a hit rather than the sentinel
// "did not apply" value.
func (a Action) IsMatch() (ok bool) {
	return a != Nomatch
}

// Severity orders actions for log and metric bucketing only.  It has no
// bearing on verdict logic, which is governed entirely by rule and engine
// evaluation.
func (a Action) Severity() (n int) {
	switch a {
	case Accept, AlwaysTrust:
		return 0
	case Nomatch:
		return 1
	case Reject:
		return 2
	case Phishing:
		return 3
	case Malware:
		return 4
	case Virus:
		return 5
	default:
		return -1
	}
}
