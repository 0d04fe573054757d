package interactions

import (
	"errors"
	"fmt"
)

// VoteState is the vote a user holds on a post.
type VoteState int

const (
	VoteNone VoteState = iota
	VoteUp
	VoteDown
)

func (s VoteState) String() string {
	switch s {
	case VoteNone:
		return "none"
	case VoteUp:
		return "upvoted"
	case VoteDown:
		return "downvoted"
	default:
		return fmt.Sprintf("VoteState(%d)", int(s))
	}
}

// Flags returns the storage encoding of the state.
func (s VoteState) Flags() (upvoted, downvoted bool) {
	return s == VoteUp, s == VoteDown
}

var ErrInvalidVoteFlags = errors.New("interaction cannot be both upvoted and downvoted")

func VoteStateFromFlags(upvoted, downvoted bool) (VoteState, error) {
	switch {
	case upvoted && downvoted:
		return VoteNone, ErrInvalidVoteFlags
	case upvoted:
		return VoteUp, nil
	case downvoted:
		return VoteDown, nil
	default:
		return VoteNone, nil
	}
}

type Direction int

const (
	Upvote Direction = iota + 1
	Downvote
)

func (d Direction) String() string {
	switch d {
	case Upvote:
		return "upvote"
	case Downvote:
		return "downvote"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func (d Direction) target() VoteState {
	if d == Downvote {
		return VoteDown
	}

	return VoteUp
}

// CounterDelta is the change a transition applies to a post's vote counters.
type CounterDelta struct {
	Upvotes   int
	Downvotes int
}

func (d CounterDelta) add(s VoteState, n int) CounterDelta {
	switch s {
	case VoteUp:
		d.Upvotes += n
	case VoteDown:
		d.Downvotes += n
	case VoteNone:
	}

	return d
}

var (
	ErrAlreadyVoted     = errors.New("already voted in this direction")
	ErrUnknownDirection = errors.New("unknown vote direction")
)

// Transition computes the next vote state and the counter delta for voting
// in the given direction. Voting twice in the same direction is rejected
// with ErrAlreadyVoted; there is no way back to VoteNone.
func Transition(current VoteState, direction Direction) (VoteState, CounterDelta, error) {
	if direction != Upvote && direction != Downvote {
		return current, CounterDelta{}, ErrUnknownDirection
	}

	next := direction.target()
	if current == next {
		return current, CounterDelta{}, ErrAlreadyVoted
	}

	delta := CounterDelta{}.add(next, 1).add(current, -1)

	return next, delta, nil
}
