package domain

// State is the lifecycle state of a payment attempt.
//
// Created -> Tokenizing -> Tokenized -> Charging -> Charged -> Refunding -> Refunded
// with Failed and Declined as terminal side exits. Transitions are monotonic:
// an attempt never moves backwards and terminal states accept no further
// transitions.
type State string

const (
	StateCreated    State = "created"
	StateTokenizing State = "tokenizing"
	StateTokenized  State = "tokenized"
	StateCharging   State = "charging"
	StateCharged    State = "charged"
	StateRefunding  State = "refunding"
	StateRefunded   State = "refunded"
	StateFailed     State = "failed"
	StateDeclined   State = "declined"
)

// transitions is the full set of legal state moves. Anything absent here is
// rejected with ErrInvalidState.
var transitions = map[State][]State{
	StateCreated:    {StateTokenizing, StateFailed},
	StateTokenizing: {StateTokenized, StateFailed},
	StateTokenized:  {StateCharging, StateFailed},
	StateCharging:   {StateCharged, StateDeclined, StateFailed},
	StateCharged:    {StateRefunding},
	StateRefunding:  {StateRefunded},
	// Refunded, Failed and Declined are terminal.
}

// Terminal reports whether no further transitions are permitted. Charged is
// a terminal success for the payment itself but still accepts a refund, so
// it is not terminal in the transition sense.
func (s State) Terminal() bool {
	switch s {
	case StateRefunded, StateFailed, StateDeclined:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is legal.
func (s State) CanTransition(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
