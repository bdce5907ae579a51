package migration

import "fmt"

const unknownStateTemplateConstant = "unknown migration state %q"

// State identifies a step of the migration. States are strictly ordered.
type State int

// Migration states in execution order.
const (
	StateReady State = iota
	StateInitialized
	StateCreatedNewAccount
	StateMigratedData
	StateRequestedPlcOperation
	StateMigratedIdentity
	StateCheckedAccountStatus
	StateFinalized
)

var stateNames = [...]string{
	StateReady:                 "Ready",
	StateInitialized:           "Initialized",
	StateCreatedNewAccount:     "CreatedNewAccount",
	StateMigratedData:          "MigratedData",
	StateRequestedPlcOperation: "RequestedPlcOperation",
	StateMigratedIdentity:      "MigratedIdentity",
	StateCheckedAccountStatus:  "CheckedAccountStatus",
	StateFinalized:             "Finalized",
}

// States lists every state in execution order.
func States() []State {
	states := make([]State, 0, len(stateNames))
	for stateIndex := range stateNames {
		states = append(states, State(stateIndex))
	}
	return states
}

// ParseState resolves a state from its wire name.
func ParseState(name string) (State, error) {
	for stateIndex, stateName := range stateNames {
		if stateName == name {
			return State(stateIndex), nil
		}
	}
	return StateReady, fmt.Errorf(unknownStateTemplateConstant, name)
}

// IsValid reports whether the state is one of the known states.
func (state State) IsValid() bool {
	return state >= StateReady && state <= StateFinalized
}

// String returns the wire name of the state.
func (state State) String() string {
	if !state.IsValid() {
		return fmt.Sprintf("State(%d)", int(state))
	}
	return stateNames[state]
}

// AtLeast reports whether state is the same as or later than other.
func (state State) AtLeast(other State) bool {
	return state >= other
}

// MarshalText encodes the state as its name.
func (state State) MarshalText() ([]byte, error) {
	if !state.IsValid() {
		return nil, fmt.Errorf(unknownStateTemplateConstant, state.String())
	}
	return []byte(stateNames[state]), nil
}

// UnmarshalText decodes a state from its name.
func (state *State) UnmarshalText(text []byte) error {
	parsedState, parseError := ParseState(string(text))
	if parseError != nil {
		return parseError
	}
	*state = parsedState
	return nil
}
