package models

// FlowVariant selects which terminal path a flow takes
type FlowVariant string

const (
	FlowSignup         FlowVariant = "signup"
	FlowForgotPassword FlowVariant = "forgot_password"
)

// Valid reports whether v is a known variant
func (v FlowVariant) Valid() bool {
	return v == FlowSignup || v == FlowForgotPassword
}

// FlowState is the position of a flow in its state machine
type FlowState int

const (
	StateCollectingIdentifier FlowState = iota
	StateAwaitingCode
	StateResettingCredential
	StateCompleted
	StateAbandoned
)

func (s FlowState) String() string {
	switch s {
	case StateCollectingIdentifier:
		return "collecting_identifier"
	case StateAwaitingCode:
		return "awaiting_code"
	case StateResettingCredential:
		return "resetting_credential"
	case StateCompleted:
		return "completed"
	case StateAbandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further operation is accepted
func (s FlowState) Terminal() bool {
	return s == StateCompleted || s == StateAbandoned
}

// AfterVerification is the state a successful code submission moves to
func (v FlowVariant) AfterVerification() FlowState {
	if v == FlowForgotPassword {
		return StateResettingCredential
	}
	return StateCompleted
}

// Snapshot is the observable view of a flow published to subscribers
type Snapshot struct {
	Variant          FlowVariant
	State            FlowState
	Session          *TokenSession // nil when no session is active
	RemainingSeconds int
	CanResend        bool
	Busy             bool
	Seq              uint64 // increases with every snapshot taken from one flow
}
