package flow

import (
	"context"

	"github.com/BradenHooton/otpflow/internal/models"
)

// InitiateRequest carries what a flow submits to open a challenge.
// Name and Credential are only sent by the signup variant.
type InitiateRequest struct {
	Identifier string
	Name       string
	Credential string
}

// RemoteVerifier is the authority that issues and checks codes.
// Implementations return *models.RemoteRejection when the authority refuses a
// request and *models.TransportFailure when it cannot be reached or understood.
type RemoteVerifier interface {
	Initiate(ctx context.Context, variant models.FlowVariant, req InitiateRequest) (models.TokenSession, error)
	Verify(ctx context.Context, variant models.FlowVariant, correlationToken, identifier, code string) error
	// Resend may return an empty correlation token when the authority keeps the old one
	Resend(ctx context.Context, variant models.FlowVariant, correlationToken, identifier string) (models.TokenSession, error)
	ResetCredential(ctx context.Context, correlationToken, identifier, newCredential, confirmCredential string) error
}
