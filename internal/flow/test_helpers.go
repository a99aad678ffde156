package flow

import (
	"context"
	"sync"

	"github.com/BradenHooton/otpflow/internal/models"
)

// MockRemoteVerifier implements RemoteVerifier for testing
type MockRemoteVerifier struct {
	InitiateFunc        func(ctx context.Context, variant models.FlowVariant, req InitiateRequest) (models.TokenSession, error)
	VerifyFunc          func(ctx context.Context, variant models.FlowVariant, correlationToken, identifier, code string) error
	ResendFunc          func(ctx context.Context, variant models.FlowVariant, correlationToken, identifier string) (models.TokenSession, error)
	ResetCredentialFunc func(ctx context.Context, correlationToken, identifier, newCredential, confirmCredential string) error

	mu    sync.Mutex
	calls map[string]int
}

func (m *MockRemoteVerifier) record(op string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.calls == nil {
		m.calls = make(map[string]int)
	}
	m.calls[op]++
}

// Calls returns how many times op was invoked
func (m *MockRemoteVerifier) Calls(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of remote calls of any kind
func (m *MockRemoteVerifier) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

func (m *MockRemoteVerifier) Initiate(ctx context.Context, variant models.FlowVariant, req InitiateRequest) (models.TokenSession, error) {
	m.record("initiate")
	if m.InitiateFunc != nil {
		return m.InitiateFunc(ctx, variant, req)
	}
	return models.TokenSession{}, &models.RemoteRejection{Status: 500, Detail: "initiate not configured"}
}

func (m *MockRemoteVerifier) Verify(ctx context.Context, variant models.FlowVariant, correlationToken, identifier, code string) error {
	m.record("verify")
	if m.VerifyFunc != nil {
		return m.VerifyFunc(ctx, variant, correlationToken, identifier, code)
	}
	return nil
}

func (m *MockRemoteVerifier) Resend(ctx context.Context, variant models.FlowVariant, correlationToken, identifier string) (models.TokenSession, error) {
	m.record("resend")
	if m.ResendFunc != nil {
		return m.ResendFunc(ctx, variant, correlationToken, identifier)
	}
	return models.TokenSession{}, &models.RemoteRejection{Status: 500, Detail: "resend not configured"}
}

func (m *MockRemoteVerifier) ResetCredential(ctx context.Context, correlationToken, identifier, newCredential, confirmCredential string) error {
	m.record("reset_credential")
	if m.ResetCredentialFunc != nil {
		return m.ResetCredentialFunc(ctx, correlationToken, identifier, newCredential, confirmCredential)
	}
	return nil
}
