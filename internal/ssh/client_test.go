package ssh

import (
	"errors"
	"testing"
	"time"
)

func TestCredentialValidate(t *testing.T) {
	tests := []struct {
		name string
		cred Credential
		want error
	}{
		{"password only", Credential{Password: "secret"}, nil},
		{"key only", Credential{KeyPath: "/home/u/.ssh/id_ed25519"}, nil},
		{"neither", Credential{}, ErrMissingCredential},
		{"whitespace only", Credential{Password: "  "}, ErrMissingCredential},
		{"both", Credential{Password: "secret", KeyPath: "/k"}, ErrAmbiguousCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cred.Validate()
			if !errors.Is(err, tt.want) {
				t.Fatalf("Validate() = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDialRejectsMissingCredentialBeforeDialing(t *testing.T) {
	// The host does not resolve; if validation short-circuits as it must,
	// Dial returns instantly without attempting the network.
	start := time.Now()
	_, err := Dial(&ClientConfig{
		Host:     "host.invalid",
		Username: "backup",
		Timeout:  5 * time.Second,
	})
	if !errors.Is(err, ErrMissingCredential) {
		t.Fatalf("expected ErrMissingCredential, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("credential check took %v; it must not touch the network", elapsed)
	}
}

func TestDialRejectsAmbiguousCredential(t *testing.T) {
	_, err := Dial(&ClientConfig{
		Host:       "host.invalid",
		Username:   "backup",
		Credential: Credential{Password: "p", KeyPath: "/k"},
	})
	if !errors.Is(err, ErrAmbiguousCredential) {
		t.Fatalf("expected ErrAmbiguousCredential, got %v", err)
	}
}

func TestBuildAuthMethodIgnoresBlankPassword(t *testing.T) {
	// A whitespace-only password validates as key-only, so the auth method
	// must come from the key; here that surfaces as a key-load error rather
	// than a silently selected password method.
	cred := Credential{Password: "  ", KeyPath: "/does/not/exist"}
	if err := cred.Validate(); err != nil {
		t.Fatalf("credential should validate as key-only: %v", err)
	}
	if _, err := buildAuthMethod(cred); err == nil {
		t.Fatalf("expected a key-load error, not a password auth method")
	}

	// A real password still wins over an unset key.
	if _, err := buildAuthMethod(Credential{Password: "secret"}); err != nil {
		t.Fatalf("password auth method failed: %v", err)
	}
}

func TestLoadSignerMissingFile(t *testing.T) {
	if _, err := LoadSigner("/does/not/exist", ""); err == nil {
		t.Fatalf("expected an error for a missing key file")
	}
}

func TestIsAuthFailure(t *testing.T) {
	authErr := errors.New("ssh: handshake failed: ssh: unable to authenticate, attempted methods [none password], no supported methods remain")
	if !isAuthFailure(authErr) {
		t.Fatalf("expected auth failure to be recognized")
	}

	netErr := errors.New("dial tcp 10.0.0.1:22: i/o timeout")
	if isAuthFailure(netErr) {
		t.Fatalf("network error misclassified as auth failure")
	}
}
