package ssh

import (
	"crypto/ed25519"
	"crypto/rand"
	"net"
	"os"
	"path/filepath"
	"testing"

	"golang.org/x/crypto/ssh"
)

type recordingHostKeyLogger struct {
	accepted []string
	changed  []string
}

func (r *recordingHostKeyLogger) KeyAccepted(host, fingerprint string) {
	r.accepted = append(r.accepted, host)
}

func (r *recordingHostKeyLogger) KeyChanged(host, fingerprint string) {
	r.changed = append(r.changed, host)
}

func TestHostKeyCallbackTrustOnFirstUse(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")
	events := &recordingHostKeyLogger{}

	callback, err := NewHostKeyCallback(knownHostsPath, true, events)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key1 := generateTestHostKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}

	if err := callback("remote1:22", addr, key1); err != nil {
		t.Fatalf("expected first key to be accepted, got %v", err)
	}
	if len(events.accepted) != 1 {
		t.Fatalf("expected one accepted event, got %d", len(events.accepted))
	}
	if _, err := os.Stat(knownHostsPath); err != nil {
		t.Fatalf("expected known_hosts file to be created: %v", err)
	}

	// Same key on a fresh callback validates against the stored entry.
	callback, err = NewHostKeyCallback(knownHostsPath, true, events)
	if err != nil {
		t.Fatalf("failed to recreate callback: %v", err)
	}
	if err := callback("remote1:22", addr, key1); err != nil {
		t.Fatalf("expected stored key to validate, got %v", err)
	}

	// A different key for the same host is a key change and must fail.
	key2 := generateTestHostKey(t)
	if err := callback("remote1:22", addr, key2); err == nil {
		t.Fatalf("expected host key change to be rejected")
	}
	if len(events.changed) != 1 {
		t.Fatalf("expected one changed event, got %d", len(events.changed))
	}
}

func TestHostKeyCallbackRejectsUnknownWhenDisabled(t *testing.T) {
	knownHostsPath := filepath.Join(t.TempDir(), "known_hosts")

	callback, err := NewHostKeyCallback(knownHostsPath, false, nil)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key := generateTestHostKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 2222}

	if err := callback("remote1:2222", addr, key); err == nil {
		t.Fatalf("expected unknown host key to be rejected")
	}
}

func TestHostKeyCallbackEmptyPathSkipsVerification(t *testing.T) {
	callback, err := NewHostKeyCallback("", false, nil)
	if err != nil {
		t.Fatalf("failed to create callback: %v", err)
	}

	key := generateTestHostKey(t)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 22}
	if err := callback("anything:22", addr, key); err != nil {
		t.Fatalf("expected verification to be disabled, got %v", err)
	}
}

func generateTestHostKey(t *testing.T) ssh.PublicKey {
	t.Helper()

	pub, _, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	sshKey, err := ssh.NewPublicKey(pub)
	if err != nil {
		t.Fatalf("failed to convert public key: %v", err)
	}

	return sshKey
}
