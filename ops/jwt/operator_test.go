package jwt

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/senatoreg/pyfreeflow/envelope"
)

func writeKeyFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write key file: %v", err)
	}
	return path
}

func newHS256Operator(t *testing.T) *Operator {
	t.Helper()
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, "secret.key", "super-secret-value")

	o, err := New(Config{
		PubkeyFiles:  []string{keyPath},
		PrivkeyFiles: []string{keyPath},
		Algorithms:   []string{"HS256"},
		Issuer:       "pyfreeflow-test",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return o
}

func TestEncodeThenDecodeRoundTrip(t *testing.T) {
	o := newHS256Operator(t)

	_, encOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":   "encode",
		"body": map[string]any{"sub": "alice"},
	})))
	encEnv := encOut.(envelope.Envelope)
	if !encEnv.OK() {
		t.Fatalf("encode failed: %#v", encEnv)
	}
	token := encEnv.Value.(map[string]any)["token"].(string)
	if token == "" {
		t.Fatalf("expected non-empty token")
	}

	_, decOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":    "decode",
		"token": token,
	})))
	decEnv := decOut.(envelope.Envelope)
	if !decEnv.OK() {
		t.Fatalf("decode failed: %#v", decEnv)
	}
	body := decEnv.Value.(map[string]any)["body"].(map[string]any)
	if body["sub"] != "alice" {
		t.Fatalf("unexpected sub claim: %#v", body)
	}
	if body["iss"] != "pyfreeflow-test" {
		t.Fatalf("expected issuer to be set, got %#v", body)
	}
}

func TestDecodeRejectsTamperedToken(t *testing.T) {
	o := newHS256Operator(t)

	_, encOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":   "encode",
		"body": map[string]any{"sub": "alice"},
	})))
	token := encOut.(envelope.Envelope).Value.(map[string]any)["token"].(string)
	tampered := token[:len(token)-1] + "x"

	_, decOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":    "decode",
		"token": tampered,
	})))
	e := decOut.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected code 102 for tampered signature, got %#v", e)
	}
}

func TestDecodeHeadersOnlySkipsVerification(t *testing.T) {
	o := newHS256Operator(t)

	_, encOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":   "encode",
		"body": map[string]any{"sub": "bob"},
	})))
	token := encOut.(envelope.Envelope).Value.(map[string]any)["token"].(string)

	_, decOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":           "decode",
		"token":        token,
		"headers_only": true,
	})))
	e := decOut.(envelope.Envelope)
	if !e.OK() {
		t.Fatalf("headers-only decode failed: %#v", e)
	}
	hdr := e.Value.(map[string]any)["headers"].(map[string]any)
	if hdr["alg"] != "HS256" {
		t.Fatalf("expected alg header HS256, got %#v", hdr)
	}
}

func TestEncodeRejectsUnknownKid(t *testing.T) {
	o := newHS256Operator(t)

	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":   "encode",
		"kid":  "does-not-exist",
		"body": map[string]any{"sub": "alice"},
	})))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeBadInput {
		t.Fatalf("expected code 101, got %#v", e)
	}
}

func TestRequiredClaimsEnforced(t *testing.T) {
	dir := t.TempDir()
	keyPath := writeKeyFile(t, dir, "secret.key", "super-secret-value")
	o, err := New(Config{
		PubkeyFiles:   []string{keyPath},
		PrivkeyFiles:  []string{keyPath},
		Algorithms:    []string{"HS256"},
		RequiredClaim: []string{"role"},
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, encOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":   "encode",
		"body": map[string]any{"sub": "alice"},
	})))
	token := encOut.(envelope.Envelope).Value.(map[string]any)["token"].(string)

	_, decOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op":    "decode",
		"token": token,
	})))
	e := decOut.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected code 102 for missing required claim, got %#v", e)
	}
}
