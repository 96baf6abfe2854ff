package crypto

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/registry"
)

func newCryptoOperator(t *testing.T) (*Operator, string) {
	t.Helper()
	dir := t.TempDir()
	keyPath := filepath.Join(dir, "secret.key")
	if err := os.WriteFile(keyPath, []byte("a not-so-random passphrase"), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	reg := registry.New()
	Register(reg)
	factory, err := reg.Get(TypeName, Version)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	inst, err := factory("crypto1", map[string]any{})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return inst.(*Operator), keyPath
}

func TestEncryptThenDecryptRoundTrip(t *testing.T) {
	o, keyPath := newCryptoOperator(t)

	_, encOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "encrypt", "key": keyPath, "data": "hello world",
	})))
	encEnv := encOut.(envelope.Envelope)
	if !encEnv.OK() {
		t.Fatalf("encrypt failed: %#v", encEnv)
	}
	ciphertext := encEnv.Value.(string)
	if ciphertext == "" || ciphertext == "hello world" {
		t.Fatalf("expected encoded ciphertext, got %q", ciphertext)
	}

	_, decOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "decrypt", "key": keyPath, "data": ciphertext,
	})))
	decEnv := decOut.(envelope.Envelope)
	if !decEnv.OK() {
		t.Fatalf("decrypt failed: %#v", decEnv)
	}
	if decEnv.Value.(string) != "hello world" {
		t.Fatalf("unexpected plaintext: %q", decEnv.Value)
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	o, keyPath := newCryptoOperator(t)

	_, encOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "encrypt", "key": keyPath, "data": "hello world",
	})))
	ciphertext := encOut.(envelope.Envelope).Value.(string)
	tampered := ciphertext[:len(ciphertext)-2] + "aa"

	_, decOut := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "decrypt", "key": keyPath, "data": tampered,
	})))
	e := decOut.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected code 102 for tampered ciphertext, got %#v", e)
	}
}

func TestDecryptMissingKeyFileReturns102(t *testing.T) {
	o, keyPath := newCryptoOperator(t)
	_ = keyPath

	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New(map[string]any{
		"op": "decrypt", "key": filepath.Join(os.TempDir(), "no-such-key"), "data": "x",
	})))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeTargetFailure {
		t.Fatalf("expected code 102, got %#v", e)
	}
}

func TestBadInputTypeReturns101(t *testing.T) {
	o, _ := newCryptoOperator(t)
	_, out := o.Run(context.Background(), envelope.State{}, envelope.SingleInput(envelope.New("not a map")))
	e := out.(envelope.Envelope)
	if e.Code != envelope.CodeBadInput {
		t.Fatalf("expected code 101, got %#v", e)
	}
}
