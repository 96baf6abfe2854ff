// Package crypto implements CryptoOperator: symmetric encrypt/decrypt of
// a string payload using a key file.
//
// No package in the example pack provides a Fernet-equivalent
// authenticated-encryption-with-a-portable-token primitive, so this
// operator is built directly on crypto/aes and crypto/cipher
// (AES-256-GCM), following the same construction as the encryption
// service in one of the example repos: a key string is hashed with
// SHA-256 to a 32-byte AES key, and ciphertext is
// nonce-prefixed-then-base64-encoded.
package crypto

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// TypeName is the operator's registry typename.
const TypeName = "FernetCryptoOperator"

// Version is the operator's registry version.
const Version = "1.0"

// Config configures a Crypto operator.
type Config struct {
	MaxTasks int
}

// Operator encrypts or decrypts data using AES-256-GCM, keyed by the
// content of a file path given per-call as data["key"].
type Operator struct {
	base operator.Base

	mu      sync.Mutex
	ciphers map[string]cipher.AEAD
}

// Register installs the crypto operator factory into reg.
func Register(reg *registry.Registry) {
	reg.Register(TypeName, Version, func(name string, config map[string]any) (any, error) {
		maxTasks := 4
		if mt, ok := config["max_tasks"].(int); ok && mt > 0 {
			maxTasks = mt
		}
		o := &Operator{ciphers: make(map[string]cipher.AEAD)}
		o.base = operator.Base{Impl: o, MaxTasks: maxTasks}
		return o, nil
	})
}

func (o *Operator) aeadForKeyFile(path string) (cipher.AEAD, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if aead, ok := o.ciphers[path]; ok {
		return aead, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(content)

	block, err := aes.NewCipher(sum[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	o.ciphers[path] = aead
	return aead, nil
}

func (o *Operator) encrypt(keyFile, plaintext string) (string, error) {
	aead, err := o.aeadForKeyFile(keyFile)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	ciphertext := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

func (o *Operator) decrypt(keyFile, encoded string) (string, error) {
	aead, err := o.aeadForKeyFile(keyFile)
	if err != nil {
		return "", err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", err
	}
	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("crypto: ciphertext too short")
	}
	nonce, body := data[:nonceSize], data[nonceSize:]
	plaintext, err := aead.Open(nil, nonce, body, nil)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

// Do dispatches on data["op"] ("encrypt" or "decrypt", defaulting to
// "decrypt" per the operator's upstream default). Error codes: 101 bad
// input type, 102 key file or cipher failure.
func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	op, _ := data["op"].(string)
	if op == "" {
		op = "decrypt"
	}
	keyFile, _ := data["key"].(string)
	raw, _ := data["data"].(string)

	var (
		result string
		err    error
	)
	switch op {
	case "encrypt":
		result, err = o.encrypt(keyFile, raw)
	case "decrypt":
		result, err = o.decrypt(keyFile, raw)
	default:
		return state, envelope.Fail(envelope.CodeBadInput)
	}
	if err != nil {
		return state, envelope.Fail(envelope.CodeTargetFailure)
	}

	return state, envelope.New(result)
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
