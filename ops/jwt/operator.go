// Package jwt implements JwtOperator: encode and decode JSON Web Tokens
// against key sets indexed by the SHA-256 hex digest of their file
// content, with kid-based key selection.
package jwt

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/senatoreg/pyfreeflow/envelope"
	"github.com/senatoreg/pyfreeflow/envutil"
	"github.com/senatoreg/pyfreeflow/operator"
	"github.com/senatoreg/pyfreeflow/registry"
)

// TypeName is the operator's registry typename.
const TypeName = "JwtOperator"

// Version is the operator's registry version.
const Version = "1.0"

// Config configures a JWT operator.
type Config struct {
	PubkeyFiles   []string
	PrivkeyFiles  []string
	Algorithms    []string
	Headers       map[string]any
	VerifySign    bool
	VerifyExp     bool
	RequiredClaim []string
	Duration      string // positional duration grammar, e.g. "1h"
	NotBefore     string
	Issuer        string
	MaxTasks      int
}

// Operator signs and verifies JWTs, selecting keys by content digest.
type Operator struct {
	base operator.Base

	algorithms []string
	pubKeys    map[string][]byte // kid -> PEM/secret bytes
	privKeys   map[string][]byte
	defaultPub string
	defaultPri string

	headers        map[string]any
	verifySign     bool
	verifyExp      bool
	requiredClaims []string

	durationSec  int64
	notBeforeSec int64
	haveDuration bool
	haveNotBefor bool
	issuer       string
}

// Register installs the JWT operator factory into reg.
func Register(reg *registry.Registry) {
	reg.Register(TypeName, Version, func(name string, config map[string]any) (any, error) {
		cfg := decodeConfig(config)
		return New(cfg)
	})
}

func decodeConfig(config map[string]any) Config {
	var cfg Config
	cfg.PubkeyFiles = stringSlice(config["pubkey_files"])
	cfg.PrivkeyFiles = stringSlice(config["privkey_files"])
	cfg.Algorithms = stringSlice(config["algorithms"])
	if len(cfg.Algorithms) == 0 {
		cfg.Algorithms = []string{"HS256"}
	}
	cfg.VerifySign = boolOrDefault(config["verify_sign"], true)
	cfg.VerifyExp = boolOrDefault(config["verify_exp"], true)
	cfg.RequiredClaim = stringSlice(config["required_claims"])
	cfg.Duration, _ = config["duration"].(string)
	cfg.NotBefore, _ = config["not_before"].(string)
	cfg.Issuer, _ = config["issuer"].(string)
	if mt, ok := config["max_tasks"].(int); ok {
		cfg.MaxTasks = mt
	}
	return cfg
}

func stringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, e := range raw {
		if s, ok := e.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func boolOrDefault(v any, def bool) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	return def
}

// New builds an Operator from cfg, hashing every key file's content to
// derive its kid.
func New(cfg Config) (*Operator, error) {
	pub, defaultPub, err := loadKeys(cfg.PubkeyFiles)
	if err != nil {
		return nil, fmt.Errorf("jwt: load public keys: %w", err)
	}
	priv, defaultPriv, err := loadKeys(cfg.PrivkeyFiles)
	if err != nil {
		return nil, fmt.Errorf("jwt: load private keys: %w", err)
	}

	o := &Operator{
		algorithms:     cfg.Algorithms,
		pubKeys:        pub,
		privKeys:       priv,
		defaultPub:     defaultPub,
		defaultPri:     defaultPriv,
		headers:        cfg.Headers,
		verifySign:     cfg.VerifySign,
		verifyExp:      cfg.VerifyExp,
		requiredClaims: cfg.RequiredClaim,
		issuer:         cfg.Issuer,
	}

	if cfg.Duration != "" {
		us, err := envutil.ParseDuration(cfg.Duration)
		if err != nil {
			return nil, fmt.Errorf("jwt: duration: %w", err)
		}
		o.durationSec = us / 1_000_000
		o.haveDuration = true
	}
	if cfg.NotBefore != "" {
		us, err := envutil.ParseDuration(cfg.NotBefore)
		if err != nil {
			return nil, fmt.Errorf("jwt: not_before: %w", err)
		}
		o.notBeforeSec = us / 1_000_000
		o.haveNotBefor = true
	}

	o.base = operator.Base{Impl: o, MaxTasks: cfg.MaxTasks}
	if o.base.MaxTasks <= 0 {
		o.base.MaxTasks = 4
	}

	return o, nil
}

func loadKeys(paths []string) (map[string][]byte, string, error) {
	keys := make(map[string][]byte, len(paths))
	var first string
	for _, p := range paths {
		content, err := os.ReadFile(p)
		if err != nil {
			return nil, "", err
		}
		sum := sha256.Sum256(content)
		kid := hex.EncodeToString(sum[:])
		keys[kid] = content
		if first == "" {
			first = kid
		}
	}
	return keys, first, nil
}

func (o *Operator) Do(ctx context.Context, state envelope.State, value any) (envelope.State, envelope.Envelope) {
	data, ok := value.(map[string]any)
	if !ok {
		return state, envelope.Fail(envelope.CodeBadInput)
	}

	op, _ := data["op"].(string)
	if op == "" {
		op = "encode"
	}

	switch op {
	case "encode":
		return state, o.doEncode(data)
	case "decode":
		return state, o.doDecode(data)
	default:
		return state, envelope.Fail(envelope.CodeBadInput)
	}
}

func (o *Operator) doEncode(data map[string]any) envelope.Envelope {
	body, ok := data["body"].(map[string]any)
	if !ok {
		return envelope.Fail(envelope.CodeBadInput)
	}

	kid, _ := data["kid"].(string)
	if kid == "" {
		kid = o.defaultPri
	}
	key, ok := o.privKeys[kid]
	if !ok {
		return envelope.Fail(envelope.CodeBadInput)
	}

	claims := jwtlib.MapClaims{}
	for k, v := range body {
		claims[k] = v
	}

	now := time.Now().UTC()
	if o.haveDuration {
		if _, ok := claims["exp"]; !ok {
			claims["exp"] = now.Add(time.Duration(o.durationSec) * time.Second).Unix()
		}
	}
	if o.haveNotBefor {
		if _, ok := claims["nbf"]; !ok {
			claims["nbf"] = now.Add(time.Duration(o.notBeforeSec) * time.Second).Unix()
		}
	}
	if _, ok := claims["iat"]; !ok {
		claims["iat"] = now.Unix()
	}
	if o.issuer != "" {
		if _, ok := claims["iss"]; !ok {
			claims["iss"] = o.issuer
		}
	}

	algName, _ := data["algorithm"].(string)
	if algName == "" && len(o.algorithms) > 0 {
		algName = o.algorithms[0]
	}
	method := jwtlib.GetSigningMethod(algName)
	if method == nil {
		return envelope.Fail(envelope.CodeBadInput)
	}

	token := jwtlib.NewWithClaims(method, claims)
	token.Header["kid"] = kid
	if hdr, ok := data["headers"].(map[string]any); ok {
		for k, v := range hdr {
			token.Header[k] = v
		}
	}

	signed, err := token.SignedString(signingKey(method, key))
	if err != nil {
		return envelope.Fail(envelope.CodeTargetFailure)
	}

	return envelope.New(map[string]any{"token": signed})
}

func (o *Operator) doDecode(data map[string]any) envelope.Envelope {
	tokenStr, ok := data["token"].(string)
	if !ok {
		return envelope.Fail(envelope.CodeBadInput)
	}
	headersOnly, _ := data["headers_only"].(bool)

	parser := jwtlib.NewParser()
	unverified, _, err := parser.ParseUnverified(tokenStr, jwtlib.MapClaims{})
	if err != nil {
		return envelope.Fail(envelope.CodeTargetFailure)
	}

	kid, _ := unverified.Header["kid"].(string)
	if kid == "" {
		kid = o.defaultPub
	}
	key, ok := o.pubKeys[kid]
	if !ok {
		return envelope.Fail(envelope.CodeTargetFailure)
	}

	if headersOnly {
		return envelope.New(map[string]any{"headers": unverified.Header, "body": nil})
	}

	claims := jwtlib.MapClaims{}
	_, err = jwtlib.ParseWithClaims(tokenStr, claims, func(t *jwtlib.Token) (any, error) {
		return signingKey(t.Method, key), nil
	})
	if err != nil {
		return envelope.Fail(envelope.CodeTargetFailure)
	}

	for _, c := range o.requiredClaims {
		if _, ok := claims[c]; !ok {
			return envelope.Fail(envelope.CodeTargetFailure)
		}
	}

	return envelope.New(map[string]any{"headers": unverified.Header, "body": map[string]any(claims)})
}

// signingKey adapts a raw key file's content to the shape each signing
// method family expects: HMAC methods sign with the raw secret bytes,
// RSA/ECDSA methods expect a parsed PEM key.
func signingKey(method jwtlib.SigningMethod, raw []byte) any {
	switch method.(type) {
	case *jwtlib.SigningMethodRSA, *jwtlib.SigningMethodRSAPSS:
		if key, err := jwtlib.ParseRSAPrivateKeyFromPEM(raw); err == nil {
			return key
		}
		if key, err := jwtlib.ParseRSAPublicKeyFromPEM(raw); err == nil {
			return key
		}
		return raw
	case *jwtlib.SigningMethodECDSA:
		if key, err := jwtlib.ParseECPrivateKeyFromPEM(raw); err == nil {
			return key
		}
		if key, err := jwtlib.ParseECPublicKeyFromPEM(raw); err == nil {
			return key
		}
		return raw
	default:
		return raw
	}
}

func (o *Operator) Run(ctx context.Context, state envelope.State, input envelope.Input) (envelope.State, any) {
	return o.base.Run(ctx, state, input)
}
