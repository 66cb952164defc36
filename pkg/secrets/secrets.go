// Package secrets protects gateway webhook secrets at rest with KMS
// envelope encryption. Configuration files and the gateway store carry
// only the sealed envelope; the plaintext secret exists in memory just
// long enough to verify a signature.
package secrets

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	kmsTypes "github.com/aws/aws-sdk-go-v2/service/kms/types"
)

const envelopeVersion = 1

type kmsAPI interface {
	GenerateDataKey(ctx context.Context, params *kms.GenerateDataKeyInput, optFns ...func(*kms.Options)) (*kms.GenerateDataKeyOutput, error)
	Decrypt(ctx context.Context, params *kms.DecryptInput, optFns ...func(*kms.Options)) (*kms.DecryptOutput, error)
}

// envelope is the sealed form stored in place of the plaintext secret.
type envelope struct {
	Version    int    `json:"v"`
	EDK        []byte `json:"edk"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// Service seals and opens webhook secrets under a KMS key.
type Service struct {
	keyARN string
	kms    kmsAPI
	rand   io.Reader
}

// NewService creates a secret service for the given KMS key.
func NewService(keyARN string, kmsClient kmsAPI) *Service {
	return &Service{
		keyARN: keyARN,
		kms:    kmsClient,
		rand:   rand.Reader,
	}
}

// NewServiceFromAWSConfig creates a secret service with a real KMS client.
func NewServiceFromAWSConfig(keyARN string, cfg aws.Config) *Service {
	return NewService(keyARN, kms.NewFromConfig(cfg))
}

// Seal encrypts a webhook secret for the named tenant/gateway pair. The pair
// is bound into the AAD so an envelope cannot be replayed onto a different
// gateway's record.
func (s *Service) Seal(ctx context.Context, tenantID, gateway, secret string) (string, error) {
	if s == nil || s.kms == nil {
		return "", fmt.Errorf("secret service is not configured")
	}
	if s.keyARN == "" {
		return "", fmt.Errorf("kms key ARN is empty")
	}

	dataKey, err := s.kms.GenerateDataKey(ctx, &kms.GenerateDataKeyInput{
		KeyId:   aws.String(s.keyARN),
		KeySpec: kmsTypes.DataKeySpecAes256,
	})
	if err != nil {
		return "", fmt.Errorf("kms GenerateDataKey failed: %w", err)
	}
	if len(dataKey.Plaintext) != 32 {
		return "", fmt.Errorf("unexpected data key plaintext length: %d", len(dataKey.Plaintext))
	}

	gcm, err := newGCM(dataKey.Plaintext)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(s.rand, nonce); err != nil {
		return "", fmt.Errorf("nonce generation failed: %w", err)
	}

	ct := gcm.Seal(nil, nonce, []byte(secret), aadFor(tenantID, gateway))
	env := envelope{
		Version:    envelopeVersion,
		EDK:        dataKey.CiphertextBlob,
		Nonce:      nonce,
		Ciphertext: ct,
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encode envelope: %w", err)
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Open decrypts a sealed webhook secret for the named tenant/gateway pair.
func (s *Service) Open(ctx context.Context, tenantID, gateway, sealed string) (string, error) {
	if s == nil || s.kms == nil {
		return "", fmt.Errorf("secret service is not configured")
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Version != envelopeVersion {
		return "", fmt.Errorf("unsupported envelope version %d", env.Version)
	}
	if len(env.EDK) == 0 || len(env.Nonce) == 0 {
		return "", fmt.Errorf("envelope is missing key material")
	}

	dec, err := s.kms.Decrypt(ctx, &kms.DecryptInput{CiphertextBlob: env.EDK})
	if err != nil {
		return "", fmt.Errorf("kms Decrypt failed: %w", err)
	}
	if len(dec.Plaintext) != 32 {
		return "", fmt.Errorf("unexpected data key plaintext length: %d", len(dec.Plaintext))
	}

	gcm, err := newGCM(dec.Plaintext)
	if err != nil {
		return "", err
	}
	plaintext, err := gcm.Open(nil, env.Nonce, env.Ciphertext, aadFor(tenantID, gateway))
	if err != nil {
		return "", fmt.Errorf("aes-gcm decrypt failed: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher init failed: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("aes-gcm init failed: %w", err)
	}
	return gcm, nil
}

func aadFor(tenantID, gateway string) []byte {
	return []byte(fmt.Sprintf("routepay:webhook-secret:v1|tenant=%s|gateway=%s", tenantID, gateway))
}
