// Package flow implements the WhatsApp Flow data exchange: the encrypted
// request/response envelope and the booking screen progression.
package flow

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"os"
)

// Envelope is the encrypted request body the platform posts to the flow
// endpoint.
type Envelope struct {
	EncryptedFlowData string `json:"encrypted_flow_data"`
	EncryptedAESKey   string `json:"encrypted_aes_key"`
	InitialVector     string `json:"initial_vector"`
}

// Crypto decrypts flow envelopes with the business RSA key and encrypts
// responses under the per-request AES session key.
type Crypto struct {
	privateKey *rsa.PrivateKey
}

// NewCrypto loads the PEM-encoded RSA private key registered with the flow.
func NewCrypto(keyPath string) (*Crypto, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("read flow private key: %w", err)
	}
	return newCryptoFromPEM(data)
}

func newCryptoFromPEM(data []byte) (*Crypto, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("flow private key: no PEM block")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Crypto{privateKey: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse flow private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("flow private key is not RSA")
	}
	return &Crypto{privateKey: key}, nil
}

// Decrypt opens the envelope: RSA-OAEP(SHA-256) unwraps the AES session
// key, then AES-GCM opens the flow data. The returned key and iv are needed
// to encrypt the response.
func (c *Crypto) Decrypt(env *Envelope) (data, key, iv []byte, err error) {
	encryptedKey, err := base64.StdEncoding.DecodeString(env.EncryptedAESKey)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode aes key: %w", err)
	}
	key, err = rsa.DecryptOAEP(sha256.New(), rand.Reader, c.privateKey, encryptedKey, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("unwrap aes key: %w", err)
	}

	flowData, err := base64.StdEncoding.DecodeString(env.EncryptedFlowData)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode flow data: %w", err)
	}
	iv, err = base64.StdEncoding.DecodeString(env.InitialVector)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decode iv: %w", err)
	}

	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return nil, nil, nil, err
	}
	data, err = gcm.Open(nil, iv, flowData, nil)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("decrypt flow data: %w", err)
	}
	return data, key, iv, nil
}

// Encrypt seals the response under the session key with the bit-inverted
// request IV, as the flow protocol requires, and returns it base64 encoded.
func (c *Crypto) Encrypt(response, key, iv []byte) (string, error) {
	flipped := make([]byte, len(iv))
	for i, b := range iv {
		flipped[i] = b ^ 0xFF
	}

	gcm, err := newGCM(key, len(iv))
	if err != nil {
		return "", err
	}
	sealed := gcm.Seal(nil, flipped, response, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

func newGCM(key []byte, nonceSize int) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes cipher: %w", err)
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, fmt.Errorf("gcm mode: %w", err)
	}
	return gcm, nil
}
