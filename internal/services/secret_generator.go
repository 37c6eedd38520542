package services

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"

	"asklytics/internal/models"
)

const (
	resetTokenBytes = 32
	otpDigits       = 6
)

var otpSpace = big.NewInt(1_000_000)

// SecretGenerator produces reset secrets.
type SecretGenerator interface {
	GenerateToken() (string, error)
	GenerateOTP() (string, error)
}

// CryptoSecretGenerator draws from crypto/rand.
type CryptoSecretGenerator struct {
	rand io.Reader
}

func NewCryptoSecretGenerator() *CryptoSecretGenerator {
	return &CryptoSecretGenerator{rand: rand.Reader}
}

// GenerateToken returns 32 random bytes hex-encoded (256 bits, URL safe).
func (g *CryptoSecretGenerator) GenerateToken() (string, error) {
	b := make([]byte, resetTokenBytes)
	if _, err := io.ReadFull(g.rand, b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateOTP returns a zero-padded 6 digit code drawn uniformly from 000000-999999.
// rand.Int rejects out-of-range samples, so there is no modulo bias.
func (g *CryptoSecretGenerator) GenerateOTP() (string, error) {
	n, err := rand.Int(g.rand, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

// generate returns a raw secret for the channel.
func generate(g SecretGenerator, channel models.Channel) (string, error) {
	switch channel {
	case models.ChannelEmailLink:
		return g.GenerateToken()
	case models.ChannelMobileOTP:
		return g.GenerateOTP()
	default:
		return "", fmt.Errorf("unknown reset channel %q", channel)
	}
}

// storedSecret is the form persisted for a raw secret. Email tokens are kept as
// SHA-256 digests; OTPs are stored as issued.
func storedSecret(channel models.Channel, raw string) string {
	if channel == models.ChannelEmailLink {
		sum := sha256.Sum256([]byte(raw))
		return hex.EncodeToString(sum[:])
	}
	return raw
}
