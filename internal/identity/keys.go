package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	stretchRounds = 1000
	keyLength     = 32

	quickStretchSalt = "identity.mozilla.com/picl/v1/quickStretch:"
	authPWInfo       = "identity.mozilla.com/picl/v1/authPW"
)

// AuthPW derives the hex-encoded credential the auth server expects in
// place of the password.
func AuthPW(email, password string) (string, error) {
	stretched := pbkdf2.Key([]byte(password), []byte(quickStretchSalt+email), stretchRounds, keyLength, sha256.New)

	out := make([]byte, keyLength)
	if _, err := io.ReadFull(hkdf.New(sha256.New, stretched, nil, []byte(authPWInfo)), out); err != nil {
		return "", fmt.Errorf("derive authPW: %w", err)
	}
	return hex.EncodeToString(out), nil
}
