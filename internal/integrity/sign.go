package integrity

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const SignatureScheme = "ed25519(manifest_digest bytes)"

// GenerateKey creates a fresh signing key pair.
func GenerateKey() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	return ed25519.GenerateKey(rand.Reader)
}

// Sign signs the hex manifest digest and returns the hex signature.
func Sign(key ed25519.PrivateKey, digestHex string) (string, error) {
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return "", fmt.Errorf("sign: bad digest: %w", err)
	}
	if len(key) != ed25519.PrivateKeySize {
		return "", errors.New("sign: bad private key size")
	}
	return hex.EncodeToString(ed25519.Sign(key, digest)), nil
}

// VerifySignature checks a hex signature over the hex manifest digest.
func VerifySignature(pub ed25519.PublicKey, digestHex, sigHex string) bool {
	digest, err := hex.DecodeString(digestHex)
	if err != nil {
		return false
	}
	sig, err := hex.DecodeString(sigHex)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(pub, digest, sig)
}
