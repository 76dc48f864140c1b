package types

import (
	"crypto/ed25519"
	"log/slog"
	"runtime"
)

// EncodeOptions switch pipeline layers on and off. Every disabled layer is
// recorded in the manifest so decode skips it symmetrically.
type EncodeOptions struct {
	Compression     bool
	ErrorCorrection bool
	Interleaving    bool

	// Codec and Level override the profile's compressor when Codec is set.
	Codec string
	Level int

	Seed            uint64
	Workers         int
	MaxArchiveBytes int64
	SigningKey      ed25519.PrivateKey
	Logger          *slog.Logger
}

// DefaultEncodeOptions enables every layer.
func DefaultEncodeOptions() EncodeOptions {
	return EncodeOptions{
		Compression:     true,
		ErrorCorrection: true,
		Interleaving:    true,
		Seed:            42,
	}
}

type DecodeOptions struct {
	VerifyIntegrity bool
	RepairErrors    bool
	Workers         int
	// LLRScale is the reliability given to an unambiguous voxel read.
	// Zero selects the default.
	LLRScale float64
	// PublicKey, when set, requires a valid manifest signature.
	PublicKey ed25519.PublicKey
	// Erase lists shard indices known to be bad, for example from an
	// earlier scan. They are treated as erasures without being decoded.
	Erase  []int
	Logger *slog.Logger
}

func DefaultDecodeOptions() DecodeOptions {
	return DecodeOptions{VerifyIntegrity: true}
}

// Workers resolves a worker count option; zero or less means one worker
// per CPU.
func Workers(n int) int {
	if n > 0 {
		return n
	}
	return runtime.GOMAXPROCS(0)
}
