package types

import (
	"fmt"
	"strings"
)

// ProfileID selects one of the canonical encoding profiles. The zero value
// is not a valid profile.
type ProfileID uint8

const (
	Conservative ProfileID = iota + 1
	Aggressive
)

func (p ProfileID) String() string {
	switch p {
	case Conservative:
		return "conservative"
	case Aggressive:
		return "aggressive"
	default:
		return fmt.Sprintf("profile(%d)", uint8(p))
	}
}

// ParseProfile accepts the canonical names and the single-letter aliases
// "A" (conservative) and "B" (aggressive).
func ParseProfile(name string) (ProfileID, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "conservative", "a":
		return Conservative, nil
	case "aggressive", "b":
		return Aggressive, nil
	}
	return 0, fmt.Errorf("unknown profile %q", name)
}

// Params are the numeric parameters a profile resolves to. Every value is
// copied into the manifest, so changing a profile here never affects
// archives that already exist.
type Params struct {
	ID              ProfileID
	OrientationBits int
	RetardanceBits  int
	InnerRate       float64
	ColumnWeight    int
	MaxIterations   int
	MinSumScale     float64
	OuterOverhead   float64
	PlaneCount      int
	MinShardSize    int
	Codec           string
	Level           int
	LossTolerance   float64
}

func (p Params) BitsPerVoxel() int { return p.OrientationBits + p.RetardanceBits }

var profiles = map[ProfileID]Params{
	Conservative: {
		ID:              Conservative,
		OrientationBits: 2,
		RetardanceBits:  1,
		InnerRate:       0.5,
		ColumnWeight:    3,
		MaxIterations:   60,
		MinSumScale:     0.75,
		OuterOverhead:   0.25,
		PlaneCount:      16,
		MinShardSize:    256,
		Codec:           "zstd",
		Level:           19,
		LossTolerance:   0.15,
	},
	// Aggressive trades margin for density. Its tolerance is a tuning
	// target checked with the damage simulator, not a guarantee.
	Aggressive: {
		ID:              Aggressive,
		OrientationBits: 3,
		RetardanceBits:  2,
		InnerRate:       0.75,
		ColumnWeight:    3,
		MaxIterations:   40,
		MinSumScale:     0.75,
		OuterOverhead:   0.125,
		PlaneCount:      8,
		MinShardSize:    512,
		Codec:           "zstd",
		Level:           3,
		LossTolerance:   0.05,
	},
}

// Params resolves the profile tag.
func (p ProfileID) Params() (Params, error) {
	params, ok := profiles[p]
	if !ok {
		return Params{}, fmt.Errorf("unknown profile %v", p)
	}
	return params, nil
}
