package voxel

import "fmt"

// Stream is the physical voxel sequence. Position x lies in plane
// x mod Planes.
type Stream struct {
	Planes         int
	VoxelsPerPlane int
	Voxels         []Voxel
}

func (s *Stream) Validate() error {
	if s.Planes < 1 || s.VoxelsPerPlane < 1 {
		return fmt.Errorf("voxel stream: bad geometry %dx%d", s.Planes, s.VoxelsPerPlane)
	}
	if len(s.Voxels) != s.Planes*s.VoxelsPerPlane {
		return fmt.Errorf("voxel stream: %d voxels, geometry wants %d", len(s.Voxels), s.Planes*s.VoxelsPerPlane)
	}
	return nil
}

// Clone returns a deep copy.
func (s *Stream) Clone() *Stream {
	c := *s
	c.Voxels = append([]Voxel(nil), s.Voxels...)
	return &c
}

// LostFraction is the share of voxels flagged lost.
func (s *Stream) LostFraction() float64 {
	if len(s.Voxels) == 0 {
		return 0
	}
	lost := 0
	for _, v := range s.Voxels {
		if v.Lost {
			lost++
		}
	}
	return float64(lost) / float64(len(s.Voxels))
}

// OutOfRange counts voxels whose readings fall outside the physical
// ranges, which points at calibration trouble rather than random noise.
func (s *Stream) OutOfRange() int {
	n := 0
	for _, v := range s.Voxels {
		if v.Lost {
			continue
		}
		if v.Orientation < 0 || v.Orientation >= 180 || v.Retardance < 0 || v.Retardance > 1 {
			n++
		}
	}
	return n
}
