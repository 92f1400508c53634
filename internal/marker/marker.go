// Package marker describes the static marker geometry of a tracked
// specimen: the ordered set of marker tags, the reference ring layout of
// each cross-section, and the local coordinate frame (origin + basis)
// used by the posture reconstruction stage.
//
// The description is loaded once per session from a JSON file and is
// read-only afterwards.
package marker

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// Vec3 is a 3D point or offset in metres.
type Vec3 [3]float64

// Ring describes one cross-section: the reference offset of every tag in
// the ring's local frame, plus the frame itself.
type Ring struct {
	// Offsets maps tag name to its reference position in the ring's
	// local frame.
	Offsets map[string]Vec3 `json:"offsets"`

	// Origin is the local frame origin. The posture reconstructor
	// predicts the cross-section centre at this point.
	Origin Vec3 `json:"origin"`

	// Basis holds the three local frame axes as rows. Must be
	// orthonormal; the reconstructor predicts the director triad at
	// these axes.
	Basis [3]Vec3 `json:"basis"`
}

// MarkerPositions is the immutable marker geometry for one specimen.
type MarkerPositions struct {
	// TagNames is the ordered tag set shared by every ring, e.g.
	// compass points around the circumference.
	TagNames []string `json:"tags"`

	// Rings lists the cross-sections base-to-tip. The slice index is
	// the cross-section index used throughout the pipeline.
	Rings []Ring `json:"rings"`
}

const maxDescriptionBytes = 1 << 20 // 1MB

// Load reads and validates a marker geometry description from a JSON file.
func Load(path string) (*MarkerPositions, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("marker description must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat marker description: %w", err)
	}
	if info.Size() > maxDescriptionBytes {
		return nil, fmt.Errorf("marker description too large: %d bytes (max %d)", info.Size(), maxDescriptionBytes)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read marker description: %w", err)
	}

	mp := &MarkerPositions{}
	if err := json.Unmarshal(data, mp); err != nil {
		return nil, fmt.Errorf("failed to parse marker description JSON: %w", err)
	}

	if err := mp.Validate(); err != nil {
		return nil, fmt.Errorf("invalid marker description: %w", err)
	}

	return mp, nil
}

// orthoTolerance bounds the deviation from orthonormality accepted for a
// ring's basis. Descriptions are hand-authored so small rounding noise in
// the JSON must not be rejected.
const orthoTolerance = 1e-6

// Validate checks the structural invariants of the description: at least
// one ring, unique tags, every ring covering the full tag set, and an
// orthonormal basis per ring.
func (mp *MarkerPositions) Validate() error {
	if len(mp.Rings) == 0 {
		return fmt.Errorf("no cross-section rings defined")
	}
	if len(mp.TagNames) == 0 {
		return fmt.Errorf("no marker tags defined")
	}

	seen := make(map[string]bool, len(mp.TagNames))
	for _, tag := range mp.TagNames {
		if tag == "" {
			return fmt.Errorf("empty tag name")
		}
		if seen[tag] {
			return fmt.Errorf("duplicate tag %q", tag)
		}
		seen[tag] = true
	}

	for z, ring := range mp.Rings {
		if len(ring.Offsets) == 0 {
			return fmt.Errorf("ring %d: no marker offsets", z)
		}
		for tag := range ring.Offsets {
			if !seen[tag] {
				return fmt.Errorf("ring %d: offset for unknown tag %q", z, tag)
			}
		}
		for _, tag := range mp.TagNames {
			if _, ok := ring.Offsets[tag]; !ok {
				return fmt.Errorf("ring %d: missing offset for tag %q", z, tag)
			}
		}
		if err := checkOrthonormal(ring.Basis); err != nil {
			return fmt.Errorf("ring %d: %w", z, err)
		}
	}

	return nil
}

func checkOrthonormal(basis [3]Vec3) error {
	for i := 0; i < 3; i++ {
		for j := i; j < 3; j++ {
			dot := basis[i][0]*basis[j][0] + basis[i][1]*basis[j][1] + basis[i][2]*basis[j][2]
			want := 0.0
			if i == j {
				want = 1.0
			}
			if math.Abs(dot-want) > orthoTolerance {
				return fmt.Errorf("basis not orthonormal: axes %d·%d = %g, want %g", i, j, dot, want)
			}
		}
	}
	return nil
}

// NumCrossSections returns the number of cross-section rings.
func (mp *MarkerPositions) NumCrossSections() int {
	return len(mp.Rings)
}

// NumTags returns the number of tags per ring.
func (mp *MarkerPositions) NumTags() int {
	return len(mp.TagNames)
}

// Tags returns the ordered tag set. The returned slice is a copy.
func (mp *MarkerPositions) Tags() []string {
	tags := make([]string, len(mp.TagNames))
	copy(tags, mp.TagNames)
	return tags
}

// TagIndex returns the position of tag within the ordered tag set, or -1
// if the tag is unknown.
func (mp *MarkerPositions) TagIndex(tag string) int {
	for i, t := range mp.TagNames {
		if t == tag {
			return i
		}
	}
	return -1
}

// Offset returns the reference position of tag in ring z's local frame.
// The second return value is false when z or tag is out of range.
func (mp *MarkerPositions) Offset(z int, tag string) (Vec3, bool) {
	if z < 0 || z >= len(mp.Rings) {
		return Vec3{}, false
	}
	v, ok := mp.Rings[z].Offsets[tag]
	return v, ok
}

// Origin returns the local frame origin of ring z.
func (mp *MarkerPositions) Origin(z int) (Vec3, bool) {
	if z < 0 || z >= len(mp.Rings) {
		return Vec3{}, false
	}
	return mp.Rings[z].Origin, true
}

// Basis returns the local frame axes of ring z as rows.
func (mp *MarkerPositions) Basis(z int) ([3]Vec3, bool) {
	if z < 0 || z >= len(mp.Rings) {
		return [3]Vec3{}, false
	}
	return mp.Rings[z].Basis, true
}
