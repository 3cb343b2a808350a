// Package reveal maps a conversation's text-message count to the reveal
// level that gates how much of the counterpart's photo is shown.
package reveal

import "fmt"

// MaxLevel is the fully revealed level.
const MaxLevel = 4

// DefaultThresholds is the canonical table: level N is reached at
// DefaultThresholds[N-1] text messages. Both write-time chapter unlocks and
// read-time photo gating use the same Policy built from this table.
var DefaultThresholds = [MaxLevel]int{10, 30, 50, 80}

var chapterLabels = [MaxLevel + 1]string{
	"Prologue",
	"Chapter 1: First Impressions",
	"Chapter 2: Getting Closer",
	"Chapter 3: Almost There",
	"Chapter 4: Face to Face",
}

// blur radius per level; index 0 is unused because the photo is hidden.
var blurRadius = [MaxLevel + 1]int{0, 40, 24, 12, 0}

type Policy struct {
	thresholds [MaxLevel]int
}

// Default returns the policy for DefaultThresholds.
func Default() Policy {
	return Policy{thresholds: DefaultThresholds}
}

// New validates a threshold table: exactly MaxLevel positive, strictly
// ascending counts.
func New(thresholds []int) (Policy, error) {
	if len(thresholds) != MaxLevel {
		return Policy{}, fmt.Errorf("reveal: need %d thresholds, got %d", MaxLevel, len(thresholds))
	}
	var p Policy
	prev := 0
	for i, t := range thresholds {
		if t <= prev {
			return Policy{}, fmt.Errorf("reveal: thresholds must be positive and strictly ascending, got %v", thresholds)
		}
		p.thresholds[i] = t
		prev = t
	}
	return p, nil
}

// Level is total and monotonic in count; negative counts are level 0.
func (p Policy) Level(count int) int {
	level := 0
	for _, t := range p.thresholds {
		if count < t {
			break
		}
		level++
	}
	return level
}

// Threshold returns the message count at which level is reached.
func (p Policy) Threshold(level int) int {
	if level <= 0 {
		return 0
	}
	if level > MaxLevel {
		level = MaxLevel
	}
	return p.thresholds[level-1]
}

// NextThreshold is the count needed for the next level, or 0 when fully
// revealed.
func (p Policy) NextThreshold(level int) int {
	if level >= MaxLevel {
		return 0
	}
	return p.Threshold(clamp(level) + 1)
}

// Label returns the chapter label for a level, clamped to [0, MaxLevel].
func Label(level int) string {
	return chapterLabels[clamp(level)]
}

type Visibility struct {
	Hidden bool `json:"hidden"`
	Blur   int  `json:"blur"`
}

// VisibilityFor describes how a counterpart photo is shown at level.
func VisibilityFor(level int) Visibility {
	level = clamp(level)
	return Visibility{Hidden: level == 0, Blur: blurRadius[level]}
}

func clamp(level int) int {
	if level < 0 {
		return 0
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}
