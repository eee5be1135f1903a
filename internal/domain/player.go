package domain

import (
	"math"
	"time"

	"golang.org/x/exp/constraints"
)

// Player is the authoritative playback state of a room. Position is the value at UpdatedAt;
// the live position is derived with CurrentPosition.
type Player struct {
	Position  float64   `json:"position"`
	IsPlaying bool      `json:"is_playing"`
	UpdatedAt time.Time `json:"updated_at"`
}

func NewPlayer(now time.Time) Player {
	return Player{
		Position:  0,
		IsPlaying: false,
		UpdatedAt: now,
	}
}

func clamp[T constraints.Float | constraints.Integer](v, lo, hi T) T {
	return max(lo, min(v, hi))
}

// ClampPosition bounds a position to [0, duration]. A non-positive duration means unknown
// and only the lower bound applies.
func ClampPosition(position, duration float64) float64 {
	if math.IsNaN(position) {
		return 0
	}

	upper := math.Inf(1)
	if duration > 0 {
		upper = duration
	}

	return clamp(position, 0, upper)
}

func (p Player) CurrentPosition(now time.Time, duration float64) float64 {
	position := p.Position
	if p.IsPlaying {
		if elapsed := now.Sub(p.UpdatedAt); elapsed > 0 {
			position += elapsed.Seconds()
		}
	}

	return ClampPosition(position, duration)
}

// Play resumes playback from the given position, or from the extrapolated one when nil.
func (p *Player) Play(now time.Time, position *float64, duration float64) {
	if position != nil {
		p.Position = ClampPosition(*position, duration)
	} else {
		p.Position = p.CurrentPosition(now, duration)
	}
	p.IsPlaying = true
	p.UpdatedAt = now
}

func (p *Player) Pause(now time.Time, duration float64) {
	p.Position = p.CurrentPosition(now, duration)
	p.IsPlaying = false
	p.UpdatedAt = now
}

func (p *Player) Seek(now time.Time, position, duration float64) {
	p.Position = ClampPosition(position, duration)
	p.UpdatedAt = now
}

// Rebase folds the playback elapsed since UpdatedAt into Position.
func (p *Player) Rebase(now time.Time, duration float64) {
	p.Position = p.CurrentPosition(now, duration)
	p.UpdatedAt = now
}
