// Package layout places a built version tree on a timeline: x follows time
// at a scale chosen so that no node overlaps its parent, y follows the
// branch lane.
package layout

import (
	"math"

	log "github.com/sirupsen/logrus"

	"rvfs/internal/vtree"
)

// Params holds the timeline geometry. LeftMargin must equal the margin the
// tree was built with.
type Params struct {
	LeftMargin       float64   `yaml:"left_margin" json:"left_margin"`
	RightMargin      float64   `yaml:"right_margin" json:"right_margin"`
	TopMargin        float64   `yaml:"top_margin" json:"top_margin"`
	BottomMargin     float64   `yaml:"bottom_margin" json:"bottom_margin"`
	AxisBottomMargin float64   `yaml:"axis_bottom_margin" json:"axis_bottom_margin"`
	Radius           float64   `yaml:"radius" json:"radius"`
	OutlineWidth     float64   `yaml:"outline_width" json:"outline_width"`
	HeadOutlineWidth float64   `yaml:"head_outline_width" json:"head_outline_width"`
	MinSeparation    float64   `yaml:"min_separation" json:"min_separation"`
	LaneSeparation   float64   `yaml:"lane_separation" json:"lane_separation"`
	TickSeparation   float64   `yaml:"tick_separation" json:"tick_separation"`
	DefaultWidth     float64   `yaml:"default_width" json:"default_width"`
	DefaultHeight    float64   `yaml:"default_height" json:"default_height"`
	ScaleFactors     []float64 `yaml:"scale_factors" json:"scale_factors"` // most spread-out first
}

// DefaultParams returns the stock timeline geometry.
func DefaultParams() Params {
	return Params{
		LeftMargin:       30,
		RightMargin:      30,
		TopMargin:        20,
		BottomMargin:     20,
		AxisBottomMargin: 20,
		Radius:           6,
		OutlineWidth:     1,
		HeadOutlineWidth: 2,
		MinSeparation:    4,
		LaneSeparation:   40,
		TickSeparation:   100,
		DefaultWidth:     800,
		DefaultHeight:    200,
		ScaleFactors:     []float64{10, 5, 2, 1, 0.5, 0.1},
	}
}

// Position is one node's placement.
type Position struct {
	Offset       int64   `json:"offset"`
	X            float64 `json:"x"`
	Y            float64 `json:"y"`
	Radius       float64 `json:"radius"`
	OutlineWidth float64 `json:"outline_width"`
	Lane         int     `json:"lane"`
}

// Tick is one axis tick and the time it stands for.
type Tick struct {
	X         float64 `json:"x"`
	Timestamp int64   `json:"timestamp"`
}

// Layout is the placement of every node plus the scene bounds.
type Layout struct {
	Scale     float64    `json:"scale"`
	Collision bool       `json:"collision"` // no candidate was collision-free
	Positions []Position `json:"positions"` // tree node order
	MaxX      float64    `json:"max_x"`
	Segments  int        `json:"segments"`
	AxisEnd   float64    `json:"axis_end"`
	Width     float64    `json:"width"`
	Height    float64    `json:"height"`

	// Axis ticks are computed on demand; Segments+1 of them span the axis.
	Origin         int64   `json:"origin"` // root timestamp, the time at tick 0
	LeftMargin     float64 `json:"left_margin"`
	TickSeparation float64 `json:"tick_separation"`

	index map[int64]int
}

// Tick returns axis tick i, 0 <= i <= Segments.
func (l *Layout) Tick(i int) Tick {
	return Tick{
		X:         l.LeftMargin + float64(i)*l.TickSeparation,
		Timestamp: l.Origin + int64(math.Round(float64(i)*l.TickSeparation/l.Scale)),
	}
}

// Position returns the placement of the node with the given offset.
func (l *Layout) Position(offset int64) (Position, bool) {
	i, ok := l.index[offset]
	if !ok {
		return Position{}, false
	}
	return l.Positions[i], true
}

// ChooseScale returns the first candidate under which every node clears its
// parent, or the last candidate and false when none does.
func ChooseScale(t *vtree.Tree, p Params) (float64, bool) {
	if len(p.ScaleFactors) == 0 {
		return 1, !collides(t, p, 1)
	}
	for _, scale := range p.ScaleFactors {
		if !collides(t, p, scale) {
			return scale, true
		}
	}
	return p.ScaleFactors[len(p.ScaleFactors)-1], false
}

func collides(t *vtree.Tree, p Params, scale float64) bool {
	for _, n := range t.Nodes() {
		parent := n.Parent()
		if parent == nil {
			continue
		}
		need := n.Radius() + parent.Radius() + 2*p.HeadOutlineWidth + p.MinSeparation
		if (n.X()-parent.X())*scale < need {
			return true
		}
	}
	return false
}

// Apply lays out t. The tree is not modified.
func Apply(t *vtree.Tree, p Params) *Layout {
	scale, ok := ChooseScale(t, p)
	if !ok {
		log.Warnf("[Layout] Apply: no collision-free scale, falling back to %g", scale)
	}

	nodes := t.Nodes()
	l := &Layout{
		Scale:     scale,
		Collision: !ok,
		Positions: make([]Position, 0, len(nodes)),
		index:     make(map[int64]int, len(nodes)),
	}

	rootY := p.TopMargin + p.BottomMargin + p.AxisBottomMargin + p.Radius
	maxY := rootY
	for _, n := range nodes {
		outline := p.OutlineWidth
		if n.IsHead() {
			outline = p.HeadOutlineWidth
		}
		pos := Position{
			Offset:       n.Offset(),
			X:            p.LeftMargin + (n.X()-p.LeftMargin)*scale,
			Y:            rootY + p.LaneSeparation*float64(n.Lane()),
			Radius:       n.Radius(),
			OutlineWidth: outline,
			Lane:         n.Lane(),
		}
		maxY = math.Max(maxY, pos.Y)
		l.index[pos.Offset] = len(l.Positions)
		l.Positions = append(l.Positions, pos)
	}

	l.MaxX = p.LeftMargin + (t.MaxX()-p.LeftMargin)*scale
	length := l.MaxX - p.LeftMargin
	tick := p.TickSeparation
	if tick <= 0 {
		tick = DefaultParams().TickSeparation
	}
	l.Segments = int(length/tick) + 1
	l.AxisEnd = p.LeftMargin + float64(l.Segments)*tick
	l.Width = l.AxisEnd + p.RightMargin
	l.Height = math.Max(p.DefaultHeight, maxY+p.BottomMargin)
	l.Origin = t.Root().Timestamp()
	l.LeftMargin = p.LeftMargin
	l.TickSeparation = tick

	log.Debugf("[Layout] Apply: scale=%g nodes=%d width=%g height=%g segments=%d", scale, len(nodes), l.Width, l.Height, l.Segments)
	return l
}
