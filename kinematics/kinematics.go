// Package kinematics maps polar pattern coordinates onto the two machine axes
// of the table: X drives the angle, Y drives the radius.
package kinematics

import (
	"math"

	"github.com/shopspring/decimal"
)

// Soft limits keep the arm off the mechanical stops at the center and perimeter.
const (
	InnerLimit = 0.01
	OuterLimit = 0.015
)

// GearRatioCompact selects the scaling preset of the smaller table.
const GearRatioCompact = 6.25

// Polar is a logical position on the table.
type Polar struct {
	Theta float64 `json:"theta"`
	Rho   float64 `json:"rho"`
}

// Position is an absolute machine position in millimeters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rounded returns the position rounded to the precision sent on the wire.
func (p Position) Rounded() Position {
	return Position{X: Round(p.X), Y: Round(p.Y)}
}

// Equal compares two positions at wire precision.
func (p Position) Equal(o Position) bool {
	return Round(p.X) == Round(o.X) && Round(p.Y) == Round(o.Y)
}

// Finite reports whether both coordinates are real numbers.
func (p Position) Finite() bool {
	return finite(p.X) && finite(p.Y)
}

// Finite reports whether both coordinates are real numbers.
func (p Polar) Finite() bool {
	return finite(p.Theta) && finite(p.Rho)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Round rounds v to three decimal places. Non-finite values are returned as is.
func Round(v float64) float64 {
	if !finite(v) {
		return v
	}
	return decimal.NewFromFloat(v).Round(3).InexactFloat64()
}

// ClampRho restricts rho to [InnerLimit, 1-OuterLimit].
func ClampRho(rho float64) float64 {
	if math.IsNaN(rho) || rho < InnerLimit {
		return InnerLimit
	}
	if rho > 1-OuterLimit {
		return 1 - OuterLimit
	}
	return rho
}

type Calibration struct {
	XStepsPerMM float64 `mapstructure:"x_steps_per_mm" json:"x_steps_per_mm"`
	YStepsPerMM float64 `mapstructure:"y_steps_per_mm" json:"y_steps_per_mm"`
	GearRatio   float64 `mapstructure:"gear_ratio" json:"gear_ratio"`
	FeedRate    float64 `mapstructure:"feed_rate" json:"feed_rate"`
}

// Scale returns the x and y scaling factors of the calibration preset.
func (c Calibration) Scale() (x, y float64) {
	if c.GearRatio == GearRatioCompact {
		return 2, 3.7
	}
	return 2, 5
}

// HomeDistance is the radial retraction in millimeters used to home the arm.
func (c Calibration) HomeDistance() float64 {
	if c.GearRatio == GearRatioCompact {
		return 30
	}
	return 22
}

// Move is one planned incremental move.
type Move struct {
	// Target is the clamped logical destination.
	Target Polar
	// Increment is the relative machine motion.
	Increment Position
	// Absolute is the unrounded absolute destination kept in state.
	Absolute Position
	// Command is the rounded absolute destination sent to the firmware.
	Command Position
}

// Plan computes the move from the current logical and machine positions to target.
func (c Calibration) Plan(current Polar, machine Position, target Polar) Move {
	rho := ClampRho(target.Rho)
	xs, ys := c.Scale()

	dTheta := target.Theta - current.Theta
	dRho := rho - current.Rho
	xInc := dTheta * 100 / (2 * math.Pi * xs)
	yInc := dRho * 100 / ys

	offset := c.couplingOffset(xInc, xs, ys)
	if c.GearRatio == GearRatioCompact {
		yInc -= offset
	} else {
		yInc += offset
	}

	abs := Position{X: machine.X + xInc, Y: machine.Y + yInc}
	return Move{
		Target:    Polar{Theta: target.Theta, Rho: rho},
		Increment: Position{X: xInc, Y: yInc},
		Absolute:  abs,
		Command:   abs.Rounded(),
	}
}

// couplingOffset compensates the radial drift caused by the angular axis
// turning the radial gear train.
func (c Calibration) couplingOffset(xInc, xs, ys float64) float64 {
	xTotal := c.XStepsPerMM * (100 / xs)
	yTotal := c.YStepsPerMM * (100 / ys)
	den := c.GearRatio * yTotal * ys
	if den == 0 {
		return 0
	}
	return xInc * (xTotal * xs / den)
}
