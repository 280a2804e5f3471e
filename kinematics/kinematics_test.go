package kinematics_test

import (
	"math"
	"testing"

	"github.com/jt05610/sandtable/kinematics"
	"github.com/stretchr/testify/assert"
)

func TestClampRho(t *testing.T) {
	inputs := []float64{-100, -1, -0.001, 0, 0.005, 0.01, 0.5, 0.985, 0.99, 1, 1.5, 1e9, math.Inf(1), math.Inf(-1), math.NaN()}
	for _, in := range inputs {
		got := kinematics.ClampRho(in)
		assert.GreaterOrEqual(t, got, 0.01, "input %v", in)
		assert.LessOrEqual(t, got, 0.985, "input %v", in)
	}
	assert.Equal(t, 0.5, kinematics.ClampRho(0.5))
	assert.Equal(t, 0.01, kinematics.ClampRho(0))
	assert.InDelta(t, 0.985, kinematics.ClampRho(1), 1e-12)
}

func TestScalePresets(t *testing.T) {
	x, y := kinematics.Calibration{GearRatio: 6.25}.Scale()
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 3.7, y)
	x, y = kinematics.Calibration{GearRatio: 10}.Scale()
	assert.Equal(t, 2.0, x)
	assert.Equal(t, 5.0, y)
}

func TestPlanStandardGear(t *testing.T) {
	cal := kinematics.Calibration{XStepsPerMM: 200, YStepsPerMM: 100, GearRatio: 5, FeedRate: 350}
	mv := cal.Plan(kinematics.Polar{}, kinematics.Position{X: 10, Y: 20}, kinematics.Polar{Theta: math.Pi, Rho: 0.5})

	xInc := math.Pi * 100 / (2 * math.Pi * 2)
	yInc := (0.5 - 0) * 100 / 5
	xTotal := 200.0 * 100 / 2
	yTotal := 100.0 * 100 / 5
	offset := xInc * (xTotal * 2 / (5 * yTotal * 5))
	yInc += offset

	assert.InDelta(t, xInc, mv.Increment.X, 1e-9)
	assert.InDelta(t, yInc, mv.Increment.Y, 1e-9)
	assert.InDelta(t, 10+xInc, mv.Absolute.X, 1e-9)
	assert.InDelta(t, 20+yInc, mv.Absolute.Y, 1e-9)
	assert.Equal(t, 35.0, mv.Command.X)
	assert.Equal(t, kinematics.Round(20+yInc), mv.Command.Y)
	assert.Equal(t, 0.5, mv.Target.Rho)
}

func TestPlanCompactGearSubtractsOffset(t *testing.T) {
	cal := kinematics.Calibration{XStepsPerMM: 200, YStepsPerMM: 100, GearRatio: 6.25}
	mv := cal.Plan(kinematics.Polar{Rho: 0.5}, kinematics.Position{}, kinematics.Polar{Theta: 2 * math.Pi, Rho: 0.5})

	xInc := 2 * math.Pi * 100 / (2 * math.Pi * 2)
	xTotal := 200.0 * 100 / 2
	yTotal := 100.0 * 100 / 3.7
	offset := xInc * (xTotal * 2 / (6.25 * yTotal * 3.7))

	assert.InDelta(t, 50, mv.Increment.X, 1e-9)
	assert.InDelta(t, -offset, mv.Increment.Y, 1e-9)
}

func TestPlanClampsTarget(t *testing.T) {
	cal := kinematics.Calibration{XStepsPerMM: 200, YStepsPerMM: 100, GearRatio: 5}
	mv := cal.Plan(kinematics.Polar{}, kinematics.Position{}, kinematics.Polar{Theta: 0, Rho: 1.2})
	assert.InDelta(t, 0.985, mv.Target.Rho, 1e-12)
	assert.InDelta(t, 0.985*100/5, mv.Increment.Y, 1e-9)
}

func TestPlanZeroGearRatio(t *testing.T) {
	cal := kinematics.Calibration{XStepsPerMM: 200, YStepsPerMM: 100}
	mv := cal.Plan(kinematics.Polar{}, kinematics.Position{}, kinematics.Polar{Theta: 1, Rho: 0.01})
	assert.False(t, math.IsInf(mv.Absolute.Y, 0))
	assert.False(t, math.IsNaN(mv.Absolute.Y))
}

func TestRoundAndEqual(t *testing.T) {
	assert.Equal(t, -994.869, kinematics.Round(-994.86912))
	assert.Equal(t, 1.5, kinematics.Round(1.50049))
	a := kinematics.Position{X: 1.00001, Y: 2.0004}
	b := kinematics.Position{X: 1, Y: 2}
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(kinematics.Position{X: 1.002, Y: 2}))
}

func TestNonFinite(t *testing.T) {
	assert.True(t, math.IsInf(kinematics.Round(math.Inf(1)), 1))
	assert.True(t, math.IsNaN(kinematics.Round(math.NaN())))

	assert.True(t, kinematics.Polar{Theta: 1, Rho: 0.5}.Finite())
	assert.False(t, kinematics.Polar{Theta: math.Inf(1), Rho: 0.5}.Finite())
	assert.False(t, kinematics.Position{X: 0, Y: math.NaN()}.Finite())

	cal := kinematics.Calibration{XStepsPerMM: 256, YStepsPerMM: 180, GearRatio: 10, FeedRate: 350}
	mv := cal.Plan(kinematics.Polar{}, kinematics.Position{}, kinematics.Polar{Theta: math.Inf(1), Rho: 0.5})
	assert.False(t, mv.Command.Finite())
}
