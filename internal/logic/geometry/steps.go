package geometry

import (
	"github.com/cjeanneret/pansweep/internal/config"
)

// StepsCalculator converts pan angles to motor step counts for the rig.
type StepsCalculator struct {
	panStepsPerDegree float64
}

// NewStepsCalculator creates a step calculator from the rig configuration.
func NewStepsCalculator(cfg *config.Config) *StepsCalculator {
	microstepsPerRev := float64(cfg.Rig.PanStepper.StepsPerRev * cfg.Rig.PanStepper.Microstepping)
	return &StepsCalculator{panStepsPerDegree: microstepsPerRev / 360.0}
}

// PanStepsFromAngle converts a horizontal angle (in degrees) to motor steps.
func (s *StepsCalculator) PanStepsFromAngle(angleDegrees float64) int {
	return int(angleDegrees * s.panStepsPerDegree)
}

// AngleFromPanSteps converts a signed step count back to degrees.
func (s *StepsCalculator) AngleFromPanSteps(steps int) float64 {
	if s.panStepsPerDegree == 0 {
		return 0
	}
	return float64(steps) / s.panStepsPerDegree
}

// StepsPerDegree returns the pan microsteps per degree.
func (s *StepsCalculator) StepsPerDegree() float64 {
	return s.panStepsPerDegree
}
