package lunar

import (
	"context"
	"math"
	"time"

	"github.com/chrissnell/lunarcal/pkg/ephemeris"
)

// SynodicMonth is the average length of the lunar cycle in days
const SynodicMonth = 29.530588853

// MoonPhase describes the Moon at an instant.
type MoonPhase struct {
	Phase        float64 `json:"phase"`        // fraction of the cycle [0,1): 0=new, 0.5=full
	Elongation   float64 `json:"elongation"`   // MoSu in degrees [0,360)
	Illumination float64 `json:"illumination"` // illuminated fraction [0,1]
	AgeDays      float64 `json:"age_days"`     // mean days since new moon [0,SynodicMonth)
	LunarDay     float64 `json:"lunar_day"`    // elongation on the 30-day scale [0,30)
	IsWaxing     bool    `json:"is_waxing"`
	PhaseName    string  `json:"phase_name"`
}

// PhaseFromElongation derives the phase from a Sun-Moon elongation in degrees.
func PhaseFromElongation(elongation float64) MoonPhase {
	elongation = ephemeris.NormalizeAngle(elongation)
	phase := elongation / 360.0
	illumination := (1 - math.Cos(elongation*math.Pi/180.0)) / 2
	isWaxing := elongation < 180

	return MoonPhase{
		Phase:        phase,
		Elongation:   elongation,
		Illumination: illumination,
		AgeDays:      phase * SynodicMonth,
		LunarDay:     elongation / DegreesPerDay,
		IsWaxing:     isWaxing,
		PhaseName:    phaseName(illumination, isWaxing),
	}
}

// Phase returns the moon phase at t.
func (c *Calendar) Phase(ctx context.Context, t time.Time) (MoonPhase, error) {
	if err := ctx.Err(); err != nil {
		return MoonPhase{}, err
	}
	elongation, err := c.src.Longitude(ephemeris.MoSu, t)
	if err != nil {
		return MoonPhase{}, err
	}
	return PhaseFromElongation(elongation), nil
}

// phaseName returns the 8-phase name based on illumination percentage and direction
func phaseName(illumination float64, isWaxing bool) string {
	switch {
	case illumination < 0.01:
		return "New Moon"
	case illumination > 0.99:
		return "Full Moon"
	case illumination >= 0.49 && illumination <= 0.51:
		if isWaxing {
			return "First Quarter"
		}
		return "Third Quarter"
	case illumination < 0.50:
		if isWaxing {
			return "Waxing Crescent"
		}
		return "Waning Crescent"
	default:
		if isWaxing {
			return "Waxing Gibbous"
		}
		return "Waning Gibbous"
	}
}
