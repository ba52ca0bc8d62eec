package sensor

import "fmt"

type Level int

const (
	LevelNormal Level = iota
	LevelHigh
	LevelLow
)

func (l Level) String() string {
	switch l {
	case LevelNormal:
		return "normal"
	case LevelHigh:
		return "high"
	case LevelLow:
		return "low"
	default:
		return fmt.Sprintf("level(%d)", int(l))
	}
}

func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// Thresholds mirror the T_UPPER and T_LOWER limits of the sensor, the
// hysteresis keeps a reading hovering around a limit from flapping
type Thresholds struct {
	Upper      float64 `yaml:"upper" envconfig:"ALERT_UPPER"`
	Lower      float64 `yaml:"lower" envconfig:"ALERT_LOWER"`
	Hysteresis float64 `yaml:"hysteresis" envconfig:"ALERT_HYSTERESIS"`
}

func (t Thresholds) Validate() error {
	if t.Lower >= t.Upper {
		return fmt.Errorf("alert lower limit %.2f must be below upper limit %.2f", t.Lower, t.Upper)
	}

	if t.Hysteresis < 0 || t.Hysteresis*2 >= t.Upper-t.Lower {
		return fmt.Errorf("alert hysteresis %.2f does not fit between the limits", t.Hysteresis)
	}

	return nil
}

// Evaluate returns the level for celsius given the previous level
func (t Thresholds) Evaluate(previous Level, celsius float64) Level {
	switch {
	case celsius > t.Upper:
		return LevelHigh
	case celsius < t.Lower:
		return LevelLow
	case previous == LevelHigh && celsius > t.Upper-t.Hysteresis:
		return LevelHigh
	case previous == LevelLow && celsius < t.Lower+t.Hysteresis:
		return LevelLow
	default:
		return LevelNormal
	}
}
