package detect

// Sensitivity tunes a detector's minimum counts. Windows and confidence
// scores stay as configured.
type Sensitivity string

const (
	SensitivityLow    Sensitivity = "low"
	SensitivityMedium Sensitivity = "medium"
	SensitivityHigh   Sensitivity = "high"
)

func (s Sensitivity) Valid() bool {
	return s == SensitivityLow || s == SensitivityMedium || s == SensitivityHigh
}

// scale halves a minimum count on high and doubles it on low. A positive
// minimum never drops below one.
func (s Sensitivity) scale(n int) int {
	if n <= 0 {
		return n
	}
	switch s {
	case SensitivityHigh:
		return (n + 1) / 2
	case SensitivityLow:
		return n * 2
	}
	return n
}

// Tunable detectors can be rebuilt for a bot's sensitivity.
type Tunable interface {
	WithSensitivity(s Sensitivity) Detector
}

func (d *AuthDetector) WithSensitivity(s Sensitivity) Detector {
	th := d.th
	th.FailedLoginCritical = s.scale(th.FailedLoginCritical)
	th.FailedLoginEmergency = s.scale(th.FailedLoginEmergency)
	th.RoleChangeMin = s.scale(th.RoleChangeMin)
	return NewAuthDetector(th)
}

func (d *DataProtectionDetector) WithSensitivity(s Sensitivity) Detector {
	th := d.th
	th.ReadMin = s.scale(th.ReadMin)
	th.BulkMin = s.scale(th.BulkMin)
	return NewDataProtectionDetector(th)
}

func (d *BehaviorDetector) WithSensitivity(s Sensitivity) Detector {
	th := d.th
	th.VolumeMin = s.scale(th.VolumeMin)
	return NewBehaviorDetector(th, d.loc)
}

func (d *NetworkDetector) WithSensitivity(s Sensitivity) Detector {
	th := d.th
	th.RateLimitMin = s.scale(th.RateLimitMin)
	th.RateLimitDDoS = s.scale(th.RateLimitDDoS)
	th.BotMin = s.scale(th.BotMin)
	th.GeoMin = s.scale(th.GeoMin)
	return NewNetworkDetector(th)
}
