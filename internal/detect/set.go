package detect

import "time"

// DefaultSet returns one detector per family.
func DefaultSet(th Thresholds, loc *time.Location) []Detector {
	return []Detector{
		NewAuthDetector(th.Authentication),
		NewDataProtectionDetector(th.DataProtection),
		NewBehaviorDetector(th.Behavior, loc),
		NewNetworkDetector(th.Network),
	}
}
