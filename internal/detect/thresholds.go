package detect

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Thresholds struct {
	Authentication AuthThresholds     `yaml:"authentication"`
	DataProtection DataThresholds     `yaml:"data_protection"`
	Behavior       BehaviorThresholds `yaml:"behavior"`
	Network        NetworkThresholds  `yaml:"network"`
}

type AuthThresholds struct {
	FailedLoginWindow     time.Duration `yaml:"failed_login_window"`
	FailedLoginCritical   int           `yaml:"failed_login_critical"`
	FailedLoginEmergency  int           `yaml:"failed_login_emergency"`
	FailedLoginConfidence int           `yaml:"failed_login_confidence"`
	RoleChangeWindow      time.Duration `yaml:"role_change_window"`
	RoleChangeMin         int           `yaml:"role_change_min"`
	RoleChangeConfidence  int           `yaml:"role_change_confidence"`
}

type DataThresholds struct {
	SensitiveTables []string      `yaml:"sensitive_tables"`
	ReadWindow      time.Duration `yaml:"read_window"`
	ReadMin         int           `yaml:"read_min"`
	ReadConfidence  int           `yaml:"read_confidence"`
	BulkWindow      time.Duration `yaml:"bulk_window"`
	BulkMin         int           `yaml:"bulk_min"`
	BulkConfidence  int           `yaml:"bulk_confidence"`
}

type BehaviorThresholds struct {
	LoginWindow        time.Duration `yaml:"login_window"`
	BusinessStartHour  int           `yaml:"business_start_hour"`
	BusinessEndHour    int           `yaml:"business_end_hour"`
	OffHoursConfidence int           `yaml:"off_hours_confidence"`
	VolumeWindow       time.Duration `yaml:"volume_window"`
	VolumeMin          int           `yaml:"volume_min"`
	VolumeConfidence   int           `yaml:"volume_confidence"`
}

type NetworkThresholds struct {
	RateLimitWindow     time.Duration `yaml:"rate_limit_window"`
	RateLimitMin        int           `yaml:"rate_limit_min"`
	RateLimitDDoS       int           `yaml:"rate_limit_ddos"`
	RateLimitConfidence int           `yaml:"rate_limit_confidence"`
	BotWindow           time.Duration `yaml:"bot_window"`
	BotMin              int           `yaml:"bot_min"`
	BotConfidence       int           `yaml:"bot_confidence"`
	GeoWindow           time.Duration `yaml:"geo_window"`
	GeoMin              int           `yaml:"geo_min"`
	GeoConfidence       int           `yaml:"geo_confidence"`
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		Authentication: AuthThresholds{
			FailedLoginWindow:     5 * time.Minute,
			FailedLoginCritical:   2,
			FailedLoginEmergency:  5,
			FailedLoginConfidence: 95,
			RoleChangeWindow:      60 * time.Minute,
			RoleChangeMin:         1,
			RoleChangeConfidence:  88,
		},
		DataProtection: DataThresholds{
			SensitiveTables: []string{"contacts", "clients"},
			ReadWindow:      5 * time.Minute,
			ReadMin:         10,
			ReadConfidence:  92,
			BulkWindow:      5 * time.Minute,
			BulkMin:         1,
			BulkConfidence:  95,
		},
		Behavior: BehaviorThresholds{
			LoginWindow:        60 * time.Minute,
			BusinessStartHour:  6,
			BusinessEndHour:    22,
			OffHoursConfidence: 70,
			VolumeWindow:       10 * time.Minute,
			VolumeMin:          20,
			VolumeConfidence:   80,
		},
		Network: NetworkThresholds{
			RateLimitWindow:     5 * time.Minute,
			RateLimitMin:        3,
			RateLimitDDoS:       10,
			RateLimitConfidence: 90,
			BotWindow:           5 * time.Minute,
			BotMin:              1,
			BotConfidence:       75,
			GeoWindow:           60 * time.Minute,
			GeoMin:              1,
			GeoConfidence:       85,
		},
	}
}

// LoadThresholds overlays the YAML file at path on the defaults. A missing
// file yields the defaults.
func LoadThresholds(path string) (Thresholds, error) {
	th := DefaultThresholds()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return th, nil
		}
		return th, err
	}
	if err := yaml.Unmarshal(data, &th); err != nil {
		return th, fmt.Errorf("parse thresholds: %w", err)
	}
	if err := th.Validate(); err != nil {
		return th, err
	}
	return th, nil
}

func (t Thresholds) Validate() error {
	a := t.Authentication
	if a.FailedLoginCritical < 1 || a.FailedLoginEmergency < a.FailedLoginCritical {
		return fmt.Errorf("failed login thresholds must satisfy 1 <= critical <= emergency")
	}
	b := t.Behavior
	if b.BusinessStartHour < 0 || b.BusinessEndHour > 24 || b.BusinessStartHour >= b.BusinessEndHour {
		return fmt.Errorf("business hours must satisfy 0 <= start < end <= 24")
	}
	if len(t.DataProtection.SensitiveTables) == 0 {
		return fmt.Errorf("at least one sensitive table is required")
	}
	return nil
}
