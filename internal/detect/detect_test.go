package detect

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sentraguard/internal/events"
)

var now = time.Date(2026, 5, 12, 14, 30, 0, 0, time.UTC)

func ev(kind, actor string, ago time.Duration) events.Event {
	return events.Event{Kind: kind, ActorID: actor, IPAddress: "10.0.0.1", Timestamp: now.Add(-ago)}
}

func repeat(n int, f func(i int) events.Event) []events.Event {
	out := make([]events.Event, n)
	for i := range out {
		out[i] = f(i)
	}
	return out
}

func TestAuthDetectorFailedLoginSeverity(t *testing.T) {
	d := NewAuthDetector(DefaultThresholds().Authentication)
	cases := []struct {
		attempts int
		want     Severity
		wantNone bool
	}{
		{attempts: 1, wantNone: true},
		{attempts: 2, want: SeverityCritical},
		{attempts: 4, want: SeverityCritical},
		{attempts: 5, want: SeverityEmergency},
		{attempts: 9, want: SeverityEmergency},
	}
	for _, tc := range cases {
		src := events.NewMemory(repeat(tc.attempts, func(i int) events.Event {
			return ev(events.KindFailedLogin, "u1", time.Duration(i)*20*time.Second)
		})...)
		got, err := d.Detect(context.Background(), src, now)
		require.NoError(t, err)
		if tc.wantNone {
			assert.Empty(t, got, "attempts=%d", tc.attempts)
			continue
		}
		require.Len(t, got, 1, "attempts=%d", tc.attempts)
		assert.Equal(t, ThreatAuthenticationAttack, got[0].Type)
		assert.Equal(t, tc.want, got[0].Severity)
		assert.True(t, got[0].Severity.AtLeast(SeverityCritical))
		assert.Equal(t, 95, got[0].Confidence)
		assert.Equal(t, tc.attempts, got[0].Details["failed_attempts"])
	}
}

func TestAuthDetectorIgnoresOldFailures(t *testing.T) {
	src := events.NewMemory(
		ev(events.KindFailedLogin, "u1", 6*time.Minute),
		ev(events.KindFailedLogin, "u1", 7*time.Minute),
		ev(events.KindFailedLogin, "u1", time.Minute),
	)
	got, err := NewAuthDetector(DefaultThresholds().Authentication).Detect(context.Background(), src, now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAuthDetectorRoleChange(t *testing.T) {
	e := ev(events.KindRoleChange, "admin1", 30*time.Minute)
	e.Target = "user-42"
	e.Details = map[string]interface{}{"new_role": "super_admin"}
	src := events.NewMemory(e, ev(events.KindRoleChange, "admin1", 2*time.Hour))

	got, err := NewAuthDetector(DefaultThresholds().Authentication).Detect(context.Background(), src, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatPrivilegeEscalation, got[0].Type)
	assert.Equal(t, SeverityCritical, got[0].Severity)
	assert.Equal(t, 88, got[0].Confidence)
	assert.Equal(t, 1, got[0].Details["role_changes"])
	assert.Equal(t, []string{"user-42"}, got[0].Details["targets"])
	assert.Equal(t, []string{"super_admin"}, got[0].Details["new_roles"])
}

func TestDataProtectionDetectorReads(t *testing.T) {
	d := NewDataProtectionDetector(DefaultThresholds().DataProtection)
	reads := repeat(10, func(i int) events.Event {
		e := ev(events.KindDataRead, "u7", time.Duration(i)*10*time.Second)
		e.Target = []string{"contacts", "clients"}[i%2]
		return e
	})
	nonSensitive := ev(events.KindDataRead, "u7", time.Minute)
	nonSensitive.Target = "invoices"

	got, err := d.Detect(context.Background(), events.NewMemory(append(reads, nonSensitive)...), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatDataExfiltration, got[0].Type)
	assert.Equal(t, SeverityEmergency, got[0].Severity)
	assert.Equal(t, 92, got[0].Confidence)
	assert.Equal(t, 10, got[0].Details["reads"])
	assert.Equal(t, []string{"clients", "contacts"}, got[0].Details["tables"])

	got, err = d.Detect(context.Background(), events.NewMemory(reads[:9]...), now)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDataProtectionDetectorBulk(t *testing.T) {
	e := ev(events.KindBulkDelete, "u3", time.Minute)
	e.Target = "clients"
	other := ev(events.KindBulkUpdate, "u3", time.Minute)
	other.Target = "tasks"

	got, err := NewDataProtectionDetector(DefaultThresholds().DataProtection).
		Detect(context.Background(), events.NewMemory(e, other), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatBulkManipulation, got[0].Type)
	assert.Equal(t, SeverityEmergency, got[0].Severity)
	assert.Equal(t, 95, got[0].Confidence)
	assert.Equal(t, map[string]int{events.KindBulkDelete: 1}, got[0].Details["operations_by_kind"])
}

func TestBehaviorDetectorOffHours(t *testing.T) {
	d := NewBehaviorDetector(DefaultThresholds().Behavior, time.UTC)
	late := events.Event{Kind: events.KindLogin, ActorID: "night-owl", Timestamp: time.Date(2026, 5, 12, 23, 15, 0, 0, time.UTC)}
	early := events.Event{Kind: events.KindLogin, ActorID: "early-bird", Timestamp: time.Date(2026, 5, 12, 5, 59, 0, 0, time.UTC)}
	normal := events.Event{Kind: events.KindLogin, ActorID: "day", Timestamp: time.Date(2026, 5, 12, 22, 59, 0, 0, time.UTC).Add(-time.Hour)}

	at := time.Date(2026, 5, 12, 23, 30, 0, 0, time.UTC)
	got, err := d.Detect(context.Background(), events.NewMemory(late, normal), at)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatOffHoursAccess, got[0].Type)
	assert.Equal(t, SeverityMedium, got[0].Severity)
	assert.Equal(t, 70, got[0].Confidence)
	assert.Equal(t, []string{"night-owl"}, got[0].Details["actors"])

	at = time.Date(2026, 5, 12, 6, 10, 0, 0, time.UTC)
	got, err = d.Detect(context.Background(), events.NewMemory(early), at)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, []string{"early-bird"}, got[0].Details["actors"])
}

func TestBehaviorDetectorUsesLocalTimezone(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	d := NewBehaviorDetector(DefaultThresholds().Behavior, loc)
	// 20:00 UTC is 23:00 local.
	login := events.Event{Kind: events.KindLogin, ActorID: "u1", Timestamp: time.Date(2026, 5, 12, 20, 0, 0, 0, time.UTC)}
	got, err := d.Detect(context.Background(), events.NewMemory(login), login.Timestamp.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatOffHoursAccess, got[0].Type)
}

func TestBehaviorDetectorVolumePerActor(t *testing.T) {
	var evts []events.Event
	evts = append(evts, repeat(20, func(i int) events.Event {
		return ev("record_view", "busy", time.Duration(i)*15*time.Second)
	})...)
	evts = append(evts, repeat(19, func(i int) events.Event {
		return ev("record_view", "steady", time.Duration(i)*15*time.Second)
	})...)
	evts = append(evts, repeat(25, func(i int) events.Event {
		return ev("record_view", "stale", 11*time.Minute)
	})...)

	got, err := NewBehaviorDetector(DefaultThresholds().Behavior, time.UTC).Detect(context.Background(), events.NewMemory(evts...), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatUnusualVolume, got[0].Type)
	assert.Equal(t, SeverityHigh, got[0].Severity)
	assert.Equal(t, 80, got[0].Confidence)
	assert.Equal(t, "busy", got[0].Details["actor"])
	assert.Equal(t, 20, got[0].Details["actions"])
}

func TestBehaviorDetectorCountsBeyondListCap(t *testing.T) {
	src := events.NewMemory()
	for i := 0; i < 5000; i++ {
		src.Append(ev(events.KindDataRead, "svc", time.Second))
	}
	src.Append(repeat(25, func(i int) events.Event { return ev(events.KindDataRead, "eve", 5*time.Minute) })...)

	got, err := NewBehaviorDetector(DefaultThresholds().Behavior, time.UTC).Detect(context.Background(), src, now)
	require.NoError(t, err)
	volume := map[string]interface{}{}
	for _, ind := range got {
		if ind.Type == ThreatUnusualVolume {
			volume[ind.Details["actor"].(string)] = ind.Details["actions"]
		}
	}
	assert.Equal(t, map[string]interface{}{"svc": 5000, "eve": 25}, volume)
}

func TestNetworkDetectorReportsFullCount(t *testing.T) {
	src := events.NewMemory()
	for i := 0; i < 5200; i++ {
		src.Append(ev(events.KindRateLimited, "", time.Second))
	}
	got, err := NewNetworkDetector(DefaultThresholds().Network).Detect(context.Background(), src, now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 5200, got[0].Details["rate_limited_requests"])
}

func TestOffHoursFiltersSplitOnBusinessHours(t *testing.T) {
	d := NewBehaviorDetector(DefaultThresholds().Behavior, time.UTC)
	start := time.Date(2026, 5, 12, 21, 30, 0, 0, time.UTC)
	end := time.Date(2026, 5, 13, 6, 30, 0, 0, time.UTC)

	got := d.offHoursFilters(start, end)
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2026, 5, 12, 22, 0, 0, 0, time.UTC), got[0].Since)
	assert.Equal(t, time.Date(2026, 5, 13, 6, 0, 0, 0, time.UTC).Add(-time.Nanosecond), got[0].Until)

	assert.Empty(t, d.offHoursFilters(time.Date(2026, 5, 12, 10, 0, 0, 0, time.UTC), time.Date(2026, 5, 12, 11, 0, 0, 0, time.UTC)))
}

func TestNetworkDetector(t *testing.T) {
	d := NewNetworkDetector(DefaultThresholds().Network)

	limited := repeat(3, func(i int) events.Event {
		e := ev(events.KindRateLimited, "", time.Duration(i)*time.Second)
		e.Target = "/api/login"
		return e
	})
	got, err := d.Detect(context.Background(), events.NewMemory(limited...), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatRateLimitAbuse, got[0].Type)
	assert.Equal(t, SeverityHigh, got[0].Severity)
	assert.Equal(t, 90, got[0].Confidence)
	assert.Equal(t, false, got[0].Details["suspected_ddos"])

	flood := repeat(10, func(i int) events.Event { return ev(events.KindRateLimited, "", time.Second) })
	got, err = d.Detect(context.Background(), events.NewMemory(flood...), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, true, got[0].Details["suspected_ddos"])

	bot := ev(events.KindBotDetected, "", time.Minute)
	bot.Details = map[string]interface{}{"user_agent": "curl/8.0"}
	geo := ev(events.KindGeoAnomaly, "u9", 45*time.Minute)
	geo.Details = map[string]interface{}{"country": "KP"}
	got, err = d.Detect(context.Background(), events.NewMemory(bot, geo), now)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ThreatBotActivity, got[0].Type)
	assert.Equal(t, SeverityMedium, got[0].Severity)
	assert.Equal(t, 75, got[0].Confidence)
	assert.Equal(t, []string{"curl/8.0"}, got[0].Details["user_agents"])
	assert.Equal(t, ThreatGeoAnomaly, got[1].Type)
	assert.Equal(t, SeverityHigh, got[1].Severity)
	assert.Equal(t, 85, got[1].Confidence)
	assert.Equal(t, []string{"KP"}, got[1].Details["countries"])
}

type failingSource struct{}

func (failingSource) List(ctx context.Context, f events.Filter) ([]events.Event, error) {
	return nil, errors.New("db unavailable")
}

func (failingSource) Count(ctx context.Context, f events.Filter) (int, error) {
	return 0, errors.New("db unavailable")
}

func (failingSource) CountBy(ctx context.Context, f events.Filter, g events.GroupBy, min int) (map[string]int, error) {
	return nil, errors.New("db unavailable")
}

func TestDetectorsReportSourceErrors(t *testing.T) {
	for _, d := range DefaultSet(DefaultThresholds(), time.UTC) {
		_, err := d.Detect(context.Background(), failingSource{}, now)
		assert.Error(t, err, d.Name())
	}
}

func TestThreatTypeCategory(t *testing.T) {
	for _, d := range DefaultSet(DefaultThresholds(), time.UTC) {
		assert.True(t, d.Category().Valid())
	}
	c, ok := ThreatGeoAnomaly.Category()
	require.True(t, ok)
	assert.Equal(t, CategoryNetwork, c)
	_, ok = ThreatType("unknown").Category()
	assert.False(t, ok)
}

func TestSeverityOrdering(t *testing.T) {
	assert.True(t, SeverityEmergency.AtLeast(SeverityCritical))
	assert.False(t, SeverityHigh.AtLeast(SeverityCritical))
	assert.True(t, SeverityCritical.RequiresHumanReview())
	assert.False(t, SeverityHigh.RequiresHumanReview())
}

func TestLoadThresholds(t *testing.T) {
	th, err := LoadThresholds(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), th)

	path := filepath.Join(t.TempDir(), "detectors.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
authentication:
  failed_login_window: 10m
  failed_login_emergency: 8
data_protection:
  sensitive_tables: [contacts, clients, payroll]
`), 0o600))
	th, err = LoadThresholds(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Minute, th.Authentication.FailedLoginWindow)
	assert.Equal(t, 8, th.Authentication.FailedLoginEmergency)
	assert.Equal(t, 2, th.Authentication.FailedLoginCritical)
	assert.Equal(t, []string{"contacts", "clients", "payroll"}, th.DataProtection.SensitiveTables)

	require.NoError(t, os.WriteFile(path, []byte("behavior:\n  business_start_hour: 23\n  business_end_hour: 5\n"), 0o600))
	_, err = LoadThresholds(path)
	assert.Error(t, err)
}

func TestShippedThresholdsMatchDefaults(t *testing.T) {
	th, err := LoadThresholds(filepath.Join("..", "..", "config", "detectors.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultThresholds(), th)
}

func TestSensitivityScalesMinimums(t *testing.T) {
	assert.Equal(t, 1, SensitivityHigh.scale(1))
	assert.Equal(t, 3, SensitivityHigh.scale(5))
	assert.Equal(t, 10, SensitivityMedium.scale(10))
	assert.Equal(t, 20, SensitivityLow.scale(10))
	assert.Equal(t, 0, SensitivityLow.scale(0))
	assert.False(t, Sensitivity("extreme").Valid())

	reads := repeat(6, func(i int) events.Event {
		e := ev(events.KindDataRead, "u1", time.Minute)
		e.Target = "contacts"
		return e
	})
	base := NewDataProtectionDetector(DefaultThresholds().DataProtection)
	got, err := base.Detect(context.Background(), events.NewMemory(reads...), now)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = base.WithSensitivity(SensitivityHigh).Detect(context.Background(), events.NewMemory(reads...), now)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, ThreatDataExfiltration, got[0].Type)

	for _, d := range DefaultSet(DefaultThresholds(), time.UTC) {
		tuned, ok := d.(Tunable)
		require.True(t, ok, d.Name())
		assert.Equal(t, d.Category(), tuned.WithSensitivity(SensitivityLow).Category())
	}
}
