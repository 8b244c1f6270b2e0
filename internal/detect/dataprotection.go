package detect

import (
	"context"
	"fmt"
	"time"

	"sentraguard/internal/events"
)

var bulkKinds = []string{events.KindBulkInsert, events.KindBulkUpdate, events.KindBulkDelete}

// DataProtectionDetector flags mass reads and bulk writes on sensitive tables.
type DataProtectionDetector struct {
	th DataThresholds
}

func NewDataProtectionDetector(th DataThresholds) *DataProtectionDetector {
	return &DataProtectionDetector{th: th}
}

func (d *DataProtectionDetector) Name() string       { return "data-protection-sentinel" }
func (d *DataProtectionDetector) Category() Category { return CategoryDataProtection }

func (d *DataProtectionDetector) Detect(ctx context.Context, src EventSource, now time.Time) ([]Indicator, error) {
	var out []Indicator

	readFilter := recent(events.KindDataRead)(now, d.th.ReadWindow)
	readFilter.Targets = d.th.SensitiveTables
	perTable, err := src.CountBy(ctx, readFilter, events.GroupTarget, 1)
	if err != nil {
		return nil, fmt.Errorf("count sensitive reads: %w", err)
	}
	if n := sum(perTable); n >= d.th.ReadMin && n > 0 {
		reads, err := src.List(ctx, readFilter)
		if err != nil {
			return nil, fmt.Errorf("list sensitive reads: %w", err)
		}
		details := windowDetails(now, d.th.ReadWindow)
		details["reads"] = n
		details["actors"] = distinct(reads, actorOf)
		details["tables"] = keys(perTable)
		details["reads_per_table"] = perTable
		out = append(out, Indicator{
			Type:       ThreatDataExfiltration,
			Severity:   SeverityEmergency,
			Confidence: d.th.ReadConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}

	bulkFilter := recent(bulkKinds...)(now, d.th.BulkWindow)
	bulkFilter.Targets = d.th.SensitiveTables
	perKind, err := src.CountBy(ctx, bulkFilter, events.GroupKind, 1)
	if err != nil {
		return nil, fmt.Errorf("count bulk operations: %w", err)
	}
	if n := sum(perKind); n >= d.th.BulkMin && n > 0 {
		bulk, err := src.List(ctx, bulkFilter)
		if err != nil {
			return nil, fmt.Errorf("list bulk operations: %w", err)
		}
		details := windowDetails(now, d.th.BulkWindow)
		details["operations"] = n
		details["operations_by_kind"] = perKind
		details["actors"] = distinct(bulk, actorOf)
		details["tables"] = distinct(bulk, targetOf)
		out = append(out, Indicator{
			Type:       ThreatBulkManipulation,
			Severity:   SeverityEmergency,
			Confidence: d.th.BulkConfidence,
			Details:    details,
			DetectedAt: now,
		})
	}
	return out, nil
}
