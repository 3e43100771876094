package store

import (
	"time"

	"github.com/ppiankov/painpoint/internal/model"
)

// SignalRecord converts a signal into a pain_signals row.
func SignalRecord(s model.Signal) Record {
	rec := Record{
		"company_name":    s.CompanyName,
		"domain":          s.Domain,
		"signal_type":     string(s.SignalType),
		"signal_strength": s.SignalStrength,
		"source":          s.Source,
	}
	if s.Dated() {
		rec["signal_date"] = s.SignalDate.UTC().Format(time.RFC3339)
	}
	if s.RawData != nil {
		rec["raw_data"] = s.RawData
	}
	return rec
}
