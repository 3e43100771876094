package sources

import (
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/ppiankov/painpoint/internal/logging"
	"github.com/ppiankov/painpoint/internal/model"
)

// Normalize enforces the adapter output contract. Records missing a
// required field or carrying an unparseable date are dropped with a
// warning; the rest come back canonicalized.
func Normalize(raw []model.RawSignal, dateField string, logger *slog.Logger) ([]model.Signal, int) {
	logger = logging.OrDefault(logger)

	out := make([]model.Signal, 0, len(raw))
	dropped := 0
	for _, r := range raw {
		s, err := normalizeOne(r, dateField)
		if err != nil {
			dropped++
			logger.Warn("dropping signal",
				logging.Source(r.Source),
				slog.String("company", r.CompanyName),
				logging.Error(err))
			continue
		}
		out = append(out, s)
	}
	return out, dropped
}

func normalizeOne(r model.RawSignal, dateField string) (model.Signal, error) {
	name := strings.TrimSpace(r.CompanyName)
	if name == "" {
		return model.Signal{}, fmt.Errorf("missing company_name")
	}
	if r.SignalType == "" {
		return model.Signal{}, fmt.Errorf("missing signal_type")
	}
	if strings.TrimSpace(r.Source) == "" {
		return model.Signal{}, fmt.Errorf("missing source")
	}

	domain := model.CanonicalDomain(r.Domain)
	if domain == "" {
		domain = model.EstimateDomain(name)
	}
	if domain == "" {
		return model.Signal{}, fmt.Errorf("missing domain")
	}

	if math.IsNaN(r.SignalStrength) {
		return model.Signal{}, fmt.Errorf("signal_strength is NaN")
	}

	s := model.Signal{
		CompanyName:    name,
		Domain:         domain,
		SignalType:     r.SignalType,
		SignalStrength: math.Max(0, math.Min(1, r.SignalStrength)),
		RawData:        r.RawData,
		Source:         r.Source,
	}

	// The declared date field is authoritative when the adapter filled it.
	date := strings.TrimSpace(r.SignalDate)
	if dateField != "" && dateField != model.DateFieldSignal {
		if v, _ := r.RawData[dateField].(string); strings.TrimSpace(v) != "" {
			date = strings.TrimSpace(v)
		}
	}
	if date != "" {
		t, err := model.ParseDate(date)
		if err != nil {
			return model.Signal{}, err
		}
		s.SignalDate = t
	}

	return s, nil
}
