package export

import (
	"fmt"
	"time"

	"sanatrack/safety-engine/internal/domain"
)

// RangeForPreset maps the dashboard's range choices to [from, now).
// "all" starts at the zero time.
func RangeForPreset(preset string, now time.Time) (domain.TimeRange, error) {
	var from time.Time
	switch preset {
	case "24h":
		from = now.Add(-24 * time.Hour)
	case "7d":
		from = now.AddDate(0, 0, -7)
	case "30d":
		from = now.AddDate(0, 0, -30)
	case "3m":
		from = now.AddDate(0, -3, 0)
	case "all":
	default:
		return domain.TimeRange{}, fmt.Errorf("%w: unknown range preset %q", domain.ErrInvalidExport, preset)
	}
	return domain.TimeRange{From: from, To: now}, nil
}
