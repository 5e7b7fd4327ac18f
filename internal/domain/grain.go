package domain

// ReferencePeriodMinutes is the spacing of the original time samples that
// grains subdivide (6-hourly data).
const ReferencePeriodMinutes = 360

// Schedule describes how each original time interval is split into grains.
type Schedule struct {
	GranularityMinutes int `json:"granularity_minutes"`
	GrainsPerInterval  int `json:"grains_per_interval"`
}

// NewSchedule validates a temporal granularity and derives grains per interval.
func NewSchedule(granularityMinutes int) (Schedule, error) {
	if granularityMinutes <= 0 {
		return Schedule{}, ConfigError("schedule", "granularity must be positive, got %d minutes", granularityMinutes)
	}
	if ReferencePeriodMinutes%granularityMinutes != 0 {
		return Schedule{}, ConfigError("schedule", "granularity %d minutes does not divide evenly into %d",
			granularityMinutes, ReferencePeriodMinutes)
	}
	return Schedule{
		GranularityMinutes: granularityMinutes,
		GrainsPerInterval:  ReferencePeriodMinutes / granularityMinutes,
	}, nil
}

// ExpandedLength returns the length of the expanded time axis.
func (s Schedule) ExpandedLength(originalTime int) int {
	return originalTime * s.GrainsPerInterval
}

// Fraction returns the interpolation weight of grain g, in [0, 1).
func (s Schedule) Fraction(g int) float32 {
	return float32(g) / float32(s.GrainsPerInterval)
}

// ValidGranularities lists every granularity accepted by NewSchedule, ascending.
func ValidGranularities() []Schedule {
	var out []Schedule
	for m := 1; m <= ReferencePeriodMinutes; m++ {
		if ReferencePeriodMinutes%m == 0 {
			out = append(out, Schedule{GranularityMinutes: m, GrainsPerInterval: ReferencePeriodMinutes / m})
		}
	}
	return out
}
