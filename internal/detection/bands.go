package detection

import (
	"math"

	"github.com/Veraticus/recurrent/internal/model"
)

// frequencyBand is an inclusive day range that classifies an average interval.
type frequencyBand struct {
	frequency model.Frequency
	minDays   float64
	maxDays   float64
}

// FrequencyBands is checked in order and the first match wins. The order is part
// of the contract: SEMI_MONTHLY (13-15) sits before BIWEEKLY (12-16), so an
// average of 13 to 15 days classifies as SEMI_MONTHLY and BIWEEKLY only claims
// the 12-13 and 15-16 edges.
var FrequencyBands = []frequencyBand{
	{frequency: model.FrequencyWeekly, minDays: 6, maxDays: 8},
	{frequency: model.FrequencySemiMonthly, minDays: 13, maxDays: 15},
	{frequency: model.FrequencyBiweekly, minDays: 12, maxDays: 16},
	{frequency: model.FrequencyMonthly, minDays: 25, maxDays: 35},
	{frequency: model.FrequencyAnnually, minDays: 350, maxDays: 380},
}

// fallbackBuckets are tried coarsest first for averages outside every band.
var fallbackBuckets = []struct {
	frequency model.Frequency
	minDays   float64
}{
	{frequency: model.FrequencyAnnually, minDays: 365},
	{frequency: model.FrequencyMonthly, minDays: 30},
	{frequency: model.FrequencyBiweekly, minDays: 14},
	{frequency: model.FrequencyWeekly, minDays: 0},
}

// BasePeriodDays is the nominal length of one cycle of each frequency.
func BasePeriodDays(freq model.Frequency) float64 {
	switch freq {
	case model.FrequencyWeekly:
		return 7
	case model.FrequencyBiweekly:
		return 14
	case model.FrequencySemiMonthly:
		return 15
	case model.FrequencyMonthly:
		return 30
	case model.FrequencyAnnually:
		return 365
	default:
		return 1
	}
}

// ClassifyInterval maps an average day gap to a frequency and interval multiplier.
// Averages inside a band get interval 1; otherwise the nearest coarser bucket is
// used with interval = round(avg / base period), floored at 1.
func ClassifyInterval(avgInterval float64) (model.Frequency, int) {
	for _, band := range FrequencyBands {
		if avgInterval >= band.minDays && avgInterval <= band.maxDays {
			return band.frequency, 1
		}
	}

	for _, bucket := range fallbackBuckets {
		if avgInterval >= bucket.minDays {
			interval := int(math.Round(avgInterval / BasePeriodDays(bucket.frequency)))
			return bucket.frequency, max(interval, 1)
		}
	}

	return model.FrequencyWeekly, 1
}
