// Package detection infers recurring payment schedules from transaction history.
package detection

import (
	"context"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/agnivade/levenshtein"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/recurrent/internal/common"
	"github.com/Veraticus/recurrent/internal/model"
	"github.com/Veraticus/recurrent/internal/schedule"
)

// Default detection thresholds.
const (
	DefaultMinConfidence      = 0.7
	DefaultMinimumOccurrences = 3
	DefaultLookbackDays       = 365

	// confidenceTolerance scales the interval standard deviation that drives the
	// confidence score to zero: a stdDev of 30% of the mean interval scores 0.
	confidenceTolerance = 0.3
	// variableAmountRatio is the coefficient of variation above which amounts
	// are considered variable.
	variableAmountRatio = 0.05
)

// Options controls a single detection run.
type Options struct {
	BankAccountID      string  // Restrict to one account when set
	MinConfidence      float64 // Candidates scoring below are dropped
	MerchantSimilarity float64 // 0 disables fuzzy merging of merchant keys
	MinimumOccurrences int
	LookbackDays       int
}

// DefaultOptions returns the thresholds used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		MinConfidence:      DefaultMinConfidence,
		MinimumOccurrences: DefaultMinimumOccurrences,
		LookbackDays:       DefaultLookbackDays,
	}
}

// Validate checks the options are usable.
func (o Options) Validate() error {
	if o.MinConfidence < 0 || o.MinConfidence > 1 {
		return common.Validationf("min confidence %.2f must be between 0 and 1", o.MinConfidence)
	}
	if o.MinimumOccurrences < 2 {
		return common.Validationf("minimum occurrences %d must be at least 2", o.MinimumOccurrences)
	}
	if o.LookbackDays < 1 {
		return common.Validationf("lookback days %d must be positive", o.LookbackDays)
	}
	if o.MerchantSimilarity < 0 || o.MerchantSimilarity > 1 {
		return common.Validationf("merchant similarity %.2f must be between 0 and 1", o.MerchantSimilarity)
	}
	return nil
}

// Detector finds recurring candidates. It performs no writes and is safe for
// concurrent use.
type Detector struct {
	now func() time.Time
}

// Option configures a Detector.
type Option func(*Detector)

// WithClock overrides the detector's notion of "now".
func WithClock(now func() time.Time) Option {
	return func(d *Detector) {
		d.now = now
	}
}

// NewDetector creates a detector.
func NewDetector(opts ...Option) *Detector {
	d := &Detector{now: time.Now}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// merchantGroup is the set of transactions on one account sharing a merchant key.
type merchantGroup struct {
	bankAccountID string
	key           string
	transactions  []model.Transaction
}

// Detect groups transactions by merchant and emits a candidate for every group
// that recurs regularly enough. No candidates is a valid, non-error result.
func (d *Detector) Detect(ctx context.Context, transactions []model.Transaction, opts Options) ([]model.RecurringCandidate, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	now := d.now()
	cutoff := schedule.Day(now).AddDate(0, 0, -opts.LookbackDays)

	groups := groupByMerchant(filterTransactions(transactions, opts.BankAccountID, cutoff), opts.MerchantSimilarity)

	candidates := make([]model.RecurringCandidate, 0, len(groups))
	for _, group := range groups {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if len(group.transactions) < opts.MinimumOccurrences {
			continue
		}

		candidate, ok := analyzeGroup(group)
		if !ok {
			continue
		}
		if candidate.ConfidenceScore < opts.MinConfidence {
			slog.Debug("Rejected low-confidence merchant group",
				"merchant", group.key,
				"confidence", candidate.ConfidenceScore,
				"min_confidence", opts.MinConfidence)
			continue
		}
		candidates = append(candidates, candidate)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].ConfidenceScore != candidates[j].ConfidenceScore {
			return candidates[i].ConfidenceScore > candidates[j].ConfidenceScore
		}
		return candidates[i].Title < candidates[j].Title
	})

	slog.Debug("Detected recurring candidates",
		"transactions", len(transactions),
		"groups", len(groups),
		"candidates", len(candidates))

	return candidates, nil
}

func filterTransactions(transactions []model.Transaction, bankAccountID string, cutoff time.Time) []model.Transaction {
	out := make([]model.Transaction, 0, len(transactions))
	for _, txn := range transactions {
		if bankAccountID != "" && txn.BankAccountID != bankAccountID {
			continue
		}
		if schedule.Day(txn.Date).Before(cutoff) {
			continue
		}
		if txn.MerchantKey() == "" {
			continue
		}
		out = append(out, txn)
	}
	return out
}

// groupByMerchant buckets transactions by account and merchant key, preserving
// first-seen order. With a positive similarity threshold, a key close enough to
// an existing key on the same account joins that group instead.
func groupByMerchant(transactions []model.Transaction, similarity float64) []*merchantGroup {
	var groups []*merchantGroup
	index := make(map[string]*merchantGroup)

	for _, txn := range transactions {
		key := txn.MerchantKey()
		indexKey := txn.BankAccountID + "\x00" + key

		group, ok := index[indexKey]
		if !ok && similarity > 0 {
			group = closestGroup(groups, txn.BankAccountID, key, similarity)
			if group != nil {
				index[indexKey] = group
			}
		}
		if group == nil {
			group = &merchantGroup{bankAccountID: txn.BankAccountID, key: key}
			index[indexKey] = group
			groups = append(groups, group)
		}
		group.transactions = append(group.transactions, txn)
	}

	return groups
}

func closestGroup(groups []*merchantGroup, bankAccountID, key string, threshold float64) *merchantGroup {
	var best *merchantGroup
	bestScore := threshold
	for _, g := range groups {
		if g.bankAccountID != bankAccountID {
			continue
		}
		if score := Similarity(g.key, key); score >= bestScore {
			best, bestScore = g, score
		}
	}
	return best
}

// Similarity returns 1 - normalized Levenshtein distance between two merchant
// keys, compared case-insensitively.
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	longest := max(len([]rune(a)), len([]rune(b)))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein.ComputeDistance(a, b))/float64(longest)
}

// analyzeGroup turns one merchant group into a candidate. It reports false when
// the group has no usable interval (e.g. every transaction on the same day).
func analyzeGroup(group *merchantGroup) (model.RecurringCandidate, bool) {
	txns := append([]model.Transaction(nil), group.transactions...)
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].Date.Before(txns[j].Date)
	})

	intervals := dayGaps(txns)
	avgInterval, stdDev := meanStdDev(intervals)
	if avgInterval <= 0 {
		return model.RecurringCandidate{}, false
	}

	frequency, interval := ClassifyInterval(avgInterval)
	confidence := ConfidenceScore(avgInterval, stdDev)

	amounts := make([]float64, len(txns))
	ids := make([]string, len(txns))
	sum := decimal.Zero
	for i, txn := range txns {
		amounts[i] = txn.Amount.InexactFloat64()
		ids[i] = txn.ID
		sum = sum.Add(txn.Amount)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(txns)))).Round(model.MinorUnitExponent)

	first, last := txns[0], txns[len(txns)-1]
	lastDate := schedule.Day(last.Date)

	candidate := model.RecurringCandidate{
		BankAccountID:     group.bankAccountID,
		Title:             group.key,
		Amount:            mean,
		Frequency:         frequency,
		Interval:          interval,
		StartDate:         schedule.Day(first.Date),
		LastDate:          lastDate,
		NextScheduledDate: schedule.NextOccurrence(lastDate, frequency, interval, model.Anchors{}),
		IsVariable:        IsVariableAmount(amounts),
		ConfidenceScore:   confidence,
		AverageInterval:   avgInterval,
		IntervalStdDev:    stdDev,
		Occurrences:       len(txns),
		TransactionIDs:    ids,
	}

	switch frequency {
	case model.FrequencyMonthly, model.FrequencySemiMonthly, model.FrequencyAnnually:
		day := lastDate.Day()
		candidate.DayOfMonth = &day
	case model.FrequencyWeekly, model.FrequencyBiweekly:
		weekday := int(lastDate.Weekday())
		candidate.DayOfWeek = &weekday
	}

	return candidate, true
}

// dayGaps returns the whole-day distance between consecutive sorted transactions.
func dayGaps(txns []model.Transaction) []float64 {
	if len(txns) < 2 {
		return nil
	}
	gaps := make([]float64, 0, len(txns)-1)
	for i := 1; i < len(txns); i++ {
		prev := schedule.Day(txns[i-1].Date)
		curr := schedule.Day(txns[i].Date)
		gaps = append(gaps, math.Round(curr.Sub(prev).Hours()/24))
	}
	return gaps
}

// meanStdDev returns the arithmetic mean and population standard deviation.
func meanStdDev(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var variance float64
	for _, v := range values {
		variance += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(variance / float64(len(values)))
}

// ConfidenceScore maps interval regularity to [0, 1]. For a fixed average it
// strictly decreases as stdDev grows until it reaches 0.
func ConfidenceScore(avgInterval, stdDev float64) float64 {
	if avgInterval <= 0 {
		return 0
	}
	score := 1 - stdDev/(avgInterval*confidenceTolerance)
	return math.Max(0, math.Min(1, score))
}

// IsVariableAmount reports whether the amounts' coefficient of variation exceeds 5%.
func IsVariableAmount(amounts []float64) bool {
	mean, stdDev := meanStdDev(amounts)
	if mean == 0 {
		return stdDev > 0
	}
	return stdDev/math.Abs(mean) > variableAmountRatio
}
