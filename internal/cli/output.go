package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Veraticus/recurrent/internal/model"
)

// Format selects how command results are written.
type Format string

// Output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses an --output value.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON, FormatYAML:
		return f, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Encoder writes domain values in the selected format. JSON and YAML emit the
// values as-is; table renders a fixed column set per type.
type Encoder struct {
	w      io.Writer
	format Format
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer, format Format) *Encoder {
	return &Encoder{w: w, format: format}
}

// Structured reports whether the encoder emits machine-readable output.
func (e *Encoder) Structured() bool {
	return e.format == FormatJSON || e.format == FormatYAML
}

func (e *Encoder) encode(v any) error {
	switch e.format {
	case FormatJSON:
		enc := json.NewEncoder(e.w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(e.w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("format %q cannot encode %T", e.format, v)
	}
}

func (e *Encoder) table(header []string, rows [][]string) error {
	tw := tabwriter.NewWriter(e.w, 0, 0, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, strings.Join(header, "\t")); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// Series writes a list of recurring series.
func (e *Encoder) Series(list []model.RecurringTransaction) error {
	if e.Structured() {
		if list == nil {
			list = []model.RecurringTransaction{}
		}
		return e.encode(list)
	}

	rows := make([][]string, 0, len(list))
	for _, r := range list {
		rows = append(rows, []string{
			r.ID,
			r.Title,
			r.Amount.StringFixed(model.MinorUnitExponent) + " " + r.Currency,
			describeSchedule(r.Frequency, r.Interval),
			r.NextScheduledDate.Format(time.DateOnly),
			string(r.Status),
			strings.Join(r.Tags, ","),
		})
	}
	return e.table([]string{"ID", "TITLE", "AMOUNT", "SCHEDULE", "NEXT", "STATUS", "TAGS"}, rows)
}

// SeriesDetail writes one series with its upcoming occurrences.
func (e *Encoder) SeriesDetail(r *model.RecurringTransaction, upcoming []time.Time) error {
	if e.Structured() {
		dates := make([]string, len(upcoming))
		for i, d := range upcoming {
			dates[i] = d.Format(time.DateOnly)
		}
		return e.encode(struct {
			model.RecurringTransaction `yaml:",inline"`
			Upcoming                   []string `json:"upcoming" yaml:"upcoming"`
		}{*r, dates})
	}

	var b strings.Builder
	field := func(name, value string) {
		if value != "" {
			fmt.Fprintf(&b, "%s %s\n", BoldStyle.Render(fmt.Sprintf("%-18s", name+":")), value)
		}
	}
	field("ID", r.ID)
	field("Amount", FormatAmount(r.Amount, r.Currency))
	field("Schedule", describeSchedule(r.Frequency, r.Interval))
	field("Status", FormatStatus(r.Status))
	field("Bank account", r.BankAccountID)
	if r.TargetAccountID != nil {
		field("Target account", *r.TargetAccountID)
	}
	field("Start", r.StartDate.Format(time.DateOnly))
	if r.EndDate != nil {
		field("End", r.EndDate.Format(time.DateOnly))
	}
	field("Next", r.NextScheduledDate.Format(time.DateOnly))
	field("Affects balance", fmt.Sprintf("%t", r.AffectAvailableBalance))
	field("Merchant", r.MerchantName)
	field("Category", r.CategorySlug)
	field("Tags", strings.Join(r.Tags, ", "))
	if r.AssignedTo != nil {
		field("Assigned to", *r.AssignedTo)
	}
	field("Notes", r.Notes)

	if len(upcoming) > 0 {
		dates := make([]string, len(upcoming))
		for i, d := range upcoming {
			dates[i] = d.Format("Mon 2006-01-02")
		}
		field("Upcoming", strings.Join(dates, "\n"+strings.Repeat(" ", 19)))
	}

	_, err := fmt.Fprintln(e.w, RenderBox(r.Title, strings.TrimRight(b.String(), "\n")))
	return err
}

// Accounts writes bank accounts with their projection counters.
func (e *Encoder) Accounts(list []model.BankAccount) error {
	if e.Structured() {
		if list == nil {
			list = []model.BankAccount{}
		}
		return e.encode(list)
	}

	rows := make([][]string, 0, len(list))
	for _, a := range list {
		rows = append(rows, []string{
			a.ID,
			a.Name,
			a.Currency,
			a.CurrentBalance.StringFixed(model.MinorUnitExponent),
			a.ScheduledInflows.StringFixed(model.MinorUnitExponent),
			a.ScheduledOutflows.StringFixed(model.MinorUnitExponent),
			a.AvailableBalance().StringFixed(model.MinorUnitExponent),
		})
	}
	return e.table([]string{"ID", "NAME", "CURRENCY", "BALANCE", "INFLOWS", "OUTFLOWS", "AVAILABLE"}, rows)
}

// Candidates writes detector output.
func (e *Encoder) Candidates(list []model.RecurringCandidate) error {
	if e.Structured() {
		if list == nil {
			list = []model.RecurringCandidate{}
		}
		return e.encode(list)
	}

	rows := make([][]string, 0, len(list))
	for _, c := range list {
		rows = append(rows, []string{
			c.Title,
			c.Amount.StringFixed(model.MinorUnitExponent),
			describeSchedule(c.Frequency, c.Interval),
			fmt.Sprintf("%d", c.Occurrences),
			fmt.Sprintf("%.2f", c.ConfidenceScore),
			c.NextScheduledDate.Format(time.DateOnly),
			fmt.Sprintf("%t", c.IsVariable),
		})
	}
	return e.table([]string{"MERCHANT", "AMOUNT", "SCHEDULE", "SEEN", "CONFIDENCE", "NEXT", "VARIABLE"}, rows)
}

// Value writes any value as JSON or YAML, or as its %v form for tables.
func (e *Encoder) Value(v any) error {
	if e.Structured() {
		return e.encode(v)
	}
	_, err := fmt.Fprintf(e.w, "%v\n", v)
	return err
}

// describeSchedule renders frequency and interval as e.g. "MONTHLY" or "every 3 MONTHLY".
func describeSchedule(freq model.Frequency, interval int) string {
	if interval <= 1 || freq == model.FrequencySemiMonthly {
		return string(freq)
	}
	return fmt.Sprintf("every %d %s", interval, freq)
}
