package usage

import (
	"fmt"
	"strings"
	"time"
)

// GroupBy selects the aggregation column for query_summary.
type GroupBy string

const (
	GroupByModel    GroupBy = "model"
	GroupByProvider GroupBy = "provider"
	GroupByAgent    GroupBy = "agent"
	GroupBySession  GroupBy = "session"
	GroupByDay      GroupBy = "day"
	GroupByCallType GroupBy = "call_type"
)

func (g GroupBy) column() (string, error) {
	switch g {
	case GroupByModel:
		return "model", nil
	case GroupByProvider:
		return "provider", nil
	case GroupByAgent:
		return "agent", nil
	case GroupBySession:
		return "session_key", nil
	case GroupByDay:
		return "date(timestamp / 1000, 'unixepoch')", nil
	case GroupByCallType:
		return "call_type", nil
	default:
		return "", fmt.Errorf("usage: unknown group_by %q", g)
	}
}

// Filter narrows a summary/daily query. Zero-valued fields are unfiltered.
type Filter struct {
	SessionKey string
	Model      string
	Provider   string
	Agent      string
	Since      time.Time
	Until      time.Time
}

func (f Filter) clause() (string, []any) {
	var clauses []string
	var args []any
	if f.SessionKey != "" {
		clauses = append(clauses, "session_key = ?")
		args = append(args, f.SessionKey)
	}
	if f.Model != "" {
		clauses = append(clauses, "model = ?")
		args = append(args, f.Model)
	}
	if f.Provider != "" {
		clauses = append(clauses, "provider = ?")
		args = append(args, f.Provider)
	}
	if f.Agent != "" {
		clauses = append(clauses, "agent = ?")
		args = append(args, f.Agent)
	}
	if !f.Since.IsZero() {
		clauses = append(clauses, "timestamp >= ?")
		args = append(args, f.Since.UnixMilli())
	}
	if !f.Until.IsZero() {
		clauses = append(clauses, "timestamp <= ?")
		args = append(args, f.Until.UnixMilli())
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

// SummaryRow is one aggregated row from QuerySummary.
type SummaryRow struct {
	Key               string // the group_by column's value
	Model             string // populated in addition to Key when group_by != model, for cost lookups
	InputTokens       int64
	OutputTokens      int64
	TotalTokens       int64
	CachedInputTokens int64
	Count             int64
	CostUSD           float64 // populated only by *WithCost variants
}

// QuerySummary aggregates usage rows by the given column, ordered by
// total_tokens desc.
func (t *Tracker) QuerySummary(filter Filter, groupBy GroupBy) ([]SummaryRow, error) {
	col, err := groupBy.column()
	if err != nil {
		return nil, err
	}
	where, args := filter.clause()
	query := fmt.Sprintf(`
		SELECT %s AS k,
		       SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(cached_input_tokens), COUNT(*)
		FROM usage%s
		GROUP BY k
		ORDER BY SUM(total_tokens) DESC`, col, where)

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage query_summary: %w", err)
	}
	defer rows.Close()

	var out []SummaryRow
	for rows.Next() {
		var r SummaryRow
		if err := rows.Scan(&r.Key, &r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.CachedInputTokens, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DailyRow is one row from QueryDaily.
type DailyRow struct {
	Day               string
	InputTokens       int64
	OutputTokens      int64
	TotalTokens       int64
	CachedInputTokens int64
	Count             int64
	CostUSD           float64 // populated only by QueryDailyWithCost
}

// QueryDaily aggregates usage rows by calendar day, most recent first.
func (t *Tracker) QueryDaily(filter Filter) ([]DailyRow, error) {
	where, args := filter.clause()
	query := fmt.Sprintf(`
		SELECT date(timestamp / 1000, 'unixepoch') AS d,
		       SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(cached_input_tokens), COUNT(*)
		FROM usage%s
		GROUP BY d
		ORDER BY d DESC`, where)

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage query_daily: %w", err)
	}
	defer rows.Close()

	var out []DailyRow
	for rows.Next() {
		var r DailyRow
		if err := rows.Scan(&r.Day, &r.InputTokens, &r.OutputTokens, &r.TotalTokens, &r.CachedInputTokens, &r.Count); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// ModelRate is per-model $/MTok pricing. CachedInput <= 0 means "use the
// input rate for cached tokens too".
type ModelRate struct {
	Input       float64
	Output      float64
	CachedInput float64
}

// PricingMap maps model name to its rate.
type PricingMap map[string]ModelRate

func cost(rate ModelRate, input, output, cached int64) float64 {
	cachedRate := rate.CachedInput
	if cachedRate <= 0 {
		cachedRate = rate.Input
	}
	billedInput := input - cached
	if billedInput < 0 {
		billedInput = 0
	}
	c := (float64(billedInput)*rate.Input + float64(output)*rate.Output + float64(cached)*cachedRate) / 1_000_000
	if c < 0 {
		c = 0
	}
	return c
}

// QuerySummaryWithCost is QuerySummary plus a CostUSD column. When
// group_by is "model", pricing applies directly per row. For any other
// grouping it queries per (group_key, model) pair, prices each, and
// re-aggregates into the requested groups.
func (t *Tracker) QuerySummaryWithCost(filter Filter, groupBy GroupBy, pricing PricingMap) ([]SummaryRow, error) {
	if groupBy == GroupByModel {
		rows, err := t.QuerySummary(filter, groupBy)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			rate := pricing[rows[i].Key]
			rows[i].Model = rows[i].Key
			rows[i].CostUSD = cost(rate, rows[i].InputTokens, rows[i].OutputTokens, rows[i].CachedInputTokens)
		}
		return rows, nil
	}

	col, err := groupBy.column()
	if err != nil {
		return nil, err
	}
	where, args := filter.clause()
	query := fmt.Sprintf(`
		SELECT %s AS k, model,
		       SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(cached_input_tokens), COUNT(*)
		FROM usage%s
		GROUP BY k, model`, col, where)

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage query_summary_with_cost: %w", err)
	}
	defer rows.Close()

	agg := make(map[string]*SummaryRow)
	var order []string
	for rows.Next() {
		var key, model string
		var input, output, total, cached, count int64
		if err := rows.Scan(&key, &model, &input, &output, &total, &cached, &count); err != nil {
			return nil, err
		}
		row, ok := agg[key]
		if !ok {
			row = &SummaryRow{Key: key}
			agg[key] = row
			order = append(order, key)
		}
		row.InputTokens += input
		row.OutputTokens += output
		row.TotalTokens += total
		row.CachedInputTokens += cached
		row.Count += count
		row.CostUSD += cost(pricing[model], input, output, cached)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]SummaryRow, 0, len(order))
	for _, k := range order {
		out = append(out, *agg[k])
	}
	return out, nil
}

// QueryDailyWithCost is QueryDaily plus a CostUSD column, computed by
// pricing each (day, model) pair and re-aggregating by day.
func (t *Tracker) QueryDailyWithCost(filter Filter, pricing PricingMap) ([]DailyRow, error) {
	where, args := filter.clause()
	query := fmt.Sprintf(`
		SELECT date(timestamp / 1000, 'unixepoch') AS d, model,
		       SUM(input_tokens), SUM(output_tokens), SUM(total_tokens), SUM(cached_input_tokens), COUNT(*)
		FROM usage%s
		GROUP BY d, model`, where)

	rows, err := t.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage query_daily_with_cost: %w", err)
	}
	defer rows.Close()

	agg := make(map[string]*DailyRow)
	var order []string
	for rows.Next() {
		var day, model string
		var input, output, total, cached, count int64
		if err := rows.Scan(&day, &model, &input, &output, &total, &cached, &count); err != nil {
			return nil, err
		}
		row, ok := agg[day]
		if !ok {
			row = &DailyRow{Day: day}
			agg[day] = row
			order = append(order, day)
		}
		row.InputTokens += input
		row.OutputTokens += output
		row.TotalTokens += total
		row.CachedInputTokens += cached
		row.Count += count
		row.CostUSD += cost(pricing[model], input, output, cached)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]DailyRow, 0, len(order))
	for _, d := range order {
		out = append(out, *agg[d])
	}
	return out, nil
}
