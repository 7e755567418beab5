package feed

import (
	"encoding/csv"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"main/internal/schema"
)

// Bar is a single timestamped OHLCV observation for one symbol.
type Bar struct {
	Time   time.Time
	Symbol string
	Asset  schema.AssetClass
	Bar    schema.Bar
}

// LoadCSV reads a candle CSV with headers time|timestamp, open, high, low,
// close, volume. Headers are case-insensitive, unknown columns are ignored,
// and the time column accepts RFC3339 or UNIX seconds. Rows with unparseable
// cells, non-positive prices, or high below low are skipped and counted.
// Rows come back in ascending time order.
func LoadCSV(path, symbol string, asset schema.AssetClass) ([]Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open csv")
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	var out []Bar
	var headers []string
	rowIdx := 0
	skipped := 0

	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.Wrap(err, "read csv")
		}
		if rowIdx == 0 {
			headers = rec
			rowIdx++
			continue
		}
		row := map[string]string{}
		for j, h := range headers {
			k := strings.ToLower(strings.TrimSpace(h))
			if j < len(rec) {
				row[k] = strings.TrimSpace(rec[j])
			}
		}
		ts := first(row, "time", "timestamp")
		op := first(row, "open")
		cp := first(row, "close")
		if ts == "" || op == "" || cp == "" {
			skipped++
			continue
		}
		tt, err := parseTimeFlexible(ts)
		if err != nil {
			skipped++
			continue
		}
		o, errO := strconv.ParseFloat(op, 64)
		c, errC := strconv.ParseFloat(cp, 64)
		if errO != nil || errC != nil || o <= 0 || c <= 0 {
			skipped++
			continue
		}
		// High and low default to the wider of open/close when absent.
		h, err := parseOptionalFloat(first(row, "high"), max(o, c))
		if err != nil {
			skipped++
			continue
		}
		l, err := parseOptionalFloat(first(row, "low"), min(o, c))
		if err != nil {
			skipped++
			continue
		}
		if l <= 0 || h < l {
			skipped++
			continue
		}
		v, err := parseOptionalFloat(first(row, "volume", "vol"), 0)
		if err != nil || v < 0 {
			skipped++
			continue
		}
		out = append(out, Bar{
			Time:   tt,
			Symbol: symbol,
			Asset:  asset,
			Bar:    schema.Bar{Open: o, High: h, Low: l, Close: c, Volume: v},
		})
		rowIdx++
	}

	if skipped > 0 {
		logs.Warnf("skipped %d malformed rows in %s", skipped, path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

// parseTimeFlexible supports RFC3339 or UNIX seconds.
func parseTimeFlexible(s string) (time.Time, error) {
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts, nil
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, errors.Errorf("bad time: %s", s)
}

// parseOptionalFloat returns fallback for an empty cell and an error for a
// cell that is present but not a number.
func parseOptionalFloat(s string, fallback float64) (float64, error) {
	if s == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(s, 64)
}

// first returns the first non-empty value for keys in m.
func first(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}
