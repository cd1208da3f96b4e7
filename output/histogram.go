package output

import (
	"fmt"
	"io"
	"math"
	"strings"
	"time"

	"github.com/Alain-L/rabbitlog/parser"
	"github.com/Alain-L/rabbitlog/rql"
)

// histogramWidth is the longest bar, in characters.
const histogramWidth = 40

// Bucket counts rows in [Start, End) by severity.
type Bucket struct {
	Start  time.Time
	End    time.Time
	Counts [parser.SeverityCritical + 1]int
}

// Total returns the number of rows in the bucket.
func (b Bucket) Total() int {
	n := 0
	for _, c := range b.Counts {
		n += c
	}
	return n
}

// Label renders the bucket bounds, with dates only when the range spans days.
func (b Bucket) Label(withDate bool) string {
	layout := "15:04"
	if withDate {
		layout = "01-02 15:04"
	}
	return fmt.Sprintf("%s - %s", b.Start.UTC().Format(layout), b.End.UTC().Format(layout))
}

// ComputeHistogram divides the time range of rows into n equal buckets.
// It returns nil when there are no rows.
func ComputeHistogram(rows []rql.Row, n int) []Bucket {
	if len(rows) == 0 || n <= 0 {
		return nil
	}

	first, last := rows[0].Timestamp, rows[0].Timestamp
	for i := range rows {
		if rows[i].Timestamp.Before(first) {
			first = rows[i].Timestamp
		}
		if rows[i].Timestamp.After(last) {
			last = rows[i].Timestamp
		}
	}

	step := last.Sub(first) / time.Duration(n)
	// Guard against a zero-length range.
	if step <= 0 {
		step = time.Second
	}

	buckets := make([]Bucket, n)
	for i := range buckets {
		buckets[i].Start = first.Add(time.Duration(i) * step)
		buckets[i].End = first.Add(time.Duration(i+1) * step)
	}
	for i := range rows {
		idx := int(rows[i].Timestamp.Sub(first) / step)
		idx = min(max(idx, 0), n-1)
		if sev := rows[i].Severity; sev.Valid() {
			buckets[idx].Counts[sev]++
		}
	}
	return buckets
}

// WriteHistogram prints one bar per bucket. Bars are scaled so the largest
// fits in 40 characters; error and critical rows are drawn with a heavier block.
func WriteHistogram(w io.Writer, buckets []Bucket) error {
	if len(buckets) == 0 {
		_, err := fmt.Fprintln(w, "(no data available)")
		return err
	}

	maxTotal := 0
	for _, b := range buckets {
		maxTotal = max(maxTotal, b.Total())
	}
	scale := int(math.Ceil(float64(maxTotal) / float64(histogramWidth)))
	if scale < 1 {
		scale = 1
	}

	withDate := buckets[len(buckets)-1].End.Sub(buckets[0].Start) > 24*time.Hour
	for _, b := range buckets {
		errs := b.Counts[parser.SeverityError] + b.Counts[parser.SeverityCritical]
		bar := strings.Repeat("■", (b.Total()-errs)/scale) + strings.Repeat("█", ceilDiv(errs, scale))

		value := "-"
		if b.Total() > 0 {
			value = fmt.Sprintf("%d", b.Total())
			if errs > 0 {
				value += fmt.Sprintf(" (%d errors)", errs)
			}
		}
		if _, err := fmt.Fprintf(w, "  %s | %s %s\n", b.Label(withDate), bar, value); err != nil {
			return err
		}
	}
	if scale > 1 {
		_, err := fmt.Fprintf(w, "  ■ = %d rows\n", scale)
		return err
	}
	return nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
