package analysis

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Render writes a human-readable summary of r.
func Render(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, "API Usage Analysis Report")
	fmt.Fprintln(tw, strings.Repeat("=", 50))
	fmt.Fprintf(tw, "Total Interactions:\t%d\n", r.TotalRecords)
	fmt.Fprintf(tw, "Requests:\t%d\n", r.Requests)
	fmt.Fprintf(tw, "Responses:\t%d\n", r.Responses)
	fmt.Fprintf(tw, "Errors:\t%d\n", r.Errors)
	fmt.Fprintf(tw, "Success Rate:\t%.2f%%\n", r.SuccessRate)
	fmt.Fprintf(tw, "Average Response Time:\t%.2fms\n", r.AverageResponseTime)
	if r.DateRange != nil {
		fmt.Fprintf(tw, "Date Range:\t%s to %s\n",
			r.DateRange.Earliest.Format("2006-01-02"), r.DateRange.Latest.Format("2006-01-02"))
	}

	fmt.Fprintln(tw, "\nAPI Endpoints Used:")
	for _, p := range r.Paths {
		fmt.Fprintf(tw, "  %s\t%d calls\n", p.Path, p.Count)
	}

	fmt.Fprintf(tw, "\nUnique User Agents:\t%d\n", len(r.UserAgents))
	fmt.Fprintf(tw, "Unique IP Addresses:\t%d\n", len(r.IPAddresses))

	fmt.Fprintf(tw, "\nRecent Interactions (last %d):\n", RecentLimit)
	for i, rec := range r.Recent {
		var ms int64
		if rec.ResponseTime != nil {
			ms = *rec.ResponseTime
		}
		fmt.Fprintf(tw, "  %d. %s - %s %s\t(%dms)\n", i+1, rec.Timestamp, rec.Kind, rec.Path, ms)
	}

	if len(r.Threads) > 0 {
		label := "Thread Tokens:"
		if r.TokensEstimated {
			label = "Thread Tokens (estimated):"
		}
		fmt.Fprintf(tw, "\n%s\n", label)
		for _, th := range r.Threads {
			fmt.Fprintf(tw, "  %s\t%d messages\t%d tokens\n", th.ThreadID, th.Messages, th.TotalTokens)
		}
		fmt.Fprintf(tw, "Total Tokens:\t%d\n", r.TotalTokens)
	}

	return tw.Flush()
}
