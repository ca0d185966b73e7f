// Package cronexpr wraps adhocore/gronx for cron expression validation and
// next-run computation, keeping CronScheduler's own code free of parsing
// logic per spec §4.3's "calculateNextRun" contract.
package cronexpr

import (
	"time"

	"github.com/adhocore/gronx"
)

// Valid reports whether expr is a syntactically valid cron expression.
func Valid(expr string) bool {
	return gronx.IsValid(expr)
}

// Next computes the next fire time for expr strictly after from, in loc.
// On a parse failure it returns from+1y so a scheduler that doesn't
// pre-validate still advances rather than getting stuck (spec §4.3).
func Next(expr string, from time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	local := from.In(loc)
	next, err := gronx.NextTickAfter(expr, local, false)
	if err != nil {
		return from.AddDate(1, 0, 0)
	}
	return next.In(loc)
}
