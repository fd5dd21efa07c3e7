package lockmgr

import (
	"fmt"

	"github.com/VictoriaMetrics/metrics"
)

var (
	sweepsTotal         = metrics.NewCounter(`gridlock_cleanup_sweeps_total`)
	sweepErrorsTotal    = metrics.NewCounter(`gridlock_cleanup_sweep_errors_total`)
	holdersRemovedTotal = metrics.NewCounter(`gridlock_cleanup_removed_entries_total`)
)

// countRequest counts a lock request by operation and outcome
func countRequest(op OpType, res Result, err error) {
	result := "denied"
	switch {
	case err != nil:
		result = "error"
	case res.Granted:
		result = "ok"
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`gridlock_lock_requests_total{op=%q,result=%q}`, op, result)).Inc()
}
