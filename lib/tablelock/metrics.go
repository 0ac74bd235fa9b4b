package tablelock

import (
	"fmt"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/ValentinKolb/dLock/lib/rwlock"
)

// Lock metrics are registered in the default VictoriaMetrics set and exposed by
// `dlock serve --metrics-endpoint` (metrics.WritePrometheus).

var reapedNodes = metrics.NewCounter(`dlock_table_lock_reaped_nodes_total`)

func acquiredCounter(mode rwlock.Mode) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_table_lock_acquired_total{mode=%q}`, mode))
}

func releasedCounter(mode rwlock.Mode) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_table_lock_released_total{mode=%q}`, mode))
}

func timeoutCounter(mode rwlock.Mode) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_table_lock_timeouts_total{mode=%q}`, mode))
}

func failureCounter(mode rwlock.Mode) *metrics.Counter {
	return metrics.GetOrCreateCounter(fmt.Sprintf(`dlock_table_lock_failures_total{mode=%q}`, mode))
}

// observeWait records how long an acquisition attempt waited, whatever its outcome
func observeWait(mode rwlock.Mode, start time.Time) {
	metrics.GetOrCreateHistogram(fmt.Sprintf(`dlock_table_lock_wait_seconds{mode=%q}`, mode)).UpdateDuration(start)
}
