// internal/services/aggregate.go
package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/freshshare/freshshare-api/internal/lock"
	"github.com/freshshare/freshshare-api/internal/metrics"
	"github.com/freshshare/freshshare-api/internal/repository"
)

// aggregateRunner executes a load-mutate-save cycle while holding the
// aggregate's lock, reloading and retrying when the save loses a version race.
type aggregateRunner struct {
	locker     lock.Locker
	metrics    *metrics.Metrics
	maxRetries int
}

func newAggregateRunner(locker lock.Locker, m *metrics.Metrics, maxRetries int) aggregateRunner {
	if locker == nil {
		locker = lock.NewLocalLocker()
	}
	if maxRetries < 1 {
		maxRetries = 1
	}
	return aggregateRunner{locker: locker, metrics: m, maxRetries: maxRetries}
}

func (a aggregateRunner) run(ctx context.Context, key, aggregate string, attempt func(context.Context) error) error {
	release, err := a.locker.Acquire(ctx, key)
	if err != nil {
		return fmt.Errorf("%w: %s is busy: %v", ErrConflict, aggregate, err)
	}
	defer release()

	for i := 0; i < a.maxRetries; i++ {
		err := attempt(ctx)
		if !errors.Is(err, repository.ErrVersionConflict) {
			return err
		}
		a.metrics.VersionConflict(aggregate)
		logrus.WithFields(logrus.Fields{
			"aggregate": aggregate,
			"key":       key,
			"attempt":   i + 1,
		}).Warn("Version conflict, reloading")
	}

	return fmt.Errorf("%w: %s was modified concurrently, please retry", ErrConflict, aggregate)
}
