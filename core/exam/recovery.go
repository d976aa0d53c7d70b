package exam

import (
	"context"
	"fmt"

	"github.com/pkg/errors"
)

// Sweep reconciles the stored exams with the scheduler: every ongoing exam whose end time has
// passed is auto-finished, every other one has its job armed unless it already is. A failing exam is logged and
// counted, it never stops the sweep.
func (svc *Service) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	exams, err := svc.repo.FindOngoingExams(ctx)
	if err != nil {
		return res, errors.Wrap(err, "finding ongoing exams")
	}

	now := svc.clock.Now()
	for _, e := range exams {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		if now.Before(e.EndTime) {
			if !svc.armed(e) {
				svc.schedule(e)
			}
			res.Rescheduled++
			continue
		}

		finished, err := svc.autoFinish(ctx, e.ID, e.EndTime)
		if err != nil {
			res.Failed++
			svc.logger.Error(fmt.Sprintf("sweep: auto-finishing exam %s", e.ID), err, map[string]interface{}{"exam": e.ID})
			continue
		}
		if finished {
			res.Finished++
		}
	}

	svc.logger.Info("sweep done", map[string]interface{}{
		"finished":    res.Finished,
		"rescheduled": res.Rescheduled,
		"failed":      res.Failed,
	})
	return res, nil
}
