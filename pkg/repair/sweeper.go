// Package repair periodically renumbers workflows left with unsettled step orders.
package repair

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pipecd-crm/wfm/pkg/models"
	"github.com/robfig/cron/v3"
)

// StepRepairer finds and fixes workflows whose step orders are not exactly 1..n.
type StepRepairer interface {
	UnsettledWorkflows(ctx context.Context) ([]string, error)
	RepairStepOrder(ctx context.Context, workflowID string) ([]*models.WorkflowStep, bool, error)
}

type Sweeper struct {
	CronExpr string
	Timeout  time.Duration
	repairer StepRepairer
	cron     *cron.Cron
	logger   *slog.Logger
}

func NewSweeper(cronExpr string, repairer StepRepairer, logger *slog.Logger) (*Sweeper, error) {
	sweeper := &Sweeper{
		CronExpr: cronExpr,
		Timeout:  time.Minute,
		repairer: repairer,
		logger: logger.With(
			"module", "repair_sweeper",
			"cron", cronExpr,
		),
	}

	if err := sweeper.Validate(); err != nil {
		return nil, err
	}

	return sweeper, nil
}

func (s *Sweeper) Validate() error {
	if s.CronExpr == "" {
		return errors.New("repair sweeper cron expression is required")
	}

	if _, err := cron.ParseStandard(s.CronExpr); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}

	if s.repairer == nil {
		return errors.New("repair sweeper requires a step repairer")
	}

	return nil
}

func (s *Sweeper) Start(_ context.Context) error {
	s.logger.Info("Starting repair sweeper")

	s.cron = cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DefaultLogger),
		cron.Recover(cron.DefaultLogger),
	))

	id, err := s.cron.AddFunc(s.CronExpr, s.run)
	if err != nil {
		return fmt.Errorf("failed to add repair cron job: %w", err)
	}

	s.logger.Info("Added repair cron job", "id", id)
	s.cron.Start()

	return nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), s.Timeout)
	defer cancel()

	repaired, err := s.Sweep(ctx)
	if err != nil {
		s.logger.Error("Repair sweep failed", "error", err, "repaired", repaired)

		return
	}

	if repaired > 0 {
		s.logger.Info("Repair sweep finished", "repaired", repaired)
	}
}

// Sweep repairs every unsettled workflow and returns how many were changed. A failing
// workflow does not stop the others; their errors are joined.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	workflowIDs, err := s.repairer.UnsettledWorkflows(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unsettled workflows: %w", err)
	}

	var (
		repaired int
		errs     []error
	)

	for _, workflowID := range workflowIDs {
		_, changed, err := s.repairer.RepairStepOrder(ctx, workflowID)
		if err != nil {
			errs = append(errs, fmt.Errorf("workflow %s: %w", workflowID, err))

			continue
		}

		if changed {
			repaired++
		}
	}

	return repaired, errors.Join(errs...)
}

func (s *Sweeper) Stop(_ context.Context) error {
	s.logger.Info("Stopping repair sweeper")

	if s.cron != nil {
		<-s.cron.Stop().Done()
	}

	return nil
}
