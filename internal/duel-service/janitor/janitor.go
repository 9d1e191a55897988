package janitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/radieske/dlc-duel-platform-poc/internal/duel-service/repo"
)

// Janitor descarta apostas pendentes que nunca receberam a resposta da
// contraparte dentro da janela de retenção. Apostas ativas ou liquidadas
// nunca são tocadas.
type Janitor struct {
	Log       *zap.Logger
	Repo      *repo.Postgres
	Schedule  string        // spec cron de 5 campos, ex: "*/10 * * * *"
	Retention time.Duration // idade mínima de uma pendente pra descartar

	OnSweep func(removed int64) // métricas

	cron *cron.Cron
}

// Start agenda as varreduras. Falha só se o schedule for inválido.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	_, err := j.cron.AddFunc(j.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		removed, err := j.Sweep(ctx)
		if err != nil {
			j.Log.Error("janitor sweep failed", zap.Error(err))
			return
		}
		if removed > 0 {
			j.Log.Info("stale pending bets removed", zap.Int64("count", removed))
		}
		if j.OnSweep != nil {
			j.OnSweep(removed)
		}
	})
	if err != nil {
		return fmt.Errorf("janitor schedule %q: %w", j.Schedule, err)
	}

	j.cron.Start()
	j.Log.Info("janitor scheduled",
		zap.String("schedule", j.Schedule), zap.Duration("retention", j.Retention))
	return nil
}

// Stop encerra o agendador e espera uma varredura em andamento acabar.
func (j *Janitor) Stop() {
	if j.cron != nil {
		<-j.cron.Stop().Done()
	}
}

// Sweep roda uma varredura única e devolve quantas apostas caíram.
func (j *Janitor) Sweep(ctx context.Context) (int64, error) {
	cutoff := time.Now().Add(-j.Retention)
	return j.Repo.DeleteStalePending(ctx, cutoff)
}
