package gate

import (
	"context"

	"gridbot/internal/logger"
	"gridbot/internal/store"
)

const (
	statusKey = "system_status.status"

	StatusRunning = "running"
	StatusStopped = "stopped"
)

// Gate — персистентный тумблер, разрешающий исполнителю ходить на биржу.
// Отсутствующее значение трактуется как running.
type Gate struct {
	store store.Store
	log   *logger.Logger
}

func New(store store.Store, log *logger.Logger) *Gate {
	return &Gate{store: store, log: log}
}

func (g *Gate) Running(ctx context.Context) (bool, error) {
	value, exists, err := g.store.GetConfigValue(ctx, statusKey)
	if err != nil {
		return true, err
	}
	if !exists {
		return true, nil
	}
	return value != StatusStopped, nil
}

func (g *Gate) Start(ctx context.Context) error {
	if err := g.store.SetConfigValue(ctx, statusKey, StatusRunning); err != nil {
		return err
	}
	g.log.WithComponent("gate").Info("Торговля включена.")
	return nil
}

func (g *Gate) Stop(ctx context.Context) error {
	if err := g.store.SetConfigValue(ctx, statusKey, StatusStopped); err != nil {
		return err
	}
	g.log.WithComponent("gate").Info("Торговля остановлена.")
	return nil
}
