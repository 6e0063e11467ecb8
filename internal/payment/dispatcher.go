package payment

import (
	"encoding/json"

	"github.com/filswan/go-mcs-sdk/mcs/api/common/logs"
	"github.com/gocelery/gocelery"
	"github.com/lagrangedao/go-bounty-coordinator/constants"
	"github.com/lagrangedao/go-bounty-coordinator/internal/models"
	"golang.org/x/xerrors"
)

type TaskQueue interface {
	DelayTask(taskName string, params ...interface{}) (*gocelery.AsyncResult, error)
}

// Dispatcher hands transfers to the task queue and returns without waiting for settlement.
type Dispatcher struct {
	queue TaskQueue
}

func NewDispatcher(queue TaskQueue) *Dispatcher {
	return &Dispatcher{queue: queue}
}

func (d *Dispatcher) Transfer(t *models.Transfer) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return err
	}
	if _, err := d.queue.DelayTask(constants.TASK_TRANSFER, string(payload)); err != nil {
		return xerrors.Errorf("queueing %s: %w", t, err)
	}
	logs.GetLogger().Infof("queued %s", t)
	return nil
}
