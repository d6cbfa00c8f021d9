package shipping

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Pool runs one shipping task per launched order, without limit. Tasks outlive the
// cancellation of the context they were created from; Wait drains them.
type Pool struct {
	coord *Coordinator
	ctx   context.Context
	g     errgroup.Group
	log   *zap.Logger
}

func NewPool(ctx context.Context, coord *Coordinator, log *zap.Logger) *Pool {
	if log == nil {
		log = zap.NewNop()
	}
	return &Pool{coord: coord, ctx: context.WithoutCancel(ctx), log: log}
}

func (p *Pool) Launch(orderID string) {
	p.g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				p.log.Error("shipping task panicked", zap.String("order_id", orderID), zap.Any("panic", r))
				err = fmt.Errorf("shipping %s: panic: %v", orderID, r)
			}
		}()
		if err := p.coord.Ship(p.ctx, orderID); err != nil {
			p.log.Error("shipping failed", zap.String("order_id", orderID), zap.Error(err))
		}
		return nil
	})
}

// Wait blocks until every launched task has finished.
func (p *Pool) Wait() {
	_ = p.g.Wait()
}
