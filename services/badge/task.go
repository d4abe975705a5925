package badge

import (
	"context"
	"encoding/json"
	"fmt"

	"reputation-engine/services/reputation"

	"github.com/hibiken/asynq"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var TaskModule = fx.Module("task.badge",
	fx.Provide(NewTask),
	fx.Invoke(registerTaskHandlers),
)

// Task hosts the deferred badge-evaluation handler. The reputation service
// enqueues a check after every external award; the worker drains them so
// badge evaluation never adds latency to the award path.
type Task struct {
	badges *Service
}

type TaskParams struct {
	fx.In
	Badges *Service
}

func NewTask(p TaskParams) *Task {
	return &Task{badges: p.Badges}
}

func (t *Task) HandleCheckBadges(ctx context.Context, task *asynq.Task) error {
	var payload reputation.CheckBadgesPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}

	zapLog := zap.L().With(
		zap.String("task_type", task.Type()),
		zap.String("user_id", payload.UserID),
		zap.String("trace_id", payload.TraceID),
	)

	granted, err := t.badges.CheckAndAwardBadges(ctx, payload.UserID)
	if err != nil {
		zapLog.Error("badge check failed", zap.Error(err))
		return err
	}

	if len(granted) > 0 {
		slugs := make([]string, 0, len(granted))
		for _, award := range granted {
			if award.Badge != nil {
				slugs = append(slugs, award.Badge.Slug)
			}
		}
		zapLog.Info("badges granted", zap.Strings("badges", slugs))
	}

	return nil
}

func registerTaskHandlers(mux *asynq.ServeMux, task *Task) {
	mux.HandleFunc(reputation.TaskCheckBadges, task.HandleCheckBadges)
}
