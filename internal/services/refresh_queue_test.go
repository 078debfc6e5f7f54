package services

import (
	"context"
	"testing"

	"github.com/go-redis/redismock/v8"
	"github.com/stretchr/testify/assert"

	"github.com/finflow/backend/internal/config"
)

func TestRefreshQueueEnqueue(t *testing.T) {
	redisClient, redisMock := redismock.NewClientMock()
	cfg := &config.ProjectionConfig{RefreshQueueKey: "projection_refresh_queue"}

	queue := NewRefreshQueue(redisClient, nil, cfg)
	queue.newID = func() string { return "task-1" }

	t.Run("pushes the task onto the list", func(t *testing.T) {
		redisMock.Regexp().ExpectRPush("projection_refresh_queue", `.*"task_id":"task-1".*"company_id":7.*`).
			SetVal(1)

		queue.Enqueue(context.Background(), 7)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})

	t.Run("push failure is swallowed", func(t *testing.T) {
		redisMock.Regexp().ExpectRPush("projection_refresh_queue", `.*"company_id":9.*`).
			SetErr(assert.AnError)

		queue.Enqueue(context.Background(), 9)
		assert.NoError(t, redisMock.ExpectationsWereMet())
	})
}
