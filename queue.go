/*
Copyright 2024 Arbor Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package arbor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/hibiken/asynq"

	"github.com/arborhq/arbor/config"
	redis_db "github.com/arborhq/arbor/internal/redis-db"
)

// Queue represents the Redis-backed task queue delete operations travel
// through between the initiator and the cascade workers.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// DeleteOperationPayload is the task body for a queued delete operation. The
// worker re-reads the ledger row by id, so the payload carries identity only.
type DeleteOperationPayload struct {
	OperationID string `json:"operation_id"`
	ContainerID string `json:"container_id"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(fmt.Sprintf("redis://%s", conf.Redis.Dns))
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// EnqueueDeleteOperation enqueues a delete operation for background cascade
// processing. The task id is the operation id, so re-enqueueing an operation
// that is already waiting dedupes instead of creating a second task.
func (q *Queue) EnqueueDeleteOperation(ctx context.Context, payload DeleteOperationPayload) error {
	ctx, span := tracer.Start(ctx, "Adding Delete Operation To Redis Queue")
	defer span.End()

	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	taskOptions := []asynq.Option{
		asynq.TaskID(payload.OperationID),
		asynq.Queue(cfg.Queue.DeleteQueue),
		asynq.MaxRetry(5),
	}
	task := asynq.NewTask(cfg.Queue.DeleteQueue, body, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		if errors.Is(err, asynq.ErrTaskIDConflict) {
			log.Printf(" [*] Delete operation already queued: %s", payload.OperationID)
			return nil
		}
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued delete operation: %s", payload.OperationID)
	return nil
}
