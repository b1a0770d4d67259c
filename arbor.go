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
	"embed"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/arborhq/arbor/config"
	"github.com/arborhq/arbor/database"
	redis_db "github.com/arborhq/arbor/internal/redis-db"
)

// Arbor represents the main struct for the Arbor application.
type Arbor struct {
	queue      *Queue
	redis      redis.UniversalClient
	datasource database.IDataSource
}

//go:embed sql/*.sql
var SQLFiles embed.FS

// NewArbor initializes a new instance of Arbor with the provided database
// datasource. It fetches the configuration and initializes the Redis client
// and the delete operation queue.
func NewArbor(db database.IDataSource) (*Arbor, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient([]string{fmt.Sprintf("redis://%s", configuration.Redis.Dns)})
	if err != nil {
		return nil, err
	}
	newQueue := NewQueue(configuration)

	newArbor := &Arbor{datasource: db, queue: newQueue, redis: redisClient.Client()}
	return newArbor, nil
}
