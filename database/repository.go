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

package database

import (
	"context"
	"time"

	"github.com/arborhq/arbor/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	node            // Interface for hierarchy store operations
	deleteOperation // Interface for delete operation ledger operations
}

// node defines methods for the hierarchy store.
type node interface {
	CreateNode(ctx context.Context, n model.Node) (model.Node, error)                                              // Creates a new node
	GetNode(ctx context.Context, containerID, nodeID string) (*model.Node, error)                                  // Retrieves a node by container and id
	CountChildNodes(ctx context.Context, containerID, parentID string) (int64, error)                              // Counts live direct children of a node
	GetChildNodes(ctx context.Context, containerID, parentID string, limit int, offset int64) ([]*model.Node, error) // Retrieves direct children regardless of deletion state, paginated
	SoftDeleteNode(ctx context.Context, containerID, nodeID, actor string, retention time.Duration) (bool, error)  // Marks a node deleted; false if it already was
}

// deleteOperation defines methods for the delete operation ledger.
type deleteOperation interface {
	CreateDeleteOperation(ctx context.Context, op *model.DeleteOperation) error                                                           // Records a new pending operation
	GetDeleteOperation(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error)                              // Retrieves an operation by id
	ClaimDeleteOperation(ctx context.Context, operationID string, version int, startedAt time.Time) (bool, error)                         // Pending -> in_progress, exactly one winner
	SetDeleteOperationTotal(ctx context.Context, operationID string, total int) error                                                     // Stamps the discovered node count
	SaveDeleteOperationProgress(ctx context.Context, operationID string, deletedCount, failedCount int, failedNodeIDs []string) error     // Persists a progress checkpoint
	FinalizeDeleteOperation(ctx context.Context, operationID string, status string, errorDetail *string, completedAt time.Time) error     // Moves an operation to a terminal status
	ResetDeleteOperationForRetry(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error)                    // Terminal failed/partial -> pending
	ListRecentDeleteOperations(ctx context.Context, containerID string, limit int, window time.Duration) ([]*model.DeleteOperation, error) // Most-recent-first within the retention window
	CountLiveDeleteOperations(ctx context.Context, containerID, actorID string) (int, error)                                              // Non-terminal operations for an actor, rate limiter input
	CountLiveDeleteOperationsForRoot(ctx context.Context, containerID, rootNodeID string) (int, error)                                    // Non-terminal operations already covering a root
	GetStalledDeleteOperations(ctx context.Context, threshold time.Duration, limit int) ([]*model.DeleteOperation, error)                 // In-progress operations without recent progress
	GetPendingDeleteOperations(ctx context.Context, olderThan time.Duration, limit int) ([]*model.DeleteOperation, error)                 // Pending operations the queue may have dropped
}
