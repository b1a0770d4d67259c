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
	"fmt"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"

	"github.com/arborhq/arbor/config"
	"github.com/arborhq/arbor/internal/apierror"
	"github.com/arborhq/arbor/model"
)

var tracer = otel.Tracer("arbor.delete")

// CreateNode records a new node in the hierarchy.
func (a *Arbor) CreateNode(ctx context.Context, node model.Node) (model.Node, error) {
	if node.ParentID != nil {
		parent, err := a.datasource.GetNode(ctx, node.ContainerID, *node.ParentID)
		if err != nil {
			return model.Node{}, err
		}
		if parent.IsDeleted {
			return model.Node{}, apierror.NewAPIError(apierror.ErrInvalidState, fmt.Sprintf("Parent node %s is deleted", parent.NodeID), nil)
		}
	}
	return a.datasource.CreateNode(ctx, node)
}

// GetNode retrieves a node by container and id.
func (a *Arbor) GetNode(ctx context.Context, containerID, nodeID string) (*model.Node, error) {
	return a.datasource.GetNode(ctx, containerID, nodeID)
}

// InitiateDelete accepts a delete request for a node and hands the actual
// work to the background cascade workers. The synchronous path does no
// traversal at all: it validates the target, applies the per-actor ceiling,
// records a pending ledger entry and enqueues it. The returned operation is
// the caller's handle for polling progress.
func (a *Arbor) InitiateDelete(ctx context.Context, containerID, nodeID, actor string, cascade bool) (*model.DeleteOperation, error) {
	ctx, span := tracer.Start(ctx, "Initiating Delete Operation")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	node, err := a.datasource.GetNode(ctx, containerID, nodeID)
	if err != nil {
		return nil, err
	}

	if !cascade {
		childCount, err := a.datasource.CountChildNodes(ctx, containerID, nodeID)
		if err != nil {
			return nil, err
		}
		if childCount > 0 {
			return nil, apierror.NewAPIError(apierror.ErrInvalidState,
				fmt.Sprintf("Node %s has %d live children; delete them first or request a cascade", nodeID, childCount), nil)
		}
	}

	rootOps, err := a.datasource.CountLiveDeleteOperationsForRoot(ctx, containerID, nodeID)
	if err != nil {
		return nil, err
	}
	if rootOps > 0 {
		return nil, apierror.NewAPIError(apierror.ErrConflict,
			fmt.Sprintf("A delete operation for node %s is already in flight", nodeID), nil)
	}

	liveOps, err := a.datasource.CountLiveDeleteOperations(ctx, containerID, actor)
	if err != nil {
		return nil, err
	}
	if liveOps >= cnf.CascadeDelete.MaxConcurrentOperations {
		return nil, apierror.NewAPIError(apierror.ErrRateLimited,
			fmt.Sprintf("Too many concurrent delete operations (limit %d); retry after one completes", cnf.CascadeDelete.MaxConcurrentOperations), nil)
	}

	operation := &model.DeleteOperation{
		ContainerID:  containerID,
		RootNodeID:   node.NodeID,
		RootNodeName: node.Name,
		Cascade:      cascade,
		CreatedBy:    actor,
		ExpiresAfter: int64(cnf.CascadeDelete.OperationRetention().Seconds()),
	}
	if err := a.datasource.CreateDeleteOperation(ctx, operation); err != nil {
		return nil, err
	}

	if err := a.queue.EnqueueDeleteOperation(ctx, DeleteOperationPayload{
		OperationID: operation.OperationID,
		ContainerID: operation.ContainerID,
	}); err != nil {
		// The ledger row survives; the recovery poller re-enqueues pending
		// operations whose task never made it onto the queue.
		logrus.Errorf("failed to enqueue delete operation %s: %v", operation.OperationID, err)
	}

	return operation, nil
}

// GetDeleteOperation retrieves the current state of a delete operation.
func (a *Arbor) GetDeleteOperation(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error) {
	return a.datasource.GetDeleteOperation(ctx, containerID, operationID)
}

// ListRecentDeleteOperations retrieves the operations created in a container
// within the ledger retention window, most recent first.
func (a *Arbor) ListRecentDeleteOperations(ctx context.Context, containerID string, limit int) ([]*model.DeleteOperation, error) {
	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > cnf.CascadeDelete.ChildPageSize {
		limit = cnf.CascadeDelete.ChildPageSize
	}
	return a.datasource.ListRecentDeleteOperations(ctx, containerID, limit, cnf.CascadeDelete.OperationRetention())
}

// RetryDeleteOperation resets a failed or partial operation back to pending
// and re-enqueues it. Nodes already deleted by the earlier attempt are not
// touched again; the cascade skips deleted nodes as it re-traverses.
func (a *Arbor) RetryDeleteOperation(ctx context.Context, containerID, operationID, actor string) (*model.DeleteOperation, error) {
	ctx, span := tracer.Start(ctx, "Retrying Delete Operation")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	liveOps, err := a.datasource.CountLiveDeleteOperations(ctx, containerID, actor)
	if err != nil {
		return nil, err
	}
	if liveOps >= cnf.CascadeDelete.MaxConcurrentOperations {
		return nil, apierror.NewAPIError(apierror.ErrRateLimited,
			fmt.Sprintf("Too many concurrent delete operations (limit %d); retry after one completes", cnf.CascadeDelete.MaxConcurrentOperations), nil)
	}

	operation, err := a.datasource.ResetDeleteOperationForRetry(ctx, containerID, operationID)
	if err != nil {
		return nil, err
	}

	if err := a.queue.EnqueueDeleteOperation(ctx, DeleteOperationPayload{
		OperationID: operation.OperationID,
		ContainerID: operation.ContainerID,
	}); err != nil {
		logrus.Errorf("failed to enqueue delete operation %s: %v", operation.OperationID, err)
	}

	return operation, nil
}
