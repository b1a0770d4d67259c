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
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"github.com/wacul/ptr"

	"github.com/arborhq/arbor/config"
	"github.com/arborhq/arbor/database"
	redlock "github.com/arborhq/arbor/internal/lock"
	"github.com/arborhq/arbor/internal/notification"
	"github.com/arborhq/arbor/model"
)

// cascadeProcessor walks one delete operation's subtree breadth first,
// soft-deleting nodes in batches and checkpointing the ledger after each
// batch commit. All of its state is rebuilt from the ledger row on entry, so
// a crashed worker leaves nothing behind that a restart cannot recompute.
type cascadeProcessor struct {
	operation  *model.DeleteOperation
	datasource database.IDataSource
	batchSize  int
	pageSize   int
	retention  time.Duration
	sinceSave  int
}

// ProcessDeleteOperation is the queue handler body for one delete operation
// task. It claims the pending ledger row, counts the live subtree, then runs
// the cascade to completion and finalizes the row. Losing the claim is a
// normal outcome when the recovery poller re-enqueued an operation another
// worker already picked up.
func (a *Arbor) ProcessDeleteOperation(ctx context.Context, containerID, operationID string) error {
	ctx, span := tracer.Start(ctx, "Processing Delete Operation")
	defer span.End()

	cnf, err := config.Fetch()
	if err != nil {
		return err
	}

	locker := redlock.NewLocker(a.redis, fmt.Sprintf("cascade:%s", operationID), model.GenerateUUIDWithSuffix("loc"))
	if err := locker.Lock(ctx, 10*time.Minute); err != nil {
		logrus.Infof("delete operation %s in container %s is locked by another worker, skipping", operationID, containerID)
		return nil
	}
	defer func() {
		if err := locker.Unlock(ctx); err != nil {
			logrus.Errorf("failed to release cascade lock for %s: %v", operationID, err)
		}
	}()

	operation, err := a.datasource.GetDeleteOperation(ctx, containerID, operationID)
	if err != nil {
		return err
	}

	switch operation.Status {
	case model.StatusPending:
		claimed, err := a.datasource.ClaimDeleteOperation(ctx, operation.OperationID, operation.Version, time.Now())
		if err != nil {
			return err
		}
		if !claimed {
			logrus.Infof("lost claim on delete operation %s in container %s, another worker owns it", operationID, containerID)
			return nil
		}
		operation.Status = model.StatusInProgress
	case model.StatusInProgress:
		// A stalled operation re-enqueued by the recovery poller. The
		// ledger checkpoint plus the live-children queries below are enough
		// to resume without redoing finished work.
		logrus.Infof("resuming in-progress delete operation %s", operationID)
	default:
		logrus.Infof("delete operation %s already terminal (%s), nothing to do", operationID, operation.Status)
		return nil
	}

	processor := &cascadeProcessor{
		operation:  operation,
		datasource: a.datasource,
		batchSize:  cnf.CascadeDelete.BatchSize,
		pageSize:   cnf.CascadeDelete.ChildPageSize,
		retention:  cnf.CascadeDelete.NodeRetention(),
	}

	if err := processor.run(ctx); err != nil {
		logrus.Errorf("delete operation %s failed: %v", operationID, err)
		notification.NotifyError(fmt.Errorf("delete operation %s failed: %w", operationID, err))
		finalizeErr := a.datasource.FinalizeDeleteOperation(ctx, operationID, model.StatusFailed, ptr.String(err.Error()), time.Now())
		if finalizeErr != nil {
			logrus.Errorf("failed to finalize delete operation %s: %v", operationID, finalizeErr)
		}
		return err
	}

	status := operation.FinalStatus()
	if err := a.datasource.FinalizeDeleteOperation(ctx, operationID, status, nil, time.Now()); err != nil {
		return err
	}

	logrus.Infof("delete operation %s finished: status=%s deleted=%d failed=%d total=%d",
		operationID, status, operation.DeletedCount, operation.FailedCount, operation.TotalNodes)
	return nil
}

// run executes the traversal. The root is handled first, then the frontier
// advances level by level until the subtree is exhausted. The frontier moves
// through every child regardless of deletion state: a node deleted by an
// earlier attempt may still have live descendants beneath it, and skipping it
// would strand them.
func (p *cascadeProcessor) run(ctx context.Context) error {
	op := p.operation

	live, rootLive, err := p.countLiveSubtree(ctx)
	if err != nil {
		return err
	}

	// An already-deleted root with no live descendants and no prior
	// progress completes immediately; the request was idempotent.
	if live == 0 && op.DeletedCount == 0 {
		op.TotalNodes = 0
		return p.datasource.SetDeleteOperationTotal(ctx, op.OperationID, 0)
	}

	// On a resume the live count only covers what is left, so nodes
	// already deleted by the earlier attempt are added back in.
	op.TotalNodes = op.DeletedCount + live
	if err := p.datasource.SetDeleteOperationTotal(ctx, op.OperationID, op.TotalNodes); err != nil {
		return err
	}

	if rootLive {
		p.deleteOne(ctx, op.RootNodeID)
	}

	if !op.Cascade {
		return p.checkpoint(ctx, true)
	}

	frontier := []string{op.RootNodeID}
	for len(frontier) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		var next []string
		for _, parentID := range frontier {
			children, err := p.collectChildren(ctx, parentID)
			if err != nil {
				return err
			}
			for _, child := range children {
				p.deleteOne(ctx, child.NodeID)
				next = append(next, child.NodeID)
			}
		}
		frontier = next
	}

	// Flush the tail checkpoint so the final counters are durable before
	// the status flips.
	return p.checkpoint(ctx, true)
}

// countLiveSubtree counts the live nodes the cascade will touch, root
// included. The walk descends through deleted nodes too, since an earlier
// attempt may have deleted a parent while its subtree stayed live. The count
// is taken before any deletion and is advisory: nodes created mid-cascade may
// or may not be seen.
func (p *cascadeProcessor) countLiveSubtree(ctx context.Context) (int, bool, error) {
	op := p.operation

	root, err := p.datasource.GetNode(ctx, op.ContainerID, op.RootNodeID)
	if err != nil {
		return 0, false, err
	}

	total := 0
	rootLive := !root.IsDeleted
	if rootLive {
		total++
	}

	if !op.Cascade {
		return total, rootLive, nil
	}

	frontier := []string{op.RootNodeID}
	for len(frontier) > 0 {
		var next []string
		for _, parentID := range frontier {
			children, err := p.collectChildren(ctx, parentID)
			if err != nil {
				return 0, false, err
			}
			for _, child := range children {
				if !child.IsDeleted {
					total++
				}
				next = append(next, child.NodeID)
			}
		}
		frontier = next
	}

	return total, rootLive, nil
}

// collectChildren pages through the direct children of a node, deleted ones
// included. The full set is collected before the caller deletes any of it, so
// the offsets stay consistent across pages.
func (p *cascadeProcessor) collectChildren(ctx context.Context, parentID string) ([]*model.Node, error) {
	var all []*model.Node
	var offset int64
	for {
		children, err := p.datasource.GetChildNodes(ctx, p.operation.ContainerID, parentID, p.pageSize, offset)
		if err != nil {
			return nil, err
		}
		all = append(all, children...)
		if len(children) < p.pageSize {
			return all, nil
		}
		offset += int64(len(children))
	}
}

// deleteOne soft-deletes a single node and records the outcome on the
// in-memory operation. Node-level failures never abort the cascade; the node
// is recorded and the traversal moves on, descendants included.
func (p *cascadeProcessor) deleteOne(ctx context.Context, nodeID string) {
	op := p.operation

	applied, err := p.datasource.SoftDeleteNode(ctx, op.ContainerID, nodeID, op.CreatedBy, p.retention)
	if err != nil {
		logrus.Warnf("failed to delete node %s in operation %s: %v", nodeID, op.OperationID, err)
		op.RecordFailure(nodeID)
	} else if applied {
		// A node that failed on an earlier pass leaves the failed set once
		// the delete lands, keeping deleted + failed within the total.
		op.RecordDeleted(nodeID)
	}
	// A node already deleted by an earlier attempt counts neither way.

	p.sinceSave++
	if p.sinceSave >= p.batchSize {
		if err := p.checkpoint(ctx, false); err != nil {
			logrus.Errorf("failed to checkpoint delete operation %s: %v", op.OperationID, err)
		}
	}
}

// checkpoint persists the progress counters. Mid-cascade checkpoints retry
// with backoff but ultimately tolerate failure, since the worst case is
// re-examining a batch on resume; the final checkpoint must stick.
func (p *cascadeProcessor) checkpoint(ctx context.Context, final bool) error {
	op := p.operation

	save := func() error {
		return p.datasource.SaveDeleteOperationProgress(ctx, op.OperationID, op.DeletedCount, op.FailedCount, op.FailedNodeIDs)
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3), ctx)
	err := backoff.Retry(save, policy)
	if err != nil && final {
		return err
	}
	if err == nil {
		p.sinceSave = 0
	}
	return nil
}
