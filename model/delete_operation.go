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
package model

import (
	"fmt"
	"time"
)

// Status constants representing the states a delete operation can be in.
const (
	StatusPending    = "pending"     // Created, waiting for a worker to claim it.
	StatusInProgress = "in_progress" // Claimed by a worker, cascade running.
	StatusCompleted  = "completed"   // Every node deleted (or nothing to delete).
	StatusPartial    = "partial"     // Some nodes deleted, some failed.
	StatusFailed     = "failed"      // No node deleted, or a fatal processor error.
)

// IsTerminalStatus reports whether a status admits no further processing.
func IsTerminalStatus(status string) bool {
	return status == StatusCompleted || status == StatusPartial || status == StatusFailed
}

// CanRetryStatus reports whether an operation in this status may be reset to
// pending. Completed operations are never retried.
func CanRetryStatus(status string) bool {
	return status == StatusFailed || status == StatusPartial
}

// DeleteOperation is the durable ledger record for one delete request. It is
// created in pending by the initiator and only ever mutated by the cascade
// processor afterwards, except for the explicit retry reset.
type DeleteOperation struct {
	ID            int64      `json:"-"`
	OperationID   string     `json:"operation_id"`
	ContainerID   string     `json:"container_id"`
	RootNodeID    string     `json:"root_node_id"`
	RootNodeName  string     `json:"root_node_name"`
	Status        string     `json:"status"`
	Cascade       bool       `json:"cascade"`
	TotalNodes    int        `json:"total_nodes"`
	DeletedCount  int        `json:"deleted_count"`
	FailedCount   int        `json:"failed_count"`
	FailedNodeIDs []string   `json:"failed_node_ids"`
	ErrorDetail   *string    `json:"error_detail,omitempty"`
	CreatedBy     string     `json:"created_by"`
	CreatedAt     time.Time  `json:"created_at"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	ExpiresAfter  int64      `json:"expires_after"` // ledger retention window, seconds
	Version       int        `json:"-"`             // optimistic concurrency token for claims
}

// RecordDeleted increments the deleted counter for one successfully
// soft-deleted node. A node that failed on an earlier pass leaves the failed
// set, so deleted plus failed never exceeds the total.
func (op *DeleteOperation) RecordDeleted(nodeID string) {
	op.DeletedCount++
	for i, id := range op.FailedNodeIDs {
		if id == nodeID {
			op.FailedNodeIDs = append(op.FailedNodeIDs[:i], op.FailedNodeIDs[i+1:]...)
			op.FailedCount--
			return
		}
	}
}

// RecordFailure records a per-node failure. The failed set holds no
// duplicates, so recording the same node twice is a no-op on the counter.
func (op *DeleteOperation) RecordFailure(nodeID string) {
	for _, id := range op.FailedNodeIDs {
		if id == nodeID {
			return
		}
	}
	op.FailedNodeIDs = append(op.FailedNodeIDs, nodeID)
	op.FailedCount++
}

// FinalStatus evaluates the completion rule once the frontier is exhausted.
// An operation with nothing to delete completes immediately.
func (op *DeleteOperation) FinalStatus() string {
	switch {
	case op.TotalNodes == 0:
		return StatusCompleted
	case op.FailedCount == 0:
		return StatusCompleted
	case op.FailedCount >= op.TotalNodes:
		return StatusFailed
	default:
		return StatusPartial
	}
}

// ResetForRetry moves a terminal failed or partial operation back to pending,
// clearing all progress while preserving identity and creation fields. This
// is the only permitted transition out of a terminal state.
func (op *DeleteOperation) ResetForRetry() error {
	if !CanRetryStatus(op.Status) {
		return fmt.Errorf("operation %s cannot be retried from status %s", op.OperationID, op.Status)
	}
	op.Status = StatusPending
	op.TotalNodes = 0
	op.DeletedCount = 0
	op.FailedCount = 0
	op.FailedNodeIDs = nil
	op.ErrorDetail = nil
	op.StartedAt = nil
	op.CompletedAt = nil
	return nil
}
