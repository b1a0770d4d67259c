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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/wacul/ptr"
)

func TestRecordFailureDeduplicates(t *testing.T) {
	op := &DeleteOperation{Status: StatusInProgress}
	op.RecordFailure("nd_1")
	op.RecordFailure("nd_1")
	op.RecordFailure("nd_2")

	assert.Equal(t, 2, op.FailedCount)
	assert.ElementsMatch(t, []string{"nd_1", "nd_2"}, op.FailedNodeIDs)
}

func TestRecordDeletedClearsEarlierFailure(t *testing.T) {
	op := &DeleteOperation{Status: StatusInProgress, TotalNodes: 2}
	op.RecordFailure("nd_1")
	op.RecordDeleted("nd_2")

	// The failed node succeeds on a later pass.
	op.RecordDeleted("nd_1")

	assert.Equal(t, 2, op.DeletedCount)
	assert.Zero(t, op.FailedCount)
	assert.Empty(t, op.FailedNodeIDs)
	assert.LessOrEqual(t, op.DeletedCount+op.FailedCount, op.TotalNodes)
}

func TestFinalStatus(t *testing.T) {
	tests := []struct {
		name    string
		total   int
		deleted int
		failed  int
		want    string
	}{
		{"nothing to delete", 0, 0, 0, StatusCompleted},
		{"all deleted", 4, 4, 0, StatusCompleted},
		{"some failed", 10, 8, 2, StatusPartial},
		{"all failed", 3, 0, 3, StatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &DeleteOperation{
				TotalNodes:   tt.total,
				DeletedCount: tt.deleted,
				FailedCount:  tt.failed,
			}
			assert.Equal(t, tt.want, op.FinalStatus())
			assert.LessOrEqual(t, op.DeletedCount+op.FailedCount, op.TotalNodes)
		})
	}
}

func TestResetForRetry(t *testing.T) {
	now := time.Now()
	op := &DeleteOperation{
		OperationID:   "del_123",
		Status:        StatusPartial,
		TotalNodes:    10,
		DeletedCount:  8,
		FailedCount:   2,
		FailedNodeIDs: []string{"nd_1", "nd_2"},
		ErrorDetail:   ptr.String("boom"),
		CreatedAt:     now,
		StartedAt:     &now,
		CompletedAt:   &now,
	}

	err := op.ResetForRetry()
	assert.NoError(t, err)
	assert.Equal(t, StatusPending, op.Status)
	assert.Zero(t, op.TotalNodes)
	assert.Zero(t, op.DeletedCount)
	assert.Zero(t, op.FailedCount)
	assert.Empty(t, op.FailedNodeIDs)
	assert.Nil(t, op.ErrorDetail)
	assert.Nil(t, op.StartedAt)
	assert.Nil(t, op.CompletedAt)
	assert.Equal(t, "del_123", op.OperationID)
	assert.Equal(t, now, op.CreatedAt)
}

func TestResetForRetryRejectsNonTerminal(t *testing.T) {
	for _, status := range []string{StatusPending, StatusInProgress, StatusCompleted} {
		op := &DeleteOperation{OperationID: "del_123", Status: status}
		assert.Error(t, op.ResetForRetry())
		assert.Equal(t, status, op.Status)
	}
}

func TestNodeMarkDeletedAndClear(t *testing.T) {
	node := &Node{NodeID: "nd_1", ContainerID: "cnt_1"}
	at := time.Now()
	node.MarkDeleted("usr_1", 90*24*time.Hour, at)

	assert.True(t, node.IsDeleted)
	assert.Equal(t, at, *node.DeletedAt)
	assert.Equal(t, "usr_1", *node.DeletedBy)
	assert.Equal(t, int64(90*24*3600), *node.ExpiresAfter)

	node.ClearDeletion()
	assert.False(t, node.IsDeleted)
	assert.Nil(t, node.DeletedAt)
	assert.Nil(t, node.DeletedBy)
	assert.Nil(t, node.ExpiresAfter)
}
