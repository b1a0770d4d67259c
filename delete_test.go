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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborhq/arbor/internal/apierror"
	"github.com/arborhq/arbor/model"
)

func TestInitiateDeleteNodeNotFound(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)

	_, err := a.InitiateDelete(context.Background(), "cnt_1", "nd_missing", "usr_1", true)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
}

func TestInitiateDeleteNonCascadeWithChildren(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)

	root := store.addNode("cnt_1", "nd_root", nil)
	store.addNode("cnt_1", "nd_child", &root.NodeID)

	_, err := a.InitiateDelete(context.Background(), "cnt_1", "nd_root", "usr_1", false)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidState, apiErr.Code)

	// Nothing was recorded and nothing was deleted.
	ops, err := store.ListRecentDeleteOperations(context.Background(), "cnt_1", 10, time.Hour)
	require.NoError(t, err)
	assert.Empty(t, ops)
	n, _ := store.GetNode(context.Background(), "cnt_1", "nd_root")
	assert.False(t, n.IsDeleted)
}

func TestInitiateDeleteNonCascadeWithDeletedChildren(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)

	root := store.addNode("cnt_1", "nd_root", nil)
	child := store.addNode("cnt_1", "nd_child", &root.NodeID)
	child.MarkDeleted("usr_0", time.Hour, time.Now())

	// Soft-deleted children do not block a non-cascade delete.
	op, err := a.InitiateDelete(context.Background(), "cnt_1", "nd_root", "usr_1", false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, op.Status)
}

func TestInitiateDeleteRateLimited(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		store.addNode("cnt_1", fmt.Sprintf("nd_%d", i), nil)
	}

	for i := 0; i < 5; i++ {
		_, err := a.InitiateDelete(ctx, "cnt_1", fmt.Sprintf("nd_%d", i), "usr_1", true)
		require.NoError(t, err)
	}

	_, err := a.InitiateDelete(ctx, "cnt_1", "nd_5", "usr_1", true)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrRateLimited, apiErr.Code)

	// A different actor in the same container is not throttled.
	_, err = a.InitiateDelete(ctx, "cnt_1", "nd_5", "usr_2", true)
	assert.NoError(t, err)
}

func TestInitiateDeleteRateLimitExcludesTerminalOperations(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		store.addNode("cnt_1", fmt.Sprintf("nd_%d", i), nil)
	}

	for i := 0; i < 5; i++ {
		op, err := a.InitiateDelete(ctx, "cnt_1", fmt.Sprintf("nd_%d", i), "usr_1", true)
		require.NoError(t, err)
		require.NoError(t, a.ProcessDeleteOperation(ctx, "cnt_1", op.OperationID))
	}

	// All five finished, so the sixth request is admitted.
	_, err := a.InitiateDelete(ctx, "cnt_1", "nd_5", "usr_1", true)
	assert.NoError(t, err)
}

func TestInitiateDeleteConflictOnDuplicateRoot(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)
	ctx := context.Background()

	store.addNode("cnt_1", "nd_root", nil)

	_, err := a.InitiateDelete(ctx, "cnt_1", "nd_root", "usr_1", true)
	require.NoError(t, err)

	_, err = a.InitiateDelete(ctx, "cnt_1", "nd_root", "usr_2", true)
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
}

func TestRetryDeleteOperationRejectsCompleted(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)
	ctx := context.Background()

	store.addNode("cnt_1", "nd_root", nil)
	op, err := a.InitiateDelete(ctx, "cnt_1", "nd_root", "usr_1", true)
	require.NoError(t, err)
	require.NoError(t, a.ProcessDeleteOperation(ctx, "cnt_1", op.OperationID))

	_, err = a.RetryDeleteOperation(ctx, "cnt_1", op.OperationID, "usr_1")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidState, apiErr.Code)
}

func TestListRecentDeleteOperationsOrdering(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)
	ctx := context.Background()

	store.addNode("cnt_1", "nd_a", nil)
	store.addNode("cnt_1", "nd_b", nil)

	first, err := a.InitiateDelete(ctx, "cnt_1", "nd_a", "usr_1", true)
	require.NoError(t, err)
	store.mu.Lock()
	store.ops[first.OperationID].CreatedAt = time.Now().Add(-time.Minute)
	store.mu.Unlock()

	second, err := a.InitiateDelete(ctx, "cnt_1", "nd_b", "usr_1", true)
	require.NoError(t, err)

	ops, err := a.ListRecentDeleteOperations(ctx, "cnt_1", 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, second.OperationID, ops[0].OperationID)
	assert.Equal(t, first.OperationID, ops[1].OperationID)
}

func TestCreateNodeUnderDeletedParent(t *testing.T) {
	store := newFakeStore()
	a := newTestArbor(t, store)
	ctx := context.Background()

	parent := store.addNode("cnt_1", "nd_parent", nil)
	parent.MarkDeleted("usr_1", time.Hour, time.Now())

	_, err := a.CreateNode(ctx, model.Node{ContainerID: "cnt_1", ParentID: &parent.NodeID, Name: "orphan"})
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrInvalidState, apiErr.Code)
}
