package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/arborhq/arbor/model"
)

// MockDataSource implements database.IDataSource for tests.
type MockDataSource struct {
	mock.Mock
}

func (m *MockDataSource) CreateNode(ctx context.Context, n model.Node) (model.Node, error) {
	args := m.Called(ctx, n)
	return args.Get(0).(model.Node), args.Error(1)
}

func (m *MockDataSource) GetNode(ctx context.Context, containerID, nodeID string) (*model.Node, error) {
	args := m.Called(ctx, containerID, nodeID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Node), args.Error(1)
}

func (m *MockDataSource) CountChildNodes(ctx context.Context, containerID, parentID string) (int64, error) {
	args := m.Called(ctx, containerID, parentID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockDataSource) GetChildNodes(ctx context.Context, containerID, parentID string, limit int, offset int64) ([]*model.Node, error) {
	args := m.Called(ctx, containerID, parentID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Node), args.Error(1)
}

func (m *MockDataSource) SoftDeleteNode(ctx context.Context, containerID, nodeID, actor string, retention time.Duration) (bool, error) {
	args := m.Called(ctx, containerID, nodeID, actor, retention)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) CreateDeleteOperation(ctx context.Context, op *model.DeleteOperation) error {
	args := m.Called(ctx, op)
	return args.Error(0)
}

func (m *MockDataSource) GetDeleteOperation(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error) {
	args := m.Called(ctx, containerID, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeleteOperation), args.Error(1)
}

func (m *MockDataSource) ClaimDeleteOperation(ctx context.Context, operationID string, version int, startedAt time.Time) (bool, error) {
	args := m.Called(ctx, operationID, version, startedAt)
	return args.Bool(0), args.Error(1)
}

func (m *MockDataSource) SetDeleteOperationTotal(ctx context.Context, operationID string, total int) error {
	args := m.Called(ctx, operationID, total)
	return args.Error(0)
}

func (m *MockDataSource) SaveDeleteOperationProgress(ctx context.Context, operationID string, deletedCount, failedCount int, failedNodeIDs []string) error {
	args := m.Called(ctx, operationID, deletedCount, failedCount, failedNodeIDs)
	return args.Error(0)
}

func (m *MockDataSource) FinalizeDeleteOperation(ctx context.Context, operationID string, status string, errorDetail *string, completedAt time.Time) error {
	args := m.Called(ctx, operationID, status, errorDetail, completedAt)
	return args.Error(0)
}

func (m *MockDataSource) ResetDeleteOperationForRetry(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error) {
	args := m.Called(ctx, containerID, operationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.DeleteOperation), args.Error(1)
}

func (m *MockDataSource) ListRecentDeleteOperations(ctx context.Context, containerID string, limit int, window time.Duration) ([]*model.DeleteOperation, error) {
	args := m.Called(ctx, containerID, limit, window)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeleteOperation), args.Error(1)
}

func (m *MockDataSource) CountLiveDeleteOperations(ctx context.Context, containerID, actorID string) (int, error) {
	args := m.Called(ctx, containerID, actorID)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) CountLiveDeleteOperationsForRoot(ctx context.Context, containerID, rootNodeID string) (int, error) {
	args := m.Called(ctx, containerID, rootNodeID)
	return args.Int(0), args.Error(1)
}

func (m *MockDataSource) GetStalledDeleteOperations(ctx context.Context, threshold time.Duration, limit int) ([]*model.DeleteOperation, error) {
	args := m.Called(ctx, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeleteOperation), args.Error(1)
}

func (m *MockDataSource) GetPendingDeleteOperations(ctx context.Context, olderThan time.Duration, limit int) ([]*model.DeleteOperation, error) {
	args := m.Called(ctx, olderThan, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.DeleteOperation), args.Error(1)
}
