package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/arborhq/arbor/internal/apierror"
	"github.com/arborhq/arbor/model"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
)

const deleteOperationColumns = `
	id, operation_id, container_id, root_node_id, root_node_name, status, cascade,
	total_nodes, deleted_count, failed_count, failed_node_ids, error_detail,
	created_by, created_at, started_at, completed_at, expires_after, version
`

func scanDeleteOperation(scanner interface {
	Scan(dest ...interface{}) error
}) (*model.DeleteOperation, error) {
	op := &model.DeleteOperation{}
	err := scanner.Scan(
		&op.ID, &op.OperationID, &op.ContainerID, &op.RootNodeID, &op.RootNodeName,
		&op.Status, &op.Cascade, &op.TotalNodes, &op.DeletedCount, &op.FailedCount,
		pq.Array(&op.FailedNodeIDs), &op.ErrorDetail, &op.CreatedBy, &op.CreatedAt,
		&op.StartedAt, &op.CompletedAt, &op.ExpiresAfter, &op.Version,
	)
	if err != nil {
		return nil, err
	}
	return op, nil
}

// CreateDeleteOperation records a new pending operation in the ledger.
func (d Datasource) CreateDeleteOperation(ctx context.Context, op *model.DeleteOperation) error {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Saving delete operation to db")
	defer span.End()

	op.OperationID = model.GenerateUUIDWithSuffix("del")
	op.Status = model.StatusPending
	op.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO arbor.delete_operations(
			operation_id, container_id, root_node_id, root_node_name, status,
			cascade, created_by, created_at, expires_after
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		op.OperationID, op.ContainerID, op.RootNodeID, op.RootNodeName, op.Status,
		op.Cascade, op.CreatedBy, op.CreatedAt, op.ExpiresAfter,
	)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create delete operation", err)
	}

	return nil
}

// GetDeleteOperation retrieves an operation by container and id. Terminal
// operations are served from the cache; live ones always hit the database so
// progress counters stay fresh.
func (d Datasource) GetDeleteOperation(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error) {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Fetching delete operation from db")
	defer span.End()

	cacheKey := fmt.Sprintf("delete-operation:%s:%s", containerID, operationID)

	cached := &model.DeleteOperation{}
	if err := d.Cache.Get(ctx, cacheKey, cached); err == nil && cached.OperationID != "" {
		return cached, nil
	}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT `+deleteOperationColumns+`
		FROM arbor.delete_operations
		WHERE container_id = $1 AND operation_id = $2
	`, containerID, operationID)

	op, err := scanDeleteOperation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Delete operation not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve delete operation", err)
	}

	if model.IsTerminalStatus(op.Status) {
		if err := d.Cache.Set(ctx, cacheKey, op, 5*time.Minute); err != nil {
			log.Printf("Failed to cache delete operation: %v", err)
		}
	}

	return op, nil
}

// ClaimDeleteOperation transitions a pending operation to in_progress. The
// write is conditional on both the pending status and the version token the
// caller read, so two workers racing for the same operation get exactly one
// winner; the loser sees false and walks away.
func (d Datasource) ClaimDeleteOperation(ctx context.Context, operationID string, version int, startedAt time.Time) (bool, error) {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Claiming delete operation")
	defer span.End()

	result, err := d.Conn.ExecContext(ctx, `
		UPDATE arbor.delete_operations
		SET status = $2, started_at = $3, version = version + 1
		WHERE operation_id = $1 AND status = $4 AND version = $5
	`, operationID, model.StatusInProgress, startedAt, model.StatusPending, version)
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to claim delete operation", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read claim result", err)
	}

	return affected == 1, nil
}

// SetDeleteOperationTotal stamps the node count discovered at the start of a
// cascade. The count is advisory for progress display.
func (d Datasource) SetDeleteOperationTotal(ctx context.Context, operationID string, total int) error {
	_, err := d.Conn.ExecContext(ctx, `
		UPDATE arbor.delete_operations
		SET total_nodes = $2
		WHERE operation_id = $1
	`, operationID, total)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to set delete operation total", err)
	}
	return nil
}

// SaveDeleteOperationProgress persists a progress checkpoint after a batch
// commit. On restart this row is all the processor needs to resume.
func (d Datasource) SaveDeleteOperationProgress(ctx context.Context, operationID string, deletedCount, failedCount int, failedNodeIDs []string) error {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Saving delete operation progress")
	defer span.End()

	if failedNodeIDs == nil {
		failedNodeIDs = []string{}
	}

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE arbor.delete_operations
		SET deleted_count = $2, failed_count = $3, failed_node_ids = $4
		WHERE operation_id = $1
	`, operationID, deletedCount, failedCount, pq.Array(failedNodeIDs))
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save delete operation progress", err)
	}
	return nil
}

// FinalizeDeleteOperation moves an operation to a terminal status and stamps
// the completion time. ErrorDetail is only populated for fatal failures.
func (d Datasource) FinalizeDeleteOperation(ctx context.Context, operationID string, status string, errorDetail *string, completedAt time.Time) error {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Finalizing delete operation")
	defer span.End()

	_, err := d.Conn.ExecContext(ctx, `
		UPDATE arbor.delete_operations
		SET status = $2, error_detail = $3, completed_at = $4
		WHERE operation_id = $1
	`, operationID, status, errorDetail, completedAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to finalize delete operation", err)
	}
	return nil
}

// ResetDeleteOperationForRetry resets a terminal failed or partial operation
// back to pending, clearing all progress. The status condition in the WHERE
// clause enforces the state machine: resetting a pending, running or
// completed operation affects zero rows and surfaces an invalid-state error.
func (d Datasource) ResetDeleteOperationForRetry(ctx context.Context, containerID, operationID string) (*model.DeleteOperation, error) {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Resetting delete operation for retry")
	defer span.End()

	row := d.Conn.QueryRowContext(ctx, `
		UPDATE arbor.delete_operations
		SET status = $3, total_nodes = 0, deleted_count = 0, failed_count = 0,
			failed_node_ids = '{}', error_detail = NULL, started_at = NULL,
			completed_at = NULL, version = version + 1
		WHERE container_id = $1 AND operation_id = $2 AND status IN ($4, $5)
		RETURNING `+deleteOperationColumns,
		containerID, operationID, model.StatusPending, model.StatusFailed, model.StatusPartial)

	op, err := scanDeleteOperation(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrInvalidState, "Only failed or partial operations can be retried", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to reset delete operation", err)
	}

	// The terminal row may have been cached; the reset must not be masked.
	if err := d.Cache.Delete(ctx, fmt.Sprintf("delete-operation:%s:%s", containerID, operationID)); err != nil {
		log.Printf("Failed to invalidate delete operation cache: %v", err)
	}

	return op, nil
}

// ListRecentDeleteOperations retrieves operations for a container within the
// retention window, most recent first.
func (d Datasource) ListRecentDeleteOperations(ctx context.Context, containerID string, limit int, window time.Duration) ([]*model.DeleteOperation, error) {
	ctx, span := otel.Tracer("DeleteOperation").Start(ctx, "Listing recent delete operations")
	defer span.End()

	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+deleteOperationColumns+`
		FROM arbor.delete_operations
		WHERE container_id = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT $3
	`, containerID, time.Now().Add(-window), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to list delete operations", err)
	}
	defer rows.Close()

	var operations []*model.DeleteOperation
	for rows.Next() {
		op, err := scanDeleteOperation(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan delete operation", err)
		}
		operations = append(operations, op)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over delete operations", err)
	}

	return operations, nil
}

// CountLiveDeleteOperations counts non-terminal operations created by an
// actor in a container. The rate limiter derives its admission decision from
// this query instead of keeping a separate counter that could drift.
func (d Datasource) CountLiveDeleteOperations(ctx context.Context, containerID, actorID string) (int, error) {
	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM arbor.delete_operations
		WHERE container_id = $1 AND created_by = $2 AND status IN ($3, $4)
	`, containerID, actorID, model.StatusPending, model.StatusInProgress).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count live delete operations", err)
	}
	return count, nil
}

// CountLiveDeleteOperationsForRoot counts non-terminal operations already
// targeting a root node, regardless of actor.
func (d Datasource) CountLiveDeleteOperationsForRoot(ctx context.Context, containerID, rootNodeID string) (int, error) {
	var count int
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM arbor.delete_operations
		WHERE container_id = $1 AND root_node_id = $2 AND status IN ($3, $4)
	`, containerID, rootNodeID, model.StatusPending, model.StatusInProgress).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count live delete operations for root", err)
	}
	return count, nil
}

// GetStalledDeleteOperations retrieves operations stuck in_progress past the
// threshold, oldest first. The recovery poller re-enqueues these after a
// worker crash.
func (d Datasource) GetStalledDeleteOperations(ctx context.Context, threshold time.Duration, limit int) ([]*model.DeleteOperation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+deleteOperationColumns+`
		FROM arbor.delete_operations
		WHERE status = $1 AND started_at < $2
		ORDER BY started_at
		LIMIT $3
	`, model.StatusInProgress, time.Now().Add(-threshold), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get stalled delete operations", err)
	}
	defer rows.Close()

	var operations []*model.DeleteOperation
	for rows.Next() {
		op, err := scanDeleteOperation(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan delete operation", err)
		}
		operations = append(operations, op)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over delete operations", err)
	}

	return operations, nil
}

// GetPendingDeleteOperations retrieves operations that have sat pending
// longer than olderThan, oldest first. These are operations whose queue task
// was lost before a worker picked it up.
func (d Datasource) GetPendingDeleteOperations(ctx context.Context, olderThan time.Duration, limit int) ([]*model.DeleteOperation, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT `+deleteOperationColumns+`
		FROM arbor.delete_operations
		WHERE status = $1 AND created_at < $2
		ORDER BY created_at
		LIMIT $3
	`, model.StatusPending, time.Now().Add(-olderThan), limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to get pending delete operations", err)
	}
	defer rows.Close()

	var operations []*model.DeleteOperation
	for rows.Next() {
		op, err := scanDeleteOperation(rows)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan delete operation", err)
		}
		operations = append(operations, op)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over delete operations", err)
	}

	return operations, nil
}
