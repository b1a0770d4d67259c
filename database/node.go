package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/arborhq/arbor/internal/apierror"
	"github.com/arborhq/arbor/model"
	"github.com/lib/pq"
)

func (d Datasource) CreateNode(ctx context.Context, n model.Node) (model.Node, error) {
	n.NodeID = model.GenerateUUIDWithSuffix("nd")
	n.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO arbor.nodes (node_id, container_id, parent_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, n.NodeID, n.ContainerID, n.ParentID, n.Name, n.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok {
			switch pqErr.Code.Name() {
			case "unique_violation":
				return model.Node{}, apierror.NewAPIError(apierror.ErrConflict, "Node with this ID already exists", err)
			default:
				return model.Node{}, apierror.NewAPIError(apierror.ErrInternalServer, "Database error occurred", err)
			}
		}
		return model.Node{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create node", err)
	}

	return n, nil
}

func (d Datasource) GetNode(ctx context.Context, containerID, nodeID string) (*model.Node, error) {
	n := model.Node{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT id, node_id, container_id, parent_id, name, is_deleted, deleted_at, deleted_by, expires_after, created_at
		FROM arbor.nodes
		WHERE container_id = $1 AND node_id = $2
	`, containerID, nodeID)

	err := row.Scan(&n.ID, &n.NodeID, &n.ContainerID, &n.ParentID, &n.Name, &n.IsDeleted, &n.DeletedAt, &n.DeletedBy, &n.ExpiresAfter, &n.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrNotFound, "Node not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve node", err)
	}

	return &n, nil
}

// CountChildNodes counts the live direct children of a node. Soft-deleted
// children do not count against the has-children check.
func (d Datasource) CountChildNodes(ctx context.Context, containerID, parentID string) (int64, error) {
	var count int64
	err := d.Conn.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM arbor.nodes
		WHERE container_id = $1 AND parent_id = $2 AND is_deleted = FALSE
	`, containerID, parentID).Scan(&count)
	if err != nil {
		return 0, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to count child nodes", err)
	}
	return count, nil
}

// GetChildNodes retrieves the direct children of a node in a paginated
// manner, deleted children included. The cascade processor uses this to
// advance the traversal frontier one level at a time; an already-deleted
// child still gets walked through, since its own subtree may hold live nodes
// left behind by an interrupted attempt.
func (d Datasource) GetChildNodes(ctx context.Context, containerID, parentID string, limit int, offset int64) ([]*model.Node, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT id, node_id, container_id, parent_id, name, is_deleted, deleted_at, deleted_by, expires_after, created_at
		FROM arbor.nodes
		WHERE container_id = $1 AND parent_id = $2
		ORDER BY id
		LIMIT $3 OFFSET $4
	`, containerID, parentID, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve child nodes", err)
	}
	defer rows.Close()

	var nodes []*model.Node
	for rows.Next() {
		n := model.Node{}
		err = rows.Scan(&n.ID, &n.NodeID, &n.ContainerID, &n.ParentID, &n.Name, &n.IsDeleted, &n.DeletedAt, &n.DeletedBy, &n.ExpiresAfter, &n.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan node data", err)
		}
		nodes = append(nodes, &n)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over nodes", err)
	}

	return nodes, nil
}

// SoftDeleteNode marks a single node deleted, stamping actor, time and the
// retention window after which the store may purge the document. The write
// is conditional on the node still being live, which makes it idempotent:
// marking an already-deleted node again affects zero rows and returns false.
func (d Datasource) SoftDeleteNode(ctx context.Context, containerID, nodeID, actor string, retention time.Duration) (bool, error) {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE arbor.nodes
		SET is_deleted = TRUE, deleted_at = $3, deleted_by = $4, expires_after = $5
		WHERE container_id = $1 AND node_id = $2 AND is_deleted = FALSE
	`, containerID, nodeID, time.Now(), actor, int64(retention.Seconds()))
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to soft delete node", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read soft delete result", err)
	}

	return affected == 1, nil
}
