package database

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arborhq/arbor/internal/apierror"
	"github.com/arborhq/arbor/model"
)

type mockCache struct {
	data map[string]interface{}
}

func newMockCache() *mockCache {
	return &mockCache{data: make(map[string]interface{})}
}

func (m *mockCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	m.data[key] = value
	return nil
}

func (m *mockCache) Get(ctx context.Context, key string, data interface{}) error {
	if v, ok := m.data[key]; ok {
		switch d := data.(type) {
		case *model.DeleteOperation:
			*d = *v.(*model.DeleteOperation)
		}
		return nil
	}
	return errors.New("cache miss")
}

func (m *mockCache) Delete(ctx context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func newTestDatasource(t *testing.T) (Datasource, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return Datasource{Conn: db, Cache: newMockCache()}, mock
}

func TestCreateNode(t *testing.T) {
	ds, mock := newTestDatasource(t)

	node := model.Node{
		ContainerID: "cnt_" + gofakeit.UUID(),
		Name:        gofakeit.Word(),
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO arbor.nodes")).
		WithArgs(sqlmock.AnyArg(), node.ContainerID, nil, node.Name, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateNode(context.Background(), node)
	require.NoError(t, err)
	assert.Contains(t, created.NodeID, "nd_")
	assert.False(t, created.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateNodeDuplicate(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO arbor.nodes")).
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := ds.CreateNode(context.Background(), model.Node{ContainerID: "cnt_1", Name: "docs"})
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrConflict, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetNodeNotFound(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, node_id, container_id, parent_id, name, is_deleted, deleted_at, deleted_by, expires_after, created_at")).
		WithArgs("cnt_1", "nd_missing").
		WillReturnError(sql.ErrNoRows)

	_, err := ds.GetNode(context.Background(), "cnt_1", "nd_missing")
	require.Error(t, err)
	apiErr, ok := err.(apierror.APIError)
	require.True(t, ok)
	assert.Equal(t, apierror.ErrNotFound, apiErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetChildNodes(t *testing.T) {
	ds, mock := newTestDatasource(t)

	now := time.Now()
	parent := "nd_parent"
	rows := sqlmock.NewRows([]string{"id", "node_id", "container_id", "parent_id", "name", "is_deleted", "deleted_at", "deleted_by", "expires_after", "created_at"}).
		AddRow(2, "nd_a", "cnt_1", parent, "a", false, nil, nil, nil, now).
		AddRow(3, "nd_b", "cnt_1", parent, "b", true, &now, "usr_1", int64(3600), now)

	// Deleted children come back too; the traversal needs them to reach
	// live nodes deeper down.
	mock.ExpectQuery(regexp.QuoteMeta("WHERE container_id = $1 AND parent_id = $2")).
		WithArgs("cnt_1", parent, 10, int64(0)).
		WillReturnRows(rows)

	children, err := ds.GetChildNodes(context.Background(), "cnt_1", parent, 10, 0)
	require.NoError(t, err)
	require.Len(t, children, 2)
	assert.Equal(t, "nd_a", children[0].NodeID)
	assert.Equal(t, parent, *children[1].ParentID)
	assert.True(t, children[1].IsDeleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteNode(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE arbor.nodes")).
		WithArgs("cnt_1", "nd_1", sqlmock.AnyArg(), "usr_1", int64((90 * 24 * time.Hour).Seconds())).
		WillReturnResult(sqlmock.NewResult(0, 1))

	applied, err := ds.SoftDeleteNode(context.Background(), "cnt_1", "nd_1", "usr_1", 90*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSoftDeleteNodeAlreadyDeleted(t *testing.T) {
	ds, mock := newTestDatasource(t)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE arbor.nodes")).
		WithArgs("cnt_1", "nd_1", sqlmock.AnyArg(), "usr_1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	applied, err := ds.SoftDeleteNode(context.Background(), "cnt_1", "nd_1", "usr_1", time.Hour)
	require.NoError(t, err)
	assert.False(t, applied)
	assert.NoError(t, mock.ExpectationsWereMet())
}
