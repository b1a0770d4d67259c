package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/pkg/errors"

	"github.com/arborhq/arbor/config"
	"github.com/arborhq/arbor/internal/cache"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		cacheInstance, errCache := cache.NewCache()
		if errCache != nil {
			err = errors.Wrap(errCache, "creating cache")
			return
		}
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: cacheInstance}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, errors.Wrap(err, "opening database connection")
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, errors.Wrap(err, "pinging database")
	}
	err = createSchema(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating schema")
	}
	err = createNodeTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating nodes table")
	}
	err = createDeleteOperationTable(db)
	if err != nil {
		return nil, errors.Wrap(err, "creating delete_operations table")
	}
	return db, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE SCHEMA IF NOT EXISTS arbor`)
	return err
}

// createNodeTable creates the PostgreSQL table for hierarchy nodes. The
// deletion fields stay NULL until a node is soft deleted.
func createNodeTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS arbor.nodes (
			id SERIAL PRIMARY KEY,
			node_id TEXT NOT NULL,
			container_id TEXT NOT NULL,
			parent_id TEXT,
			name TEXT NOT NULL,
			is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
			deleted_at TIMESTAMP,
			deleted_by TEXT,
			expires_after BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (container_id, node_id)
		);
		CREATE INDEX IF NOT EXISTS idx_nodes_parent ON arbor.nodes (container_id, parent_id);
	`)
	return err
}

// createDeleteOperationTable creates the PostgreSQL table for the delete
// operation ledger. The version column is the optimistic concurrency token
// used when a worker claims a pending operation.
func createDeleteOperationTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS arbor.delete_operations (
			id SERIAL PRIMARY KEY,
			operation_id TEXT NOT NULL UNIQUE,
			container_id TEXT NOT NULL,
			root_node_id TEXT NOT NULL,
			root_node_name TEXT NOT NULL,
			status TEXT NOT NULL,
			cascade BOOLEAN NOT NULL,
			total_nodes INTEGER NOT NULL DEFAULT 0,
			deleted_count INTEGER NOT NULL DEFAULT 0,
			failed_count INTEGER NOT NULL DEFAULT 0,
			failed_node_ids TEXT[] NOT NULL DEFAULT '{}',
			error_detail TEXT,
			created_by TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			started_at TIMESTAMP,
			completed_at TIMESTAMP,
			expires_after BIGINT NOT NULL,
			version INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_delete_operations_container ON arbor.delete_operations (container_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_delete_operations_status ON arbor.delete_operations (status);
	`)
	return err
}
