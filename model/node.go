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

import "time"

// Node represents a single entity in a container hierarchy. A node with a nil
// ParentID is a root. The deletion fields are only ever set together: a live
// node carries none of them, a soft-deleted node carries all of them.
type Node struct {
	ID           int64      `json:"-"`
	NodeID       string     `json:"node_id"`
	ContainerID  string     `json:"container_id"`
	ParentID     *string    `json:"parent_id,omitempty"`
	Name         string     `json:"name"`
	IsDeleted    bool       `json:"is_deleted"`
	DeletedAt    *time.Time `json:"deleted_at,omitempty"`
	DeletedBy    *string    `json:"deleted_by,omitempty"`
	ExpiresAfter *int64     `json:"expires_after,omitempty"` // seconds until purge, set only once deleted
	CreatedAt    time.Time  `json:"created_at"`
}

// MarkDeleted sets the soft-delete fields on the node. Retention is attached
// at deletion time so the store can expire the document on its own.
func (n *Node) MarkDeleted(actor string, retention time.Duration, at time.Time) {
	ttl := int64(retention.Seconds())
	n.IsDeleted = true
	n.DeletedAt = &at
	n.DeletedBy = &actor
	n.ExpiresAfter = &ttl
}

// ClearDeletion reverses MarkDeleted. Restore itself lives outside this
// engine, but the field contract has to support it.
func (n *Node) ClearDeletion() {
	n.IsDeleted = false
	n.DeletedAt = nil
	n.DeletedBy = nil
	n.ExpiresAfter = nil
}
