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
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/arborhq/arbor/model"
)

// CreateNode is the request body for registering a node in a container.
type CreateNode struct {
	Name     string  `json:"name"`
	ParentID *string `json:"parent_id,omitempty"`
}

func (n *CreateNode) ValidateCreateNode() error {
	return validation.ValidateStruct(n,
		validation.Field(&n.Name, validation.Required, validation.Length(1, 255)),
	)
}

func (n *CreateNode) ToNode(containerID string) model.Node {
	return model.Node{
		ContainerID: containerID,
		ParentID:    n.ParentID,
		Name:        n.Name,
	}
}

// InitiateDelete is the request body for starting a delete operation. Actor
// identifies the requesting principal; Cascade defaults to true when the
// body omits it.
type InitiateDelete struct {
	Actor   string `json:"actor"`
	Cascade *bool  `json:"cascade,omitempty"`
}

func (d *InitiateDelete) ValidateInitiateDelete() error {
	return validation.ValidateStruct(d,
		validation.Field(&d.Actor, validation.Required),
	)
}

func (d *InitiateDelete) CascadeOrDefault() bool {
	if d.Cascade == nil {
		return true
	}
	return *d.Cascade
}

// RetryDelete is the request body for retrying a failed or partial
// operation.
type RetryDelete struct {
	Actor string `json:"actor"`
}

func (r *RetryDelete) ValidateRetryDelete() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Actor, validation.Required),
	)
}
