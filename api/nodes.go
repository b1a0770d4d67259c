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
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	model2 "github.com/arborhq/arbor/api/model"
	"github.com/arborhq/arbor/internal/apierror"
)

func (a Api) CreateNode(c *gin.Context) {
	containerID, passed := c.Params.Get("container_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "container_id is required. pass container_id in the route"})
		return
	}

	var newNode model2.CreateNode
	if err := c.ShouldBindJSON(&newNode); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := newNode.ValidateCreateNode(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.arbor.CreateNode(c.Request.Context(), newNode.ToNode(containerID))
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, resp)
}

func (a Api) GetNode(c *gin.Context) {
	containerID, _ := c.Params.Get("container_id")
	nodeID, passed := c.Params.Get("node_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node_id is required. pass node_id in the route"})
		return
	}

	resp, err := a.arbor.GetNode(c.Request.Context(), containerID, nodeID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}
