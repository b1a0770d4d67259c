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
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	model2 "github.com/arborhq/arbor/api/model"
	"github.com/arborhq/arbor/internal/apierror"
)

// InitiateDelete accepts a delete request and returns 202 with the ledger
// entry. The Location header points at the operation's status resource.
func (a Api) InitiateDelete(c *gin.Context) {
	containerID, _ := c.Params.Get("container_id")
	nodeID, passed := c.Params.Get("node_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "node_id is required. pass node_id in the route"})
		return
	}

	var req model2.InitiateDelete
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidateInitiateDelete(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.arbor.InitiateDelete(c.Request.Context(), containerID, nodeID, req.Actor, req.CascadeOrDefault())
	if err != nil {
		status := apierror.MapErrorToHTTPStatus(err)
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", "60")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.Header("Location", fmt.Sprintf("/containers/%s/delete-operations/%s", containerID, resp.OperationID))
	c.JSON(http.StatusAccepted, resp)
}

func (a Api) GetDeleteOperation(c *gin.Context) {
	containerID, _ := c.Params.Get("container_id")
	operationID, passed := c.Params.Get("operation_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation_id is required. pass operation_id in the route"})
		return
	}

	resp, err := a.arbor.GetDeleteOperation(c.Request.Context(), containerID, operationID)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) ListDeleteOperations(c *gin.Context) {
	containerID, _ := c.Params.Get("container_id")

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be an integer"})
			return
		}
		limit = parsed
	}

	resp, err := a.arbor.ListRecentDeleteOperations(c.Request.Context(), containerID, limit)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"delete_operations": resp})
}

func (a Api) RetryDeleteOperation(c *gin.Context) {
	containerID, _ := c.Params.Get("container_id")
	operationID, passed := c.Params.Get("operation_id")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operation_id is required. pass operation_id in the route"})
		return
	}

	var req model2.RetryDelete
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	if err := req.ValidateRetryDelete(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"errors": err.Error()})
		return
	}

	resp, err := a.arbor.RetryDeleteOperation(c.Request.Context(), containerID, operationID, req.Actor)
	if err != nil {
		status := apierror.MapErrorToHTTPStatus(err)
		if status == http.StatusTooManyRequests {
			c.Header("Retry-After", "60")
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, resp)
}

// RecoverDeleteOperations triggers an immediate recovery pass over stalled
// and dropped operations, ahead of the background poller's next tick.
func (a Api) RecoverDeleteOperations(c *gin.Context) {
	threshold := 10 * time.Minute
	if raw := c.Query("threshold_minutes"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "threshold_minutes must be a positive integer"})
			return
		}
		threshold = time.Duration(parsed) * time.Minute
	}

	recovered, err := a.arbor.RecoverDeleteOperations(c.Request.Context(), threshold)
	if err != nil {
		c.JSON(apierror.MapErrorToHTTPStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"recovered": recovered})
}
