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
	"github.com/gin-gonic/gin"

	"github.com/arborhq/arbor"
	"github.com/arborhq/arbor/api/middleware"
	"github.com/arborhq/arbor/config"
)

type Api struct {
	arbor  *arbor.Arbor
	router *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/containers/:container_id/nodes", a.CreateNode)
	router.GET("/containers/:container_id/nodes/:node_id", a.GetNode)
	router.POST("/containers/:container_id/nodes/:node_id/delete", a.InitiateDelete)

	router.GET("/containers/:container_id/delete-operations", a.ListDeleteOperations)
	router.GET("/containers/:container_id/delete-operations/:operation_id", a.GetDeleteOperation)
	router.POST("/containers/:container_id/delete-operations/:operation_id/retry", a.RetryDeleteOperation)

	router.POST("/delete-operations/recover", a.RecoverDeleteOperations)

	return a.router
}

func NewAPI(a *arbor.Arbor) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(middleware.RateLimitMiddleware(conf))
	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return &Api{arbor: a, router: r}
}
