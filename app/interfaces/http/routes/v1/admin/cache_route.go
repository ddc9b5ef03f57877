package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"hydrogen.im/hydrogen-worker/app/domain/assetcache"
	"hydrogen.im/hydrogen-worker/app/interfaces/http/responses"
	"hydrogen.im/hydrogen-worker/app/utils/logger"
)

// CacheRoute exposes the cache namespaces for inspection.
type CacheRoute struct {
	storage assetcache.Storage
}

func NewCacheRoute(storage assetcache.Storage) *CacheRoute {
	return &CacheRoute{
		storage: storage,
	}
}

func (route *CacheRoute) RegisterRouter(router gin.IRouter) {
	router.GET("/caches", route.ListCaches)
	router.DELETE("/caches/:name", route.DeleteCache)
}

type CacheNamespaceResponse struct {
	Object  string `json:"object"`
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// ListCaches godoc
// @Summary     List cache namespaces
// @Tags        admin
// @Produce     json
// @Security    BearerAuth
// @Success     200 {object} responses.GeneralResponse[[]CacheNamespaceResponse]
// @Failure     500 {object} responses.ErrorResponse
// @Router      /v1/admin/caches [get]
func (route *CacheRoute) ListCaches(reqCtx *gin.Context) {
	ctx := reqCtx.Request.Context()
	names, err := route.storage.Names(ctx)
	if err != nil {
		logger.GetLogger().Errorf("admin cache: failed to list caches: %v", err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
			Code:  "b0c4f1c8-2a3b-4ad4-8b1d-7a2124d7c7b1",
			Error: "failed to list caches",
		})
		return
	}

	result := make([]CacheNamespaceResponse, 0, len(names))
	for _, name := range names {
		ns, err := route.storage.Open(ctx, name)
		if err != nil {
			logger.GetLogger().Errorf("admin cache: failed to open %s: %v", name, err)
			reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
				Code:  "2d7e4a91-6c0b-4f3e-9a58-b1c3e6d2f047",
				Error: "failed to open cache",
			})
			return
		}
		keys, err := ns.Keys(ctx)
		if err != nil {
			logger.GetLogger().Errorf("admin cache: failed to list keys of %s: %v", name, err)
			reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
				Code:  "f4a9c2d6-1b7e-4e03-8d5f-93a0b6c1e278",
				Error: "failed to list cache entries",
			})
			return
		}
		result = append(result, CacheNamespaceResponse{
			Object:  "cache.namespace",
			Name:    name,
			Entries: len(keys),
		})
	}

	reqCtx.JSON(http.StatusOK, responses.GeneralResponse[[]CacheNamespaceResponse]{
		Status: responses.ResponseCodeOk,
		Result: result,
	})
}

// DeleteCache godoc
// @Summary     Delete a cache namespace
// @Description The next activation or on-request fetch repopulates what is still needed.
// @Tags        admin
// @Security    BearerAuth
// @Param       name path string true "namespace name"
// @Success     204
// @Failure     404 {object} responses.ErrorResponse
// @Router      /v1/admin/caches/{name} [delete]
func (route *CacheRoute) DeleteCache(reqCtx *gin.Context) {
	name := reqCtx.Param("name")
	removed, err := route.storage.Delete(reqCtx.Request.Context(), name)
	if err != nil {
		logger.GetLogger().Errorf("admin cache: failed to delete %s: %v", name, err)
		reqCtx.AbortWithStatusJSON(http.StatusInternalServerError, responses.ErrorResponse{
			Code:  "7a1e3c5b-d802-4f96-a4b7-0c2e9d8f6153",
			Error: "failed to delete cache",
		})
		return
	}
	if !removed {
		reqCtx.AbortWithStatusJSON(http.StatusNotFound, responses.ErrorResponse{
			Code:  "e6b8d2f0-4c19-4a7d-b3e5-71f0a9c4d826",
			Error: "cache not found",
		})
		return
	}
	reqCtx.Status(http.StatusNoContent)
}
