package httpd

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/httpd/response"
	"github.com/oddbit-project/s3browser/s3api"
	"github.com/oddbit-project/s3browser/services"
)

type batchDeleteRequest struct {
	Keys []s3api.ObjectIdentifier `json:"keys"`
}

type folderRequest struct {
	Path string `json:"path"`
}

type copyRequest struct {
	SourceKey      string `json:"sourceKey"`
	DestinationKey string `json:"destinationKey"`
	VersionID      string `json:"versionId,omitempty"`
}

type batchCopyRequest struct {
	Operations []services.CopyOperation `json:"operations"`
}

type seedRequest struct {
	Prefix string `json:"prefix"`
}

func (a *API) listObjects(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	if _, err := s3api.SanitizePrefix(ctx.Query("prefix")); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	window, err := a.listing.ListWindow(ctx.Request.Context(), client, bucket,
		ctx.Query("prefix"), ctx.Query("continuationToken"), ctx.Query("versions") == "1")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, window)
}

func (a *API) objectMetadata(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	if _, err := s3api.SanitizeKey(ctx.Query("key")); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	details, err := a.download.Metadata(ctx.Request.Context(), client, bucket,
		ctx.Query("key"), ctx.Query("versionId"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, details)
}

// deleteObject removes one object; a key ending in / triggers the
// recursive folder delete
func (a *API) deleteObject(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	key := ctx.Query("key")
	if _, err := s3api.SanitizeKey(key); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if strings.HasSuffix(key, "/") {
		result, err := a.mutation.DeleteFolder(ctx.Request.Context(), client, bucket, key)
		if err != nil {
			response.Error(ctx, err)
			return
		}
		if len(result.Errors) > 0 {
			response.JSON(ctx, http.StatusOK, result)
			return
		}
		response.NoContent(ctx)
		return
	}
	if err = a.mutation.Delete(ctx.Request.Context(), client, bucket, key, ctx.Query("versionId")); err != nil {
		response.Error(ctx, err)
		return
	}
	response.NoContent(ctx)
}

func (a *API) batchDelete(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	var req batchDeleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if len(req.Keys) == 0 {
		response.AbortWithKind(ctx, apperr.InvalidInput, "key list cannot be empty")
		return
	}
	if err := services.ValidateDeleteItems(req.Keys); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	result, err := a.mutation.BatchDelete(ctx.Request.Context(), client, bucket, req.Keys)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, result)
}

func (a *API) createFolder(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	var req folderRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if _, err := s3api.SanitizeFolderPath(req.Path); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if err = a.mutation.CreateFolder(ctx.Request.Context(), client, bucket, req.Path); err != nil {
		response.Error(ctx, err)
		return
	}
	response.NoContent(ctx)
}

func (a *API) copyObject(ctx *gin.Context) {
	a.copyOrMove(ctx, false)
}

func (a *API) moveObject(ctx *gin.Context) {
	a.copyOrMove(ctx, true)
}

func (a *API) copyOrMove(ctx *gin.Context, move bool) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	var req copyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if _, err := s3api.SanitizeKey(req.SourceKey); err != nil {
		response.Error(ctx, err)
		return
	}
	if _, err := s3api.SanitizeDestinationKey(req.DestinationKey); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if move {
		err = a.mutation.Move(ctx.Request.Context(), client, bucket,
			req.SourceKey, req.DestinationKey, req.VersionID)
	} else {
		err = a.mutation.Copy(ctx.Request.Context(), client, bucket,
			req.SourceKey, req.DestinationKey, req.VersionID)
	}
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.NoContent(ctx)
}

func (a *API) batchCopy(ctx *gin.Context) {
	a.batchCopyOrMove(ctx, false)
}

func (a *API) batchMove(ctx *gin.Context) {
	a.batchCopyOrMove(ctx, true)
}

func (a *API) batchCopyOrMove(ctx *gin.Context, move bool) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	var req batchCopyRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if len(req.Operations) == 0 {
		response.AbortWithKind(ctx, apperr.InvalidInput, "operation list cannot be empty")
		return
	}
	if err := services.ValidateCopyOperations(req.Operations); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	var result *services.BatchCopyResult
	if move {
		result, err = a.mutation.BatchMove(ctx.Request.Context(), client, bucket, req.Operations)
	} else {
		result, err = a.mutation.BatchCopy(ctx.Request.Context(), client, bucket, req.Operations)
	}
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, result)
}

func (a *API) seedTestItems(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	var req seedRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if _, err := s3api.SanitizeFolderPath(req.Prefix); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	result, err := a.mutation.SeedTestItems(ctx.Request.Context(), client, bucket, req.Prefix)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, result)
}
