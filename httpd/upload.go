package httpd

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/httpd/response"
	"github.com/oddbit-project/s3browser/s3api"
)

type initiateRequest struct {
	ConnID      int64  `json:"connId"`
	Bucket      string `json:"bucket"`
	Key         string `json:"key"`
	ContentType string `json:"contentType"`
	FileSize    int64  `json:"fileSize"`
}

type completeRequest struct {
	ConnID   int64                 `json:"connId"`
	Bucket   string                `json:"bucket"`
	UploadID string                `json:"uploadId"`
	Key      string                `json:"key"`
	Parts    []s3api.CompletedPart `json:"parts"`
}

type abortRequest struct {
	ConnID   int64  `json:"connId"`
	Bucket   string `json:"bucket"`
	UploadID string `json:"uploadId"`
	Key      string `json:"key"`
}

// requireBound checks that the session's active connection matches the
// connId carried in the request body or query
func (a *API) requireBound(ctx *gin.Context, connID int64) error {
	if connID < 1 {
		return apperr.New(apperr.InvalidInput, "invalid connId")
	}
	sess := a.currentSession(ctx)
	if sess == nil || sess.ConnectionID == 0 {
		return apperr.New(apperr.Forbidden, "no connection bound to session")
	}
	if sess.ConnectionID != connID {
		return apperr.New(apperr.Forbidden, "connection not bound to session")
	}
	return nil
}

func queryInt64(ctx *gin.Context, name string) (int64, error) {
	value, err := strconv.ParseInt(ctx.Query(name), 10, 64)
	if err != nil {
		return 0, apperr.Newf(apperr.InvalidInput, "invalid %s", name)
	}
	return value, nil
}

func (a *API) uploadInitiate(ctx *gin.Context) {
	var req initiateRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if err := a.requireBound(ctx, req.ConnID); err != nil {
		response.Error(ctx, err)
		return
	}
	if _, err := s3api.SanitizeDestinationKey(req.Key); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, req.ConnID, req.Bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	result, err := a.upload.Initiate(ctx.Request.Context(), client, req.ConnID,
		req.Bucket, req.Key, req.ContentType, req.FileSize)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, result)
}

func (a *API) uploadPart(ctx *gin.Context) {
	connID, err := queryInt64(ctx, "connId")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if err = a.requireBound(ctx, connID); err != nil {
		response.Error(ctx, err)
		return
	}
	partNumber, err := queryInt64(ctx, "partNumber")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	bucket := ctx.Query("bucket")
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	etag, err := a.upload.UploadPart(ctx.Request.Context(), client, connID, bucket,
		ctx.Query("uploadId"), ctx.Query("key"), int(partNumber),
		ctx.Request.Body, ctx.Request.ContentLength)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, gin.H{"etag": etag})
}

func (a *API) uploadComplete(ctx *gin.Context) {
	var req completeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if err := a.requireBound(ctx, req.ConnID); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, req.ConnID, req.Bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	key, err := a.upload.Complete(ctx.Request.Context(), client, req.ConnID,
		req.Bucket, req.UploadID, req.Key, req.Parts)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, gin.H{"success": true, "key": key})
}

func (a *API) uploadAbort(ctx *gin.Context) {
	var req abortRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	if err := a.requireBound(ctx, req.ConnID); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, req.ConnID, req.Bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if err = a.upload.Abort(ctx.Request.Context(), client, req.ConnID,
		req.Bucket, req.UploadID, req.Key); err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, gin.H{"success": true})
}

func (a *API) uploadSingle(ctx *gin.Context) {
	connID, err := queryInt64(ctx, "connId")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if err = a.requireBound(ctx, connID); err != nil {
		response.Error(ctx, err)
		return
	}
	bucket := ctx.Query("bucket")
	if _, err = s3api.SanitizeDestinationKey(ctx.Query("key")); err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	key, err := a.upload.PutSingle(ctx.Request.Context(), client, bucket,
		ctx.Query("key"), ctx.ContentType(), ctx.Request.Body, ctx.Request.ContentLength)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, gin.H{"success": true, "key": key})
}
