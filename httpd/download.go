package httpd

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/httpd/response"
	"github.com/oddbit-project/s3browser/s3api"
)

func (a *API) downloadURL(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")

	var ttl time.Duration
	if raw := ctx.Query("ttl"); raw != "" {
		seconds, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			response.AbortWithKind(ctx, apperr.InvalidInput, "ttl must be an integer number of seconds")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}
	if _, err := s3api.SanitizeKey(ctx.Query("key")); err != nil {
		response.Error(ctx, err)
		return
	}

	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	url, err := a.download.Presign(ctx.Request.Context(), client, bucket,
		ctx.Query("key"), ctx.Query("versionId"), ttl)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, gin.H{"url": url})
}

func (a *API) previewObject(ctx *gin.Context) {
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
	body, contentType, err := a.download.Preview(ctx.Request.Context(), client, bucket, ctx.Query("key"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if contentType == "" {
		contentType = "text/plain; charset=utf-8"
	}
	ctx.Data(http.StatusOK, contentType, []byte(body))
}
