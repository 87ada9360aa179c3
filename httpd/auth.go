package httpd

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/httpd/response"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/services"
	"github.com/oddbit-project/s3browser/vault"
)

type loginRequest struct {
	Password string `json:"password"`
}

func (a *API) login(ctx *gin.Context) {
	var req loginRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	sess, err := a.sessions.Login(req.Password)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	a.setSessionCookie(ctx, sess.ID)
	response.NoContent(ctx)
}

func (a *API) logout(ctx *gin.Context) {
	a.sessions.Logout(ctx.GetString(ctxSessionID))
	a.clearSessionCookie(ctx)
	response.NoContent(ctx)
}

func (a *API) sessionStatus(ctx *gin.Context) {
	sess := a.currentSession(ctx)
	body := gin.H{"ok": true}
	if sess != nil && sess.ConnectionID != 0 {
		body["connectionId"] = sess.ConnectionID
	}
	response.JSON(ctx, http.StatusOK, body)
}

func (a *API) listConnections(ctx *gin.Context) {
	connections, err := a.vault.ListConnections()
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, connections)
}

func (a *API) saveConnection(ctx *gin.Context) {
	var req vault.SaveRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		response.AbortWithKind(ctx, apperr.InvalidInput, "invalid request body")
		return
	}
	conn, err := a.vault.SaveConnection(&req)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	// credentials may have changed; cached clients are stale
	a.factory.Evict(conn.ID)
	response.JSON(ctx, http.StatusOK, conn)
}

func (a *API) deleteConnection(ctx *gin.Context) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	deleted, err := a.vault.DeleteConnection(id)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	if deleted {
		a.factory.Evict(id)
	}
	response.JSON(ctx, http.StatusOK, gin.H{"deleted": deleted})
}

func (a *API) bindConnection(ctx *gin.Context) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	// the profile must exist before binding
	if _, err = a.vault.GetConnection(id); err != nil {
		response.Error(ctx, err)
		return
	}
	if err = a.sessions.BindConnection(ctx.GetString(ctxSessionID), id); err != nil {
		response.Error(ctx, err)
		return
	}
	a.logger.Info("connection bound to session", log.KV{"connection_id": id})
	response.JSON(ctx, http.StatusOK, gin.H{"ok": true})
}

func (a *API) exportProfile(ctx *gin.Context) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	format := ctx.DefaultQuery("format", services.ExportFormatAWS)
	result, err := a.export.Export(id, format, ctx.Query("bucket"))
	if err != nil {
		response.Error(ctx, err)
		return
	}
	// the response carries plaintext credentials
	ctx.Header("Cache-Control", "no-store")
	response.JSON(ctx, http.StatusOK, result)
}

func (a *API) listBuckets(ctx *gin.Context) {
	connID, err := paramInt64(ctx, "connId")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	client, _, err := a.client(ctx, connID, "")
	if err != nil {
		response.Error(ctx, err)
		return
	}
	buckets, err := client.ListBuckets(ctx.Request.Context())
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, buckets)
}

func (a *API) bucketInfoHandler(ctx *gin.Context) {
	connID, _ := paramInt64(ctx, "connId")
	bucket := ctx.Param("bucket")
	client, _, err := a.client(ctx, connID, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	info, err := a.bucketInfo.Inspect(ctx.Request.Context(), client, bucket)
	if err != nil {
		response.Error(ctx, err)
		return
	}
	response.JSON(ctx, http.StatusOK, info)
}
