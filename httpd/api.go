package httpd

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/oddbit-project/s3browser/apperr"
	"github.com/oddbit-project/s3browser/httpd/response"
	"github.com/oddbit-project/s3browser/log"
	"github.com/oddbit-project/s3browser/s3api"
	"github.com/oddbit-project/s3browser/services"
	"github.com/oddbit-project/s3browser/session"
	"github.com/oddbit-project/s3browser/vault"
)

const (
	ctxSession   = "api_session"
	ctxSessionID = "api_session_id"
)

// ClientProvider resolves S3 clients for connection profiles; the
// s3api.Factory is the production implementation, tests inject fakes
type ClientProvider interface {
	GetClient(ctx context.Context, connectionID int64, bucket string) (s3api.API, *vault.Connection, error)
	Evict(connectionID int64)
}

// API aggregates the handlers of the /api surface
type API struct {
	vault    *vault.Vault
	sessions *session.Store
	factory  ClientProvider

	listing    *services.ListingService
	bucketInfo *services.BucketInfoService
	upload     *services.UploadService
	mutation   *services.MutationService
	download   *services.DownloadService
	export     *services.ProfileExportService

	logger        *log.Logger
	secureCookies bool
	enableSeed    bool
}

// Deps carries the constructed collaborators of the API
type Deps struct {
	Vault    *vault.Vault
	Sessions *session.Store
	Factory  ClientProvider

	Listing    *services.ListingService
	BucketInfo *services.BucketInfoService
	Upload     *services.UploadService
	Mutation   *services.MutationService
	Download   *services.DownloadService
	Export     *services.ProfileExportService

	Logger        *log.Logger
	SecureCookies bool
	EnableSeed    bool
}

func NewAPI(deps Deps) *API {
	logger := deps.Logger
	if logger == nil {
		logger = log.New("api")
	}
	return &API{
		vault:         deps.Vault,
		sessions:      deps.Sessions,
		factory:       deps.Factory,
		listing:       deps.Listing,
		bucketInfo:    deps.BucketInfo,
		upload:        deps.Upload,
		mutation:      deps.Mutation,
		download:      deps.Download,
		export:        deps.Export,
		logger:        logger,
		secureCookies: deps.SecureCookies,
		enableSeed:    deps.EnableSeed,
	}
}

// Register mounts every route under group; group is expected to be
// /api
func (a *API) Register(group *gin.RouterGroup) {
	group.GET("/health", a.health)
	group.POST("/auth/login", a.login)

	authed := group.Group("")
	authed.Use(a.sessionMiddleware())

	authed.POST("/auth/logout", a.logout)
	authed.GET("/auth/session", a.sessionStatus)
	authed.GET("/auth/export/:id", a.exportProfile)

	authed.GET("/connections", a.listConnections)
	authed.POST("/connections", a.saveConnection)
	authed.DELETE("/connections/:id", a.deleteConnection)
	authed.POST("/connections/:id/bind", a.bindConnection)

	authed.GET("/buckets/:connId", a.listBuckets)

	bound := authed.Group("")
	bound.Use(a.connectionGuard())

	bound.GET("/bucket/:connId/:bucket/info", a.bucketInfoHandler)

	bound.GET("/objects/:connId/:bucket", a.listObjects)
	bound.GET("/objects/:connId/:bucket/metadata", a.objectMetadata)
	bound.DELETE("/objects/:connId/:bucket", a.deleteObject)
	bound.POST("/objects/:connId/:bucket/batch-delete", a.batchDelete)
	bound.POST("/objects/:connId/:bucket/folder", a.createFolder)
	bound.POST("/objects/:connId/:bucket/copy", a.copyObject)
	bound.POST("/objects/:connId/:bucket/batch-copy", a.batchCopy)
	bound.POST("/objects/:connId/:bucket/move", a.moveObject)
	bound.POST("/objects/:connId/:bucket/batch-move", a.batchMove)
	if a.enableSeed {
		bound.POST("/objects/:connId/:bucket/seed-test-items", a.seedTestItems)
	}

	bound.GET("/download/:connId/:bucket/url", a.downloadURL)
	bound.GET("/download/:connId/:bucket/preview", a.previewObject)

	authed.POST("/upload/initiate", a.uploadInitiate)
	authed.POST("/upload/part", a.uploadPart)
	authed.POST("/upload/complete", a.uploadComplete)
	authed.POST("/upload/abort", a.uploadAbort)
	authed.POST("/upload/single", a.uploadSingle)
}

func (a *API) health(ctx *gin.Context) {
	response.JSON(ctx, http.StatusOK, gin.H{
		"status":   "ok",
		"sessions": a.sessions.Count(),
	})
}

// sessionMiddleware authenticates the session cookie and re-issues it
// so the expiry slides
func (a *API) sessionMiddleware() gin.HandlerFunc {
	cfg := a.sessions.Config()
	return func(ctx *gin.Context) {
		id, err := ctx.Cookie(cfg.CookieName)
		if err != nil || id == "" {
			response.AbortWithKind(ctx, apperr.Unauthorized, "authentication required")
			return
		}
		sess, err := a.sessions.Authenticate(id)
		if err != nil {
			a.clearSessionCookie(ctx)
			response.AbortWithKind(ctx, apperr.Unauthorized, "session expired or invalid")
			return
		}
		ctx.Set(ctxSessionID, id)
		ctx.Set(ctxSession, sess)
		a.setSessionCookie(ctx, id)
		ctx.Next()
	}
}

// connectionGuard rejects requests whose :connId does not match the
// session's bound connection
func (a *API) connectionGuard() gin.HandlerFunc {
	return func(ctx *gin.Context) {
		connID, err := paramInt64(ctx, "connId")
		if err != nil {
			response.Error(ctx, err)
			return
		}
		sess := a.currentSession(ctx)
		if sess == nil || sess.ConnectionID == 0 {
			response.AbortWithKind(ctx, apperr.Forbidden, "no connection bound to session")
			return
		}
		if sess.ConnectionID != connID {
			response.AbortWithKind(ctx, apperr.Forbidden, "connection not bound to session")
			return
		}
		ctx.Next()
	}
}

func (a *API) currentSession(ctx *gin.Context) *session.Session {
	value, ok := ctx.Get(ctxSession)
	if !ok {
		return nil
	}
	sess, _ := value.(*session.Session)
	return sess
}

func (a *API) setSessionCookie(ctx *gin.Context, id string) {
	cfg := a.sessions.Config()
	ctx.SetSameSite(http.SameSite(cfg.SameSite))
	ctx.SetCookie(cfg.CookieName, id, cfg.ExpirationSeconds, cfg.Path, "",
		a.secureCookies || cfg.Secure, cfg.HttpOnly)
}

func (a *API) clearSessionCookie(ctx *gin.Context) {
	cfg := a.sessions.Config()
	ctx.SetSameSite(http.SameSite(cfg.SameSite))
	ctx.SetCookie(cfg.CookieName, "", -1, cfg.Path, "",
		a.secureCookies || cfg.Secure, cfg.HttpOnly)
}

// client resolves the S3 client and profile for a validated connection
// id; the guard has already matched it against the session
func (a *API) client(ctx *gin.Context, connID int64, bucket string) (s3api.API, *vault.Connection, error) {
	return a.factory.GetClient(ctx.Request.Context(), connID, bucket)
}

func paramInt64(ctx *gin.Context, name string) (int64, error) {
	raw := ctx.Param(name)
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || value < 1 {
		return 0, apperr.Newf(apperr.InvalidInput, "invalid %s", name)
	}
	return value, nil
}
