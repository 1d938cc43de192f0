package main

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/readinglog/readlog/pkg/readlog/access"
	"github.com/readinglog/readlog/pkg/readlog/activity"
	"github.com/readinglog/readlog/pkg/readlog/apikeys"
	"github.com/readinglog/readlog/pkg/readlog/auth"
	"github.com/readinglog/readlog/pkg/readlog/books"
	"github.com/readinglog/readlog/pkg/readlog/config"
	"github.com/readinglog/readlog/pkg/readlog/groups"
	"github.com/readinglog/readlog/pkg/readlog/importexport"
	"github.com/readinglog/readlog/pkg/readlog/logging"
	"github.com/readinglog/readlog/pkg/readlog/profile"
	"github.com/readinglog/readlog/pkg/readlog/ratelimit"
	"github.com/readinglog/readlog/pkg/readlog/social"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// newRouter wires every handler onto a gin engine. The returned stop func
// releases background resources held by the router.
func newRouter(cfg *config.Config, db *gorm.DB, log *zap.Logger) (*gin.Engine, func()) {
	r := gin.New()
	r.Use(gin.Recovery(), logging.RequestLogger(log))

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	tokens := auth.NewTokens(cfg.JWT.Secret, cfg.JWT.TTL)
	resolver := access.NewResolver(db, cfg.Policy)

	// Combined auth (JWT or API key) followed by actor resolution
	authn := []gin.HandlerFunc{
		apikeys.CombinedAuthMiddleware(db, tokens, log),
		auth.ActorMiddleware(db, log),
	}
	// API keys are managed with a session token only
	jwtOnly := []gin.HandlerFunc{
		auth.AuthMiddleware(tokens, log),
		auth.ActorMiddleware(db, log),
	}

	joinLimiter := ratelimit.PerMinute(cfg.RateLimit.JoinPerMinute)
	joinLimit := ratelimit.Middleware(joinLimiter, func(c *gin.Context) string {
		if id, ok := auth.GetUserID(c); ok {
			return strconv.FormatUint(uint64(id), 10)
		}
		return c.ClientIP()
	}, log)

	api := r.Group("/api")
	{
		api.GET("/health", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"service": "readlog",
			})
		})

		authHandler := auth.NewHandler(db, tokens, log)
		authHandler.RegisterRoutes(api.Group("/auth"), authn...)

		apiKeysHandler := apikeys.NewHandler(db, log)
		apiKeysHandler.RegisterRoutes(api.Group("", jwtOnly...))

		groupsHandler := groups.NewHandler(groups.NewService(db, resolver, cfg.Invite.Length, log), log)
		groupsGroup := api.Group("/groups", authn...)
		groupsHandler.RegisterRoutes(groupsGroup, joinLimit)
		groupsHandler.RegisterMemberRoutes(groupsGroup)

		booksService := books.NewService(db, resolver, log)
		booksHandler := books.NewHandler(booksService, log)
		booksGroup := api.Group("/books", authn...)
		booksHandler.RegisterRoutes(booksGroup)
		booksHandler.RegisterGroupRoutes(groupsGroup)

		socialHandler := social.NewHandler(social.NewService(db, resolver, log), log)
		socialHandler.RegisterBookRoutes(booksGroup)
		socialHandler.RegisterCommentRoutes(api.Group("/comments", authn...))

		importExportHandler := importexport.NewHandler(db, booksService, log)
		importExportHandler.RegisterRoutes(api.Group("", authn...))

		profileGroup := api.Group("/profile", authn...)
		profile.NewHandler(profile.NewService(db, log), log).RegisterRoutes(profileGroup)
		activity.NewHandler(activity.NewService(db, resolver), log).RegisterRoutes(profileGroup)
	}

	return r, joinLimiter.Stop
}
