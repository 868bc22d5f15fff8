package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/dranie18/propertypro/internal/api/handlers"
	"github.com/dranie18/propertypro/internal/api/middleware"
	"github.com/dranie18/propertypro/internal/captcha"
	"github.com/dranie18/propertypro/internal/config"
	"github.com/dranie18/propertypro/internal/services"
	"github.com/dranie18/propertypro/internal/storage"
)

// SetupRouter configures and returns the main Gin engine.
func SetupRouter(cfg *config.Config, db *mongo.Database, rdb *redis.Client, taskClient services.ITaskEnqueuer) *gin.Engine {
	// Initialize services needed by API handlers
	listingService := services.NewListingService(db, cfg)
	authService := services.NewAuthService(db, cfg, rdb, taskClient)

	mediaStorage, err := storage.NewS3Storage(cfg)
	if err != nil {
		log.Fatalf("CRITICAL: Failed to initialize media storage for API: %v", err)
	}
	mediaService := services.NewMediaService(db, cfg, mediaStorage)

	captchaVerifier := captcha.NewTurnstileVerifier(cfg)

	r := gin.Default()

	rateLimiter := middleware.NewRateLimiterMiddleware(cfg)

	// Global middleware, order matters: CORS first, then captcha status,
	// then rate limiting which consumes the captcha status.
	r.Use(middleware.CORSMiddleware())
	r.Use(middleware.CaptchaMiddleware(cfg, captchaVerifier))
	r.Use(rateLimiter.Limit())

	// Initialize handlers
	listingHandler := handlers.NewRestListingHandler(cfg, listingService, taskClient)
	mediaHandler := handlers.NewRestMediaHandler(mediaService, listingService, taskClient)
	authHandler := handlers.NewRestAuthHandler(authService)

	v1 := r.Group("/v1")
	{
		// Public routes
		v1.GET("/listings", listingHandler.SearchListings)
		v1.GET("/listings/:id", listingHandler.GetListingByID)
		v1.GET("/user/:id/listings", listingHandler.GetUserListings)

		v1.POST("/auth/signup", authHandler.SignUp)
		v1.POST("/auth/signin", authHandler.SignIn)
		v1.POST("/auth/reset-password", authHandler.ResetPassword)
		v1.POST("/auth/reset-password/confirm", authHandler.ConfirmReset)

		v1.GET("/ping", func(c *gin.Context) {
			c.String(http.StatusOK, "pong")
		})

		// Authenticated routes
		authRequired := v1.Group("/")
		authRequired.Use(middleware.AuthMiddleware(authService))
		{
			authRequired.GET("/auth/me", authHandler.Me)
			authRequired.POST("/auth/signout", authHandler.SignOut)
			authRequired.POST("/auth/password", authHandler.UpdatePassword)

			authRequired.GET("/my/listings", listingHandler.GetMyListings)
			authRequired.POST("/listings", listingHandler.CreateListing)
			authRequired.PATCH("/listings/:id", listingHandler.UpdateListing)
			authRequired.DELETE("/listings/:id", listingHandler.DeleteListing)

			authRequired.POST("/listings/:id/media", mediaHandler.UploadMedia)
			authRequired.POST("/listings/:id/media/:mediaId/primary", mediaHandler.SetPrimaryMedia)
			authRequired.DELETE("/media/:id", mediaHandler.DeleteMedia)
		}
	}

	return r
}

// SetupServiceRouter configures and returns the service Gin engine, used in
// mock mode by end-to-end tests: shutdown control and mock email retrieval.
func SetupServiceRouter(cfg *config.Config, rdb *redis.Client, shutdownChan chan<- struct{}) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	r.POST("/api", func(c *gin.Context) {
		var req struct {
			Method    string          `json:"method"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid request format"})
			return
		}

		switch req.Method {
		case "shutdown":
			fmt.Println("Received shutdown command via Service API")
			c.JSON(http.StatusOK, gin.H{"success": true, "result": "Shutdown initiated"})
			select {
			case shutdownChan <- struct{}{}:
				fmt.Println("Shutdown signal sent successfully.")
			default:
				fmt.Println("Shutdown channel already signaled or blocked.")
			}
		case "getTestEmail":
			var args []string // Expect ["email"]
			if err := json.Unmarshal(req.Arguments, &args); err != nil || len(args) != 1 {
				c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "Invalid arguments: expected JSON array [email]"})
				return
			}
			redisKey := fmt.Sprintf("mockemail:%s", args[0])

			// Poll Redis briefly for the key
			var emailJsonData string
			var getErr error
			found := false
			ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
			defer cancel()
			for i := 0; i < 10; i++ {
				emailJsonData, getErr = rdb.Get(ctx, redisKey).Result()
				if getErr == nil {
					found = true
					rdb.Del(ctx, redisKey)
					break
				}
				if getErr != redis.Nil {
					log.Printf("Service API: Error getting key %s from Redis: %v", redisKey, getErr)
					c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Redis error"})
					return
				}
				time.Sleep(200 * time.Millisecond)
			}

			if !found {
				c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Test email not found in Redis for key %s", redisKey)})
				return
			}

			var emailData map[string]interface{}
			if err := json.Unmarshal([]byte(emailJsonData), &emailData); err != nil {
				log.Printf("Service API: Error unmarshalling email data from key %s: %v", redisKey, err)
				c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "Failed to parse stored email data"})
				return
			}

			c.JSON(http.StatusOK, gin.H{"success": true, "data": emailData})

		default:
			c.JSON(http.StatusNotFound, gin.H{"success": false, "error": fmt.Sprintf("Unknown service method: %s", req.Method)})
		}
	})
	return r
}
