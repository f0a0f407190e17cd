package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/araddon/dateparse"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"bizgraph-bot/backend/internal/agent"
	"bizgraph-bot/backend/internal/app"
	"bizgraph-bot/backend/internal/graph"
	"bizgraph-bot/backend/pkg/config"
	"bizgraph-bot/backend/pkg/logger"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 1000
)

// chatService runs one conversational turn
type chatService interface {
	HandleMessage(ctx context.Context, req agent.Request) (*agent.Reply, error)
}

// catalogService is the read side of the graph
type catalogService interface {
	ListProducts(ctx context.Context) ([]graph.Product, error)
	ListTransactions(ctx context.Context, filter graph.TransactionFilter) ([]graph.Transaction, error)
	Ping(ctx context.Context) error
}

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := app.InitLogger(cfg); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting HTTP API server...")

	ctx := context.Background()
	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer application.Close()

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := setupRouter(application.Orchestrator, application.Graph, application.Profile, log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

func setupRouter(chat chatService, catalog catalogService, profile *config.Profile, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if err := catalog.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "neo4j": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		// One turn through the same pipeline the bot uses
		api.POST("/chat", func(c *gin.Context) {
			var req struct {
				Message string `json:"message" binding:"required"`
				UserID  string `json:"user_id" binding:"required"`
			}

			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			reply, err := chat.HandleMessage(c.Request.Context(), agent.Request{
				UserID: req.UserID,
				Text:   req.Message,
				Date:   time.Now().In(profile.Location()),
			})
			if err != nil {
				log.Error("Failed to handle chat message", zap.String("user_id", req.UserID), zap.Error(err))
			}
			if reply == nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
				return
			}

			c.JSON(http.StatusOK, gin.H{
				"reply":      reply.Text,
				"intent":     reply.Intent,
				"tools_used": reply.ToolsUsed,
			})
		})

		api.GET("/products", func(c *gin.Context) {
			products, err := catalog.ListProducts(c.Request.Context())
			if err != nil {
				log.Error("Failed to list products", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list products"})
				return
			}
			if products == nil {
				products = []graph.Product{}
			}
			c.JSON(http.StatusOK, gin.H{"products": products, "count": len(products)})
		})

		api.GET("/transactions", func(c *gin.Context) {
			filter, err := transactionFilter(c, profile)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}

			txs, err := catalog.ListTransactions(c.Request.Context(), filter)
			if err != nil {
				log.Error("Failed to list transactions", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list transactions"})
				return
			}
			if txs == nil {
				txs = []graph.Transaction{}
			}
			c.JSON(http.StatusOK, gin.H{"transactions": txs, "count": len(txs)})
		})
	}

	return router
}

// transactionFilter reads ?type=&product=&vendor=&customer=&from=&to=&limit=
func transactionFilter(c *gin.Context, profile *config.Profile) (graph.TransactionFilter, error) {
	filter := graph.TransactionFilter{
		Type:     strings.ToLower(strings.TrimSpace(c.Query("type"))),
		Product:  profile.ResolveProduct(strings.TrimSpace(c.Query("product"))),
		Vendor:   strings.TrimSpace(c.Query("vendor")),
		Customer: strings.TrimSpace(c.Query("customer")),
		Limit:    defaultTransactionLimit,
	}

	if raw := c.Query("limit"); raw != "" {
		limit, err := cast.ToIntE(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("invalid limit %q", raw)
		}
		if limit > maxTransactionLimit {
			limit = maxTransactionLimit
		}
		filter.Limit = limit
	}

	loc := profile.Location()
	if raw := c.Query("from"); raw != "" {
		from, err := dateparse.ParseIn(raw, loc)
		if err != nil {
			return filter, fmt.Errorf("invalid from date %q", raw)
		}
		filter.From = from
	}
	if raw := c.Query("to"); raw != "" {
		to, err := dateparse.ParseIn(raw, loc)
		if err != nil {
			return filter, fmt.Errorf("invalid to date %q", raw)
		}
		filter.To = to
	}
	return filter, nil
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
