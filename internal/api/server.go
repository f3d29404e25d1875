package api

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/telexbot/internal/chatbot"
)

// Dependencies carries everything the routes need.
type Dependencies struct {
	Agent *chatbot.Agent
	Store chatbot.Store

	// ChatRateLimit bounds sustained requests per second on the chat
	// endpoints; zero falls back to a sane default.
	ChatRateLimit rate.Limit
}

// Server represents the API server
type Server struct {
	echo *echo.Echo
	port int
}

// NewServer creates a new API server
func NewServer(port int, deps Dependencies) *Server {
	e := echo.New()
	e.HideBanner = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	server := &Server{
		echo: e,
		port: port,
	}

	server.setupRoutes(deps)

	return server
}

// setupRoutes configures all API endpoints
func (s *Server) setupRoutes(deps Dependencies) {
	chat := NewChatHandler(deps.Agent)
	admin := NewAdminHandler(deps.Store)

	limit := deps.ChatRateLimit
	if limit <= 0 {
		limit = 20
	}
	rateLimiter := middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(limit))

	// Health check endpoint
	s.echo.GET("/health", healthCheck)

	// Main A2A endpoint for the chat platform integration
	s.echo.GET("/a2a/agent/chatbot", chat.ServiceInfo)
	s.echo.POST("/a2a/agent/chatbot", chat.HandleA2A, rateLimiter)

	// Local testing endpoint, simplified shape only
	s.echo.POST("/test", chat.HandleTest, rateLimiter)

	// Operational inspection
	s.echo.GET("/conversations", admin.ListConversations)
	s.echo.GET("/conversations/:id", admin.GetConversation)
	s.echo.GET("/conversations/:id/messages", admin.ListConversationMessages)
	s.echo.GET("/messages", admin.ListMessages)

	// Trigger rule administration
	s.echo.GET("/bot-responses", admin.ListBotResponses)
	s.echo.POST("/bot-responses", admin.CreateBotResponse)
	s.echo.GET("/bot-responses/:id", admin.GetBotResponse)
	s.echo.PUT("/bot-responses/:id", admin.UpdateBotResponse)
	s.echo.DELETE("/bot-responses/:id", admin.DeleteBotResponse)
}

func healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"service":   serviceName,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Start begins the API server
func (s *Server) Start() error {
	// Start server in a goroutine
	go func() {
		if err := s.echo.Start(fmt.Sprintf(":%d", s.port)); err != nil && err != http.ErrServerClosed {
			s.echo.Logger.Fatal("shutting down the server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.echo.Shutdown(ctx)
}
