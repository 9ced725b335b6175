package main

import (
	"log"
	"net/http"

	_ "roamly/docs" // swagger docs

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"roamly/internal/auth"
	"roamly/internal/cache"
	"roamly/internal/config"
	"roamly/internal/db"
	"roamly/internal/email"
	"roamly/internal/handler"
	"roamly/internal/middleware"
	"roamly/internal/model"
	"roamly/internal/repository"
	"roamly/internal/router"
	"roamly/internal/service"
)

// @title Roamly Identity API
// @version 1.0
// @description Stateless session tokens, role-restricted routes, and the password lifecycle for the Roamly travel app.
// @host localhost:8080
// @BasePath /api
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and the session token.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	e := echo.New()
	e.Use(echomw.RequestID())

	gormDB, err := db.NewMySQL(cfg.MySQLDSN)
	if err != nil {
		log.Fatalf("database init: %v", err)
	}

	if err := gormDB.AutoMigrate(&model.User{}); err != nil {
		log.Fatalf("auto-migrate: %v", err)
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)

	// Initialize auth components
	hasher := auth.NewBcryptHasher()
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.JWTExpiresIn)
	resetService := auth.NewResetTokenService(auth.DefaultResetTokenTTL)
	mailer := email.NewSMTPMailer(cfg.Email)

	// Initialize services
	authService := service.NewAuthService(userRepo, hasher, jwtService, resetService, mailer, cacheClient, cfg.BaseURL)
	userService := service.NewUserService(userRepo, cacheClient)

	// Initialize handlers and middleware
	authHandler := handler.NewAuthHandler(authService, cfg)
	userHandler := handler.NewUserHandler(userService)
	authMW := middleware.NewAuth(jwtService, userRepo)

	// Register routes
	router.Register(e, authMW, authHandler, userHandler)

	if !cfg.Email.Enabled() {
		log.Println("email is not configured; welcome and recovery mail will fail")
	}

	addr := ":" + cfg.ServerPort
	if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
		log.Fatalf("server start: %v", err)
	}
}
