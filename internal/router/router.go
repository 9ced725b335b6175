package router

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	"roamly/internal/handler"
	"roamly/internal/middleware"
	"roamly/internal/model"
)

// Register wires routes and middleware.
func Register(
	e *echo.Echo,
	authMW *middleware.Auth,
	authHandler *handler.AuthHandler,
	userHandler *handler.UserHandler,
) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())

	// Add validator
	e.Validator = &CustomValidator{validator: validator.New()}

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	api := e.Group("/api")

	// Public routes
	api.POST("/auth/signup", authHandler.Signup)
	api.POST("/auth/signin", authHandler.Signin)
	api.POST("/auth/logout", authHandler.Logout)
	api.POST("/auth/forgot-password", authHandler.ForgotPassword)
	api.PATCH("/auth/reset-password/:token", authHandler.ResetPassword)

	// Login-state probe: anonymous requests pass through untouched.
	api.GET("/session", authHandler.Session, authMW.OptionalAuth())

	// Secured routes (valid, non-stale session token required)
	secured := api.Group("", authMW.RequireAuth())
	secured.PATCH("/auth/change-password", authHandler.ChangePassword)
	secured.GET("/me", userHandler.GetMe)

	// Admin routes
	admin := secured.Group("/users", middleware.RequireRole(model.RoleAdmin))
	admin.GET("", userHandler.ListUsers)
	admin.GET("/:id", userHandler.GetUser)
}

// CustomValidator wraps validator for Echo.
type CustomValidator struct {
	validator *validator.Validate
}

// Validate implements echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}
