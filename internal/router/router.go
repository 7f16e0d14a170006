package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/eventease/internal/database"
	"github.com/iliyamo/eventease/internal/handler"
	"github.com/iliyamo/eventease/internal/middleware"
	"github.com/iliyamo/eventease/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.  /healthz only
// proves the process is up; /readyz also pings the store.
func RegisterRoutes(e *echo.Echo, db *database.DB) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the authentication routes.  Register, login,
// refresh and logout live under /v1/auth without a session; /v1/me needs a
// valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// logout accepts a refresh token in the body or a bearer token, so it
	// sits outside the JWT group
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleCustomer, model.RoleAdmin))
	auth.GET("/me", a.Me)
}

// RegisterEvents registers the public catalogue behind the response cache
// and the admin-only write routes.
func RegisterEvents(e *echo.Echo, h *handler.EventHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	pub := e.Group("/v1/events", cache)
	pub.GET("", h.List)
	pub.GET("/:id", h.Get)

	admin := e.Group("/v1/events", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleAdmin))
	admin.POST("", h.Create)
	admin.DELETE("/:id", h.Delete)
}

// RegisterBookings registers the booking routes for any authenticated
// user.  Booking and cancellation are rate limited.
func RegisterBookings(e *echo.Echo, h *handler.BookingHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(jwtSecret), middleware.RequireRole(model.RoleCustomer, model.RoleAdmin))
	g.POST("/events/:id/book", h.Book, limit)
	g.GET("/my-bookings", h.MyBookings)
	g.DELETE("/bookings/:booking_id", h.Cancel, limit)
}
