package http

import "github.com/labstack/echo/v4"

// Handler is implemented by AdminHandler; App.Run mounts whatever is
// passed to SetHTTPHandler onto the Echo instance before listening.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}
