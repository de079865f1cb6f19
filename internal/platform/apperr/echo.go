package apperr

import (
	"github.com/labstack/echo/v4"
)

// JSON renders err as a structured JSON response on the echo context.
// Unknown errors are rendered as internal without leaking the cause.
func JSON(c echo.Context, err error) error {
	e := As(err)
	return c.JSON(e.Status, e)
}
