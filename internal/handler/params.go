package handler

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// paramID parses a positive uint64 path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}
