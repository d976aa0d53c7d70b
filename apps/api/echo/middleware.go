package echoapi

import (
	"github.com/labstack/echo/v4"
)

// actorMiddleware resolves the actor of the request from its token; requests without one are rejected.
func actorMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		if _, err := getContextUser(ctx); err != nil {
			return err
		}
		return next(ctx)
	}
}

// roleMiddleware only lets through actors holding a role starting with one of prefixes.
func roleMiddleware(prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			usr, err := getContextUser(ctx)
			if err != nil {
				return err
			}
			for _, p := range prefixes {
				if usr.RoleStartsWith(p) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}
