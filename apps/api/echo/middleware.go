package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/access"
	"github.com/trezcool/wellbeing/core/user"
)

var (
	contextAccessKey = "access"
	errNoAccessInCtx = errors.New("access context not found in echo.Context")
)

// adminMiddleware lets platform staff holding any of roles through; platform admins when roles is empty.
func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	if len(roles) == 0 {
		roles = []string{user.RolePlatformAdmin}
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// orgMiddleware resolves the caller's access to the :org organization, honoring their testing mode override.
func orgMiddleware(userSvc user.ServiceInterface, resolver *access.Resolver) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			usr, err := getContextUser(ctx, userSvc, claims)
			if err != nil {
				return errors.Wrap(err, "getting context user")
			}

			resolve := resolver.Resolve
			switch ctx.Request().Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
			default:
				resolve = resolver.ResolveWrite
			}
			acc, err := resolve(ctx.Request().Context(), usr, ctx.Param("org"), claims.override())
			if err != nil {
				return errors.Wrap(err, "resolving access")
			}
			ctx.Set(contextAccessKey, acc)
			return next(ctx)
		}
	}
}

// requirePermission must run after orgMiddleware.
func requirePermission(perm access.Permission) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			acc, err := getContextAccess(ctx)
			if err != nil {
				return err
			}
			if err = acc.Require(perm); err != nil {
				return err
			}
			return next(ctx)
		}
	}
}

func getContextAccess(ctx echo.Context) (access.Context, error) {
	acc, ok := ctx.Get(contextAccessKey).(access.Context)
	if !ok {
		return access.Context{}, errors.Wrap(errNoAccessInCtx, "retrieving access from context")
	}
	return acc, nil
}
