package utils

import (
	"carpool-server/models"

	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

// ParentOnlyMiddleware ensures the requester holds the parent role.
// Group management, scheduling and driving are parent actions.
func ParentOnlyMiddleware(ctx iris.Context) {
	claims := jwt.Get(ctx).(*AccessToken)
	if claims.Role != models.RoleParent {
		ctx.StatusCode(iris.StatusForbidden)
		ctx.JSON(iris.Map{"error": "forbidden", "message": "parent access required"})
		return
	}
	ctx.Next()
}
