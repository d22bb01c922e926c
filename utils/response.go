package utils

import (
	"github.com/kataras/iris/v12"
)

func JSONError(ctx iris.Context, status int, code, message string) {
	ctx.StatusCode(status)
	ctx.JSON(iris.Map{"error": code, "message": message})
}

func CreateError(status int, title string, detail string, ctx iris.Context) {
	ctx.StopWithJSON(status, iris.Map{"title": title, "detail": detail})
}

func CreateNotFound(ctx iris.Context) {
	CreateError(iris.StatusNotFound, "Not Found", "resource not found", ctx)
}

func CreateInternalServerError(ctx iris.Context) {
	CreateError(iris.StatusInternalServerError, "Internal Server Error", "an unexpected error occurred", ctx)
}

func CreateEmailAlreadyRegistered(ctx iris.Context) {
	CreateError(iris.StatusConflict, "Conflict", "email already registered", ctx)
}

// HandleValidationErrors maps ReadJSON/validator failures to a 400 with
// per-field details when available.
func HandleValidationErrors(err error, ctx iris.Context) {
	ctx.StopWithJSON(iris.StatusBadRequest, iris.Map{
		"title":  "Validation Error",
		"detail": err.Error(),
	})
}
