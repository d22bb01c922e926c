package main

import (
	"carpool-server/routes"
	"carpool-server/storage"
	"carpool-server/utils"
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kataras/iris/v12"
	"github.com/kataras/iris/v12/middleware/jwt"
)

func main() {
	// Only load .env in development
	if os.Getenv("RENDER") == "" {
		godotenv.Load()
	}

	// Initialize services
	storage.InitializeDB()
	storage.InitializeS3()
	storage.InitializeRedis()

	app := iris.New()
	app.Validator = validator.New()

	// CORS configuration
	app.AllowMethods(iris.MethodOptions)
	app.UseRouter(func(ctx iris.Context) {
		ctx.Header("Access-Control-Allow-Origin", ctx.GetHeader("Origin"))
		ctx.Header("Vary", "Origin")
		ctx.Header("Access-Control-Allow-Credentials", "true")
		ctx.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Requested-With")
		ctx.Header("Access-Control-Allow-Methods", "GET,POST,PATCH,PUT,DELETE,OPTIONS")
		if ctx.Method() == iris.MethodOptions {
			ctx.StatusCode(iris.StatusNoContent)
			return
		}
		ctx.Next()
	})

	// Minimal middleware - compression only
	app.Use(iris.Compression)

	// JWT Verifiers
	accessTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("ACCESS_TOKEN_SECRET")))
	accessTokenVerifier.WithDefaultBlocklist()
	accessTokenVerifierMiddleware := accessTokenVerifier.Verify(func() interface{} {
		return new(utils.AccessToken)
	})

	refreshTokenVerifier := jwt.NewVerifier(jwt.HS256, []byte(os.Getenv("REFRESH_TOKEN_SECRET")))
	refreshTokenVerifier.WithDefaultBlocklist()
	refreshTokenVerifierMiddleware := refreshTokenVerifier.Verify(func() interface{} {
		return new(jwt.Claims)
	})

	refreshTokenVerifier.Extractors = append(refreshTokenVerifier.Extractors, func(ctx iris.Context) string {
		var tokenInput utils.RefreshTokenInput
		err := ctx.ReadJSON(&tokenInput)
		if err != nil {
			return ""
		}
		return tokenInput.RefreshToken
	})

	// Health check endpoint - CRITICAL for Render
	app.Get("/health", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"status": "ok"})
	})

	// Routes
	user := app.Party("/api/user")
	{
		user.Post("/register", routes.Register)
		user.Post("/login", routes.Login)
		user.Get("/me", accessTokenVerifierMiddleware, routes.GetMe)
		user.Patch("/avatar", accessTokenVerifierMiddleware, routes.UpdateAvatar)
		user.Post("/link-code", accessTokenVerifierMiddleware, routes.CreateLinkCode)
		user.Post("/link-code/redeem", accessTokenVerifierMiddleware, routes.RedeemLinkCode)
		user.Get("/notifications", accessTokenVerifierMiddleware, routes.GetMyNotifications)
		user.Patch("/notifications/{notificationID:uint}/read", accessTokenVerifierMiddleware, routes.MarkNotificationRead)
	}

	groups := app.Party("/api/groups", accessTokenVerifierMiddleware)
	{
		groups.Post("/", utils.ParentOnlyMiddleware, routes.CreateGroup)
		groups.Get("/mine", routes.ListMyGroups)
		groups.Get("/{groupID:uint}", routes.GetGroup)
		groups.Get("/{groupID:uint}/members", routes.GetGroupMembers)
		groups.Post("/request-join", routes.SubmitJoinRequest)
		groups.Get("/my-requests", routes.GetMyJoinRequests)
		groups.Get("/{groupID:uint}/requests", routes.GetGroupJoinRequests)
		groups.Post("/requests/{requestID:uint}/respond", utils.ParentOnlyMiddleware, routes.RespondToJoinRequest)
		groups.Get("/{groupID:uint}/blocked", routes.GetBlockedUsers)
		groups.Delete("/{groupID:uint}/blocked/{userID:uint}", utils.ParentOnlyMiddleware, routes.UnblockUser)
		groups.Post("/{groupID:uint}/invite-code/regenerate", utils.ParentOnlyMiddleware, routes.RegenerateInviteCode)
	}

	practices := app.Party("/api/practices", accessTokenVerifierMiddleware)
	{
		practices.Post("/", utils.ParentOnlyMiddleware, routes.CreatePractice)
		practices.Get("/group/{groupID:uint}", routes.GetPracticesForRange)
		practices.Get("/{practiceID:uint}", routes.GetPractice)
		practices.Patch("/{practiceID:uint}", utils.ParentOnlyMiddleware, routes.UpdatePractice)
		practices.Delete("/{practiceID:uint}", utils.ParentOnlyMiddleware, routes.DeletePractice)
	}

	driveRequests := app.Party("/api/drive-requests", accessTokenVerifierMiddleware)
	{
		driveRequests.Get("/can-create", routes.CanCreateDriveRequest)
		driveRequests.Post("/", routes.CreateDriveRequest)
		driveRequests.Post("/{requestID:uint}/accept", utils.ParentOnlyMiddleware, routes.AcceptDriveRequest)
		driveRequests.Post("/{requestID:uint}/decline", utils.ParentOnlyMiddleware, routes.DeclineDriveRequest)
		driveRequests.Get("/can-self-declare", routes.CanSelfDeclare)
		driveRequests.Post("/self-declare", utils.ParentOnlyMiddleware, routes.SelfDeclareDrive)
		driveRequests.Post("/cancel", utils.ParentOnlyMiddleware, routes.CancelDrive)
		driveRequests.Get("/group/{groupID:uint}", routes.ListGroupDriveRequests)
	}

	ws := app.Party("/api/ws", accessTokenVerifierMiddleware)
	{
		ws.Get("/practices/{groupID:uint}", routes.SubscribePractices)
		ws.Get("/drive-requests/{groupID:uint}", routes.SubscribeDriveRequests)
		ws.Get("/join-requests/group/{groupID:uint}", routes.SubscribeGroupJoinRequests)
		ws.Get("/join-requests/mine", routes.SubscribeMyJoinRequests)
	}

	app.Post("/api/refresh", refreshTokenVerifierMiddleware, utils.RefreshToken)

	// Get port from environment
	port := os.Getenv("PORT")
	if port == "" {
		port = "4000"
	}
	addr := "0.0.0.0:" + port

	fmt.Printf("🚀 Server starting on %s\n", addr)

	// Start server
	if err := app.Listen(addr); err != nil {
		log.Fatalf("❌ Server failed: %v", err)
	}
}
