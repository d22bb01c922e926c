package routes

import (
	"carpool-server/models"
	"carpool-server/services"
	"carpool-server/storage"
	"carpool-server/utils"
	"errors"
	"net/http"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
)

type driveSlotInput struct {
	PracticeID uint   `json:"practiceID" validate:"required"`
	Direction  string `json:"direction" validate:"required"`
}

// CanCreateDriveRequest is the advisory pre-check behind the "ask for a
// driver" button. The answer can go stale; CreateDriveRequest re-checks
// atomically.
func CanCreateDriveRequest(ctx iris.Context) {
	practiceID, err := ctx.URLParamInt("practiceID")
	if err != nil || practiceID <= 0 {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "practiceID is required")
		return
	}
	direction := ctx.URLParam("direction")

	engine := services.NewDriveRequestService(storage.DB)
	if err := engine.CanCreate(uint(practiceID), direction); err != nil {
		writeEngineError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "allowed": true})
}

// CreateDriveRequest opens a pending request for a practice slot.
func CreateDriveRequest(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var input driveSlotInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var practice models.Practice
	if storage.DB.First(&practice, input.PracticeID).Error == nil && !isGroupMember(practice.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	request := models.DriveRequest{
		PracticeID:  input.PracticeID,
		Direction:   input.Direction,
		RequesterID: user.ID,
	}
	engine := services.NewDriveRequestService(storage.DB)
	if err := engine.Create(&request); err != nil {
		writeEngineError(ctx, err)
		return
	}

	publishGroupDriveRequests(request.GroupID)

	ctx.JSON(iris.Map{"success": true, "request": request})
}

// AcceptDriveRequest assigns the caller as driver for the requested slot.
func AcceptDriveRequest(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)
	requestID, err := ctx.Params().GetUint("requestID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var existing models.DriveRequest
	if err := storage.DB.First(&existing, requestID).Error; err != nil {
		writeEngineError(ctx, services.ErrRequestNotFound)
		return
	}
	if !isGroupMember(existing.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	engine := services.NewDriveRequestService(storage.DB)
	request, err := engine.Accept(requestID, user.ID)
	if err != nil {
		writeEngineError(ctx, err)
		return
	}

	var acceptor models.User
	storage.DB.First(&acceptor, user.ID)
	services.NewNotificationService(storage.DB).NotifyDriveAccepted(request, &acceptor)

	publishGroupDriveRequests(request.GroupID)
	publishGroupPractices(request.GroupID)

	ctx.JSON(iris.Map{"success": true, "request": request})
}

// DeclineDriveRequest marks a pending request declined; the slot stays open.
func DeclineDriveRequest(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)
	requestID, err := ctx.Params().GetUint("requestID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var request models.DriveRequest
	if err := storage.DB.First(&request, requestID).Error; err != nil {
		writeEngineError(ctx, services.ErrRequestNotFound)
		return
	}
	if !isGroupMember(request.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	engine := services.NewDriveRequestService(storage.DB)
	if err := engine.Decline(requestID, user.ID); err != nil {
		writeEngineError(ctx, err)
		return
	}

	services.NewNotificationService(storage.DB).NotifyDriveDeclined(&request)
	publishGroupDriveRequests(request.GroupID)

	ctx.JSON(iris.Map{"success": true})
}

// CanSelfDeclare pre-checks taking a slot directly.
func CanSelfDeclare(ctx iris.Context) {
	practiceID, err := ctx.URLParamInt("practiceID")
	if err != nil || practiceID <= 0 {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "practiceID is required")
		return
	}
	direction := ctx.URLParam("direction")

	engine := services.NewDriveRequestService(storage.DB)
	if err := engine.CanSelfDeclare(uint(practiceID), direction); err != nil {
		writeEngineError(ctx, err)
		return
	}
	ctx.JSON(iris.Map{"success": true, "allowed": true})
}

// SelfDeclareDrive fills a slot with the caller directly, skipping the
// request/accept cycle.
func SelfDeclareDrive(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var input driveSlotInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var target models.Practice
	if storage.DB.First(&target, input.PracticeID).Error == nil && !isGroupMember(target.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	engine := services.NewDriveRequestService(storage.DB)
	if err := engine.SelfDeclare(input.PracticeID, input.Direction, user.ID); err != nil {
		writeEngineError(ctx, err)
		return
	}

	var practice models.Practice
	if storage.DB.First(&practice, input.PracticeID).Error == nil {
		publishGroupPractices(practice.GroupID)
	}

	ctx.JSON(iris.Map{"success": true})
}

// CancelDrive clears the caller's slot on a practice back to open.
func CancelDrive(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var input driveSlotInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	engine := services.NewDriveRequestService(storage.DB)
	if err := engine.CancelDrive(input.PracticeID, input.Direction, user.ID); err != nil {
		writeEngineError(ctx, err)
		return
	}

	var practice models.Practice
	if storage.DB.First(&practice, input.PracticeID).Error == nil {
		publishGroupPractices(practice.GroupID)
	}

	ctx.JSON(iris.Map{"success": true})
}

// ListGroupDriveRequests returns a group's drive requests, newest first.
func ListGroupDriveRequests(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)
	groupID, err := ctx.Params().GetUint("groupID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}
	if !isGroupMember(groupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	engine := services.NewDriveRequestService(storage.DB)
	requests, err := engine.ListForGroup(groupID)
	if err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to load drive requests")
		return
	}

	ctx.JSON(iris.Map{"success": true, "requests": requests})
}

// writeEngineError translates drive engine failures to HTTP responses.
func writeEngineError(ctx iris.Context, err error) {
	switch {
	case errors.Is(err, services.ErrPracticeNotFound):
		utils.JSONError(ctx, http.StatusNotFound, "practice_not_found", err.Error())
	case errors.Is(err, services.ErrRequestNotFound):
		utils.JSONError(ctx, http.StatusNotFound, "request_not_found", err.Error())
	case errors.Is(err, services.ErrInvalidDirection):
		utils.JSONError(ctx, http.StatusBadRequest, "invalid_direction", err.Error())
	case errors.Is(err, services.ErrSlotTaken):
		utils.JSONError(ctx, http.StatusConflict, "slot_taken", err.Error())
	case errors.Is(err, services.ErrRequestAlreadyOpen):
		utils.JSONError(ctx, http.StatusConflict, "request_already_open", err.Error())
	case errors.Is(err, services.ErrConflict):
		utils.JSONError(ctx, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, services.ErrNotSlotHolder):
		utils.JSONError(ctx, http.StatusForbidden, "not_slot_holder", err.Error())
	default:
		utils.CreateInternalServerError(ctx)
	}
}
