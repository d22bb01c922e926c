package routes

import (
	"carpool-server/models"
	"carpool-server/storage"
	"carpool-server/utils"
	"net/http"
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
)

const practiceDateLayout = "2006-01-02"

type createPracticeInput struct {
	GroupID   uint   `json:"groupID" validate:"required"`
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Location  string `json:"location" validate:"max=200"`
}

// CreatePractice schedules a practice for a group. Both driver slots start
// open.
func CreatePractice(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var input createPracticeInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if strings.TrimSpace(input.StartTime) == "" || strings.TrimSpace(input.EndTime) == "" {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "start and end time are required")
		return
	}
	date, err := time.Parse(practiceDateLayout, input.Date)
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "date must be YYYY-MM-DD")
		return
	}

	if !isGroupMember(input.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	practice := models.Practice{
		GroupID:   input.GroupID,
		Date:      date,
		StartTime: input.StartTime,
		EndTime:   input.EndTime,
		Location:  input.Location,
		CreatorID: user.ID,
	}
	if err := storage.DB.Create(&practice).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to create practice")
		return
	}

	publishGroupPractices(practice.GroupID)

	ctx.JSON(iris.Map{"success": true, "practice": practice})
}

// GetPractice returns a single practice.
func GetPractice(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)
	practiceID, err := ctx.Params().GetUint("practiceID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var practice models.Practice
	if err := storage.DB.First(&practice, practiceID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if !isGroupMember(practice.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	ctx.JSON(iris.Map{"success": true, "practice": practice})
}

// GetPracticesForRange lists a group's practices between start and end
// dates inclusive, ordered by date then start time. Clients pass the
// Monday-to-Sunday bounds of the week on screen.
func GetPracticesForRange(ctx iris.Context) {
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

	start, err := time.Parse(practiceDateLayout, ctx.URLParam("start"))
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "start must be YYYY-MM-DD")
		return
	}
	end, err := time.Parse(practiceDateLayout, ctx.URLParam("end"))
	if err != nil {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "end must be YYYY-MM-DD")
		return
	}

	var practices []models.Practice
	queryErr := storage.DB.
		Where("group_id = ? AND date >= ? AND date <= ?", groupID, start, end).
		Order("date ASC, start_time ASC").
		Find(&practices).Error
	if queryErr != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to load practices")
		return
	}

	ctx.JSON(iris.Map{"success": true, "practices": practices})
}

type updatePracticeInput struct {
	StartTime    *string `json:"startTime"`
	EndTime      *string `json:"endTime"`
	Location     *string `json:"location"`
	DriverToID   *uint   `json:"driverToID"`
	DriverFromID *uint   `json:"driverFromID"`
}

// UpdatePractice applies a partial edit. Absent fields are untouched; a
// driver field set to 0 clears that slot. Driver writes here are
// unconditional overwrites, so an open drive request for an overwritten
// slot stays pending and its acceptor later gets a conflict.
func UpdatePractice(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)
	practiceID, err := ctx.Params().GetUint("practiceID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var practice models.Practice
	if err := storage.DB.First(&practice, practiceID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if !isGroupMember(practice.GroupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	var input updatePracticeInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	updates := map[string]interface{}{}
	if input.StartTime != nil {
		updates["start_time"] = *input.StartTime
	}
	if input.EndTime != nil {
		updates["end_time"] = *input.EndTime
	}
	if input.Location != nil {
		updates["location"] = *input.Location
	}
	if input.DriverToID != nil {
		updates["driver_to_id"] = *input.DriverToID
	}
	if input.DriverFromID != nil {
		updates["driver_from_id"] = *input.DriverFromID
	}

	if len(updates) > 0 {
		if err := storage.DB.Model(&practice).Updates(updates).Error; err != nil {
			utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to update practice")
			return
		}
		publishGroupPractices(practice.GroupID)
	}

	storage.DB.First(&practice, practiceID)
	ctx.JSON(iris.Map{"success": true, "practice": practice})
}

// DeletePractice removes a practice (creator of the practice or of the group).
func DeletePractice(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)
	practiceID, err := ctx.Params().GetUint("practiceID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var practice models.Practice
	if err := storage.DB.First(&practice, practiceID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	var group models.Group
	if err := storage.DB.First(&group, practice.GroupID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if practice.CreatorID != user.ID && group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	if err := storage.DB.Delete(&practice).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to delete practice")
		return
	}

	publishGroupPractices(practice.GroupID)
	ctx.JSON(iris.Map{"success": true})
}
