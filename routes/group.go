package routes

import (
	"carpool-server/models"
	"carpool-server/services"
	"carpool-server/storage"
	"carpool-server/utils"
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type createGroupInput struct {
	Name string `json:"name" validate:"required,max=80"`
}

// CreateGroup creates a carpool group with a fresh invite code and the
// creator as sole member.
func CreateGroup(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var input createGroupInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	if strings.TrimSpace(input.Name) == "" {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "group name is required")
		return
	}

	group := models.Group{
		Name:       strings.TrimSpace(input.Name),
		InviteCode: utils.GenerateUniqueCode(storage.DB, "groups", "invite_code", utils.InviteCodeLength),
		CreatorID:  user.ID,
	}

	now := time.Now()
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&group).Error; err != nil {
			return err
		}
		member := models.GroupMember{
			GroupID:  group.ID,
			UserID:   user.ID,
			Role:     "owner",
			JoinedAt: &now,
		}
		return tx.Create(&member).Error
	})
	if err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to create group")
		return
	}

	ctx.JSON(iris.Map{"success": true, "group": group})
}

// ListMyGroups returns the groups the user belongs to.
func ListMyGroups(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var groups []models.Group
	err := storage.DB.
		Joins("JOIN group_members ON group_members.group_id = groups.id").
		Where("group_members.user_id = ?", user.ID).
		Find(&groups).Error
	if err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to load groups")
		return
	}

	ctx.JSON(iris.Map{"success": true, "groups": groups})
}

// GetGroup returns one group with its members (members only).
func GetGroup(ctx iris.Context) {
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

	var group models.Group
	if err := storage.DB.Preload("Members.User").Preload("Creator").First(&group, groupID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true, "group": group})
}

// GetGroupMembers lists member rows with their users (members only).
func GetGroupMembers(ctx iris.Context) {
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

	var members []models.GroupMember
	storage.DB.Where("group_id = ?", groupID).
		Preload("User").
		Order("created_at ASC").
		Find(&members)

	ctx.JSON(iris.Map{"success": true, "members": members})
}

type submitJoinRequestInput struct {
	InviteCode string `json:"inviteCode" validate:"required"`
	Message    string `json:"message"`
}

// SubmitJoinRequest looks up a group by invite code and creates a pending
// join request. Idempotent for existing members: they get the group back
// and no request is created. Blocked users are rejected; a second pending
// request for the same pair is rejected as a duplicate.
func SubmitJoinRequest(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var input submitJoinRequestInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(input.InviteCode))
	if code == "" {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "enter an invite code")
		return
	}

	group, found := findGroupByInviteCode(code)
	if !found {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "no group with this code")
		return
	}

	if isGroupMember(group.ID, user.ID) {
		ctx.JSON(iris.Map{"success": true, "alreadyMember": true, "group": group})
		return
	}

	var request models.JoinRequest
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		var blocked int64
		if err := tx.Model(&models.BlockedUser{}).
			Where("group_id = ? AND user_id = ?", group.ID, user.ID).
			Count(&blocked).Error; err != nil {
			return err
		}
		if blocked > 0 {
			return errBlocked
		}

		var pending int64
		if err := tx.Model(&models.JoinRequest{}).
			Where("group_id = ? AND requester_id = ? AND status = ?", group.ID, user.ID, models.JoinStatusPending).
			Count(&pending).Error; err != nil {
			return err
		}
		if pending > 0 {
			return errDuplicateRequest
		}

		request = models.JoinRequest{
			GroupID:     group.ID,
			RequesterID: user.ID,
			Status:      models.JoinStatusPending,
			Message:     input.Message,
		}
		return tx.Create(&request).Error
	})
	switch err {
	case nil:
	case errBlocked:
		utils.JSONError(ctx, http.StatusForbidden, "blocked", "you cannot request to join this group")
		return
	case errDuplicateRequest:
		utils.JSONError(ctx, http.StatusConflict, "duplicate_request", "you already have a pending request for this group")
		return
	default:
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to create join request")
		return
	}

	var requester models.User
	storage.DB.First(&requester, user.ID)
	services.NewNotificationService(storage.DB).NotifyJoinRequest(group, &requester)

	publishGroupJoinRequests(group.ID)
	publishUserJoinRequests(user.ID)

	ctx.JSON(iris.Map{"success": true, "request": request})
}

// GetGroupJoinRequests lists a group's join requests (creator only).
func GetGroupJoinRequests(ctx iris.Context) {
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

	var group models.Group
	if err := storage.DB.First(&group, groupID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	var requests []models.JoinRequest
	storage.DB.Where("group_id = ?", groupID).
		Preload("Requester").
		Order("created_at DESC").
		Find(&requests)

	ctx.JSON(iris.Map{"success": true, "requests": requests})
}

// GetMyJoinRequests returns the user's own join requests across groups.
func GetMyJoinRequests(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	var requests []models.JoinRequest
	storage.DB.Where("requester_id = ?", user.ID).
		Preload("Group").
		Order("created_at DESC").
		Find(&requests)

	ctx.JSON(iris.Map{"success": true, "requests": requests})
}

type respondJoinRequestInput struct {
	Action string `json:"action"` // approve, decline, block
}

// RespondToJoinRequest resolves a pending join request (creator only).
// Approving also inserts the membership row; the insert is idempotent so a
// retried approval after a partial failure converges. Blocking also adds
// the requester to the group's blocked set.
func RespondToJoinRequest(ctx iris.Context) {
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

	var input respondJoinRequestInput
	if err := ctx.ReadJSON(&input); err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var status string
	switch input.Action {
	case "approve":
		status = models.JoinStatusApproved
	case "decline":
		status = models.JoinStatusDeclined
	case "block":
		status = models.JoinStatusBlocked
	default:
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "action must be approve, decline or block")
		return
	}

	var request models.JoinRequest
	if err := storage.DB.Preload("Group").Preload("Requester").First(&request, requestID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if request.Group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}
	if request.Status != models.JoinStatusPending {
		utils.JSONError(ctx, http.StatusConflict, "request_already_processed", "this request was already resolved")
		return
	}

	now := time.Now()
	err = storage.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.JoinRequest{}).
			Where("id = ? AND status = ?", requestID, models.JoinStatusPending).
			Updates(map[string]interface{}{
				"status":       status,
				"responded_at": &now,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errAlreadyProcessed
		}

		switch status {
		case models.JoinStatusApproved:
			member := models.GroupMember{
				GroupID:  request.GroupID,
				UserID:   request.RequesterID,
				Role:     "member",
				JoinedAt: &now,
			}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
		case models.JoinStatusBlocked:
			blocked := models.BlockedUser{
				GroupID: request.GroupID,
				UserID:  request.RequesterID,
			}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&blocked).Error
		}
		return nil
	})
	if err == errAlreadyProcessed {
		utils.JSONError(ctx, http.StatusConflict, "request_already_processed", "this request was already resolved")
		return
	}
	if err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to update request")
		return
	}

	notifications := services.NewNotificationService(storage.DB)
	switch status {
	case models.JoinStatusApproved:
		notifications.NotifyJoinResponse(&request, true)
	case models.JoinStatusDeclined:
		notifications.NotifyJoinResponse(&request, false)
	case models.JoinStatusBlocked:
		utils.Audit(ctx, "block_user", "group", request.GroupID, nil, iris.Map{"userID": request.RequesterID})
	}

	publishGroupJoinRequests(request.GroupID)
	publishUserJoinRequests(request.RequesterID)

	ctx.JSON(iris.Map{"success": true})
}

// GetBlockedUsers lists a group's blocked users (creator only).
func GetBlockedUsers(ctx iris.Context) {
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

	var group models.Group
	if err := storage.DB.First(&group, groupID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	var blocked []models.BlockedUser
	storage.DB.Where("group_id = ?", groupID).Preload("User").Find(&blocked)

	ctx.JSON(iris.Map{"success": true, "blocked": blocked})
}

// UnblockUser removes a user from the blocked set and purges their
// blocked-status join requests for the group so those rows stop showing in
// the requester's own request list.
func UnblockUser(ctx iris.Context) {
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
	blockedUserID, err := ctx.Params().GetUint("userID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	var group models.Group
	if err := storage.DB.First(&group, groupID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	err = storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("group_id = ? AND user_id = ?", groupID, blockedUserID).
			Delete(&models.BlockedUser{}).Error; err != nil {
			return err
		}
		return tx.Where("group_id = ? AND requester_id = ? AND status = ?",
			groupID, blockedUserID, models.JoinStatusBlocked).
			Delete(&models.JoinRequest{}).Error
	})
	if err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to unblock user")
		return
	}

	utils.Audit(ctx, "unblock_user", "group", groupID, iris.Map{"userID": blockedUserID}, nil)
	publishUserJoinRequests(blockedUserID)

	ctx.JSON(iris.Map{"success": true})
}

// RegenerateInviteCode rotates the group's invite code (creator only).
// In-flight join attempts with the old code simply stop matching.
func RegenerateInviteCode(ctx iris.Context) {
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

	var group models.Group
	if err := storage.DB.First(&group, groupID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}
	if group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	oldCode := group.InviteCode
	newCode := utils.GenerateUniqueCode(storage.DB, "groups", "invite_code", utils.InviteCodeLength)
	if err := storage.DB.Model(&group).Update("invite_code", newCode).Error; err != nil {
		utils.JSONError(ctx, http.StatusInternalServerError, "persistence", "failed to update invite code")
		return
	}

	dropCachedInviteCode(oldCode)
	utils.Audit(ctx, "rotate_invite_code", "group", groupID, iris.Map{"code": oldCode}, iris.Map{"code": newCode})

	ctx.JSON(iris.Map{"success": true, "inviteCode": newCode})
}

// Transaction control errors for the join flow.
var (
	errBlocked          = &joinFlowError{"blocked"}
	errDuplicateRequest = &joinFlowError{"duplicate_request"}
	errAlreadyProcessed = &joinFlowError{"request_already_processed"}
)

type joinFlowError struct{ code string }

func (e *joinFlowError) Error() string { return e.code }

func isGroupMember(groupID, userID uint) bool {
	var count int64
	storage.DB.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count)
	return count > 0
}

// findGroupByInviteCode resolves an invite code, consulting the Redis
// cache first when available.
func findGroupByInviteCode(code string) (*models.Group, bool) {
	if storage.Redis != nil {
		cached, err := storage.Redis.Get(context.Background(), storage.InviteCodeCachePrefix+code).Result()
		if err == nil {
			if id, parseErr := strconv.ParseUint(cached, 10, 32); parseErr == nil {
				var group models.Group
				if storage.DB.First(&group, uint(id)).Error == nil && group.InviteCode == code {
					return &group, true
				}
			}
		}
	}

	var group models.Group
	result := storage.DB.Where("invite_code = ?", code).Limit(1).Find(&group)
	if result.Error != nil || result.RowsAffected == 0 {
		return nil, false
	}

	if storage.Redis != nil {
		storage.Redis.Set(context.Background(), storage.InviteCodeCachePrefix+code,
			strconv.FormatUint(uint64(group.ID), 10), 24*time.Hour)
	}
	return &group, true
}

func dropCachedInviteCode(code string) {
	if storage.Redis != nil {
		storage.Redis.Del(context.Background(), storage.InviteCodeCachePrefix+code)
	}
}
