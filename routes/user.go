package routes

import (
	"carpool-server/models"
	"carpool-server/storage"
	"carpool-server/utils"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/exp/slices"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type RegisterUserInput struct {
	FirstName string `json:"firstName" validate:"required,max=256"`
	LastName  string `json:"lastName" validate:"required,max=256"`
	Email     string `json:"email" validate:"required,max=256,email"`
	Password  string `json:"password" validate:"required,min=8,max=256"`
	Role      string `json:"role" validate:"omitempty,oneof=parent child"`
}

type LoginUserInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Register creates a user account and returns it with a token pair.
func Register(ctx iris.Context) {
	var input RegisterUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	email := strings.ToLower(input.Email)
	var existing models.User
	result := storage.DB.Where("email = ?", email).Limit(1).Find(&existing)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected > 0 {
		utils.CreateEmailAlreadyRegistered(ctx)
		return
	}

	hashedPassword, err := hashAndSaltPassword(input.Password)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	role := input.Role
	if role == "" {
		role = models.RoleParent
	}
	user := models.User{
		FirstName: input.FirstName,
		LastName:  input.LastName,
		Email:     email,
		Password:  hashedPassword,
		Role:      role,
	}
	if err := storage.DB.Create(&user).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	returnUser(&user, ctx)
}

// Login authenticates by email and password.
func Login(ctx iris.Context) {
	var input LoginUserInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	result := storage.DB.Where("email = ?", strings.ToLower(input.Email)).Limit(1).Find(&user)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.JSONError(ctx, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(input.Password)) != nil {
		utils.JSONError(ctx, http.StatusUnauthorized, "invalid_credentials", "invalid email or password")
		return
	}

	returnUser(&user, ctx)
}

// GetMe returns the authenticated user's record.
func GetMe(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	claims := tok.(*utils.AccessToken)

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true, "user": &user})
}

type avatarInput struct {
	Avatar string `json:"avatar" validate:"required"` // base64 data URL
}

// UpdateAvatar uploads a new avatar image and stores its URL. The previous
// avatar, if any, is destroyed after the replacement is recorded.
func UpdateAvatar(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	claims := tok.(*utils.AccessToken)

	var input avatarInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}

	var user models.User
	if err := storage.DB.First(&user, claims.ID).Error; err != nil {
		utils.CreateNotFound(ctx)
		return
	}

	publicID := "avatars/" + uuid.NewString()
	uploaded := storage.UploadBase64Image(input.Avatar, publicID)
	url := uploaded["url"]
	if url == "" {
		utils.JSONError(ctx, http.StatusInternalServerError, "upload", "failed to upload avatar")
		return
	}

	previousPublicID := user.AvatarPublicID
	err := storage.DB.Model(&user).Updates(map[string]interface{}{
		"avatar_url":       url,
		"avatar_public_id": publicID,
	}).Error
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	if previousPublicID != "" {
		storage.DeleteImage(previousPublicID)
	}

	user.AvatarURL = url
	user.AvatarPublicID = publicID
	ctx.JSON(iris.Map{"success": true, "user": &user})
}

// CreateLinkCode generates a code another family member redeems to link
// their account with the caller's.
func CreateLinkCode(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	claims := tok.(*utils.AccessToken)

	linkCode := models.LinkCode{
		Code:        utils.GenerateUniqueCode(storage.DB, "link_codes", "code", utils.InviteCodeLength),
		CreatorID:   claims.ID,
		CreatorRole: claims.Role,
	}
	if err := storage.DB.Create(&linkCode).Error; err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true, "linkCode": linkCode})
}

type redeemLinkCodeInput struct {
	Code string `json:"code" validate:"required"`
}

// RedeemLinkCode links the caller with the code's creator. A parent's code
// redeemed by a child adds the child to the parent's children and vice
// versa; both user records carry the link. The code is single-use.
func RedeemLinkCode(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	claims := tok.(*utils.AccessToken)

	var input redeemLinkCodeInput
	if err := ctx.ReadJSON(&input); err != nil {
		utils.HandleValidationErrors(err, ctx)
		return
	}
	code := strings.ToUpper(strings.TrimSpace(input.Code))

	var linkCode models.LinkCode
	result := storage.DB.Where("code = ?", code).Limit(1).Find(&linkCode)
	if result.Error != nil {
		utils.CreateInternalServerError(ctx)
		return
	}
	if result.RowsAffected == 0 {
		utils.JSONError(ctx, http.StatusNotFound, "not_found", "no such link code")
		return
	}
	if linkCode.CreatorID == claims.ID {
		utils.JSONError(ctx, http.StatusBadRequest, "validation", "cannot redeem your own code")
		return
	}

	var creator, redeemer models.User
	if storage.DB.First(&creator, linkCode.CreatorID).Error != nil ||
		storage.DB.First(&redeemer, claims.ID).Error != nil {
		utils.CreateNotFound(ctx)
		return
	}

	// Parent side gets the child ID, child side gets the parent ID,
	// whichever way round the code was created.
	parent, child := &creator, &redeemer
	if creator.Role == models.RoleChild {
		parent, child = &redeemer, &creator
	}
	appendLinkedID(&parent.ChildIDs, child.ID)
	appendLinkedID(&child.ParentIDs, parent.ID)

	// Both sides of the link and the code burn land together or not at all.
	err := storage.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Save(parent).Error; err != nil {
			return err
		}
		if err := tx.Save(child).Error; err != nil {
			return err
		}
		return tx.Delete(&linkCode).Error
	})
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true, "user": &redeemer})
}

// GetMyNotifications lists the caller's notifications, newest first.
func GetMyNotifications(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	claims := tok.(*utils.AccessToken)

	var notifications []models.Notification
	storage.DB.Where("user_id = ?", claims.ID).
		Order("created_at DESC").
		Limit(100).
		Find(&notifications)

	ctx.JSON(iris.Map{"success": true, "notifications": notifications})
}

// MarkNotificationRead flags one of the caller's notifications as read.
func MarkNotificationRead(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	claims := tok.(*utils.AccessToken)
	notificationID, err := ctx.Params().GetUint("notificationID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return
	}

	now := time.Now()
	result := storage.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", notificationID, claims.ID).
		Updates(map[string]interface{}{"is_read": true, "read_at": &now})
	if result.RowsAffected == 0 {
		utils.CreateNotFound(ctx)
		return
	}

	ctx.JSON(iris.Map{"success": true})
}

func returnUser(user *models.User, ctx iris.Context) {
	tokenPair, err := utils.CreateTokenPair(user.ID)
	if err != nil {
		utils.CreateInternalServerError(ctx)
		return
	}

	ctx.JSON(iris.Map{
		"success":      true,
		"user":         user,
		"accessToken":  string(tokenPair.AccessToken),
		"refreshToken": string(tokenPair.RefreshToken),
	})
}

func hashAndSaltPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// appendLinkedID adds an ID to a JSON uint array column if not present.
func appendLinkedID(column *datatypes.JSON, id uint) {
	var ids []uint
	if *column != nil {
		json.Unmarshal(*column, &ids)
	}
	if slices.Contains(ids, id) {
		return
	}
	ids = append(ids, id)
	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	*column = datatypes.JSON(raw)
}
