package services

import (
	"carpool-server/models"
	"log"

	"gorm.io/gorm"
)

// NotificationService writes in-database notification records for group and
// drive events. Delivery to devices is outside this server; clients poll or
// subscribe.
type NotificationService struct {
	db *gorm.DB
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db}
}

func (ns *NotificationService) create(n models.Notification) {
	if err := ns.db.Create(&n).Error; err != nil {
		// Notifications are best-effort; never fail the triggering operation.
		log.Printf("failed to create notification for user %d: %v", n.UserID, err)
	}
}

// NotifyJoinRequest tells the group creator someone asked to join.
func (ns *NotificationService) NotifyJoinRequest(group *models.Group, requester *models.User) {
	ns.create(models.Notification{
		UserID:  group.CreatorID,
		Type:    "join_request",
		Title:   "New Join Request",
		Message: requester.FirstName + " " + requester.LastName + " wants to join \"" + group.Name + "\"",
		RefType: "group",
		RefID:   group.ID,
	})
}

// NotifyJoinResponse tells the requester their join request was resolved.
func (ns *NotificationService) NotifyJoinResponse(request *models.JoinRequest, approved bool) {
	if approved {
		ns.create(models.Notification{
			UserID:  request.RequesterID,
			Type:    "join_approved",
			Title:   "Join Request Approved",
			Message: "Your request to join \"" + request.Group.Name + "\" has been approved!",
			RefType: "group",
			RefID:   request.GroupID,
		})
		return
	}
	ns.create(models.Notification{
		UserID:  request.RequesterID,
		Type:    "join_declined",
		Title:   "Join Request Declined",
		Message: "Your request to join \"" + request.Group.Name + "\" was declined",
		RefType: "group",
		RefID:   request.GroupID,
	})
}

// NotifyDriveAccepted tells the requester a parent took their slot request.
func (ns *NotificationService) NotifyDriveAccepted(request *models.DriveRequest, acceptor *models.User) {
	direction := "to practice"
	if request.Direction == models.DirectionFrom {
		direction = "from practice"
	}
	ns.create(models.Notification{
		UserID:  request.RequesterID,
		Type:    "drive_accepted",
		Title:   "Driver Found",
		Message: acceptor.FirstName + " " + acceptor.LastName + " will drive " + direction,
		RefType: "drive_request",
		RefID:   request.ID,
	})
}

// NotifyDriveDeclined tells the requester their ask was declined.
func (ns *NotificationService) NotifyDriveDeclined(request *models.DriveRequest) {
	ns.create(models.Notification{
		UserID:  request.RequesterID,
		Type:    "drive_declined",
		Title:   "Drive Request Declined",
		Message: "Your drive request was declined; the slot is still open",
		RefType: "drive_request",
		RefID:   request.ID,
	})
}
