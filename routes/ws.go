package routes

import (
	"carpool-server/models"
	"carpool-server/services"
	"carpool-server/storage"
	"carpool-server/utils"
	"log"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/kataras/iris/v12"
	jsonWT "github.com/kataras/iris/v12/middleware/jwt"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Mobile clients connect from app webviews with no Origin header.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SubscribePractices streams a group's practice list. The full current
// list is sent on connect and re-sent after every practice mutation.
func SubscribePractices(ctx iris.Context) {
	groupID, ok := wsGroupAuth(ctx)
	if !ok {
		return
	}

	topic := services.PracticesTopic(groupID)
	serveSubscription(ctx, topic, func() interface{} {
		return loadGroupPractices(groupID)
	})
}

// SubscribeDriveRequests streams a group's drive requests.
func SubscribeDriveRequests(ctx iris.Context) {
	groupID, ok := wsGroupAuth(ctx)
	if !ok {
		return
	}

	topic := services.DriveRequestsTopic(groupID)
	serveSubscription(ctx, topic, func() interface{} {
		return loadGroupDriveRequests(groupID)
	})
}

// SubscribeGroupJoinRequests streams a group's join requests (creator only).
func SubscribeGroupJoinRequests(ctx iris.Context) {
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
		ctx.StopWithStatus(http.StatusNotFound)
		return
	}
	if group.CreatorID != user.ID {
		ctx.StopWithStatus(http.StatusForbidden)
		return
	}

	topic := services.GroupJoinRequestsTopic(groupID)
	serveSubscription(ctx, topic, func() interface{} {
		return loadGroupJoinRequests(groupID)
	})
}

// SubscribeMyJoinRequests streams the caller's own join requests.
func SubscribeMyJoinRequests(ctx iris.Context) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return
	}
	user := tok.(*utils.AccessToken)

	topic := services.UserJoinRequestsTopic(user.ID)
	serveSubscription(ctx, topic, func() interface{} {
		return loadUserJoinRequests(user.ID)
	})
}

// wsGroupAuth extracts the group param and checks membership.
func wsGroupAuth(ctx iris.Context) (groupID uint, ok bool) {
	tok := jsonWT.Get(ctx)
	if tok == nil {
		ctx.StopWithStatus(http.StatusUnauthorized)
		return 0, false
	}
	user := tok.(*utils.AccessToken)
	groupID, err := ctx.Params().GetUint("groupID")
	if err != nil {
		ctx.StopWithStatus(http.StatusBadRequest)
		return 0, false
	}
	if !isGroupMember(groupID, user.ID) {
		ctx.StopWithStatus(http.StatusForbidden)
		return 0, false
	}
	return groupID, true
}

// serveSubscription upgrades the connection, pushes the initial snapshot,
// registers with the hub and blocks reading until the client goes away.
func serveSubscription(ctx iris.Context, topic string, snapshot func() interface{}) {
	conn, err := upgrader.Upgrade(ctx.ResponseWriter(), ctx.Request(), nil)
	if err != nil {
		log.Printf("websocket upgrade failed for %s: %v", topic, err)
		return
	}
	defer conn.Close()

	initial := services.SubscriptionMessage{Topic: topic, Data: snapshot()}
	if err := conn.WriteJSON(initial); err != nil {
		return
	}

	services.Hub.Subscribe(topic, conn)
	defer services.Hub.Unsubscribe(topic, conn)

	// Clients never send application frames; the read loop just detects
	// disconnects and answers pings.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func loadGroupPractices(groupID uint) []models.Practice {
	var practices []models.Practice
	storage.DB.Where("group_id = ?", groupID).
		Order("date ASC, start_time ASC").
		Find(&practices)
	return practices
}

func loadGroupDriveRequests(groupID uint) []models.DriveRequest {
	requests, err := services.NewDriveRequestService(storage.DB).ListForGroup(groupID)
	if err != nil {
		return []models.DriveRequest{}
	}
	return requests
}

func loadGroupJoinRequests(groupID uint) []models.JoinRequest {
	var requests []models.JoinRequest
	storage.DB.Where("group_id = ?", groupID).
		Preload("Requester").
		Order("created_at DESC").
		Find(&requests)
	return requests
}

func loadUserJoinRequests(userID uint) []models.JoinRequest {
	var requests []models.JoinRequest
	storage.DB.Where("requester_id = ?", userID).
		Preload("Group").
		Order("created_at DESC").
		Find(&requests)
	return requests
}

func publishGroupPractices(groupID uint) {
	topic := services.PracticesTopic(groupID)
	if services.Hub.SubscriberCount(topic) == 0 {
		return
	}
	services.Hub.Publish(topic, loadGroupPractices(groupID))
}

func publishGroupDriveRequests(groupID uint) {
	topic := services.DriveRequestsTopic(groupID)
	if services.Hub.SubscriberCount(topic) == 0 {
		return
	}
	services.Hub.Publish(topic, loadGroupDriveRequests(groupID))
}

func publishGroupJoinRequests(groupID uint) {
	topic := services.GroupJoinRequestsTopic(groupID)
	if services.Hub.SubscriberCount(topic) == 0 {
		return
	}
	services.Hub.Publish(topic, loadGroupJoinRequests(groupID))
}

func publishUserJoinRequests(userID uint) {
	topic := services.UserJoinRequestsTopic(userID)
	if services.Hub.SubscriberCount(topic) == 0 {
		return
	}
	services.Hub.Publish(topic, loadUserJoinRequests(userID))
}
