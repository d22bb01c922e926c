package routes

import (
	"fmt"
	"net/http"
	"testing"

	"carpool-server/models"
	"carpool-server/storage"

	"github.com/kataras/iris/v12"
)

func seedPracticeHTTP(t *testing.T, app *iris.Application, token string, groupID uint) models.Practice {
	t.Helper()
	resp := doJSON(app, http.MethodPost, "/api/practices", token, iris.Map{
		"groupID":   groupID,
		"date":      "2025-03-10",
		"startTime": "17:00",
		"endTime":   "18:30",
		"location":  "Main Field",
	})
	if resp.Code != http.StatusOK {
		t.Fatalf("seed practice: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Practice models.Practice `json:"practice"`
	}
	decodeBody(t, resp, &created)
	return created.Practice
}

func TestDriveRequestLifecycleOverHTTP(t *testing.T) {
	app := buildTestApp(t)
	owner := seedUser(t, models.RoleParent)
	requester := seedUser(t, models.RoleParent)
	group := seedGroupWithMembers(t, owner, requester)
	ownerToken := signTestToken(t, owner)
	requesterToken := signTestToken(t, requester)

	practice := seedPracticeHTTP(t, app, ownerToken, group.ID)

	canCreatePath := fmt.Sprintf("/api/drive-requests/can-create?practiceID=%d&direction=to", practice.ID)
	resp := doJSON(app, http.MethodGet, canCreatePath, requesterToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("can-create: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	resp = doJSON(app, http.MethodPost, "/api/drive-requests", requesterToken,
		iris.Map{"practiceID": practice.ID, "direction": "to"})
	if resp.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var created struct {
		Request models.DriveRequest `json:"request"`
	}
	decodeBody(t, resp, &created)

	// The open request blocks further asks on the same slot.
	resp = doJSON(app, http.MethodGet, canCreatePath, requesterToken, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("can-create with open request: expected 409, got %d", resp.Code)
	}
	var conflictBody struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &conflictBody)
	if conflictBody.Error != "request_already_open" {
		t.Fatalf("expected request_already_open, got %q", conflictBody.Error)
	}

	acceptPath := fmt.Sprintf("/api/drive-requests/%d/accept", created.Request.ID)
	resp = doJSON(app, http.MethodPost, acceptPath, ownerToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("accept: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	// A second accept races against an already-approved request.
	resp = doJSON(app, http.MethodPost, acceptPath, ownerToken, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("double accept: expected 409, got %d", resp.Code)
	}
	decodeBody(t, resp, &conflictBody)
	if conflictBody.Error != "conflict" {
		t.Fatalf("expected conflict code, got %q", conflictBody.Error)
	}

	var updated models.Practice
	storage.DB.First(&updated, practice.ID)
	if updated.DriverToID != owner.ID {
		t.Fatalf("expected slot held by acceptor %d, got %d", owner.ID, updated.DriverToID)
	}

	// The requester got a notification for the accepted drive.
	var notifications int64
	storage.DB.Model(&models.Notification{}).
		Where("user_id = ? AND type = ?", requester.ID, "drive_accepted").
		Count(&notifications)
	if notifications != 1 {
		t.Fatalf("expected 1 drive_accepted notification, got %d", notifications)
	}

	listPath := fmt.Sprintf("/api/drive-requests/group/%d", group.ID)
	resp = doJSON(app, http.MethodGet, listPath, requesterToken, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var listed struct {
		Requests []models.DriveRequest `json:"requests"`
	}
	decodeBody(t, resp, &listed)
	if len(listed.Requests) != 1 || listed.Requests[0].Status != models.DriveStatusApproved {
		t.Fatalf("expected one approved request, got %+v", listed.Requests)
	}
}

func TestSelfDeclareAndCancelOverHTTP(t *testing.T) {
	app := buildTestApp(t)
	owner := seedUser(t, models.RoleParent)
	other := seedUser(t, models.RoleParent)
	group := seedGroupWithMembers(t, owner, other)
	ownerToken := signTestToken(t, owner)
	otherToken := signTestToken(t, other)

	practice := seedPracticeHTTP(t, app, ownerToken, group.ID)

	resp := doJSON(app, http.MethodPost, "/api/drive-requests/self-declare", ownerToken,
		iris.Map{"practiceID": practice.ID, "direction": "from"})
	if resp.Code != http.StatusOK {
		t.Fatalf("self-declare: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	canPath := fmt.Sprintf("/api/drive-requests/can-self-declare?practiceID=%d&direction=from", practice.ID)
	resp = doJSON(app, http.MethodGet, canPath, otherToken, nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("can-self-declare on taken slot: expected 409, got %d", resp.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	decodeBody(t, resp, &body)
	if body.Error != "slot_taken" {
		t.Fatalf("expected slot_taken, got %q", body.Error)
	}

	// Only the holder may cancel.
	resp = doJSON(app, http.MethodPost, "/api/drive-requests/cancel", otherToken,
		iris.Map{"practiceID": practice.ID, "direction": "from"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("non-holder cancel: expected 403, got %d", resp.Code)
	}

	resp = doJSON(app, http.MethodPost, "/api/drive-requests/cancel", ownerToken,
		iris.Map{"practiceID": practice.ID, "direction": "from"})
	if resp.Code != http.StatusOK {
		t.Fatalf("holder cancel: expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var updated models.Practice
	storage.DB.First(&updated, practice.ID)
	if updated.DriverFromID != 0 {
		t.Fatalf("expected slot reopened, got %d", updated.DriverFromID)
	}
}

func TestDriveRequestMembershipGuard(t *testing.T) {
	app := buildTestApp(t)
	owner := seedUser(t, models.RoleParent)
	group := seedGroupWithMembers(t, owner)
	ownerToken := signTestToken(t, owner)
	practice := seedPracticeHTTP(t, app, ownerToken, group.ID)

	outsider := seedUser(t, models.RoleParent)
	outsiderToken := signTestToken(t, outsider)

	resp := doJSON(app, http.MethodPost, "/api/drive-requests", outsiderToken,
		iris.Map{"practiceID": practice.ID, "direction": "to"})
	if resp.Code != http.StatusForbidden {
		t.Fatalf("outsider create: expected 403, got %d", resp.Code)
	}

	resp = doJSON(app, http.MethodGet, fmt.Sprintf("/api/drive-requests/group/%d", group.ID), outsiderToken, nil)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("outsider list: expected 403, got %d", resp.Code)
	}
}
