package services

import (
	"errors"
	"testing"
	"time"

	"carpool-server/models"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupEngineDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	err = db.AutoMigrate(
		&models.User{},
		&models.Group{},
		&models.GroupMember{},
		&models.Practice{},
		&models.DriveRequest{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return db
}

func seedPractice(t *testing.T, db *gorm.DB) models.Practice {
	t.Helper()
	group := models.Group{Name: "Tigers U12", InviteCode: "ABC123", CreatorID: 1}
	if err := db.Create(&group).Error; err != nil {
		t.Fatalf("failed to create group: %v", err)
	}
	practice := models.Practice{
		GroupID:   group.ID,
		Date:      time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		StartTime: "17:00",
		EndTime:   "18:30",
		Location:  "Main Field",
		CreatorID: 1,
	}
	if err := db.Create(&practice).Error; err != nil {
		t.Fatalf("failed to create practice: %v", err)
	}
	return practice
}

func TestCreateThenAccept(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	if err := engine.CanCreate(practice.ID, models.DirectionTo); err != nil {
		t.Fatalf("expected open slot, got %v", err)
	}

	req := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionTo, RequesterID: 2}
	if err := engine.Create(&req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if req.Status != models.DriveStatusPending {
		t.Fatalf("expected pending status, got %q", req.Status)
	}
	if req.GroupID != practice.GroupID {
		t.Fatalf("expected group %d stamped on request, got %d", practice.GroupID, req.GroupID)
	}

	accepted, err := engine.Accept(req.ID, 3)
	if err != nil {
		t.Fatalf("accept failed: %v", err)
	}
	if accepted.Status != models.DriveStatusApproved {
		t.Fatalf("expected approved, got %q", accepted.Status)
	}
	if accepted.AcceptedByID == nil || *accepted.AcceptedByID != 3 {
		t.Fatalf("expected acceptedByID 3, got %v", accepted.AcceptedByID)
	}

	var updated models.Practice
	db.First(&updated, practice.ID)
	if updated.DriverToID != 3 {
		t.Fatalf("expected slot held by 3, got %d", updated.DriverToID)
	}
	if updated.DriverFromID != 0 {
		t.Fatalf("from slot should stay open, got %d", updated.DriverFromID)
	}
}

func TestCreateRejectedWhileRequestOpen(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	first := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionTo, RequesterID: 2}
	if err := engine.Create(&first); err != nil {
		t.Fatalf("first create failed: %v", err)
	}

	if err := engine.CanCreate(practice.ID, models.DirectionTo); !errors.Is(err, ErrRequestAlreadyOpen) {
		t.Fatalf("expected ErrRequestAlreadyOpen, got %v", err)
	}

	second := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionTo, RequesterID: 4}
	if err := engine.Create(&second); !errors.Is(err, ErrRequestAlreadyOpen) {
		t.Fatalf("expected ErrRequestAlreadyOpen on create, got %v", err)
	}

	// The other direction is an independent slot.
	other := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionFrom, RequesterID: 4}
	if err := engine.Create(&other); err != nil {
		t.Fatalf("from-direction create should succeed, got %v", err)
	}
}

func TestAcceptTwiceConflicts(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	req := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionTo, RequesterID: 2}
	if err := engine.Create(&req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if _, err := engine.Accept(req.ID, 3); err != nil {
		t.Fatalf("first accept failed: %v", err)
	}
	if _, err := engine.Accept(req.ID, 5); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on second accept, got %v", err)
	}

	var updated models.Practice
	db.First(&updated, practice.ID)
	if updated.DriverToID != 3 {
		t.Fatalf("first acceptor should keep the slot, got %d", updated.DriverToID)
	}
}

func TestAcceptAfterSlotOverwritten(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	req := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionTo, RequesterID: 2}
	if err := engine.Create(&req); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// A direct practice edit fills the slot underneath the pending request.
	db.Model(&models.Practice{}).Where("id = ?", practice.ID).Update("driver_to_id", 9)

	if _, err := engine.Accept(req.ID, 3); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	// The request stays pending and the edit's driver is untouched.
	var stale models.DriveRequest
	db.First(&stale, req.ID)
	if stale.Status != models.DriveStatusPending {
		t.Fatalf("request should stay pending, got %q", stale.Status)
	}
	var updated models.Practice
	db.First(&updated, practice.ID)
	if updated.DriverToID != 9 {
		t.Fatalf("expected driver 9 kept, got %d", updated.DriverToID)
	}
}

func TestDeclineKeepsSlotOpen(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	req := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionFrom, RequesterID: 2}
	if err := engine.Create(&req); err != nil {
		t.Fatalf("create failed: %v", err)
	}
	if err := engine.Decline(req.ID, 3); err != nil {
		t.Fatalf("decline failed: %v", err)
	}

	var declined models.DriveRequest
	db.First(&declined, req.ID)
	if declined.Status != models.DriveStatusDeclined {
		t.Fatalf("expected declined, got %q", declined.Status)
	}
	if declined.DeclinedByID == nil || *declined.DeclinedByID != 3 {
		t.Fatalf("expected declinedByID 3, got %v", declined.DeclinedByID)
	}

	// Declining frees the slot for a fresh request.
	again := models.DriveRequest{PracticeID: practice.ID, Direction: models.DirectionFrom, RequesterID: 4}
	if err := engine.Create(&again); err != nil {
		t.Fatalf("new request after decline should succeed, got %v", err)
	}

	if err := engine.Decline(req.ID, 3); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict on double decline, got %v", err)
	}
}

func TestSelfDeclareSkipsRequestRecord(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	if err := engine.SelfDeclare(practice.ID, models.DirectionTo, 7); err != nil {
		t.Fatalf("self-declare failed: %v", err)
	}

	var updated models.Practice
	db.First(&updated, practice.ID)
	if updated.DriverToID != 7 {
		t.Fatalf("expected driver 7, got %d", updated.DriverToID)
	}

	var count int64
	db.Model(&models.DriveRequest{}).Count(&count)
	if count != 0 {
		t.Fatalf("self-declare must not create request rows, found %d", count)
	}

	if err := engine.CanSelfDeclare(practice.ID, models.DirectionTo); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken, got %v", err)
	}
	if err := engine.SelfDeclare(practice.ID, models.DirectionTo, 8); !errors.Is(err, ErrSlotTaken) {
		t.Fatalf("expected ErrSlotTaken on second self-declare, got %v", err)
	}
}

func TestCancelDriveOwnership(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)
	practice := seedPractice(t, db)

	if err := engine.SelfDeclare(practice.ID, models.DirectionFrom, 7); err != nil {
		t.Fatalf("self-declare failed: %v", err)
	}

	if err := engine.CancelDrive(practice.ID, models.DirectionFrom, 8); !errors.Is(err, ErrNotSlotHolder) {
		t.Fatalf("expected ErrNotSlotHolder for non-holder, got %v", err)
	}

	if err := engine.CancelDrive(practice.ID, models.DirectionFrom, 7); err != nil {
		t.Fatalf("holder cancel failed: %v", err)
	}

	var updated models.Practice
	db.First(&updated, practice.ID)
	if updated.DriverFromID != 0 {
		t.Fatalf("slot should be open after cancel, got %d", updated.DriverFromID)
	}
	if err := engine.CanCreate(practice.ID, models.DirectionFrom); err != nil {
		t.Fatalf("slot should be requestable after cancel, got %v", err)
	}
}

func TestInvalidDirectionAndMissingPractice(t *testing.T) {
	db := setupEngineDB(t)
	engine := NewDriveRequestService(db)

	if err := engine.CanCreate(1, "sideways"); !errors.Is(err, ErrInvalidDirection) {
		t.Fatalf("expected ErrInvalidDirection, got %v", err)
	}
	if err := engine.CanCreate(999, models.DirectionTo); !errors.Is(err, ErrPracticeNotFound) {
		t.Fatalf("expected ErrPracticeNotFound, got %v", err)
	}
	if _, err := engine.Accept(999, 1); !errors.Is(err, ErrRequestNotFound) {
		t.Fatalf("expected ErrRequestNotFound, got %v", err)
	}
	if err := engine.CancelDrive(999, models.DirectionTo, 1); !errors.Is(err, ErrPracticeNotFound) {
		t.Fatalf("expected ErrPracticeNotFound, got %v", err)
	}
}
