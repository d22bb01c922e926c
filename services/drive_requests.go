package services

import (
	"carpool-server/models"
	"errors"

	"gorm.io/gorm"
)

// Engine failure kinds. Routes map these onto HTTP statuses; anything else
// coming out of the engine is an infrastructure failure.
var (
	ErrPracticeNotFound   = errors.New("practice not found")
	ErrRequestNotFound    = errors.New("drive request not found")
	ErrInvalidDirection   = errors.New("direction must be to or from")
	ErrSlotTaken          = errors.New("slot already taken")
	ErrRequestAlreadyOpen = errors.New("a request is already open for this slot")
	ErrConflict           = errors.New("slot already taken or request no longer pending")
	ErrNotSlotHolder      = errors.New("only the current driver can cancel")
)

// DriveRequestService mediates the two assignable driving slots per
// practice. Invariant: a (practice, direction) slot is assigned at most
// once while filled, and a pending request cannot be approved once the
// slot is gone.
//
// Concurrency comes from independent clients racing on the same rows, so
// every mutating operation runs its precondition checks and writes inside
// one transaction, with the final write additionally guarded by a
// conditional WHERE. First successful writer wins; losers get ErrConflict
// and the user retries.
type DriveRequestService struct {
	db *gorm.DB
}

func NewDriveRequestService(db *gorm.DB) *DriveRequestService {
	return &DriveRequestService{db: db}
}

func driverColumn(direction string) string {
	if direction == models.DirectionTo {
		return "driver_to_id"
	}
	return "driver_from_id"
}

// checkSlot loads the practice and verifies the slot for direction is open
// and no pending request exists for it.
func (s *DriveRequestService) checkSlot(tx *gorm.DB, practiceID uint, direction string) (*models.Practice, error) {
	var practice models.Practice
	if err := tx.First(&practice, practiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPracticeNotFound
		}
		return nil, err
	}

	if practice.DriverFor(direction) != 0 {
		return nil, ErrSlotTaken
	}

	var count int64
	err := tx.Model(&models.DriveRequest{}).
		Where("group_id = ? AND practice_id = ? AND direction = ? AND status = ?",
			practice.GroupID, practiceID, direction, models.DriveStatusPending).
		Count(&count).Error
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return nil, ErrRequestAlreadyOpen
	}

	return &practice, nil
}

// CanCreate is the advisory pre-check shown to the user before they submit
// a request. Create re-runs the same checks atomically at write time.
func (s *DriveRequestService) CanCreate(practiceID uint, direction string) error {
	if !models.ValidDirection(direction) {
		return ErrInvalidDirection
	}
	_, err := s.checkSlot(s.db, practiceID, direction)
	return err
}

// Create persists a new pending drive request. The slot and open-request
// checks run in the same transaction as the insert. Under read committed
// two racing devices can still each pass the checks and leave two pending
// requests on one slot; the conditional writes in Accept settle that, so
// only one request can ever take the slot and the other ends in ErrConflict.
func (s *DriveRequestService) Create(req *models.DriveRequest) error {
	if !models.ValidDirection(req.Direction) {
		return ErrInvalidDirection
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		practice, err := s.checkSlot(tx, req.PracticeID, req.Direction)
		if err != nil {
			return err
		}
		req.GroupID = practice.GroupID
		req.PracticeDate = practice.Date
		req.Status = models.DriveStatusPending
		req.AcceptedByID = nil
		req.DeclinedByID = nil
		return tx.Create(req).Error
	})
}

// Accept assigns the acceptor as the driver for the request's slot and
// marks the request approved, as one unit. Both writes are conditional:
// the slot must still be open and the request still pending. If another
// acceptor won the race first, the caller gets ErrConflict.
func (s *DriveRequestService) Accept(requestID uint, acceptorID uint) (*models.DriveRequest, error) {
	var request models.DriveRequest
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&request, requestID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRequestNotFound
			}
			return err
		}
		if request.Status != models.DriveStatusPending {
			return ErrConflict
		}

		col := driverColumn(request.Direction)
		slotUpdate := tx.Model(&models.Practice{}).
			Where("id = ? AND "+col+" = 0", request.PracticeID).
			Update(col, acceptorID)
		if slotUpdate.Error != nil {
			return slotUpdate.Error
		}
		if slotUpdate.RowsAffected == 0 {
			return ErrConflict
		}

		requestUpdate := tx.Model(&models.DriveRequest{}).
			Where("id = ? AND status = ?", requestID, models.DriveStatusPending).
			Updates(map[string]interface{}{
				"status":         models.DriveStatusApproved,
				"accepted_by_id": acceptorID,
			})
		if requestUpdate.Error != nil {
			return requestUpdate.Error
		}
		if requestUpdate.RowsAffected == 0 {
			return ErrConflict
		}

		request.Status = models.DriveStatusApproved
		request.AcceptedByID = &acceptorID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// Decline marks the request declined. The practice slot is untouched and
// stays open for a new request.
func (s *DriveRequestService) Decline(requestID uint, declinerID uint) error {
	result := s.db.Model(&models.DriveRequest{}).
		Where("id = ? AND status = ?", requestID, models.DriveStatusPending).
		Updates(map[string]interface{}{
			"status":         models.DriveStatusDeclined,
			"declined_by_id": declinerID,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CanSelfDeclare has the same preconditions as CanCreate: a parent taking
// a slot directly must still find it empty with no competing open request.
func (s *DriveRequestService) CanSelfDeclare(practiceID uint, direction string) error {
	return s.CanCreate(practiceID, direction)
}

// SelfDeclare sets the driver for a slot directly, without creating a
// request record, bypassing the request/accept cycle.
func (s *DriveRequestService) SelfDeclare(practiceID uint, direction string, driverID uint) error {
	if !models.ValidDirection(direction) {
		return ErrInvalidDirection
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := s.checkSlot(tx, practiceID, direction); err != nil {
			return err
		}
		col := driverColumn(direction)
		result := tx.Model(&models.Practice{}).
			Where("id = ? AND "+col+" = 0", practiceID).
			Update(col, driverID)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrSlotTaken
		}
		return nil
	})
}

// CancelDrive clears a slot back to open. Only the current holder may
// cancel; the conditional WHERE doubles as the ownership check.
func (s *DriveRequestService) CancelDrive(practiceID uint, direction string, driverID uint) error {
	if !models.ValidDirection(direction) {
		return ErrInvalidDirection
	}
	var practice models.Practice
	if err := s.db.First(&practice, practiceID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrPracticeNotFound
		}
		return err
	}

	col := driverColumn(direction)
	result := s.db.Model(&models.Practice{}).
		Where("id = ? AND "+col+" = ?", practiceID, driverID).
		Update(col, 0)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotSlotHolder
	}
	return nil
}

// ListForGroup returns a group's drive requests, newest practice first.
func (s *DriveRequestService) ListForGroup(groupID uint) ([]models.DriveRequest, error) {
	var requests []models.DriveRequest
	err := s.db.Where("group_id = ?", groupID).
		Preload("Requester").
		Order("practice_date DESC, created_at DESC").
		Find(&requests).Error
	return requests, err
}
