package shared

import "fmt"

// PickListLockKey builds redis keys guarding pick list state transitions.
func PickListLockKey(pickListID int64) string {
	return fmt.Sprintf("fulfillment:picklist:%d:lock", pickListID)
}

// DeliveryNoteIdempotencyKey keys delivery note creation for a pick list.
func DeliveryNoteIdempotencyKey(pickListID int64, requestID string) string {
	return fmt.Sprintf("delivery_note:%d:%s", pickListID, requestID)
}
