package enums

import "fmt"

// InventoryAction categorizes audit log rows.
type InventoryAction string

const (
	InventoryActionAdd      InventoryAction = "add"
	InventoryActionSubtract InventoryAction = "subtract"
	InventoryActionReserve  InventoryAction = "reserve"
	InventoryActionRelease  InventoryAction = "release"
)

var validInventoryActions = []InventoryAction{
	InventoryActionAdd,
	InventoryActionSubtract,
	InventoryActionReserve,
	InventoryActionRelease,
}

// IsValid checks whether the given action matches the canonical enum.
func (a InventoryAction) IsValid() bool {
	for _, candidate := range validInventoryActions {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseInventoryAction converts raw strings into InventoryAction.
func ParseInventoryAction(value string) (InventoryAction, error) {
	for _, candidate := range validInventoryActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid inventory action %q", value)
}
