package service

import (
	"checkout-service/internal/models"
	"checkout-service/internal/upstream"
)

// FlattenSchedule turns a published {date -> [time]} availability map
// into a flat, selectable slot list. Order follows the schedule
// document, not a chronological sort.
func FlattenSchedule(schedule models.Schedule) []models.BookableSlot {
	slots := []models.BookableSlot{}
	for _, day := range schedule {
		for _, t := range day.Times {
			slots = append(slots, models.BookableSlot{Date: day.Date, Time: t})
		}
	}
	return slots
}

// ValidateSlot checks a chosen slot against the published schedule.
// This is membership only; double-booking conflicts are resolved
// server-side at payment confirmation and surface as gateway errors.
func ValidateSlot(schedule models.Schedule, slot models.BookableSlot) error {
	if slot.Date == "" || slot.Time == "" {
		return upstream.NewValidationError("a booking slot must include both a date and a time")
	}
	if !schedule.Contains(slot) {
		return upstream.NewValidationError("slot %s %s is not offered by this service", slot.Date, slot.Time)
	}
	return nil
}
