package booking

import (
	"fmt"

	"github.com/servicebook/booking-api/internal/model"
	"github.com/servicebook/booking-api/pkg/errors"
)

// Effect is the slot side effect of a status transition
type Effect int

const (
	EffectNone Effect = iota
	EffectReleaseSlot
)

type edge struct {
	from, to model.BookingStatus
}

type rule struct {
	// roles nil means any role allowed to act on the booking
	roles  []model.Role
	effect Effect
}

var vendorOnly = []model.Role{model.RoleVendor}

var transitions = map[edge]rule{
	{model.BookingStatusPending, model.BookingStatusAccepted}:   {roles: vendorOnly, effect: EffectNone},
	{model.BookingStatusPending, model.BookingStatusRejected}:   {roles: vendorOnly, effect: EffectReleaseSlot},
	{model.BookingStatusPending, model.BookingStatusCancelled}:  {effect: EffectReleaseSlot},
	{model.BookingStatusAccepted, model.BookingStatusCancelled}: {effect: EffectReleaseSlot},
	{model.BookingStatusAccepted, model.BookingStatusCompleted}: {roles: vendorOnly, effect: EffectNone},
}

// Decide checks whether role may move a booking from one status to another
// and reports the slot effect. Admin and system roles pass every role check.
// Entering pending is reserved to rescheduling and never legal here.
func Decide(from, to model.BookingStatus, role model.Role) (Effect, error) {
	if from == model.BookingStatusCompleted && to == model.BookingStatusCancelled {
		return EffectNone, errors.InvalidTransition("cannot cancel a completed booking")
	}

	r, ok := transitions[edge{from, to}]
	if !ok {
		return EffectNone, errors.InvalidTransition(fmt.Sprintf("cannot change booking status from %s to %s", from, to))
	}

	if role.Privileged() || r.roles == nil {
		return r.effect, nil
	}
	for _, allowed := range r.roles {
		if allowed == role {
			return r.effect, nil
		}
	}
	return EffectNone, errors.Forbidden(fmt.Sprintf("%s cannot move a booking to %s", role, to))
}
