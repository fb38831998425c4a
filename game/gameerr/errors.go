// Package gameerr is the error taxonomy shared by every game service.
// Services return the sentinels below (optionally with details attached);
// transports map Kind to a status code.
package gameerr

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindNotFound
	KindInsufficientResource
	KindStateConflict
	KindForbidden
	KindConflict
	KindExternalProvider
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindInsufficientResource:
		return "insufficient_resource"
	case KindStateConflict:
		return "state_conflict"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindExternalProvider:
		return "external_provider"
	default:
		return "internal"
	}
}

// Error carries a stable code plus optional structured details.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Details any
}

func (e *Error) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return e.Code + ": " + e.Message
}

// Is matches any *Error with the same code, so errors.Is(err, ErrX) holds
// for copies produced by WithDetails and Withf.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// WithDetails returns a copy carrying d.
func (e *Error) WithDetails(d any) *Error {
	c := *e
	c.Details = d
	return &c
}

// Withf returns a copy with a formatted message.
func (e *Error) Withf(format string, args ...any) *Error {
	c := *e
	c.Message = fmt.Sprintf(format, args...)
	return &c
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// As extracts the *Error from err's chain.
func As(err error) (*Error, bool) {
	var ge *Error
	if errors.As(err, &ge) {
		return ge, true
	}
	return nil, false
}

// KindOf returns KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	if ge, ok := As(err); ok {
		return ge.Kind
	}
	return KindInternal
}

var (
	ErrValidation = New(KindValidation, "VALIDATION_ERROR", "invalid input")

	ErrActorNotFound   = New(KindNotFound, "ACTOR_NOT_FOUND", "actor not found")
	ErrWalletNotFound  = New(KindNotFound, "WALLET_NOT_FOUND", "wallet not found")
	ErrItemNotFound    = New(KindNotFound, "ITEM_NOT_FOUND", "item not found")
	ErrRecipeNotFound  = New(KindNotFound, "RECIPE_NOT_FOUND", "recipe not found")
	ErrListingNotFound = New(KindNotFound, "LISTING_NOT_FOUND", "listing not found")
	ErrMissionNotFound = New(KindNotFound, "MISSION_NOT_FOUND", "mission not found")
	ErrFactionNotFound = New(KindNotFound, "FACTION_NOT_FOUND", "faction not found")

	ErrInsufficientFunds          = New(KindInsufficientResource, "INSUFFICIENT_FUNDS", "insufficient funds")
	ErrInsufficientItems          = New(KindInsufficientResource, "INSUFFICIENT_ITEMS", "insufficient items")
	ErrInsufficientStock          = New(KindInsufficientResource, "INSUFFICIENT_STOCK", "listing has insufficient stock")
	ErrInsufficientIngredients    = New(KindInsufficientResource, "INSUFFICIENT_INGREDIENTS", "missing ingredients")
	ErrInsufficientFundsForReward = New(KindInsufficientResource, "INSUFFICIENT_FUNDS_FOR_REWARD", "giver cannot afford the reward")
	ErrItemNotOwned               = New(KindInsufficientResource, "ITEM_NOT_OWNED", "giver does not hold the reward item")

	ErrItemNotEquippable       = New(KindStateConflict, "ITEM_NOT_EQUIPPABLE", "only weapons and armor can be equipped")
	ErrListingInactive         = New(KindStateConflict, "LISTING_INACTIVE", "listing is no longer active")
	ErrActorBusy               = New(KindStateConflict, "ACTOR_BUSY", "actor is busy")
	ErrActorDead               = New(KindStateConflict, "ACTOR_DEAD", "actor is dead")
	ErrInvalidCombatants       = New(KindStateConflict, "INVALID_COMBATANTS", "invalid combatants")
	ErrTargetAlreadyDead       = New(KindStateConflict, "TARGET_ALREADY_DEAD", "target is already dead")
	ErrMissionAlreadyProcessed = New(KindStateConflict, "MISSION_ALREADY_PROCESSED", "mission already processed")
	ErrMissionNotActive        = New(KindStateConflict, "MISSION_NOT_ACTIVE", "mission is not active")
	ErrMissionInProgress       = New(KindStateConflict, "MISSION_IN_PROGRESS", "mission still in progress")
	ErrGiverInsolvent          = New(KindStateConflict, "GIVER_INSOLVENT", "giver can no longer pay the reward")
	ErrGiverLostItem           = New(KindStateConflict, "GIVER_LOST_ITEM", "giver no longer holds the reward item")

	ErrForbidden = New(KindForbidden, "FORBIDDEN", "not allowed")
	ErrConflict  = New(KindConflict, "CONFLICT", "already exists")

	ErrProvider = New(KindExternalProvider, "PROVIDER_ERROR", "oracle provider failed")
	ErrInternal = New(KindInternal, "INTERNAL_ERROR", "internal error")
)

// Validationf is shorthand for ErrValidation.Withf.
func Validationf(format string, args ...any) *Error {
	return ErrValidation.Withf(format, args...)
}
