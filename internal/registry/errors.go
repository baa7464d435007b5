package registry

import "errors"

var (
	// ErrValidation marks a malformed submission (wrong mention count,
	// duplicate mentions). Nothing is created.
	ErrValidation = errors.New("invalid submission")

	// ErrBlacklisted rejects a submission from a blacklisted leader.
	ErrBlacklisted = errors.New("leader is blacklisted")

	// ErrDuplicate rejects a submission colliding with a live registration
	// in the same lobby (team name or shared player).
	ErrDuplicate = errors.New("duplicate registration")

	// ErrCapacityFull is returned at fee selection when the lobby ceiling is
	// reached. Retryable: the registration stays pending so the leader can
	// pick another type.
	ErrCapacityFull = errors.New("lobby capacity reached")

	// ErrDeliveryFailed means the leader could not be reached privately; the
	// registration is rolled back as if it never existed.
	ErrDeliveryFailed = errors.New("could not reach leader")

	// ErrNotFound means no live registration matches the given id.
	ErrNotFound = errors.New("registration not found")

	// ErrAlreadyConfirmed is the detectable no-op for a repeated confirm.
	ErrAlreadyConfirmed = errors.New("registration already confirmed")

	// ErrStaleTrigger marks a transition attempted against a registration no
	// longer in the expected status. Entry points absorb it silently.
	ErrStaleTrigger = errors.New("registration already processed")

	// ErrUnknownMatchType rejects a selection for a type key that does not
	// exist.
	ErrUnknownMatchType = errors.New("unknown match type")

	// ErrInvalidFee rejects a fee the selected match type does not offer.
	ErrInvalidFee = errors.New("fee not offered for this match type")
)
