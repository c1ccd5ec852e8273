package errors

import "errors"

// Validation failures. Returned to the caller unchanged and never retried.
var (
	ErrTableNotFound       = errors.New("table not found")
	ErrTableEnded          = errors.New("table has ended")
	ErrTableAccessDenied   = errors.New("table access denied")
	ErrNotSeated           = errors.New("user is not seated at this table")
	ErrHandNotFound        = errors.New("hand not found")
	ErrNoActiveHand        = errors.New("no active hand")
	ErrHandInProgress      = errors.New("hand already in progress")
	ErrNotInterHandWait    = errors.New("hand is not in the inter-hand wait phase")
	ErrNotEnoughPlayers    = errors.New("not enough players")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrIllegalAction       = errors.New("illegal action")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrRakeRuleNotFound    = errors.New("rake rule not found")
	ErrInvalidWalletPayload = errors.New("invalid wallet payload")
	ErrSettlementValidation = errors.New("invalid settlement request")
	ErrAlreadySeated        = errors.New("user already seated at this table")
	ErrTableFull            = errors.New("table is full")
	ErrInvalidBuyIn         = errors.New("invalid buy-in amount")
	ErrUserNotFound         = errors.New("user not found")
	ErrUserBanned           = errors.New("user is banned")
	ErrInvalidPhone         = errors.New("invalid phone number")
	ErrSMSCodeExpired       = errors.New("sms code expired")
	ErrInvalidSMSCode       = errors.New("invalid sms code")
	ErrAdminNotFound        = errors.New("admin not found")
	ErrAdminDisabled        = errors.New("admin account disabled")
	ErrInvalidAdminPassword = errors.New("invalid admin credentials")
)

// Transient failures. Calling layers map these to a refresh/retry response.
var (
	ErrPersistFailed   = errors.New("failed to persist hand state")
	ErrSnapshotRestore = errors.New("failed to restore hand snapshot")
)
