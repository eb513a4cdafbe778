package billing

import "errors"

// Concurrency/state errors are always produced inside the protecting
// transaction; controllers translate them to stable HTTP codes.
var (
	ErrTokenNotFound     = errors.New("TOKEN_NOT_FOUND")
	ErrTokenAlreadyUsed  = errors.New("TOKEN_ALREADY_USED")
	ErrTokenExpired      = errors.New("TOKEN_EXPIRED")
	ErrUserNotFound      = errors.New("USER_NOT_FOUND")
	ErrPlanNotFound      = errors.New("PLAN_NOT_FOUND")
	ErrPlanMappingFailed = errors.New("PLAN_MAPPING_FAILED")
)
