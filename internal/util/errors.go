package util

import "errors"

var (
	ErrUnauthorized            = errors.New("unauthorized")
	ErrPermissionDenied        = errors.New("permission denied")
	ErrUserNotFound            = errors.New("user not found")
	ErrEmailRegistered         = errors.New("email already registered")
	ErrInvalidCredentials      = errors.New("invalid credentials")
	ErrInvalidFilterSpec       = errors.New("invalid filter spec")
	ErrCatalogUnavailable      = errors.New("catalog unavailable")
	ErrGameNotFound            = errors.New("game not found")
	ErrBuildNotFound           = errors.New("build not found")
	ErrInvalidGame             = errors.New("invalid game")
	ErrInvalidProfile          = errors.New("invalid profile")
	ErrInvalidStatusTransition = errors.New("invalid status transition")
	ErrNotPurchased            = errors.New("game is not in library")
	ErrValidationRejected      = errors.New("upload rejected")
	ErrTransferFailed          = errors.New("transfer failed")
	ErrUploadNotFound          = errors.New("upload not found")
	ErrFinalizeIncomplete      = errors.New("builds missing for platforms")
)
