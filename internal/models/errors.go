package models

import "errors"

var (
	// ErrNotFound is returned by repositories when a row does not exist
	ErrNotFound = errors.New("not found")

	// ErrUnauthorizedSender marks a submission whose origin is not the bound identity
	ErrUnauthorizedSender = errors.New("unauthorized sender")
	// ErrNotPaired marks a submission that arrived while no identity is bound
	ErrNotPaired = errors.New("not paired")
	// ErrSecretMissing means the settings store holds no envelope secret
	ErrSecretMissing = errors.New("envelope secret missing")
	// ErrPairingMismatch means the submitted code differs from the stored one
	ErrPairingMismatch = errors.New("pairing code mismatch")

	ErrInvalidPayload = errors.New("invalid payload")
	ErrDraftProcessed = errors.New("draft already processed")
	ErrBoundElsewhere = errors.New("bound to another identity")
	ErrAlreadyPaired  = errors.New("already paired")
)
