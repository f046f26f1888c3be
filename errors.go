// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package ecsql

import (
	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/prepare"
	"github.com/canonical/ecsql/internal/reader"
)

// Errors returned by this package wrap one of these. Test for them with
// errors.Is.
var (
	// ErrInvalidECSql is returned for statements that are malformed, refer
	// to unknown classes or properties, or cannot be translated to native
	// SQL.
	ErrInvalidECSql = prepare.ErrInvalidECSql
	// ErrPolicyDenied is returned for writes the database does not allow.
	ErrPolicyDenied = prepare.ErrPolicyDenied
	// ErrInternal is returned when the engine breaks one of its own
	// invariants. It is also logged at error level.
	ErrInternal = prepare.ErrInternal
	// ErrBindMismatch is returned by binders given a value their parameter
	// cannot hold.
	ErrBindMismatch = prepare.ErrBindMismatch

	ErrNotPrepared     = errors.New("statement not prepared")
	ErrAlreadyPrepared = errors.New("statement already prepared")
	// ErrFinalized is returned by a statement used after Finalize,
	// including after a failed Prepare.
	ErrFinalized = errors.New("statement finalized")
	ErrClosed    = errors.New("database closed")

	ErrReentrantSeek = reader.ErrReentrantSeek
	ErrUnknownClass  = reader.ErrUnknownClass
	ErrNotReadable   = reader.ErrNotReadable
)
