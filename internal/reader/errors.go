// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package reader

import (
	"github.com/pkg/errors"
)

var (
	// ErrReentrantSeek is returned by Seek when it is called from inside a
	// row callback of the same reader.
	ErrReentrantSeek = errors.New("reentrant seek")
	// ErrUnknownClass is returned when a position names a class that does
	// not exist.
	ErrUnknownClass = errors.New("unknown class")
	// ErrNotReadable is returned for classes without a table of their own.
	ErrNotReadable = errors.New("class cannot be read by instance id")
)
