// Copyright 2024 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package prepare

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/canonical/ecsql/internal/issue"
)

// Errors returned by Prepare wrap one of these. Test for them with
// errors.Is.
var (
	// ErrInvalidECSql is returned for statements that are malformed or that
	// cannot be translated to native SQL.
	ErrInvalidECSql = errors.New("invalid ECSql")
	// ErrPolicyDenied is returned for writes the database does not allow.
	ErrPolicyDenied = errors.New("policy denied")
	// ErrInternal is returned when the engine breaks one of its own
	// invariants.
	ErrInternal = errors.New("internal error")
	// ErrBindMismatch is returned by binders asked to bind a value the
	// parameter cannot hold, and by the binder of a parameter that does not
	// exist.
	ErrBindMismatch = errors.New("cannot bind parameter")
)

func invalidf(format string, args ...any) error {
	return errors.Wrapf(ErrInvalidECSql, format, args...)
}

func deniedf(format string, args ...any) error {
	return errors.Wrapf(ErrPolicyDenied, format, args...)
}

// internalf reports a programmer error to the context's issue channel and
// returns it wrapped in ErrInternal.
func (ctx *Context) internalf(format string, args ...any) error {
	return internalError(ctx.Issues, format, args...)
}

func internalError(issues *issue.Reporter, format string, args ...any) error {
	detail := fmt.Sprintf(format, args...)
	issues.Internal("%s", detail)
	return errors.Wrap(ErrInternal, detail)
}
