// Package versiontoken derives opaque version tokens from last-modified
// timestamps and guards mutations against stale tokens.
//
// Tokens are compared for equality only. Callers must not parse them;
// the encoding may change without notice.
package versiontoken

import (
	"strconv"
	"strings"
	"time"

	"github.com/dalemusser/rosterhub/internal/app/system/apperr"
)

// Resolution is the timestamp precision tokens are derived at. It matches
// BSON datetime precision so a token computed before a store round trip
// equals the one computed after it.
const Resolution = time.Millisecond

// TokenOf returns the version token for a resource last modified at t.
func TokenOf(t time.Time) string {
	ms := t.UTC().UnixMilli()
	return `"` + strconv.FormatInt(ms, 36) + `"`
}

// Normalize strips a weak-validator prefix and surrounding whitespace so a
// token echoed back through an If-Match header compares equal.
func Normalize(token string) string {
	token = strings.TrimSpace(token)
	return strings.TrimPrefix(token, "W/")
}

// Unconditional reports whether a supplied token places no precondition on
// the write: it is absent, or the HTTP "*" wildcard (any current version).
func Unconditional(supplied string) bool {
	supplied = Normalize(supplied)
	return supplied == "" || supplied == "*"
}

// Check compares a caller-supplied token against the resource's current one.
// An unconditional token always passes; anything else must equal current.
func Check(supplied, current string) error {
	if Unconditional(supplied) {
		return nil
	}
	supplied = Normalize(supplied)
	if supplied == current {
		return nil
	}
	return apperr.Conflict(apperr.ReasonPrecondition,
		"resource was modified by someone else; refresh and retry")
}

// Next returns the timestamp a mutation should stamp on a resource whose
// current last-modified time is prev. The result is at Resolution and is
// strictly after prev, so every mutation yields a new token even when two
// writes land in the same millisecond.
func Next(now, prev time.Time) time.Time {
	next := now.UTC().Truncate(Resolution)
	floor := prev.UTC().Truncate(Resolution)
	if !next.After(floor) {
		next = floor.Add(Resolution)
	}
	return next
}
