// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatekeep Contributors

package errutil_test

import (
	"testing"

	"github.com/samber/oops"

	"github.com/gatekeep/gatekeep/pkg/errutil"
)

func TestAssertErrorCode(t *testing.T) {
	err := oops.Code("SOME_CODE").Errorf("failed")
	errutil.AssertErrorCode(t, err, "SOME_CODE")
}

func TestAssertErrorContext(t *testing.T) {
	err := oops.With("user_id", "abc").Errorf("failed")
	errutil.AssertErrorContext(t, err, "user_id", "abc")
}
