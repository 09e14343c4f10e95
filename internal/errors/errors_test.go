// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestCodeOfWrappedError(t *testing.T) {
	base := New(CodePathViolation, "denied")
	wrapped := fmt.Errorf("tool failed: %w", base)

	if CodeOf(wrapped) != CodePathViolation {
		t.Fatalf("expected path_violation through wrapping, got %s", CodeOf(wrapped))
	}
	if !HasCode(wrapped, CodePathViolation) {
		t.Fatal("HasCode should see through fmt wrapping")
	}
}

func TestCodeOfUncodedError(t *testing.T) {
	if CodeOf(stderrors.New("plain")) != CodeInternalIO {
		t.Fatal("uncoded errors default to internal_io")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := stderrors.New("disk full")
	err := Wrap(CodeInternalIO, "failed to write file", cause)

	if !stderrors.Is(err, cause) {
		t.Fatal("Unwrap should expose the cause")
	}
	if err.Error() != "failed to write file: disk full" {
		t.Fatalf("unexpected message: %q", err.Error())
	}
}

func TestHasCodeNil(t *testing.T) {
	if HasCode(nil, CodeNotFound) {
		t.Fatal("nil error carries no code")
	}
}
