package cmn_test

import (
	"errors"
	"testing"

	"github.com/degirum/gosdk/cmn"
)

func TestIsMatchesKind(t *testing.T) {
	err := cmn.NewTimeout("deadline exceeded")
	if !cmn.Is(err, cmn.Timeout) {
		t.Error("Is(Timeout) = false, want true")
	}
	if cmn.Is(err, cmn.System) {
		t.Error("Is(System) = true, want false")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if cmn.Is(errors.New("plain"), cmn.BadParameter) {
		t.Error("Is should be false for a non-*cmn.Error")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := cmn.WrapSystem(cause, "dial %s", "host:1234")
	if !cmn.Is(err, cmn.System) {
		t.Fatalf("WrapSystem kind mismatch: %v", err)
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should unwrap to the cause")
	}
}

func TestErrsDedup(t *testing.T) {
	var e cmn.Errs
	e.Add(cmn.NewBadParameter("bad field a"))
	e.Add(cmn.NewBadParameter("bad field a")) // duplicate message, ignored
	e.Add(cmn.NewBadParameter("bad field b"))
	if e.Cnt() != 2 {
		t.Errorf("Cnt() = %d, want 2", e.Cnt())
	}
	if e.JoinErr() == nil {
		t.Error("JoinErr() = nil, want a combined error")
	}
}

func TestErrsEmptyJoinIsNil(t *testing.T) {
	var e cmn.Errs
	if e.JoinErr() != nil {
		t.Error("JoinErr() on empty Errs should be nil")
	}
}
