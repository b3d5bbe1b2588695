package fault

import (
	"errors"
	"fmt"
	"testing"
)

type revertErr struct{}

func (revertErr) Error() string          { return "execution reverted" }
func (revertErr) ErrorCode() int         { return 3 }
func (revertErr) ErrorData() interface{} { return "0x08c379a0" }

func TestClassifyCall(t *testing.T) {
	if err := ClassifyCall("symbol", 1, nil, []byte{1}); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if kind := KindOf(ClassifyCall("symbol", 1, nil, nil)); kind != KindContract {
		t.Fatalf("empty response kind: %s", kind)
	}
	if kind := KindOf(ClassifyCall("symbol", 1, fmt.Errorf("call: %w", revertErr{}), nil)); kind != KindContract {
		t.Fatalf("revert kind: %s", kind)
	}
	if kind := KindOf(ClassifyCall("symbol", 1, errors.New("dial tcp: i/o timeout"), nil)); kind != KindTransient {
		t.Fatalf("timeout kind: %s", kind)
	}
}

func TestWrapKeepsExistingKind(t *testing.T) {
	inner := Validation("discover", "same token")
	err := Wrap(KindTransient, "outer", 1, fmt.Errorf("ctx: %w", inner))
	if !Is(err, KindValidation) {
		t.Fatalf("expected validation kind, got %s", KindOf(err))
	}
	if Wrap(KindTransient, "op", 1, nil) != nil {
		t.Fatalf("wrap nil should be nil")
	}
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindInsufficientFunds, Op: "mint", ChainID: 8453, Leg: "token0", Msg: "USDC balance 1 < 2"}
	want := "mint: chain 8453: token0: USDC balance 1 < 2"
	if err.Error() != want {
		t.Fatalf("message mismatch: %q", err.Error())
	}
}
