package vmm

import (
	"testing"

	"gravos/kernel/mm"
)

func TestPageTableEntryFlags(t *testing.T) {
	var (
		pte   pageTableEntry
		flag1 = PageTableEntryFlag(1 << 10)
		flag2 = PageTableEntryFlag(1 << 21)
	)

	if pte.HasFlags(flag1) || pte.HasFlags(flag2) {
		t.Fatalf("expected a zero entry to have no flags set")
	}

	pte.SetFlags(flag1 | flag2)

	if !pte.HasFlags(flag1 | flag2) {
		t.Fatalf("expected HasFlags to return true")
	}

	pte.ClearFlags(flag1)

	if pte.HasFlags(flag1|flag2) || !pte.HasFlags(flag2) {
		t.Fatalf("expected only flag2 to remain set")
	}

	pte.ClearFlags(flag1 | flag2)

	if pte != 0 {
		t.Fatalf("expected all flags to be cleared; got 0x%x", uint32(pte))
	}
}

func TestPageTableEntryFrameEncoding(t *testing.T) {
	var (
		pte       pageTableEntry
		physFrame = mm.Frame(0xfd000)
	)

	pte.SetFlags(FlagPresent | FlagRW | FlagUserAccessible)
	pte.SetFrame(physFrame)
	if got := pte.Frame(); got != physFrame {
		t.Fatalf("expected pte.Frame() to return %v; got %v", physFrame, got)
	}

	if exp := pageTableEntry(0xfd000007); pte != exp {
		t.Fatalf("expected encoded entry to be 0x%x; got 0x%x", exp, pte)
	}

	if !pte.HasFlags(FlagPresent | FlagRW | FlagUserAccessible) {
		t.Fatal("expected SetFrame to preserve the entry flags")
	}
}
