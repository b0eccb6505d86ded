package mem

import "testing"

func TestSizeToPages(t *testing.T) {
	specs := []struct {
		size     Size
		expPages uint32
	}{
		{1023 * Kb, 256},
		{1024 * Kb, 256},
		{1 * Byte, 1},
		{0, 0},
	}

	for specIndex, spec := range specs {
		if got := spec.size.Pages(); got != spec.expPages {
			t.Errorf("[spec %d] expected Pages(%d bytes) to equal %d; got %d", specIndex, spec.size, spec.expPages, got)
		}
	}
}

func TestAlignUp(t *testing.T) {
	specs := []struct {
		addr, align, exp uintptr
	}{
		{0x1000, 0x1000, 0x1000},
		{0x1001, 0x1000, 0x2000},
		{0x7, 8, 0x8},
		{0x7, 0, 0x7},
	}

	for specIndex, spec := range specs {
		if got := AlignUp(spec.addr, spec.align); got != spec.exp {
			t.Errorf("[spec %d] expected AlignUp(0x%x, 0x%x) to equal 0x%x; got 0x%x", specIndex, spec.addr, spec.align, spec.exp, got)
		}
	}
}
