package mach

import (
	"testing"

	"github.com/mstar-lang/malic/pkg/regalloc"
	"github.com/mstar-lang/malic/pkg/x86"
)

func TestBuildAlignsFrameSizeTo16(t *testing.T) {
	f := &x86.Func{Name: "f"}
	Build(f, &regalloc.FrameInfo{NumSpillSlots: 1})
	if f.Frame.Size%stackAlignment != 0 {
		t.Fatalf("frame size %d is not 16-byte aligned", f.Frame.Size)
	}
	if f.Frame.Size < 8 {
		t.Fatalf("one spill slot should reserve at least 8 bytes, got %d", f.Frame.Size)
	}
}

func TestBuildNoSpillsZeroSize(t *testing.T) {
	f := &x86.Func{Name: "f"}
	Build(f, &regalloc.FrameInfo{})
	if f.Frame.Size != 0 {
		t.Fatalf("expected zero frame size with no spills, got %d", f.Frame.Size)
	}
}

func TestBuildPadsOddCalleeSavedCount(t *testing.T) {
	f := &x86.Func{Name: "f"}
	Build(f, &regalloc.FrameInfo{CalleeSaved: []x86.Reg{x86.RBX}})
	if (f.Frame.Size+8)%stackAlignment != 0 {
		t.Fatalf("one push plus frame size %d leaves rsp misaligned at call sites", f.Frame.Size)
	}
}

func TestBuildCarriesCalleeSaved(t *testing.T) {
	f := &x86.Func{Name: "f"}
	Build(f, &regalloc.FrameInfo{CalleeSaved: []x86.Reg{x86.RBX, x86.R12}})
	if len(f.Frame.CalleeSaved) != 2 {
		t.Fatalf("expected 2 callee-saved registers, got %d", len(f.Frame.CalleeSaved))
	}
}
