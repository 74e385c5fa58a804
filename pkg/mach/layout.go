// Package mach finishes a function's frame layout after register
// allocation: it turns the allocator's spill-slot count and callee-saved
// set into the concrete stack size the prologue/epilogue reserve. x86-64
// needs only a single `sub rsp, N` plus a push/pop per callee-saved
// register, since the printer already emits the push/pop sequence and
// only needs a total byte count.
package mach

import (
	"github.com/mstar-lang/malic/pkg/regalloc"
	"github.com/mstar-lang/malic/pkg/x86"
)

const (
	stackAlignment = 16
	slotSize       = 8
)

// Build turns the allocator's per-function result into f's x86.Frame and
// attaches it, establishing the precondition the printer's prologue/
// epilogue emission relies on.
func Build(f *x86.Func, info *regalloc.FrameInfo) {
	size := alignUp(int64(info.NumSpillSlots)*slotSize, stackAlignment)
	// The saved rbp realigns the stack to 16; each callee-saved push
	// below it shifts rsp by 8, so an odd push count needs one pad slot
	// to keep call sites aligned.
	if len(info.CalleeSaved)%2 == 1 {
		size += slotSize
	}
	f.Frame = &x86.Frame{
		Size:         size,
		CalleeSaved:  info.CalleeSaved,
		SpillOffsets: info.SpillOffsets,
	}
}

func alignUp(n, align int64) int64 {
	if n == 0 {
		return 0
	}
	return ((n + align - 1) / align) * align
}
