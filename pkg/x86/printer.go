package x86

import (
	"fmt"
	"io"
	"strings"
)

// Printer emits NASM Intel-syntax assembly, one section and one function
// at a time, using NASM's directive set (`section .text`, `extern`,
// `global`).
type Printer struct {
	w io.Writer
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// externs are the runtime-library symbols every compiled unit may call
//; declared unconditionally so NASM can always resolve
// them at link time regardless of which ones a given program actually uses.
var externs = []string{
	"printf", "puts", "malloc",
	"__printInt", "__printlnInt", "__malloc",
	"getString", "getInt", "toString",
	"__stringConcat", "__stringCompare",
}

func (p *Printer) PrintProgram(prog *Program) {
	fmt.Fprintf(p.w, "; generated by malic, do not edit\n")
	fmt.Fprintf(p.w, "default rel\n\n")
	for _, e := range externs {
		fmt.Fprintf(p.w, "extern %s\n", e)
	}
	fmt.Fprintf(p.w, "\n")
	for _, f := range prog.Functions {
		fmt.Fprintf(p.w, "global %s\n", f.Name)
	}
	fmt.Fprintf(p.w, "\n")

	p.printData(prog)

	fmt.Fprintf(p.w, "section .text\n")
	for _, f := range prog.Functions {
		p.printFunc(f)
	}
}

func (p *Printer) printData(prog *Program) {
	var rodata, data, bss []Global
	for _, g := range prog.Globals {
		switch {
		case g.ReadOnly:
			rodata = append(rodata, g)
		case g.HasInit:
			data = append(data, g)
		default:
			bss = append(bss, g)
		}
	}
	if len(rodata) > 0 {
		fmt.Fprintf(p.w, "section .rodata\n")
		for _, g := range rodata {
			p.printGlobal(g)
		}
		fmt.Fprintf(p.w, "\n")
	}
	if len(data) > 0 {
		fmt.Fprintf(p.w, "section .data\n")
		for _, g := range data {
			fmt.Fprintf(p.w, "%s: dq %d\n", g.Name, g.InitValue)
		}
		fmt.Fprintf(p.w, "\n")
	}
	if len(bss) > 0 {
		fmt.Fprintf(p.w, "section .bss\n")
		for _, g := range bss {
			fmt.Fprintf(p.w, "%s: resb %d\n", g.Name, g.Size)
		}
		fmt.Fprintf(p.w, "\n")
	}
}

// printGlobal lays out one string literal as [length:i64][bytes...]\0 per
// the object-layout contract.
func (p *Printer) printGlobal(g Global) {
	if !g.IsString {
		return
	}
	b := []byte(g.StringValue)
	fmt.Fprintf(p.w, "%s:\n", g.Name)
	fmt.Fprintf(p.w, "\tdq %d\n", len(b))
	if len(b) > 0 {
		parts := make([]string, len(b))
		for i, c := range b {
			parts[i] = fmt.Sprintf("%d", c)
		}
		fmt.Fprintf(p.w, "\tdb %s\n", strings.Join(parts, ","))
	}
	fmt.Fprintf(p.w, "\tdb 0\n")
}

// PrintFunc dumps one function's instruction stream without the data
// section or extern/global preamble, for the CLI's --print-ins debug
// dump, which runs before allocation assigns f.Frame.
func (p *Printer) PrintFunc(f *Func) {
	p.printFunc(f)
}

func (p *Printer) printFunc(f *Func) {
	fmt.Fprintf(p.w, "%s:\n", f.Name)
	p.printPrologue(f)
	for _, ins := range f.Instrs {
		if _, ok := ins.(Ret); ok {
			p.printEpilogue(f)
		}
		p.printInstr(ins)
	}
	fmt.Fprintf(p.w, "\n")
}

func (p *Printer) printPrologue(f *Func) {
	fr := f.Frame
	if fr == nil {
		return
	}
	fmt.Fprintf(p.w, "\tpush rbp\n\tmov rbp, rsp\n")
	if fr.Size > 0 {
		fmt.Fprintf(p.w, "\tsub rsp, %d\n", fr.Size)
	}
	for _, r := range fr.CalleeSaved {
		fmt.Fprintf(p.w, "\tpush %s\n", r)
	}
}

func (p *Printer) printEpilogue(f *Func) {
	fr := f.Frame
	if fr == nil {
		return
	}
	for i := len(fr.CalleeSaved) - 1; i >= 0; i-- {
		fmt.Fprintf(p.w, "\tpop %s\n", fr.CalleeSaved[i])
	}
	fmt.Fprintf(p.w, "\tleave\n")
}

func (p *Printer) op(o Operand) string {
	switch o.Kind {
	case OpPReg:
		return o.PReg.String()
	case OpVReg:
		return fmt.Sprintf("<unallocated v%d>", o.VReg)
	case OpImm:
		return fmt.Sprintf("%d", o.Imm)
	case OpMem:
		return p.memOperand(o)
	case OpStringSym:
		return fmt.Sprintf("str_%d", o.Imm)
	case OpGlobalSym:
		return o.Sym
	case OpFuncSym:
		return o.Sym
	}
	return "?"
}

func (p *Printer) memOperand(o Operand) string {
	if o.IsFrame {
		if o.FrameOffset >= 0 {
			return fmt.Sprintf("qword [rbp+%d]", o.FrameOffset)
		}
		return fmt.Sprintf("qword [rbp%d]", o.FrameOffset)
	}
	if o.Base.IsNone() && o.Sym != "" {
		if o.Disp != 0 {
			return fmt.Sprintf("qword [%s+%d]", o.Sym, o.Disp)
		}
		return fmt.Sprintf("qword [%s]", o.Sym)
	}
	s := "[" + o.Base.String()
	if !o.Index.IsNone() {
		s += fmt.Sprintf("+%s*%d", o.Index.String(), o.Scale)
	}
	if o.Disp != 0 {
		if o.Disp > 0 {
			s += fmt.Sprintf("+%d", o.Disp)
		} else {
			s += fmt.Sprintf("%d", o.Disp)
		}
	}
	return "qword " + s + "]"
}

func (p *Printer) printInstr(ins Instruction) {
	switch i := ins.(type) {
	case Mov:
		fmt.Fprintf(p.w, "\tmov %s, %s\n", p.op(i.Dst), p.op(i.Src))
	case Lea:
		// lea takes an address expression, never a size-prefixed load.
		fmt.Fprintf(p.w, "\tlea %s, %s\n", p.op(i.Dst), strings.TrimPrefix(p.op(i.Src), "qword "))
	case BinOp:
		fmt.Fprintf(p.w, "\t%s %s, %s\n", binMnemonic[i.Op], p.op(i.Dst), p.op(i.Src))
	case Shift:
		if i.ByCL {
			fmt.Fprintf(p.w, "\t%s %s, cl\n", shiftMnemonic[i.Op], p.op(i.Dst))
		} else {
			fmt.Fprintf(p.w, "\t%s %s, %s\n", shiftMnemonic[i.Op], p.op(i.Dst), p.op(i.Count))
		}
	case Imul:
		fmt.Fprintf(p.w, "\timul %s, %s\n", p.op(i.Dst), p.op(i.Src))
	case Cqo:
		fmt.Fprintf(p.w, "\tcqo\n")
	case Idiv:
		fmt.Fprintf(p.w, "\tidiv %s\n", p.op(i.Src))
	case Neg:
		fmt.Fprintf(p.w, "\tneg %s\n", p.op(i.Dst))
	case Not:
		fmt.Fprintf(p.w, "\tnot %s\n", p.op(i.Dst))
	case Cmp:
		fmt.Fprintf(p.w, "\tcmp %s, %s\n", p.op(i.A), p.op(i.B))
	case SetCC:
		fmt.Fprintf(p.w, "\tset%s %s\n", condSuffix[i.Cond], p.setccOperand(i.Dst))
	case Jmp:
		fmt.Fprintf(p.w, "\tjmp %s\n", i.Target)
	case Jcc:
		fmt.Fprintf(p.w, "\tj%s %s\n", condSuffix[i.Cond], i.Target)
	case LabelDef:
		fmt.Fprintf(p.w, "%s:\n", i.Name)
	case Call:
		fmt.Fprintf(p.w, "\tcall %s\n", p.op(i.Target))
	case Push:
		fmt.Fprintf(p.w, "\tpush %s\n", p.op(i.Src))
	case Pop:
		fmt.Fprintf(p.w, "\tpop %s\n", p.op(i.Dst))
	case Ret:
		fmt.Fprintf(p.w, "\tret\n")
	default:
		fmt.Fprintf(p.w, "\t; unhandled instruction %T\n", ins)
	}
}

// setccOperand renders a byte-width view of a register destination; NASM
// needs the 8-bit register name (al, bl, ...) for SETcc.
func (p *Printer) setccOperand(o Operand) string {
	if o.Kind != OpPReg {
		return p.op(o)
	}
	byteNames := map[Reg]string{
		RAX: "al", RBX: "bl", RCX: "cl", RDX: "dl",
		RSI: "sil", RDI: "dil", R8: "r8b", R9: "r9b",
		R10: "r10b", R11: "r11b", R12: "r12b", R13: "r13b", R14: "r14b", R15: "r15b",
	}
	if n, ok := byteNames[o.PReg]; ok {
		return n
	}
	return p.op(o)
}
