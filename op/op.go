// Package op defines the JVM opcodes read and written by classweave, along
// with the operand format and operand-stack effect of each one.
package op

// Code is a one-byte JVM opcode.
type Code uint8

const (
	Nop        Code = 0x00
	AconstNull Code = 0x01
	IconstM1   Code = 0x02
	Iconst0    Code = 0x03
	Iconst1    Code = 0x04
	Iconst2    Code = 0x05
	Iconst3    Code = 0x06
	Iconst4    Code = 0x07
	Iconst5    Code = 0x08
	Lconst0    Code = 0x09
	Lconst1    Code = 0x0a
	Fconst0    Code = 0x0b
	Fconst1    Code = 0x0c
	Fconst2    Code = 0x0d
	Dconst0    Code = 0x0e
	Dconst1    Code = 0x0f
	Bipush     Code = 0x10
	Sipush     Code = 0x11
	Ldc        Code = 0x12
	LdcW       Code = 0x13
	Ldc2W      Code = 0x14

	// Load
	Iload  Code = 0x15
	Lload  Code = 0x16
	Fload  Code = 0x17
	Dload  Code = 0x18
	Aload  Code = 0x19
	Iload0 Code = 0x1a
	Lload0 Code = 0x1e
	Fload0 Code = 0x22
	Dload0 Code = 0x26
	Aload0 Code = 0x2a
	Iaload Code = 0x2e
	Laload Code = 0x2f
	Faload Code = 0x30
	Daload Code = 0x31
	Aaload Code = 0x32
	Baload Code = 0x33
	Caload Code = 0x34
	Saload Code = 0x35

	// Store
	Istore  Code = 0x36
	Lstore  Code = 0x37
	Fstore  Code = 0x38
	Dstore  Code = 0x39
	Astore  Code = 0x3a
	Istore0 Code = 0x3b
	Lstore0 Code = 0x3f
	Fstore0 Code = 0x43
	Dstore0 Code = 0x47
	Astore0 Code = 0x4b
	Iastore Code = 0x4f
	Lastore Code = 0x50
	Fastore Code = 0x51
	Dastore Code = 0x52
	Aastore Code = 0x53
	Bastore Code = 0x54
	Castore Code = 0x55
	Sastore Code = 0x56

	// Stack
	Pop    Code = 0x57
	Pop2   Code = 0x58
	Dup    Code = 0x59
	DupX1  Code = 0x5a
	DupX2  Code = 0x5b
	Dup2   Code = 0x5c
	Dup2X1 Code = 0x5d
	Dup2X2 Code = 0x5e
	Swap   Code = 0x5f

	// Arithmetic
	Iadd  Code = 0x60
	Ladd  Code = 0x61
	Fadd  Code = 0x62
	Dadd  Code = 0x63
	Isub  Code = 0x64
	Lsub  Code = 0x65
	Fsub  Code = 0x66
	Dsub  Code = 0x67
	Imul  Code = 0x68
	Lmul  Code = 0x69
	Fmul  Code = 0x6a
	Dmul  Code = 0x6b
	Idiv  Code = 0x6c
	Ldiv  Code = 0x6d
	Fdiv  Code = 0x6e
	Ddiv  Code = 0x6f
	Irem  Code = 0x70
	Lrem  Code = 0x71
	Frem  Code = 0x72
	Drem  Code = 0x73
	Ineg  Code = 0x74
	Lneg  Code = 0x75
	Fneg  Code = 0x76
	Dneg  Code = 0x77
	Ishl  Code = 0x78
	Lshl  Code = 0x79
	Ishr  Code = 0x7a
	Lshr  Code = 0x7b
	Iushr Code = 0x7c
	Lushr Code = 0x7d
	Iand  Code = 0x7e
	Land  Code = 0x7f
	Ior   Code = 0x80
	Lor   Code = 0x81
	Ixor  Code = 0x82
	Lxor  Code = 0x83
	Iinc  Code = 0x84

	// Conversions
	I2l Code = 0x85
	I2f Code = 0x86
	I2d Code = 0x87
	L2i Code = 0x88
	L2f Code = 0x89
	L2d Code = 0x8a
	F2i Code = 0x8b
	F2l Code = 0x8c
	F2d Code = 0x8d
	D2i Code = 0x8e
	D2l Code = 0x8f
	D2f Code = 0x90
	I2b Code = 0x91
	I2c Code = 0x92
	I2s Code = 0x93

	// Comparisons
	Lcmp     Code = 0x94
	Fcmpl    Code = 0x95
	Fcmpg    Code = 0x96
	Dcmpl    Code = 0x97
	Dcmpg    Code = 0x98
	Ifeq     Code = 0x99
	Ifne     Code = 0x9a
	Iflt     Code = 0x9b
	Ifge     Code = 0x9c
	Ifgt     Code = 0x9d
	Ifle     Code = 0x9e
	IfIcmpeq Code = 0x9f
	IfIcmpne Code = 0xa0
	IfIcmplt Code = 0xa1
	IfIcmpge Code = 0xa2
	IfIcmpgt Code = 0xa3
	IfIcmple Code = 0xa4
	IfAcmpeq Code = 0xa5
	IfAcmpne Code = 0xa6

	// Control
	Goto         Code = 0xa7
	Jsr          Code = 0xa8
	Ret          Code = 0xa9
	Tableswitch  Code = 0xaa
	Lookupswitch Code = 0xab
	Ireturn      Code = 0xac
	Lreturn      Code = 0xad
	Freturn      Code = 0xae
	Dreturn      Code = 0xaf
	Areturn      Code = 0xb0
	Return       Code = 0xb1

	// References
	Getstatic       Code = 0xb2
	Putstatic       Code = 0xb3
	Getfield        Code = 0xb4
	Putfield        Code = 0xb5
	Invokevirtual   Code = 0xb6
	Invokespecial   Code = 0xb7
	Invokestatic    Code = 0xb8
	Invokeinterface Code = 0xb9
	Invokedynamic   Code = 0xba
	New             Code = 0xbb
	Newarray        Code = 0xbc
	Anewarray       Code = 0xbd
	Arraylength     Code = 0xbe
	Athrow          Code = 0xbf
	Checkcast       Code = 0xc0
	Instanceof      Code = 0xc1
	Monitorenter    Code = 0xc2
	Monitorexit     Code = 0xc3

	// Extended
	Wide           Code = 0xc4
	Multianewarray Code = 0xc5
	Ifnull         Code = 0xc6
	Ifnonnull      Code = 0xc7
	GotoW          Code = 0xc8
	JsrW           Code = 0xc9
)

// Format describes how the operand bytes following an opcode are laid out.
type Format uint8

const (
	FormatInvalid      Format = iota
	FormatNone                // no operand bytes
	FormatByte                // signed byte immediate (bipush) or array type (newarray)
	FormatShort               // signed short immediate (sipush)
	FormatLocal               // u1 local index, u2 under the wide prefix
	FormatImplicit            // local index encoded in the opcode itself (iload_0 etc.)
	FormatConstByte           // u1 constant-pool index (ldc)
	FormatConst               // u2 constant-pool index
	FormatBranch              // s2 branch offset
	FormatBranchWide          // s4 branch offset
	FormatIinc                // u1 local, s1 delta; u2/s2 under the wide prefix
	FormatTableSwitch         // padded tableswitch
	FormatLookupSwitch        // padded lookupswitch
	FormatInterface           // u2 pool index, u1 count, u1 zero
	FormatDynamic             // u2 pool index, u2 zero
	FormatMultiArray          // u2 pool index, u1 dimensions
	FormatWide                // wide prefix
)

// Varies marks an opcode whose stack effect depends on its operand (field
// and method references, multianewarray).
const Varies = 1 << 10

// Info contains information about an opcode.
type Info struct {
	Code   Code
	Name   string
	Format Format
	// Stack is the net change in operand-stack slots, or Varies.
	Stack int
}

// Valid returns true if the opcode is defined by the class-file format.
func (i Info) Valid() bool {
	return i.Format != FormatInvalid
}

var infos = make([]Info, 256)

func init() {
	type opInfo struct {
		op     Code
		name   string
		format Format
		stack  int
	}
	ops := []opInfo{
		{Nop, "NOP", FormatNone, 0},
		{AconstNull, "ACONST_NULL", FormatNone, 1},
		{IconstM1, "ICONST_M1", FormatNone, 1},
		{Iconst0, "ICONST_0", FormatNone, 1},
		{Iconst1, "ICONST_1", FormatNone, 1},
		{Iconst2, "ICONST_2", FormatNone, 1},
		{Iconst3, "ICONST_3", FormatNone, 1},
		{Iconst4, "ICONST_4", FormatNone, 1},
		{Iconst5, "ICONST_5", FormatNone, 1},
		{Lconst0, "LCONST_0", FormatNone, 2},
		{Lconst1, "LCONST_1", FormatNone, 2},
		{Fconst0, "FCONST_0", FormatNone, 1},
		{Fconst1, "FCONST_1", FormatNone, 1},
		{Fconst2, "FCONST_2", FormatNone, 1},
		{Dconst0, "DCONST_0", FormatNone, 2},
		{Dconst1, "DCONST_1", FormatNone, 2},
		{Bipush, "BIPUSH", FormatByte, 1},
		{Sipush, "SIPUSH", FormatShort, 1},
		{Ldc, "LDC", FormatConstByte, 1},
		{LdcW, "LDC_W", FormatConst, 1},
		{Ldc2W, "LDC2_W", FormatConst, 2},
		{Iload, "ILOAD", FormatLocal, 1},
		{Lload, "LLOAD", FormatLocal, 2},
		{Fload, "FLOAD", FormatLocal, 1},
		{Dload, "DLOAD", FormatLocal, 2},
		{Aload, "ALOAD", FormatLocal, 1},
		{Iaload, "IALOAD", FormatNone, -1},
		{Laload, "LALOAD", FormatNone, 0},
		{Faload, "FALOAD", FormatNone, -1},
		{Daload, "DALOAD", FormatNone, 0},
		{Aaload, "AALOAD", FormatNone, -1},
		{Baload, "BALOAD", FormatNone, -1},
		{Caload, "CALOAD", FormatNone, -1},
		{Saload, "SALOAD", FormatNone, -1},
		{Istore, "ISTORE", FormatLocal, -1},
		{Lstore, "LSTORE", FormatLocal, -2},
		{Fstore, "FSTORE", FormatLocal, -1},
		{Dstore, "DSTORE", FormatLocal, -2},
		{Astore, "ASTORE", FormatLocal, -1},
		{Iastore, "IASTORE", FormatNone, -3},
		{Lastore, "LASTORE", FormatNone, -4},
		{Fastore, "FASTORE", FormatNone, -3},
		{Dastore, "DASTORE", FormatNone, -4},
		{Aastore, "AASTORE", FormatNone, -3},
		{Bastore, "BASTORE", FormatNone, -3},
		{Castore, "CASTORE", FormatNone, -3},
		{Sastore, "SASTORE", FormatNone, -3},
		{Pop, "POP", FormatNone, -1},
		{Pop2, "POP2", FormatNone, -2},
		{Dup, "DUP", FormatNone, 1},
		{DupX1, "DUP_X1", FormatNone, 1},
		{DupX2, "DUP_X2", FormatNone, 1},
		{Dup2, "DUP2", FormatNone, 2},
		{Dup2X1, "DUP2_X1", FormatNone, 2},
		{Dup2X2, "DUP2_X2", FormatNone, 2},
		{Swap, "SWAP", FormatNone, 0},
		{Iadd, "IADD", FormatNone, -1},
		{Ladd, "LADD", FormatNone, -2},
		{Fadd, "FADD", FormatNone, -1},
		{Dadd, "DADD", FormatNone, -2},
		{Isub, "ISUB", FormatNone, -1},
		{Lsub, "LSUB", FormatNone, -2},
		{Fsub, "FSUB", FormatNone, -1},
		{Dsub, "DSUB", FormatNone, -2},
		{Imul, "IMUL", FormatNone, -1},
		{Lmul, "LMUL", FormatNone, -2},
		{Fmul, "FMUL", FormatNone, -1},
		{Dmul, "DMUL", FormatNone, -2},
		{Idiv, "IDIV", FormatNone, -1},
		{Ldiv, "LDIV", FormatNone, -2},
		{Fdiv, "FDIV", FormatNone, -1},
		{Ddiv, "DDIV", FormatNone, -2},
		{Irem, "IREM", FormatNone, -1},
		{Lrem, "LREM", FormatNone, -2},
		{Frem, "FREM", FormatNone, -1},
		{Drem, "DREM", FormatNone, -2},
		{Ineg, "INEG", FormatNone, 0},
		{Lneg, "LNEG", FormatNone, 0},
		{Fneg, "FNEG", FormatNone, 0},
		{Dneg, "DNEG", FormatNone, 0},
		{Ishl, "ISHL", FormatNone, -1},
		{Lshl, "LSHL", FormatNone, -1},
		{Ishr, "ISHR", FormatNone, -1},
		{Lshr, "LSHR", FormatNone, -1},
		{Iushr, "IUSHR", FormatNone, -1},
		{Lushr, "LUSHR", FormatNone, -1},
		{Iand, "IAND", FormatNone, -1},
		{Land, "LAND", FormatNone, -2},
		{Ior, "IOR", FormatNone, -1},
		{Lor, "LOR", FormatNone, -2},
		{Ixor, "IXOR", FormatNone, -1},
		{Lxor, "LXOR", FormatNone, -2},
		{Iinc, "IINC", FormatIinc, 0},
		{I2l, "I2L", FormatNone, 1},
		{I2f, "I2F", FormatNone, 0},
		{I2d, "I2D", FormatNone, 1},
		{L2i, "L2I", FormatNone, -1},
		{L2f, "L2F", FormatNone, -1},
		{L2d, "L2D", FormatNone, 0},
		{F2i, "F2I", FormatNone, 0},
		{F2l, "F2L", FormatNone, 1},
		{F2d, "F2D", FormatNone, 1},
		{D2i, "D2I", FormatNone, -1},
		{D2l, "D2L", FormatNone, 0},
		{D2f, "D2F", FormatNone, -1},
		{I2b, "I2B", FormatNone, 0},
		{I2c, "I2C", FormatNone, 0},
		{I2s, "I2S", FormatNone, 0},
		{Lcmp, "LCMP", FormatNone, -3},
		{Fcmpl, "FCMPL", FormatNone, -1},
		{Fcmpg, "FCMPG", FormatNone, -1},
		{Dcmpl, "DCMPL", FormatNone, -3},
		{Dcmpg, "DCMPG", FormatNone, -3},
		{Ifeq, "IFEQ", FormatBranch, -1},
		{Ifne, "IFNE", FormatBranch, -1},
		{Iflt, "IFLT", FormatBranch, -1},
		{Ifge, "IFGE", FormatBranch, -1},
		{Ifgt, "IFGT", FormatBranch, -1},
		{Ifle, "IFLE", FormatBranch, -1},
		{IfIcmpeq, "IF_ICMPEQ", FormatBranch, -2},
		{IfIcmpne, "IF_ICMPNE", FormatBranch, -2},
		{IfIcmplt, "IF_ICMPLT", FormatBranch, -2},
		{IfIcmpge, "IF_ICMPGE", FormatBranch, -2},
		{IfIcmpgt, "IF_ICMPGT", FormatBranch, -2},
		{IfIcmple, "IF_ICMPLE", FormatBranch, -2},
		{IfAcmpeq, "IF_ACMPEQ", FormatBranch, -2},
		{IfAcmpne, "IF_ACMPNE", FormatBranch, -2},
		{Goto, "GOTO", FormatBranch, 0},
		{Jsr, "JSR", FormatBranch, 1},
		{Ret, "RET", FormatLocal, 0},
		{Tableswitch, "TABLESWITCH", FormatTableSwitch, -1},
		{Lookupswitch, "LOOKUPSWITCH", FormatLookupSwitch, -1},
		{Ireturn, "IRETURN", FormatNone, -1},
		{Lreturn, "LRETURN", FormatNone, -2},
		{Freturn, "FRETURN", FormatNone, -1},
		{Dreturn, "DRETURN", FormatNone, -2},
		{Areturn, "ARETURN", FormatNone, -1},
		{Return, "RETURN", FormatNone, 0},
		{Getstatic, "GETSTATIC", FormatConst, Varies},
		{Putstatic, "PUTSTATIC", FormatConst, Varies},
		{Getfield, "GETFIELD", FormatConst, Varies},
		{Putfield, "PUTFIELD", FormatConst, Varies},
		{Invokevirtual, "INVOKEVIRTUAL", FormatConst, Varies},
		{Invokespecial, "INVOKESPECIAL", FormatConst, Varies},
		{Invokestatic, "INVOKESTATIC", FormatConst, Varies},
		{Invokeinterface, "INVOKEINTERFACE", FormatInterface, Varies},
		{Invokedynamic, "INVOKEDYNAMIC", FormatDynamic, Varies},
		{New, "NEW", FormatConst, 1},
		{Newarray, "NEWARRAY", FormatByte, 0},
		{Anewarray, "ANEWARRAY", FormatConst, 0},
		{Arraylength, "ARRAYLENGTH", FormatNone, 0},
		{Athrow, "ATHROW", FormatNone, -1},
		{Checkcast, "CHECKCAST", FormatConst, 0},
		{Instanceof, "INSTANCEOF", FormatConst, 0},
		{Monitorenter, "MONITORENTER", FormatNone, -1},
		{Monitorexit, "MONITOREXIT", FormatNone, -1},
		{Wide, "WIDE", FormatWide, 0},
		{Multianewarray, "MULTIANEWARRAY", FormatMultiArray, Varies},
		{Ifnull, "IFNULL", FormatBranch, -1},
		{Ifnonnull, "IFNONNULL", FormatBranch, -1},
		{GotoW, "GOTO_W", FormatBranchWide, 0},
		{JsrW, "JSR_W", FormatBranchWide, 1},
	}
	for _, o := range ops {
		infos[o.op] = Info{
			Code:   o.op,
			Name:   o.name,
			Format: o.format,
			Stack:  o.stack,
		}
	}
	// The short load/store forms share the stack effect of their long form.
	implicit := []struct {
		first Code
		base  Code
		name  string
	}{
		{Iload0, Iload, "ILOAD_"},
		{Lload0, Lload, "LLOAD_"},
		{Fload0, Fload, "FLOAD_"},
		{Dload0, Dload, "DLOAD_"},
		{Aload0, Aload, "ALOAD_"},
		{Istore0, Istore, "ISTORE_"},
		{Lstore0, Lstore, "LSTORE_"},
		{Fstore0, Fstore, "FSTORE_"},
		{Dstore0, Dstore, "DSTORE_"},
		{Astore0, Astore, "ASTORE_"},
	}
	for _, im := range implicit {
		for i := Code(0); i < 4; i++ {
			c := im.first + i
			infos[c] = Info{
				Code:   c,
				Name:   im.name + string(rune('0'+i)),
				Format: FormatImplicit,
				Stack:  infos[im.base].Stack,
			}
		}
	}
}

// GetInfo returns information about the given opcode.
func GetInfo(op Code) Info {
	return infos[op]
}

// String returns the mnemonic of the opcode.
func (c Code) String() string {
	if name := infos[c].Name; name != "" {
		return name
	}
	return "UNKNOWN"
}

// Implicit splits a short load/store form such as ILOAD_2 into its long
// form and local index.
func Implicit(c Code) (base Code, index int, ok bool) {
	if infos[c].Format != FormatImplicit {
		return 0, 0, false
	}
	switch {
	case c >= Iload0 && c < Iaload:
		n := c - Iload0
		return Iload + n/4, int(n % 4), true
	case c >= Istore0 && c < Iastore:
		n := c - Istore0
		return Istore + n/4, int(n % 4), true
	}
	return 0, 0, false
}

// ShortForm returns the opcode encoding base with the given local index
// implicitly, if one exists.
func ShortForm(base Code, index int) (Code, bool) {
	if index < 0 || index > 3 {
		return 0, false
	}
	switch {
	case base >= Iload && base <= Aload:
		return Iload0 + (base-Iload)*4 + Code(index), true
	case base >= Istore && base <= Astore:
		return Istore0 + (base-Istore)*4 + Code(index), true
	}
	return 0, false
}

// IsReturn reports whether c is one of the return-family opcodes.
func IsReturn(c Code) bool {
	return c >= Ireturn && c <= Return
}

// IsConditional reports whether c is a two-way conditional branch.
func IsConditional(c Code) bool {
	return (c >= Ifeq && c <= IfAcmpne) || c == Ifnull || c == Ifnonnull
}

// IsJump reports whether c carries a single branch target.
func IsJump(c Code) bool {
	f := infos[c].Format
	return f == FormatBranch || f == FormatBranchWide
}

// IsInvoke reports whether c is a method invocation through a member
// reference (invokedynamic is excluded).
func IsInvoke(c Code) bool {
	return c >= Invokevirtual && c <= Invokeinterface
}

// IsStore reports whether c stores a value into a local variable.
func IsStore(c Code) bool {
	if base, _, ok := Implicit(c); ok {
		c = base
	}
	return c >= Istore && c <= Astore
}

// EndsBlock reports whether control never falls through c to the next
// instruction.
func EndsBlock(c Code) bool {
	switch c {
	case Goto, GotoW, Ret, Tableswitch, Lookupswitch, Athrow:
		return true
	}
	return IsReturn(c)
}

// Invert returns the conditional branch taken exactly when c is not.
func Invert(c Code) Code {
	if c == Ifnull || c == Ifnonnull {
		return c ^ 1
	}
	return ((c + 1) ^ 1) - 1
}

// Widen returns the four-byte-offset form of an unconditional jump.
func Widen(c Code) (Code, bool) {
	switch c {
	case Goto:
		return GotoW, true
	case Jsr:
		return JsrW, true
	}
	return c, false
}

// Narrow returns the two-byte-offset form of a wide jump.
func Narrow(c Code) Code {
	switch c {
	case GotoW:
		return Goto
	case JsrW:
		return Jsr
	}
	return c
}
