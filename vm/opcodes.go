package vm

import "fmt"

// Opcode is one bytecode instruction.
type Opcode uint8

const (
	BSTORE   Opcode = 0
	BSTORE_0 Opcode = 1
	BSTORE_1 Opcode = 2
	BSTORE_2 Opcode = 3
	BSTORE_3 Opcode = 4
	SSTORE   Opcode = 5
	SSTORE_0 Opcode = 6
	SSTORE_1 Opcode = 7
	SSTORE_2 Opcode = 8
	SSTORE_3 Opcode = 9

	BLOAD   Opcode = 10
	BLOAD_0 Opcode = 11
	BLOAD_1 Opcode = 12
	BLOAD_2 Opcode = 13
	BLOAD_3 Opcode = 14
	SLOAD   Opcode = 15
	SLOAD_0 Opcode = 16
	SLOAD_1 Opcode = 17
	SLOAD_2 Opcode = 18
	SLOAD_3 Opcode = 19

	GBSTORE Opcode = 20
	GBLOAD  Opcode = 21
	GSSTORE Opcode = 22
	GSLOAD  Opcode = 23

	BCONST   Opcode = 24
	BCONST_0 Opcode = 25
	BCONST_1 Opcode = 26
	BCONST_2 Opcode = 27
	BCONST_3 Opcode = 28
	SCONST   Opcode = 29
	SCONST_0 Opcode = 30
	SCONST_1 Opcode = 31
	SCONST_2 Opcode = 32
	SCONST_3 Opcode = 33

	DUP  Opcode = 34
	DUP2 Opcode = 35
	POP  Opcode = 36
	POP2 Opcode = 37
	SWAP Opcode = 38

	BADD      Opcode = 48
	BSUBTRACT Opcode = 49
	BMULTIPLY Opcode = 50
	BDIVIDE   Opcode = 51
	BMOD      Opcode = 52
	BAND      Opcode = 53
	BOR       Opcode = 54
	BXOR      Opcode = 55
	BNOT      Opcode = 56
	BCMP      Opcode = 57
	BLSHIFT   Opcode = 58
	BRSHIFT   Opcode = 59
	SADD      Opcode = 60
	SSUBTRACT Opcode = 61
	SMULTIPLY Opcode = 62
	SDIVIDE   Opcode = 63
	SMOD      Opcode = 64
	SAND      Opcode = 65
	SOR       Opcode = 66
	SXOR      Opcode = 67
	SNOT      Opcode = 68
	SCMP      Opcode = 69
	SLSHIFT   Opcode = 70
	SRSHIFT   Opcode = 71

	B2S Opcode = 72
	S2B Opcode = 73

	IFEQ   Opcode = 74
	IFNE   Opcode = 75
	IFLT   Opcode = 76
	IFGT   Opcode = 77
	IFGE   Opcode = 78
	IFLE   Opcode = 79
	GOTO   Opcode = 80
	NOP    Opcode = 81
	CALL   Opcode = 82
	BRET   Opcode = 83
	SRET   Opcode = 84
	RET    Opcode = 85
	VMEXIT Opcode = 86

	// System calls. Arguments are pushed left to right.

	PRESSKEY            Opcode = 87  // (byte hid)
	RELEASEKEY          Opcode = 88  // (byte hid)
	CHECKKEY            Opcode = 89  // (byte hid) -> byte
	CHECKPHYSKEY        Opcode = 90  // (byte physical, 0 = trigger) -> byte
	WAITKEY             Opcode = 91  // (byte hid, short timeout) -> byte
	WAITPHYSKEY         Opcode = 92  // (byte physical, short timeout) -> byte
	DELAY               Opcode = 95  // (short ms)
	GETUPTIMEMS         Opcode = 96  // -> short
	GETUPTIME           Opcode = 97  // -> short
	BUZZ                Opcode = 98  // (short ms)
	BUZZAT              Opcode = 99  // (short ms, byte tone)
	MOVEMOUSE           Opcode = 100 // (byte x, byte y)
	PRESSMOUSEBUTTONS   Opcode = 101 // (byte mask)
	RELEASEMOUSEBUTTONS Opcode = 102 // (byte mask)
)

// Operand describes the inline argument of an opcode.
type Operand int

const (
	OperandNone   Operand = iota
	OperandIndex          // u8 local or global byte offset
	OperandByte           // i8 constant
	OperandShort          // i16le constant
	OperandBranch         // i16le offset from the opcode address
	OperandMethod         // u8 method number
)

// Size is the number of code bytes the operand takes.
func (o Operand) Size() int {
	switch o {
	case OperandIndex, OperandByte, OperandMethod:
		return 1
	case OperandShort, OperandBranch:
		return 2
	}
	return 0
}

type opInfo struct {
	name    string
	operand Operand
}

var opTable = map[Opcode]opInfo{
	BSTORE: {"bstore", OperandIndex}, BSTORE_0: {"bstore_0", OperandNone}, BSTORE_1: {"bstore_1", OperandNone},
	BSTORE_2: {"bstore_2", OperandNone}, BSTORE_3: {"bstore_3", OperandNone},
	SSTORE: {"sstore", OperandIndex}, SSTORE_0: {"sstore_0", OperandNone}, SSTORE_1: {"sstore_1", OperandNone},
	SSTORE_2: {"sstore_2", OperandNone}, SSTORE_3: {"sstore_3", OperandNone},
	BLOAD: {"bload", OperandIndex}, BLOAD_0: {"bload_0", OperandNone}, BLOAD_1: {"bload_1", OperandNone},
	BLOAD_2: {"bload_2", OperandNone}, BLOAD_3: {"bload_3", OperandNone},
	SLOAD: {"sload", OperandIndex}, SLOAD_0: {"sload_0", OperandNone}, SLOAD_1: {"sload_1", OperandNone},
	SLOAD_2: {"sload_2", OperandNone}, SLOAD_3: {"sload_3", OperandNone},

	GBSTORE: {"gbstore", OperandIndex}, GBLOAD: {"gbload", OperandIndex},
	GSSTORE: {"gsstore", OperandIndex}, GSLOAD: {"gsload", OperandIndex},

	BCONST: {"bconst", OperandByte}, BCONST_0: {"bconst_0", OperandNone}, BCONST_1: {"bconst_1", OperandNone},
	BCONST_2: {"bconst_2", OperandNone}, BCONST_3: {"bconst_3", OperandNone},
	SCONST: {"sconst", OperandShort}, SCONST_0: {"sconst_0", OperandNone}, SCONST_1: {"sconst_1", OperandNone},
	SCONST_2: {"sconst_2", OperandNone}, SCONST_3: {"sconst_3", OperandNone},

	DUP: {"dup", OperandNone}, DUP2: {"dup2", OperandNone}, POP: {"pop", OperandNone},
	POP2: {"pop2", OperandNone}, SWAP: {"swap", OperandNone},

	BADD: {"badd", OperandNone}, BSUBTRACT: {"bsubtract", OperandNone}, BMULTIPLY: {"bmultiply", OperandNone},
	BDIVIDE: {"bdivide", OperandNone}, BMOD: {"bmod", OperandNone}, BAND: {"band", OperandNone},
	BOR: {"bor", OperandNone}, BXOR: {"bxor", OperandNone}, BNOT: {"bnot", OperandNone},
	BCMP: {"bcmp", OperandNone}, BLSHIFT: {"blshift", OperandNone}, BRSHIFT: {"brshift", OperandNone},
	SADD: {"sadd", OperandNone}, SSUBTRACT: {"ssubtract", OperandNone}, SMULTIPLY: {"smultiply", OperandNone},
	SDIVIDE: {"sdivide", OperandNone}, SMOD: {"smod", OperandNone}, SAND: {"sand", OperandNone},
	SOR: {"sor", OperandNone}, SXOR: {"sxor", OperandNone}, SNOT: {"snot", OperandNone},
	SCMP: {"scmp", OperandNone}, SLSHIFT: {"slshift", OperandNone}, SRSHIFT: {"srshift", OperandNone},

	B2S: {"b2s", OperandNone}, S2B: {"s2b", OperandNone},

	IFEQ: {"ifeq", OperandBranch}, IFNE: {"ifne", OperandBranch}, IFLT: {"iflt", OperandBranch},
	IFGT: {"ifgt", OperandBranch}, IFGE: {"ifge", OperandBranch}, IFLE: {"ifle", OperandBranch},
	GOTO: {"goto", OperandBranch}, NOP: {"nop", OperandNone}, CALL: {"call", OperandMethod},
	BRET: {"bret", OperandNone}, SRET: {"sret", OperandNone}, RET: {"ret", OperandNone},
	VMEXIT: {"vmexit", OperandNone},

	PRESSKEY: {"presskey", OperandNone}, RELEASEKEY: {"releasekey", OperandNone},
	CHECKKEY: {"checkkey", OperandNone}, CHECKPHYSKEY: {"checkphyskey", OperandNone},
	WAITKEY: {"waitkey", OperandNone}, WAITPHYSKEY: {"waitphyskey", OperandNone},
	DELAY: {"delay", OperandNone}, GETUPTIMEMS: {"getuptimems", OperandNone},
	GETUPTIME: {"getuptime", OperandNone}, BUZZ: {"buzz", OperandNone}, BUZZAT: {"buzzat", OperandNone},
	MOVEMOUSE: {"movemouse", OperandNone}, PRESSMOUSEBUTTONS: {"pressmousebuttons", OperandNone},
	RELEASEMOUSEBUTTONS: {"releasemousebuttons", OperandNone},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, len(opTable))
	for op, info := range opTable {
		m[info.name] = op
	}
	return m
}()

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	_, ok := opTable[op]
	return ok
}

// Operand returns the inline operand kind of op.
func (op Opcode) Operand() Operand { return opTable[op].operand }

func (op Opcode) String() string {
	if info, ok := opTable[op]; ok {
		return info.name
	}
	return fmt.Sprintf("op(%d)", uint8(op))
}
