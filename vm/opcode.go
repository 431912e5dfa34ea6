package vm

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Opcode definitions
// ---------------------------------------------------------------------------

// Opcode represents a single bytecode instruction.
type Opcode byte

// Constants and locals
const (
	OpCon     Opcode = 0x00 // push constants[k] (16-bit index)
	OpNotInit Opcode = 0x01 // reserve local slot n with a Unit placeholder (16-bit n); no-op when already reserved
	OpDel     Opcode = 0x02 // drop top of stack
	OpCopy    Opcode = 0x03 // duplicate top of stack
	OpSave    Opcode = 0x04 // pop top; write to local slot (16-bit index)
	OpLoad    Opcode = 0x05 // push copy of local slot (16-bit index)
	OpHeap    Opcode = 0x06 // lift local slot into a fresh heap cell (16-bit index)
	OpSaveCap Opcode = 0x07 // pop top; write into captured cell (16-bit index)
	OpLoadCap Opcode = 0x08 // push value inside captured cell (16-bit index)
)

// Calls and closures
const (
	OpClosure Opcode = 0x10 // build closure over constants[k] (16-bit lambda index)
	OpCall    Opcode = 0x11 // pop argument, pop callee; begin a call
	OpReturn  Opcode = 0x12 // leave the current frame
)

// Composite construction
const (
	OpTuple  Opcode = 0x20 // build tuple from top n values (16-bit n)
	OpList   Opcode = 0x21 // build list from top n values (16-bit n)
	OpRecord Opcode = 0x22 // build record; constants[k] names the fields (16-bit k)
	OpLabel  Opcode = 0x23 // wrap top value in label constants[k] (16-bit k)
)

// Destructuring. The Un* family raises MatchError on mismatch.
const (
	OpUnData   Opcode = 0x30 // pop; must equal constants[k] (16-bit k)
	OpUnLabel  Opcode = 0x31 // pop label named constants[k]; push inner (16-bit k)
	OpUnTuple  Opcode = 0x32 // peek tuple of arity m; push element i (16-bit i, 16-bit m)
	OpUnList   Opcode = 0x33 // peek list; check length (8-bit kind, 16-bit count)
	OpUnElem   Opcode = 0x34 // peek list; push element i (16-bit i)
	OpUnRest   Opcode = 0x35 // peek list; push sublist from i (16-bit i)
	OpUnRecord Opcode = 0x36 // peek record; push field constants[k] (16-bit k)
	OpGuard    Opcode = 0x37 // pop; raise MatchError if falsy
)

// UnList length kinds.
const (
	UnListExact   byte = 0 // length must equal count
	UnListAtLeast byte = 1 // length must be >= count
)

// Control
const (
	OpJump     Opcode = 0x40 // skip forward (16-bit offset)
	OpJumpBack Opcode = 0x41 // skip backward (16-bit offset)
	OpMatch    Opcode = 0x42 // pop n arm closures + scrutinee; dispatch (16-bit n)
)

// Fibers and errors
const (
	OpFiberNew Opcode = 0x50 // wrap top closure in a fresh fiber
	OpYield    Opcode = 0x51 // suspend the current fiber, surfacing the top value
	OpTry      Opcode = 0x52 // pop closure; run in a fresh fiber, catching errors
	OpError    Opcode = 0x53 // raise the top value as a UserError
)

// FFI
const (
	OpFFI Opcode = 0x60 // invoke primitive named constants[k] (16-bit k)
)

// ---------------------------------------------------------------------------
// Opcode metadata
// ---------------------------------------------------------------------------

// OpcodeInfo holds metadata about an opcode.
type OpcodeInfo struct {
	Name         string // human-readable name
	OperandBytes int    // number of operand bytes following the opcode
}

var opcodeTable = map[Opcode]OpcodeInfo{
	OpCon:     {"CON", 2},
	OpNotInit: {"NOT_INIT", 2},
	OpDel:     {"DEL", 0},
	OpCopy:    {"COPY", 0},
	OpSave:    {"SAVE", 2},
	OpLoad:    {"LOAD", 2},
	OpHeap:    {"HEAP", 2},
	OpSaveCap: {"SAVE_CAP", 2},
	OpLoadCap: {"LOAD_CAP", 2},

	OpClosure: {"CLOSURE", 2},
	OpCall:    {"CALL", 0},
	OpReturn:  {"RETURN", 0},

	OpTuple:  {"TUPLE", 2},
	OpList:   {"LIST", 2},
	OpRecord: {"RECORD", 2},
	OpLabel:  {"LABEL", 2},

	OpUnData:   {"UN_DATA", 2},
	OpUnLabel:  {"UN_LABEL", 2},
	OpUnTuple:  {"UN_TUPLE", 4},
	OpUnList:   {"UN_LIST", 3},
	OpUnElem:   {"UN_ELEM", 2},
	OpUnRest:   {"UN_REST", 2},
	OpUnRecord: {"UN_RECORD", 2},
	OpGuard:    {"GUARD", 0},

	OpJump:     {"JUMP", 2},
	OpJumpBack: {"JUMP_BACK", 2},
	OpMatch:    {"MATCH", 2},

	OpFiberNew: {"FIBER_NEW", 0},
	OpYield:    {"YIELD", 0},
	OpTry:      {"TRY", 0},
	OpError:    {"ERROR", 0},

	OpFFI: {"FFI", 2},
}

// Info returns the metadata for an opcode.
func (op Opcode) Info() OpcodeInfo {
	if info, ok := opcodeTable[op]; ok {
		return info
	}
	return OpcodeInfo{Name: fmt.Sprintf("UNKNOWN_%02X", byte(op))}
}

// Name returns the human-readable name for an opcode.
func (op Opcode) Name() string {
	return op.Info().Name
}

// String implements the Stringer interface.
func (op Opcode) String() string {
	return op.Name()
}

// ---------------------------------------------------------------------------
// Disassembler
// ---------------------------------------------------------------------------

// Disassemble renders a bytecode stream for inspection.
func Disassemble(code []byte, constants []Value) string {
	var sb strings.Builder
	ip := 0
	for ip < len(code) {
		op := Opcode(code[ip])
		info := op.Info()
		fmt.Fprintf(&sb, "%04d  %-10s", ip, info.Name)
		ip++
		switch info.OperandBytes {
		case 2:
			if ip+2 > len(code) {
				sb.WriteString(" <truncated>\n")
				return sb.String()
			}
			operand := binary.LittleEndian.Uint16(code[ip:])
			ip += 2
			fmt.Fprintf(&sb, " %d", operand)
			if isConstOperand(op) && int(operand) < len(constants) {
				fmt.Fprintf(&sb, "\t; %s", Repr(constants[int(operand)]))
			}
		case 3:
			if ip+3 > len(code) {
				sb.WriteString(" <truncated>\n")
				return sb.String()
			}
			kind := code[ip]
			count := binary.LittleEndian.Uint16(code[ip+1:])
			ip += 3
			fmt.Fprintf(&sb, " %d %d", kind, count)
		case 4:
			if ip+4 > len(code) {
				sb.WriteString(" <truncated>\n")
				return sb.String()
			}
			a := binary.LittleEndian.Uint16(code[ip:])
			b := binary.LittleEndian.Uint16(code[ip+2:])
			ip += 4
			fmt.Fprintf(&sb, " %d %d", a, b)
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// isConstOperand reports whether an opcode's operand indexes the
// constant pool.
func isConstOperand(op Opcode) bool {
	switch op {
	case OpCon, OpClosure, OpRecord, OpLabel, OpUnData, OpUnLabel, OpUnRecord, OpFFI:
		return true
	}
	return false
}
