package machine

import "fmt"

// FaultKind enumerates the four terminating error kinds from §7. All four
// are delivered the same way: a handler calls one of the Throw*/OpUd/Halt
// methods below, which panics with a *Fault; ops.ExecuteInstruction (the
// only place that should ever recover one) converts that into whatever
// shape the host wants. No handler has a local recovery path (§7).
type FaultKind uint8

const (
	FaultUndefinedOpcode FaultKind = iota
	FaultProtection
	FaultSegmentation
	FaultHalt
)

func (k FaultKind) String() string {
	switch k {
	case FaultUndefinedOpcode:
		return "undefined opcode (#UD)"
	case FaultProtection:
		return "protection fault (#GP)"
	case FaultSegmentation:
		return "segmentation fault"
	case FaultHalt:
		return "machine halt"
	default:
		return "unknown fault"
	}
}

// Fault is the value every terminating condition panics with.
type Fault struct {
	Kind    FaultKind
	Vector  int    // halt vector, for FaultHalt
	Addr    uint64 // faulting guest address, for FaultSegmentation
	Message string
}

func (f *Fault) Error() string {
	if f.Message != "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return f.Kind.String()
}

// ThrowSegmentationFault terminates the current instruction for an
// unaligned or unmapped guest access (§7).
func (m *Machine) ThrowSegmentationFault(addr uint64) {
	panic(&Fault{Kind: FaultSegmentation, Addr: addr})
}

// ThrowProtectionFault terminates the current instruction for a bad GDT
// selector, an out-of-range CR3 write, or a far jump to a missing
// descriptor (§4.3, §7).
func (m *Machine) ThrowProtectionFault() {
	panic(&Fault{Kind: FaultProtection})
}

// OpUd terminates the current instruction for an unreached dispatch slot
// or an unknown ModR/M.reg sub-opcode (§4.6, §7).
func (m *Machine) OpUd() {
	panic(&Fault{Kind: FaultUndefinedOpcode})
}

// HaltMachine terminates the interpreter for the current tick, delivering
// vector to the host as the halt code (§4.4 interrupts, §5 suspension,
// §7). Used by INT3/INT1/INT imm8/HLT.
func (m *Machine) HaltMachine(vector int) {
	m.Halted = true
	m.HaltVector = vector
	panic(&Fault{Kind: FaultHalt, Vector: vector})
}
