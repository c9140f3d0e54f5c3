package inline

import (
	"fmt"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/errz"
)

// Mode selects how the receiver of an instance target is handled.
type Mode uint8

const (
	// Preserve stores the receiver found on the stack at the call site into
	// a fresh local, so the spliced code runs against that object.
	Preserve Mode = iota
	// SameInstance assumes the call is made on the host's own receiver. The
	// receiver on the stack is discarded and the target's slot 0 maps to
	// the host's slot 0.
	SameInstance
)

func (m Mode) String() string {
	if m == SameInstance {
		return "same-instance"
	}
	return "preserve"
}

// SlotMapping renames the local slots of a target method into free slots of
// a host method. It is injective, and consecutive target slots map to
// consecutive host slots, so a long or double keeps an adjacent pair.
type SlotMapping struct {
	base   int
	shared bool
	size   int
	// Receiver is the host slot holding the receiver, or -1 for a static
	// target.
	Receiver int
	// Params holds the host slot of each formal parameter in descriptor
	// order. A long or double also occupies the slot after its entry.
	Params []int
	// Types holds the type of each formal parameter.
	Types []bytecode.Type
}

// BuildMapping assigns host slots to the locals of a target with the given
// signature and local count, starting at nextFree: the receiver first when
// it is kept, then the formals in descriptor order, then the target's other
// locals. An instance target cannot be inlined into a static host.
func BuildMapping(target bytecode.Signature, targetLocals, nextFree int, mode Mode, hostStatic bool) (SlotMapping, error) {
	mt, err := bytecode.ParseMethodType(target.Descriptor)
	if err != nil {
		return SlotMapping{}, err
	}
	if !target.Static && hostStatic {
		return SlotMapping{}, errz.Newf(errz.IncompatibleReceiver,
			"instance method %s%s cannot be inlined into a static method", target.Name, target.Descriptor)
	}
	if nextFree < 0 {
		return SlotMapping{}, fmt.Errorf("negative first free slot %d", nextFree)
	}
	m := SlotMapping{
		base:     nextFree,
		shared:   mode == SameInstance && !target.Static,
		Receiver: -1,
		Types:    mt.Params,
	}
	m.size = mt.ArgSlots()
	slot := 0
	if !target.Static {
		m.size++
		m.Receiver = m.Map(0)
		slot = 1
	}
	for _, p := range mt.Params {
		m.Params = append(m.Params, m.Map(slot))
		slot += p.Size()
	}
	if targetLocals > m.size {
		m.size = targetLocals
	}
	return m, nil
}

// Map returns the host slot for target slot old.
func (m SlotMapping) Map(old int) int {
	if m.shared {
		if old == 0 {
			return 0
		}
		return m.base + old - 1
	}
	return m.base + old
}

// Len returns the number of target slots covered.
func (m SlotMapping) Len() int {
	return m.size
}

// Limit returns one past the highest host slot the mapping uses.
func (m SlotMapping) Limit() int {
	if m.size == 0 {
		return m.base
	}
	top := m.Map(m.size-1) + 1
	if top < m.base {
		return m.base
	}
	return top
}

// Shared reports whether target slot 0 is the host's own receiver slot.
func (m SlotMapping) Shared() bool {
	return m.shared
}
