package inline

import (
	"fmt"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/frames"
	"github.com/deepnoodle-ai/classweave/op"
	"github.com/deepnoodle-ai/classweave/visit"
)

// State is the progress of an Inliner through one host method.
type State uint8

const (
	// Scanning forwards instructions while looking for the call.
	Scanning State = iota
	// Prologue stores the call's arguments into the mapped slots.
	Prologue
	// SplicingBody replays the target's instructions.
	SplicingBody
	// Merged forwards the rest of the host method unchanged.
	Merged
)

func (s State) String() string {
	switch s {
	case Scanning:
		return "scanning"
	case Prologue:
		return "prologue"
	case SplicingBody:
		return "splicing"
	case Merged:
		return "merged"
	}
	return fmt.Sprintf("State(%d)", s)
}

// Context is the bookkeeping for one splice.
type Context struct {
	// Merge is the host label every return of the target jumps to.
	Merge bytecode.Label
	// Remap renames classes in the spliced code.
	Remap map[string]string
	// Labels maps target labels to the host labels replacing them.
	Labels map[bytecode.Label]bytecode.Label
	// Handlers are the target's handlers, relabeled, waiting to be added
	// to the host's exception table.
	Handlers []bytecode.Handler
	// Mapping is the slot mapping used for the splice.
	Mapping SlotMapping
}

func (c *Context) mapClass(name string) string {
	if to, ok := c.Remap[name]; ok {
		return to
	}
	return name
}

func (c *Context) label(out *bytecode.Builder, l bytecode.Label) bytecode.Label {
	if l == bytecode.NoLabel {
		return l
	}
	if nl, ok := c.Labels[l]; ok {
		return nl
	}
	nl := out.NewLabel()
	c.Labels[l] = nl
	return nl
}

// Site describes one inlined call.
type Site struct {
	Host         string
	Target       Target
	Mode         Mode
	FirstSlot    int
	Instructions int
	Handlers     int
}

// Options controls an Inliner.
type Options struct {
	Mode Mode
	// Remap renames classes in the spliced code and in call owners before
	// they are compared with the target.
	Remap map[string]string
	// CrossClass is set when the target was decoded from a different class
	// than the host. Pinned pool operands cannot be carried across.
	CrossClass bool
	// OnSplice is called after each splice.
	OnSplice func(Site)
}

// Inliner is an instruction visitor that inlines the first call to a target
// in one host method. Create a new Inliner for every host method.
type Inliner struct {
	target   *Resolved
	host     *bytecode.Body
	opts     Options
	state    State
	ctx      *Context
	nextFree int
}

// NewInliner returns an inliner of target into host. host is the body that
// will be replayed through the inliner; its locals decide the first free
// slot.
func NewInliner(host *bytecode.Body, target *Resolved, opts Options) (*Inliner, error) {
	used, err := frames.MaxLocals(host)
	if err != nil {
		return nil, err
	}
	if host.MaxLocals() > used {
		used = host.MaxLocals()
	}
	return &Inliner{target: target, host: host, opts: opts, nextFree: used}, nil
}

// State returns the current state.
func (in *Inliner) State() State {
	return in.state
}

// Context returns the splice bookkeeping, or nil before the call was found.
func (in *Inliner) Context() *Context {
	return in.ctx
}

func (in *Inliner) remap(name string) string {
	if to, ok := in.opts.Remap[name]; ok {
		return to
	}
	return name
}

func (in *Inliner) VisitInstruction(ins bytecode.Instruction, out *bytecode.Builder) error {
	if in.state != Scanning || !in.target.Target.Matches(ins, in.remap) {
		out.Emit(ins)
		return nil
	}
	return in.splice(ins, out)
}

func (in *Inliner) VisitEnd(out *bytecode.Builder) error {
	if in.ctx == nil {
		return nil
	}
	// Target handlers cover code nested inside any host range, so they
	// must be matched first.
	out.PrependHandlers(in.ctx.Handlers...)
	out.RaiseMaxLocals(in.ctx.Mapping.Limit())
	return nil
}

func (in *Inliner) splice(call bytecode.Instruction, out *bytecode.Builder) error {
	body := in.target.Body
	sig := body.Signature()
	if sig.Static != (call.Op == op.Invokestatic) {
		return errz.Newf(errz.IncompatibleReceiver, "%s called with %s", in.target.Target, call.Op)
	}
	targetLocals, err := frames.MaxLocals(body)
	if err != nil {
		return err
	}
	if body.MaxLocals() > targetLocals {
		targetLocals = body.MaxLocals()
	}
	mapping, err := BuildMapping(sig, targetLocals, in.nextFree, in.opts.Mode, in.host.IsStatic())
	if err != nil {
		return err
	}
	in.ctx = &Context{
		Merge:   out.NewLabel(),
		Remap:   in.opts.Remap,
		Labels:  map[bytecode.Label]bytecode.Label{},
		Mapping: mapping,
	}

	in.state = Prologue
	start := out.Len()
	for i := len(mapping.Params) - 1; i >= 0; i-- {
		out.Emit(bytecode.Local(mapping.Types[i].StoreOp(), mapping.Params[i]))
	}
	if !sig.Static {
		if mapping.Shared() {
			out.Emit(bytecode.Plain(op.Pop))
		} else {
			out.Emit(bytecode.Local(op.Astore, mapping.Receiver))
		}
	}

	in.state = SplicingBody
	for i := 0; i < body.InstructionCount(); i++ {
		if err := in.spliceOne(body.InstructionAt(i), out); err != nil {
			return err
		}
	}
	for i := 0; i < body.HandlerCount(); i++ {
		h := body.HandlerAt(i)
		h.Start = in.ctx.label(out, h.Start)
		h.End = in.ctx.label(out, h.End)
		h.Handler = in.ctx.label(out, h.Handler)
		if !h.IsCatchAll() {
			h.Type = bytecode.MapClassName(h.Type, in.ctx.mapClass)
		}
		in.ctx.Handlers = append(in.ctx.Handlers, h)
	}
	out.Emit(bytecode.Mark(in.ctx.Merge))
	in.state = Merged

	if in.opts.OnSplice != nil {
		in.opts.OnSplice(Site{
			Host:         in.host.Name() + in.host.Descriptor(),
			Target:       in.target.Target,
			Mode:         in.opts.Mode,
			FirstSlot:    in.nextFree,
			Instructions: out.Len() - start,
			Handlers:     len(in.ctx.Handlers),
		})
	}
	return nil
}

func (in *Inliner) spliceOne(ins bytecode.Instruction, out *bytecode.Builder) error {
	switch ins.Kind {
	case bytecode.KindLine:
		return nil
	case bytecode.KindLocal, bytecode.KindIinc:
		ins.Local = in.ctx.Mapping.Map(ins.Local)
	case bytecode.KindSymbol:
		if ins.Sym.Pinned() {
			if in.opts.CrossClass {
				return errz.Newf(errz.NonInlinableTarget,
					"%s uses %s pool entry %d of its own class", in.target.Target, ins.Sym.Tag, ins.Sym.Index)
			}
		} else {
			ins = visit.RemapInstruction(ins, in.ctx.mapClass)
		}
	}
	if op.IsReturn(ins.Op) && ins.Kind == bytecode.KindPlain {
		ins = bytecode.Jump(op.Goto, in.ctx.Merge)
	} else {
		ins = ins.Relabel(func(l bytecode.Label) bytecode.Label { return in.ctx.label(out, l) })
	}
	out.Emit(ins)
	return nil
}
