package bytecode

// Builder accumulates the instructions of a new Body. A builder created
// from an existing body shares its label arena, so labels carried over from
// the source stay valid and new labels never collide with them.
type Builder struct {
	params BodyParams
}

// NewBuilder returns a builder for a body with the signature, handlers and
// label arena of from. Instructions start empty. A nil from starts a fresh
// arena.
func NewBuilder(from *Body) *Builder {
	if from == nil {
		return &Builder{}
	}
	return &Builder{params: BodyParams{
		Signature:  from.sig,
		Handlers:   copyHandlers(from.handlers),
		MaxStack:   from.maxStack,
		MaxLocals:  from.maxLocals,
		LabelCount: from.labelCount,
	}}
}

// SetSignature sets the signature of the body being built.
func (b *Builder) SetSignature(sig Signature) {
	b.params.Signature = sig
}

// NewLabel allocates a label that is not used anywhere in the arena.
func (b *Builder) NewLabel() Label {
	b.params.LabelCount++
	return Label(b.params.LabelCount)
}

// Emit appends instructions.
func (b *Builder) Emit(ins ...Instruction) {
	for _, i := range ins {
		b.params.Instructions = append(b.params.Instructions, i.clone())
	}
}

// Len returns the number of instructions emitted so far.
func (b *Builder) Len() int {
	return len(b.params.Instructions)
}

// AddHandler appends an exception handler. Handlers earlier in the table
// take priority.
func (b *Builder) AddHandler(h Handler) {
	b.params.Handlers = append(b.params.Handlers, h)
}

// PrependHandlers places hs ahead of every handler already present, so they
// are matched first.
func (b *Builder) PrependHandlers(hs ...Handler) {
	if len(hs) == 0 {
		return
	}
	merged := make([]Handler, 0, len(hs)+len(b.params.Handlers))
	merged = append(merged, hs...)
	b.params.Handlers = append(merged, b.params.Handlers...)
}

// SetHandlers replaces the exception table.
func (b *Builder) SetHandlers(hs []Handler) {
	b.params.Handlers = copyHandlers(hs)
}

// RaiseMaxLocals makes sure the recorded max_locals is at least n.
func (b *Builder) RaiseMaxLocals(n int) {
	if n > b.params.MaxLocals {
		b.params.MaxLocals = n
	}
}

// Body returns the body built so far. The builder may continue to be used.
func (b *Builder) Body() *Body {
	return NewBody(b.params)
}

// Handlers returns a copy of the exception table built so far.
func (b *Builder) Handlers() []Handler {
	return copyHandlers(b.params.Handlers)
}
