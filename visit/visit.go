// Package visit applies transformation stages to a parsed class.
//
// A stage sees the class header, then each field, then each method, then
// the end of the class. For every method it may return an InstructionVisitor,
// which is replayed over the method's body to produce a new body. Stages run
// one after another: the second stage sees the output of the first.
package visit

import (
	"fmt"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
)

// Action tells the walker what to do with a field or method.
type Action uint8

const (
	// Keep forwards the member to the output.
	Keep Action = iota
	// Drop removes the member from the output.
	Drop
)

func (a Action) String() string {
	if a == Drop {
		return "drop"
	}
	return "keep"
}

// ClassVisitor is one transformation stage.
type ClassVisitor interface {
	VisitHeader(c *classfile.Class) error
	VisitField(c *classfile.Class, f *classfile.Member) (Action, error)
	// VisitMethod returns the action for m and, to rewrite its body, an
	// instruction visitor. A nil visitor leaves the body as it is. The
	// visitor must be fresh for every method.
	VisitMethod(c *classfile.Class, m *classfile.Member) (Action, InstructionVisitor, error)
	VisitEnd(c *classfile.Class) error
}

// Base is a ClassVisitor that keeps everything. Embed it to implement only
// the callbacks a stage needs.
type Base struct{}

func (Base) VisitHeader(*classfile.Class) error { return nil }

func (Base) VisitField(*classfile.Class, *classfile.Member) (Action, error) { return Keep, nil }

func (Base) VisitMethod(*classfile.Class, *classfile.Member) (Action, InstructionVisitor, error) {
	return Keep, nil, nil
}

func (Base) VisitEnd(*classfile.Class) error { return nil }

var _ ClassVisitor = Base{}

// Named is implemented by stages that have a name for logs and events.
type Named interface {
	Name() string
}

// StageName returns the name of a stage.
func StageName(stage ClassVisitor) string {
	if n, ok := stage.(Named); ok {
		return n.Name()
	}
	return fmt.Sprintf("%T", stage)
}

// Walker runs stages over classes.
type Walker struct {
	observer Observer
}

// Option configures a Walker.
type Option func(*Walker)

// WithObserver sets an observer notified of stage and method events.
func WithObserver(o Observer) Option {
	return func(w *Walker) {
		w.observer = o
	}
}

// NewWalker returns a walker configured with the given options.
func NewWalker(opts ...Option) *Walker {
	w := &Walker{observer: NoOpObserver{}}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Walk applies stages to c in order with a default walker.
func Walk(c *classfile.Class, stages ...ClassVisitor) error {
	return NewWalker().Walk(c, stages...)
}

// Walk applies stages to c in order. The class is modified in place. On
// error the class is left partially transformed and must not be written.
func (w *Walker) Walk(c *classfile.Class, stages ...ClassVisitor) error {
	className, err := c.Name()
	if err != nil {
		return err
	}
	for i, stage := range stages {
		name := StageName(stage)
		w.observer.OnStage(StageEvent{Index: i, Stage: name, Class: className})
		if err := w.run(c, className, name, stage); err != nil {
			return fmt.Errorf("stage %s: %w", name, err)
		}
	}
	return nil
}

func (w *Walker) run(c *classfile.Class, className, stageName string, stage ClassVisitor) error {
	if err := stage.VisitHeader(c); err != nil {
		return err
	}
	fields := c.Fields[:0:0]
	for _, f := range c.Fields {
		action, err := stage.VisitField(c, f)
		if err != nil {
			return err
		}
		if action == Keep {
			fields = append(fields, f)
		}
	}
	c.Fields = fields

	methods := c.Methods[:0:0]
	for _, m := range c.Methods {
		action, iv, err := stage.VisitMethod(c, m)
		if err != nil {
			return fmt.Errorf("method %s: %w", m.Key(), err)
		}
		event := MethodEvent{Stage: stageName, Class: className, Method: m.Key(), Action: action}
		if action == Drop {
			w.observer.OnMethod(event)
			continue
		}
		methods = append(methods, m)
		if iv == nil {
			w.observer.OnMethod(event)
			continue
		}
		body, err := c.Body(m)
		if err != nil {
			return fmt.Errorf("method %s: %w", m.Key(), err)
		}
		out, err := Rewrite(body, iv)
		if err != nil {
			return fmt.Errorf("method %s: %w", m.Key(), err)
		}
		c.SetBody(m, out)
		event.Rewritten = true
		event.Before = body.Stats()
		event.After = out.Stats()
		w.observer.OnMethod(event)
	}
	c.Methods = methods
	return stage.VisitEnd(c)
}

// InstructionVisitor rewrites one method body. VisitInstruction is called
// for every instruction in program order, including label definitions and
// line markers, and emits zero or more instructions into out. VisitEnd is
// called once after the last instruction.
type InstructionVisitor interface {
	VisitInstruction(ins bytecode.Instruction, out *bytecode.Builder) error
	VisitEnd(out *bytecode.Builder) error
}

// InstructionFunc adapts a function to an InstructionVisitor with an empty
// VisitEnd.
type InstructionFunc func(ins bytecode.Instruction, out *bytecode.Builder) error

func (f InstructionFunc) VisitInstruction(ins bytecode.Instruction, out *bytecode.Builder) error {
	return f(ins, out)
}

func (f InstructionFunc) VisitEnd(*bytecode.Builder) error { return nil }

// Passthrough forwards every instruction unchanged.
var Passthrough InstructionVisitor = InstructionFunc(func(ins bytecode.Instruction, out *bytecode.Builder) error {
	out.Emit(ins)
	return nil
})

// Rewrite replays body through iv and returns the body it emits. The
// builder handed to iv starts with the handlers and label arena of body.
// The result must satisfy the label invariant.
func Rewrite(body *bytecode.Body, iv InstructionVisitor) (*bytecode.Body, error) {
	out := bytecode.NewBuilder(body)
	for i := 0; i < body.InstructionCount(); i++ {
		if err := iv.VisitInstruction(body.InstructionAt(i), out); err != nil {
			return nil, err
		}
	}
	if err := iv.VisitEnd(out); err != nil {
		return nil, err
	}
	result := out.Body()
	if err := result.Validate(); err != nil {
		return nil, err
	}
	return result, nil
}

// MethodFilter selects methods.
type MethodFilter func(m *classfile.Member) bool

// AllMethods selects every method that has code.
func AllMethods(m *classfile.Member) bool {
	return m.HasCode()
}

// MethodsNamed selects methods with code whose name matches one of names.
// An entry containing a descriptor, such as "run()V", must match exactly.
func MethodsNamed(names ...string) MethodFilter {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return func(m *classfile.Member) bool {
		return m.HasCode() && (set[m.Name] || set[m.Key()])
	}
}

type methodStage struct {
	Base
	name    string
	filter  MethodFilter
	factory func(c *classfile.Class, m *classfile.Member) (InstructionVisitor, error)
}

// ForMethods returns a stage that rewrites every method selected by filter
// with a visitor created by factory.
func ForMethods(name string, filter MethodFilter, factory func(c *classfile.Class, m *classfile.Member) (InstructionVisitor, error)) ClassVisitor {
	if filter == nil {
		filter = AllMethods
	}
	return &methodStage{name: name, filter: filter, factory: factory}
}

func (s *methodStage) Name() string { return s.name }

func (s *methodStage) VisitMethod(c *classfile.Class, m *classfile.Member) (Action, InstructionVisitor, error) {
	if !s.filter(m) {
		return Keep, nil, nil
	}
	iv, err := s.factory(c, m)
	return Keep, iv, err
}
