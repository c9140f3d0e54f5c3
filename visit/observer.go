package visit

import "github.com/deepnoodle-ai/classweave/bytecode"

// Observer is notified as a Walker runs stages. Implementations can embed
// NoOpObserver and override only the events they need.
//
// Observer methods are called synchronously from Walk.
type Observer interface {
	// OnStage is called before a stage starts.
	OnStage(event StageEvent)

	// OnMethod is called once per method per stage, after the stage has
	// decided what to do with it.
	OnMethod(event MethodEvent)
}

// StageEvent describes a stage about to run.
type StageEvent struct {
	// Index is the position of the stage in the list given to Walk.
	Index int

	// Stage is the stage name.
	Stage string

	// Class is the internal name of the class being walked.
	Class string
}

// MethodEvent describes what a stage did with one method.
type MethodEvent struct {
	Stage  string
	Class  string
	Method string
	Action Action

	// Rewritten is true when the method body was replayed through an
	// instruction visitor. Before and After are only set in that case.
	Rewritten bool
	Before    bytecode.Stats
	After     bytecode.Stats
}

// NoOpObserver is an Observer that does nothing.
type NoOpObserver struct{}

func (NoOpObserver) OnStage(StageEvent)   {}
func (NoOpObserver) OnMethod(MethodEvent) {}

var _ Observer = NoOpObserver{}
