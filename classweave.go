// Package classweave rewrites compiled JVM classes. Transform parses a class,
// applies the requested inlining, merging and visitor stages, and writes the
// result. Nothing is returned unless every step succeeds.
package classweave

import (
	"fmt"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/inline"
	"github.com/deepnoodle-ai/classweave/visit"
)

// InlineRequest asks for calls to Target to be inlined.
type InlineRequest struct {
	Target inline.Target
	// Hosts selects host methods by name or by name and descriptor, such
	// as "run" or "run()V". Empty selects every method with code.
	Hosts []string
	Mode  inline.Mode
	// Remap renames classes in the spliced code. Call owners are compared
	// with the target both as written and after renaming.
	Remap map[string]string
}

// MergeRequest asks for methods of a replacement class to be merged over
// the methods of the class being transformed.
type MergeRequest struct {
	// Class names the replacement class, fetched from the class source
	// unless Bytes is set.
	Class string
	Bytes []byte
	// Methods lists method keys such as "run()V". Empty merges every
	// method the two classes share.
	Methods []string
}

// Request describes a transformation. Merging runs first, then each inline
// request in order, then Passes in order.
type Request struct {
	Merge  *MergeRequest
	Inline []InlineRequest
	Passes []visit.ClassVisitor
}

// Report describes what a transformation did.
type Report struct {
	InvocationID string
	Class        string
	Stages       []string
	Sites        []inline.Site
}

// Transform applies req to the class in original and returns the new class
// bytes.
func Transform(original []byte, req Request, opts ...Option) ([]byte, error) {
	o := collectOptions(opts...)
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	log := o.logger.With().Str("invocation", id.String()).Logger()

	c, err := classfile.Parse(original, o.parseOpts()...)
	if err != nil {
		return nil, err
	}
	name, err := c.Name()
	if err != nil {
		return nil, err
	}
	log = log.With().Str("class", name).Logger()
	log.Debug().Int("bytes", len(original)).Msg("parsed class")

	report := o.report
	if report == nil {
		report = &Report{}
	}
	*report = Report{InvocationID: id.String(), Class: name}

	if req.Merge != nil {
		sites, err := merge(c, req.Merge, o, log)
		if err != nil {
			return nil, err
		}
		report.Stages = append(report.Stages, "merge "+req.Merge.Class)
		report.Sites = append(report.Sites, sites...)
	}

	var stages []visit.ClassVisitor
	var inliners []*inline.Stage
	for _, ir := range req.Inline {
		target, err := resolve(c, name, ir.Target, o)
		if err != nil {
			return nil, err
		}
		stageOpts := []inline.StageOption{
			inline.WithMode(ir.Mode),
			inline.WithRemap(ir.Remap),
			inline.WithLogger(log),
		}
		if len(ir.Hosts) > 0 {
			stageOpts = append(stageOpts, inline.WithHosts(visit.MethodsNamed(ir.Hosts...)))
		}
		s := inline.NewStage(target, stageOpts...)
		inliners = append(inliners, s)
		stages = append(stages, s)
	}
	stages = append(stages, req.Passes...)

	walker := visit.NewWalker(visit.WithObserver(&logObserver{log: log, next: o.observer}))
	if err := walker.Walk(c, stages...); err != nil {
		return nil, err
	}
	for _, s := range stages {
		report.Stages = append(report.Stages, visit.StageName(s))
	}
	for _, s := range inliners {
		report.Sites = append(report.Sites, s.Sites()...)
	}

	out, err := classfile.Write(c, o.writeOpts()...)
	if err != nil {
		return nil, err
	}
	log.Debug().
		Int("bytes", len(out)).
		Int("sites", len(report.Sites)).
		Msg("wrote class")
	return out, nil
}

func merge(c *classfile.Class, req *MergeRequest, o *options, log zerolog.Logger) ([]inline.Site, error) {
	data := req.Bytes
	if data == nil {
		var err error
		if data, err = o.classBytes(req.Class); err != nil {
			return nil, err
		}
	}
	replacement, err := classfile.Parse(data, o.parseOpts()...)
	if err != nil {
		return nil, fmt.Errorf("replacement class %s: %w", req.Class, err)
	}
	sites, err := inline.Merge(c, replacement, req.Methods...)
	if err != nil {
		return nil, err
	}
	log.Debug().Str("replacement", req.Class).Int("sites", len(sites)).Msg("merged methods")
	return sites, nil
}

// resolve finds the body of t, in the class being transformed when it
// declares the target and in the class source otherwise.
func resolve(c *classfile.Class, name string, t inline.Target, o *options) (*inline.Resolved, error) {
	if t.Owner == name {
		return inline.Resolve(c, t)
	}
	data, err := o.classBytes(t.Owner)
	if err != nil {
		return nil, err
	}
	owner, err := classfile.Parse(data, o.parseOpts()...)
	if err != nil {
		return nil, fmt.Errorf("target class %s: %w", t.Owner, err)
	}
	return inline.Resolve(owner, t)
}

func (o *options) classBytes(name string) ([]byte, error) {
	if o.source == nil {
		return nil, errz.Newf(errz.TargetNotFound, "class %s requested but no class source is configured", name)
	}
	return o.source.ClassBytes(name)
}

// logObserver logs walker events and forwards them.
type logObserver struct {
	log  zerolog.Logger
	next visit.Observer
}

func (l *logObserver) OnStage(e visit.StageEvent) {
	l.log.Debug().Int("index", e.Index).Str("stage", e.Stage).Msg("running stage")
	if l.next != nil {
		l.next.OnStage(e)
	}
}

func (l *logObserver) OnMethod(e visit.MethodEvent) {
	ev := l.log.Trace().
		Str("stage", e.Stage).
		Str("method", e.Method).
		Stringer("action", e.Action)
	if e.Rewritten {
		ev = ev.Int("before", e.Before.InstructionCount).Int("after", e.After.InstructionCount)
	}
	ev.Msg("visited method")
	if l.next != nil {
		l.next.OnMethod(e)
	}
}
