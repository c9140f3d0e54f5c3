package classweave

import (
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/frames"
	"github.com/deepnoodle-ai/classweave/visit"
)

// Option configures a transformation.
type Option func(*options)

type options struct {
	logger     zerolog.Logger
	maxVersion *classfile.Version
	computer   frames.Computer
	source     ClassSource
	observer   visit.Observer
	report     *Report
}

func collectOptions(opts ...Option) *options {
	o := &options{logger: zerolog.Nop()}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

func (o *options) parseOpts() []classfile.ParseOption {
	var opts []classfile.ParseOption
	if o.maxVersion != nil {
		opts = append(opts, classfile.WithMaxVersion(*o.maxVersion))
	}
	return opts
}

func (o *options) writeOpts() []classfile.WriteOption {
	var opts []classfile.WriteOption
	if o.computer != nil {
		opts = append(opts, classfile.WithFrameComputer(o.computer))
	}
	return opts
}

// WithLogger sets the logger. Stages, splices and the written class are
// logged at debug level, individual methods at trace level.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMaxVersion sets the newest class-file version accepted, for the class
// being transformed and for classes fetched from the class source.
func WithMaxVersion(v classfile.Version) Option {
	return func(o *options) {
		o.maxVersion = &v
	}
}

// WithFrameComputer sets the collaborator computing max stack and max
// locals of rewritten methods, and their StackMapTable when c implements
// frames.StackMapper.
func WithFrameComputer(c frames.Computer) Option {
	return func(o *options) {
		o.computer = c
	}
}

// WithClassSource sets where target and replacement classes are loaded
// from when they are not the class being transformed.
func WithClassSource(s ClassSource) Option {
	return func(o *options) {
		o.source = s
	}
}

// WithObserver sets an observer of stage and method events.
func WithObserver(obs visit.Observer) Option {
	return func(o *options) {
		o.observer = obs
	}
}

// WithReport fills r with a summary of the transformation. When a stage
// fails, r holds what ran before the failure.
func WithReport(r *Report) Option {
	return func(o *options) {
		o.report = r
	}
}
