package inline

import (
	"github.com/rs/zerolog"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/visit"
)

// Stage is a visit stage that inlines one target into every selected host
// method of a class.
type Stage struct {
	visit.Base
	target *Resolved
	hosts  visit.MethodFilter
	mode   Mode
	remap  map[string]string
	logger zerolog.Logger
	sites  []Site
}

// StageOption configures a Stage.
type StageOption func(*Stage)

// WithHosts restricts inlining to the selected host methods. By default
// every method with code is a host.
func WithHosts(f visit.MethodFilter) StageOption {
	return func(s *Stage) {
		s.hosts = f
	}
}

// WithMode sets how the receiver of an instance target is handled.
func WithMode(m Mode) StageOption {
	return func(s *Stage) {
		s.mode = m
	}
}

// WithRemap sets the class names renamed in spliced code and in call
// owners.
func WithRemap(names map[string]string) StageOption {
	return func(s *Stage) {
		s.remap = names
	}
}

// WithLogger sets the logger receiving one debug event per splice.
func WithLogger(l zerolog.Logger) StageOption {
	return func(s *Stage) {
		s.logger = l
	}
}

// NewStage returns a stage inlining target.
func NewStage(target *Resolved, opts ...StageOption) *Stage {
	s := &Stage{target: target, hosts: visit.AllMethods, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Stage) Name() string {
	return "inline " + s.target.Target.String()
}

// Sites returns the calls inlined so far.
func (s *Stage) Sites() []Site {
	return s.sites
}

func (s *Stage) VisitMethod(c *classfile.Class, m *classfile.Member) (visit.Action, visit.InstructionVisitor, error) {
	if !s.hosts(m) {
		return visit.Keep, nil, nil
	}
	host, err := c.Body(m)
	if err != nil {
		return visit.Keep, nil, err
	}
	if !s.calls(host) {
		return visit.Keep, nil, nil
	}
	className, err := c.Name()
	if err != nil {
		return visit.Keep, nil, err
	}
	in, err := NewInliner(host, s.target, Options{
		Mode:       s.mode,
		Remap:      s.remap,
		CrossClass: s.target.Class != c,
		OnSplice: func(site Site) {
			s.sites = append(s.sites, site)
			s.logger.Debug().
				Str("class", className).
				Str("host", site.Host).
				Str("target", site.Target.String()).
				Str("mode", site.Mode.String()).
				Int("first_slot", site.FirstSlot).
				Int("instructions", site.Instructions).
				Int("handlers", site.Handlers).
				Msg("inlined call")
		},
	})
	if err != nil {
		return visit.Keep, nil, err
	}
	return visit.Keep, in, nil
}

// calls reports whether host contains a call to the target, so methods
// without one are left byte for byte.
func (s *Stage) calls(host *bytecode.Body) bool {
	remap := func(name string) string {
		if to, ok := s.remap[name]; ok {
			return to
		}
		return name
	}
	for i := 0; i < host.InstructionCount(); i++ {
		if s.target.Target.Matches(host.InstructionAt(i), remap) {
			return true
		}
	}
	return false
}
