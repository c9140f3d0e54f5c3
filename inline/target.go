// Package inline splices the body of one method into another at a call
// site.
//
// The inliner replaces the first call to the target in a host method with
// code that stores the call's arguments into fresh local slots, then a copy
// of the target's body with its locals and labels renamed and every return
// turned into a jump to a single merge label. Exception handlers of the
// target are added to the host after the whole host method has been seen.
package inline

import (
	"strings"

	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/op"
)

// Target names a method to inline.
type Target struct {
	Owner      string
	Name       string
	Descriptor string
}

func (t Target) String() string {
	return t.Owner + "." + t.Name + t.Descriptor
}

// ParseTarget parses a target written as "owner.name(descriptor)", for
// example "demo/Util.f(I)I".
func ParseTarget(s string) (Target, error) {
	paren := strings.IndexByte(s, '(')
	if paren < 0 {
		return Target{}, errz.Newf(errz.TargetNotFound, "target %q has no descriptor", s)
	}
	dot := strings.LastIndexByte(s[:paren], '.')
	if dot <= 0 || dot == paren-1 {
		return Target{}, errz.Newf(errz.TargetNotFound, "target %q has no owner or name", s)
	}
	t := Target{Owner: s[:dot], Name: s[dot+1 : paren], Descriptor: s[paren:]}
	if _, err := bytecode.ParseMethodType(t.Descriptor); err != nil {
		return Target{}, err
	}
	return t, nil
}

// Key returns the name and descriptor, matching classfile.Member.Key.
func (t Target) Key() string {
	return t.Name + t.Descriptor
}

// Matches reports whether ins calls t. The owner of the call matches if it
// equals t.Owner either as written or after passing through remap. Only the
// exact owner, name and descriptor match; overrides are not considered.
func (t Target) Matches(ins bytecode.Instruction, remap func(string) string) bool {
	if ins.Kind != bytecode.KindSymbol || !op.IsInvoke(ins.Op) {
		return false
	}
	s := ins.Sym
	if s.Name != t.Name || s.Desc != t.Descriptor {
		return false
	}
	if s.Owner == t.Owner {
		return true
	}
	return remap != nil && remap(s.Owner) == t.Owner
}

// Resolved is a target together with its decoded body.
type Resolved struct {
	Target Target
	Body   *bytecode.Body
	// Class is the class Body was decoded from. Pinned operands in Body
	// index into its pool.
	Class *classfile.Class
}

// Resolve finds the body of t in c, the class that declares it.
func Resolve(c *classfile.Class, t Target) (*Resolved, error) {
	name, err := c.Name()
	if err != nil {
		return nil, err
	}
	if name != t.Owner {
		return nil, errz.Newf(errz.TargetNotFound, "class %s does not declare %s", name, t)
	}
	m := c.FindMethod(t.Name, t.Descriptor)
	if m == nil {
		keys := make([]string, len(c.Methods))
		for i, cand := range c.Methods {
			keys[i] = cand.Key()
		}
		if hint := errz.FormatSuggestions(errz.SuggestSimilar(t.Key(), keys)); hint != "" {
			return nil, errz.Newf(errz.TargetNotFound, "%s not found; %s", t, hint)
		}
		return nil, errz.Newf(errz.TargetNotFound, "%s not found", t)
	}
	if m.IsNative() || m.IsAbstract() {
		return nil, errz.Newf(errz.NonInlinableTarget, "%s has no body to inline", t)
	}
	body, err := c.Body(m)
	if err != nil {
		return nil, err
	}
	return &Resolved{Target: t, Body: body, Class: c}, nil
}
