package inline

import (
	"github.com/deepnoodle-ai/classweave/bytecode"
	"github.com/deepnoodle-ai/classweave/classfile"
	"github.com/deepnoodle-ai/classweave/errz"
	"github.com/deepnoodle-ai/classweave/visit"
)

// Merge replaces methods of host with the methods of the same name and
// descriptor in replacement. Inside each replacement body, the first call to
// the method itself (on either class) is replaced by the host's original
// body, so the replacement can wrap the original. References to the
// replacement class are renamed to the host class. keys are method keys
// such as "run()V"; with no keys every method of replacement that has code
// and a counterpart in host is merged.
func Merge(host, replacement *classfile.Class, keys ...string) ([]Site, error) {
	hostName, err := host.Name()
	if err != nil {
		return nil, err
	}
	replName, err := replacement.Name()
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 {
		for _, m := range replacement.Methods {
			if m.HasCode() && findKey(host, m.Key()) != nil {
				keys = append(keys, m.Key())
			}
		}
	}
	remap := map[string]string{replName: hostName}

	var sites []Site
	for _, key := range keys {
		hm := findKey(host, key)
		if hm == nil {
			return nil, errz.Newf(errz.TargetNotFound, "%s has no method %s", hostName, key)
		}
		rm := findKey(replacement, key)
		if rm == nil {
			return nil, errz.Newf(errz.TargetNotFound, "%s has no method %s", replName, key)
		}
		if rm.IsStatic() != hm.IsStatic() {
			return nil, errz.Newf(errz.IncompatibleReceiver, "%s is static in only one of %s and %s", key, hostName, replName)
		}
		original, err := Resolve(host, Target{Owner: hostName, Name: hm.Name, Descriptor: hm.Descriptor})
		if err != nil {
			return nil, err
		}
		body, err := replacement.Body(rm)
		if err != nil {
			return nil, err
		}
		for i := 0; i < body.InstructionCount(); i++ {
			if ins := body.InstructionAt(i); ins.Kind == bytecode.KindSymbol && ins.Sym.Pinned() {
				return nil, errz.Newf(errz.NonInlinableTarget,
					"%s.%s uses %s pool entry %d", replName, key, ins.Sym.Tag, ins.Sym.Index)
			}
		}
		body, err = visit.Rewrite(body, visit.RemapBody(visit.NewRemapper(remap).Map))
		if err != nil {
			return nil, err
		}
		in, err := NewInliner(body, original, Options{
			Mode:     SameInstance,
			Remap:    remap,
			OnSplice: func(s Site) { sites = append(sites, s) },
		})
		if err != nil {
			return nil, err
		}
		merged, err := visit.Rewrite(body, in)
		if err != nil {
			return nil, err
		}
		host.SetBody(hm, merged)
	}
	return sites, nil
}

func findKey(c *classfile.Class, key string) *classfile.Member {
	for _, m := range c.Methods {
		if m.Key() == key {
			return m
		}
	}
	return nil
}
