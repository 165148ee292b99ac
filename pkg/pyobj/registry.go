package pyobj

import "sync"

// Type flags of CPython 2.7, from Include/object.h.
const (
	TPFlagsHeapType        = 1 << 9
	TPFlagsIntSubclass     = 1 << 23
	TPFlagsLongSubclass    = 1 << 24
	TPFlagsListSubclass    = 1 << 25
	TPFlagsTupleSubclass   = 1 << 26
	TPFlagsStringSubclass  = 1 << 27
	TPFlagsUnicodeSubclass = 1 << 28
	TPFlagsDictSubclass    = 1 << 29
	TPFlagsBaseExcSubclass = 1 << 30
	TPFlagsTypeSubclass    = 1 << 31
)

// Constructor creates the wrapper of an object from its generic wrapper.
type Constructor func(base Base) (Object, error)

type flagRule struct {
	flag uint64
	ctor Constructor
}

// Registry maps the type of an object to the constructor of its wrapper.
// Types are matched by tp_name first, then by the first tp_flags rule whose
// flag is set. Objects matching no rule are wrapped in a Base.
type Registry struct {
	mu    sync.RWMutex
	names map[string]Constructor
	flags []flagRule
}

// NewRegistry returns a registry with the wrappers of this package.
func NewRegistry() *Registry {
	r := &Registry{names: make(map[string]Constructor)}

	r.Register("NoneType", newNone)
	r.Register("bool", newBool)
	r.Register("float", newFloat)
	r.Register("set", newSet)
	r.Register("frozenset", newSet)
	r.Register("instance", newInstance)
	r.Register("builtin_function_or_method", newCFunction)
	r.Register("frame", newFrame)

	r.RegisterFlag(TPFlagsBaseExcSubclass, newException)
	r.RegisterFlag(TPFlagsHeapType, newHeapTypeInstance)
	r.RegisterFlag(TPFlagsIntSubclass, newInt)
	r.RegisterFlag(TPFlagsLongSubclass, newLong)
	r.RegisterFlag(TPFlagsListSubclass, newList)
	r.RegisterFlag(TPFlagsTupleSubclass, newTuple)
	r.RegisterFlag(TPFlagsStringSubclass, newString)
	r.RegisterFlag(TPFlagsUnicodeSubclass, newUnicode)
	r.RegisterFlag(TPFlagsDictSubclass, newDict)
	r.RegisterFlag(TPFlagsTypeSubclass, newType)
	return r
}

// Register makes ctor the constructor of the objects whose type is called
// name, replacing any previous constructor for it.
func (r *Registry) Register(name string, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.names[name] = ctor
}

// RegisterFlag appends a rule selecting ctor for the objects whose type has
// flag set in tp_flags. Rules are tried in registration order.
func (r *Registry) RegisterFlag(flag uint64, ctor Constructor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flags = append(r.flags, flagRule{flag, ctor})
}

func (r *Registry) lookup(name string, flags uint64) Constructor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if ctor, ok := r.names[name]; ok {
		return ctor
	}
	for _, rule := range r.flags {
		if flags&rule.flag != 0 {
			return rule.ctor
		}
	}
	return nil
}
