package capability

import (
	"fmt"
	"strings"
)

// Capability is an immutable grant of actions on a protected resource.
type Capability interface {
	// Resource returns the protected resource name.
	Resource() string
	// Actions returns the canonical comma separated action list.
	Actions() string
	// Implies reports whether holding this capability also grants other.
	Implies(other Capability) bool
	// String returns the canonical form used for structural equality.
	String() string
}

// Equal reports whether a and b are structurally equal.
func Equal(a, b Capability) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.String() == b.String()
}

// Resource describes a protected resource and its fixed action vocabulary.
// The position of an action in Actions is its bit in the mask.
type Resource struct {
	name    string
	actions []string
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.name }

// Mask converts a comma separated action list into a bit mask.
func (r *Resource) Mask(actions string) (uint32, error) {
	if strings.TrimSpace(actions) == "" {
		return 0, fmt.Errorf("%s: %w", r.name, ErrEmptyActions)
	}
	var mask uint32
	for _, action := range strings.Split(actions, ",") {
		action = strings.TrimSpace(action)
		bit, ok := r.bit(action)
		if !ok {
			return 0, fmt.Errorf("%w %q for %s (in %q)", ErrUnknownAction, action, r.name, actions)
		}
		mask |= bit
	}
	return mask, nil
}

// String renders mask in declaration order.
func (r *Resource) String(mask uint32) string {
	names := make([]string, 0, len(r.actions))
	for i, name := range r.actions {
		if mask&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	return strings.Join(names, ",")
}

func (r *Resource) bit(action string) (uint32, bool) {
	for i, name := range r.actions {
		if name == action {
			return 1 << i, true
		}
	}
	return 0, false
}

// Protected resources.
var (
	ModuleRegistry  = &Resource{name: "module-registry", actions: []string{"read", "register", "manage"}}
	ServiceRegistry = &Resource{name: "service-registry", actions: []string{"access", "start-or-stop"}}
	Files           = &Resource{name: "file", actions: []string{"read", "write", "delete"}}
)

// Permission is a capability over one of the registries.
type Permission struct {
	res  *Resource
	mask uint32
}

// Predefined atomic capabilities.
var (
	ModuleRegistryRead     = Permission{res: ModuleRegistry, mask: 1 << 0}
	ModuleRegistryRegister = Permission{res: ModuleRegistry, mask: 1 << 1}
	ModuleRegistryManage   = Permission{res: ModuleRegistry, mask: 1 << 2}

	ServiceRegistryAccess      = Permission{res: ServiceRegistry, mask: 1 << 0}
	ServiceRegistryStartOrStop = Permission{res: ServiceRegistry, mask: 1 << 1}
)

// NewPermission parses a comma separated action list for res.
func NewPermission(res *Resource, actions string) (Permission, error) {
	mask, err := res.Mask(actions)
	if err != nil {
		return Permission{}, err
	}
	return Permission{res: res, mask: mask}, nil
}

// Union returns a permission holding the actions of both p and o. Both must
// be over the same resource.
func (p Permission) Union(o Permission) Permission {
	if p.res != o.res {
		panic(fmt.Sprintf("capability: union of %s and %s", p.Resource(), o.Resource()))
	}
	return Permission{res: p.res, mask: p.mask | o.mask}
}

func (p Permission) Resource() string {
	if p.res == nil {
		return ""
	}
	return p.res.name
}

func (p Permission) Actions() string {
	if p.res == nil {
		return ""
	}
	return p.res.String(p.mask)
}

func (p Permission) Implies(other Capability) bool {
	o, ok := other.(Permission)
	if !ok || p.res == nil || o.res == nil || p.res.name != o.res.name {
		return false
	}
	return p.mask&o.mask == o.mask
}

func (p Permission) String() string {
	return p.Resource() + ":" + p.Actions()
}

// All is the unrestricted capability. It implies every other capability and
// should only be granted to fully trusted plugins.
var All Capability = allCapability{}

type allCapability struct{}

func (allCapability) Resource() string        { return "all" }
func (allCapability) Actions() string         { return "*" }
func (allCapability) Implies(Capability) bool { return true }
func (allCapability) String() string          { return "all:*" }

// IsAll reports whether c is the unrestricted capability.
func IsAll(c Capability) bool {
	_, ok := c.(allCapability)
	return ok
}

// Parse builds a capability from a resource name, a target name and an
// action list. The name is only meaningful for file capabilities and is
// ignored otherwise.
func Parse(resource, name, actions string) (Capability, error) {
	switch resource {
	case ModuleRegistry.name:
		return NewPermission(ModuleRegistry, actions)
	case ServiceRegistry.name:
		return NewPermission(ServiceRegistry, actions)
	case Files.name:
		return NewFile(name, actions)
	case "all":
		return All, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownResource, resource)
	}
}
