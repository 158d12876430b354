package sfu

import (
	"sync"
)

// Resource is the minimal contract the Registry needs from every
// tagged-variant resource kind (§3 Resource kinds table). Concrete
// types embed *resourceBase, which implements this.
type Resource interface {
	LocalID() uint32
	UUID() string
	RefCount() int32
	Ref()
	Unref() bool // returns true if this call dropped the refcount to zero
	ClosePending() bool
	markClosePending() bool // returns true if this call set the flag (first time)
}

// resourceBase is embedded by every concrete resource type and
// implements the refcount + closed-flag discipline of §4.2.
// Creation starts every resource at initialRefCount references; each
// locked registry lookup adds one, which its caller releases with
// Unref.
const initialRefCount = 1

type resourceBase struct {
	mu           sync.Mutex
	localID      uint32
	uuid         string
	refCount     int32
	closePending bool
}

func newResourceBase(uuid string) resourceBase {
	return resourceBase{
		localID:  nextLocalID(),
		uuid:     uuid,
		refCount: initialRefCount,
	}
}

func (r *resourceBase) LocalID() uint32 { return r.localID }
func (r *resourceBase) UUID() string    { return r.uuid }

func (r *resourceBase) RefCount() int32 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.refCount
}

func (r *resourceBase) Ref() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refCount++
}

// Unref decrements the refcount and reports whether this call observed
// it reach exactly zero (invariant 2: freed when and only when
// refcount reaches zero AND the resource has been closed).
func (r *resourceBase) Unref() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.refCount--
	return r.refCount == 0
}

func (r *resourceBase) ClosePending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closePending
}

// markClosePending sets the closed bit atomically and reports whether
// this call was the one that set it (invariant 3: closed at most once).
func (r *resourceBase) markClosePending() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closePending {
		return false
	}
	r.closePending = true
	return true
}

// Registry is the central thread-safe id->resource and uuid->resource
// map (§4.2). One Registry is shared process-wide; its mutex is "the
// registry mutex" referenced throughout §5.
type Registry struct {
	mu      sync.Mutex
	byLocal map[uint32]Resource
	byUUID  map[string]Resource
}

func NewRegistry() *Registry {
	return &Registry{
		byLocal: make(map[uint32]Resource),
		byUUID:  make(map[string]Resource),
	}
}

// Add registers a newly created, not-yet-visible resource. Must be
// called after the resource's cached fields are filled from the
// worker's reply and before the resource is handed to any other
// goroutine (§3 lifecycle summary).
func (r *Registry) Add(res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLocal[res.LocalID()] = res
	r.byUUID[res.UUID()] = res
}

// Remove drops a resource from both maps. Called exactly once, from
// the resource's own close path, after teardown of descendants.
func (r *Registry) Remove(res Resource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byLocal, res.LocalID())
	delete(r.byUUID, res.UUID())
}

// LockedLookupByUUID bumps the resource's refcount and returns it
// under the registry mutex (§4.2: "locked lookup" API). Callers must
// pair a successful lookup with exactly one Unref once done, unless
// they are handing the ref off (e.g. storing it in a parent's child
// list).
func (r *Registry) LockedLookupByUUID(uuid string) (Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byUUID[uuid]
	if !ok || res.ClosePending() {
		return nil, false
	}
	res.Ref()
	return res, true
}

// LockedLookupByLocalID is the local-id counterpart of
// LockedLookupByUUID.
func (r *Registry) LockedLookupByLocalID(id uint32) (Resource, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	res, ok := r.byLocal[id]
	if !ok || res.ClosePending() {
		return nil, false
	}
	res.Ref()
	return res, true
}

// Count reports the number of live resources, for tests and dump/stat
// introspection.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byLocal)
}
