package sfu

import "testing"

// fakeResource is a minimal Resource for registry tests that doesn't
// need a worker or a channel.
type fakeResource struct {
	resourceBase
}

func newFakeResource() *fakeResource {
	f := &fakeResource{resourceBase: newResourceBase(newUUID())}
	return f
}

func TestRegistryAddAndLookup(t *testing.T) {
	reg := NewRegistry()
	res := newFakeResource()
	reg.Add(res)

	byID, ok := reg.LockedLookupByLocalID(res.LocalID())
	if !ok {
		t.Fatal("expected local id lookup to succeed")
	}
	if byID.RefCount() != 2 {
		t.Fatalf("locked lookup should bump refcount to 2 (initial 1 + 1), got %d", byID.RefCount())
	}
	byID.Unref()

	byUUID, ok := reg.LockedLookupByUUID(res.UUID())
	if !ok {
		t.Fatal("expected uuid lookup to succeed")
	}
	byUUID.Unref()

	if reg.Count() != 1 {
		t.Fatalf("expected 1 live resource, got %d", reg.Count())
	}
}

func TestRegistryRemove(t *testing.T) {
	reg := NewRegistry()
	res := newFakeResource()
	reg.Add(res)
	reg.Remove(res)

	if _, ok := reg.LockedLookupByLocalID(res.LocalID()); ok {
		t.Fatal("expected lookup to miss after Remove")
	}
	if _, ok := reg.LockedLookupByUUID(res.UUID()); ok {
		t.Fatal("expected uuid lookup to miss after Remove")
	}
	if reg.Count() != 0 {
		t.Fatalf("expected 0 live resources, got %d", reg.Count())
	}
}

func TestRegistryLookupMissesClosePending(t *testing.T) {
	reg := NewRegistry()
	res := newFakeResource()
	reg.Add(res)

	if !res.markClosePending() {
		t.Fatal("expected first markClosePending to report true")
	}
	if res.markClosePending() {
		t.Fatal("invariant 3: close must run at most once")
	}

	if _, ok := reg.LockedLookupByLocalID(res.LocalID()); ok {
		t.Fatal("a close-pending resource must not be handed out to new lookups (§4.2)")
	}
}

func TestResourceBaseRefCounting(t *testing.T) {
	res := newFakeResource()
	if res.RefCount() != initialRefCount {
		t.Fatalf("expected initial refcount %d, got %d", initialRefCount, res.RefCount())
	}
	res.Ref()
	if res.RefCount() != initialRefCount+1 {
		t.Fatalf("expected refcount %d after Ref, got %d", initialRefCount+1, res.RefCount())
	}
	if res.Unref() {
		t.Fatal("Unref should not report zero while a reference remains")
	}
	if !res.Unref() {
		t.Fatal("Unref should report zero once the last reference drops")
	}
}
