package kernel

import "testing"

func TestArenaAddLookupRemove(t *testing.T) {
	a := NewArena()

	id := a.NewProcessID()
	if id != 1 {
		t.Fatalf("first ProcessID = %d; want 1", id)
	}

	p := &Process{ID: id, Name: "init", Threads: map[ThreadID]*Thread{}}
	a.Add(p)

	if got := a.Lookup(id); got != p {
		t.Fatalf("Lookup(%d) = %v; want %v", id, got, p)
	}

	if got := a.Lookup(id + 1); got != nil {
		t.Fatalf("Lookup(stale id) = %v; want nil", got)
	}

	a.Remove(id)
	if got := a.Lookup(id); got != nil {
		t.Fatalf("Lookup after Remove = %v; want nil", got)
	}
}

func TestArenaNeverReusesIDs(t *testing.T) {
	a := NewArena()
	first := a.NewProcessID()
	a.Add(&Process{ID: first})
	a.Remove(first)

	second := a.NewProcessID()
	if second == first {
		t.Fatalf("ProcessID reused: %d", second)
	}
}

func TestArenaLookupThread(t *testing.T) {
	a := NewArena()
	pid := a.NewProcessID()
	tid := a.NewThreadID()

	th := &Thread{ID: tid, Process: pid}
	a.Add(&Process{ID: pid, Threads: map[ThreadID]*Thread{tid: th}})

	if got := a.LookupThread(tid); got != th {
		t.Fatalf("LookupThread(%d) = %v; want %v", tid, got, th)
	}
	if got := a.LookupThread(tid + 1); got != nil {
		t.Fatalf("LookupThread(missing) = %v; want nil", got)
	}
}

func TestArenaLookupByName(t *testing.T) {
	a := NewArena()
	pid := a.NewProcessID()
	p := &Process{ID: pid, Name: "server"}
	a.Add(p)

	if got := a.LookupByName("server"); got != p {
		t.Fatalf("LookupByName(server) = %v; want %v", got, p)
	}
	if got := a.LookupByName("missing"); got != nil {
		t.Fatalf("LookupByName(missing) = %v; want nil", got)
	}
}

func TestArenaEach(t *testing.T) {
	a := NewArena()
	a.Add(&Process{ID: a.NewProcessID()})
	a.Add(&Process{ID: a.NewProcessID()})

	count := 0
	a.Each(func(*Process) { count++ })
	if count != 2 {
		t.Fatalf("Each visited %d processes; want 2", count)
	}
}
