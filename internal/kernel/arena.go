package kernel

// Arena owns every Process in the system, keyed by the monotonic,
// never-reused ProcessID: because ids are never recycled, a *Process
// pointer retrieved by id is never stale in a way that would alias a
// different, later process. This sidesteps the reference-counted/
// cyclic-ownership problem the C kernel solves with intrusive AVL nodes
// per process.
type Arena struct {
	processes map[ProcessID]*Process
	nextPID   ProcessID
	nextTID   ThreadID
}

// NewArena constructs an empty process arena. Ids start at 1; 0 is
// reserved to mean "no process" (e.g. Process.ForkedFrom's zero value).
func NewArena() *Arena {
	return &Arena{processes: make(map[ProcessID]*Process)}
}

// NewProcessID allocates the next process id. Never reused for the
// lifetime of the Arena.
func (a *Arena) NewProcessID() ProcessID {
	a.nextPID++
	return a.nextPID
}

// NewThreadID allocates the next thread id, out of a single kernel-wide
// counter (mirrors the C kernel, which hands out thread ids from one
// global sequence rather than per-process).
func (a *Arena) NewThreadID() ThreadID {
	a.nextTID++
	return a.nextTID
}

// Add registers a process in the arena. An id beyond the counter moves
// the counter up to it, so NewProcessID never hands that id out again.
func (a *Arena) Add(p *Process) {
	if p.ID > a.nextPID {
		a.nextPID = p.ID
	}
	a.processes[p.ID] = p
}

// Lookup returns the process for id, or nil if it does not exist (already
// removed, or never existed).
func (a *Arena) Lookup(id ProcessID) *Process {
	return a.processes[id]
}

// Remove deletes a process from the arena. Callers must have already
// confirmed AllThreadsKilled and released the process's resources.
func (a *Arena) Remove(id ProcessID) {
	delete(a.processes, id)
}

// LookupThread finds a thread by id across every process in the arena.
// Linear in process count; acceptable here since lookups by thread id are
// rare (RPC raise/restore paths, which already hold a *Thread).
func (a *Arena) LookupThread(id ThreadID) *Thread {
	for _, p := range a.processes {
		if t, ok := p.Threads[id]; ok {
			return t
		}
	}
	return nil
}

// LookupByName returns the first process whose Name matches, or nil.
// Iteration order is unspecified: with unique names in practice, the
// order never matters.
func (a *Arena) LookupByName(name string) *Process {
	for _, p := range a.processes {
		if p.Name == name {
			return p
		}
	}
	return nil
}

// LookupAllByName returns every process whose Name matches, for
// message.Manager's send_by_name fan-out: the C kernel resolves a name
// to a list of every registered process before iterating it to deliver
// one copy to each.
func (a *Arena) LookupAllByName(name string) []*Process {
	var procs []*Process
	for _, p := range a.processes {
		if p.Name == name {
			procs = append(procs, p)
		}
	}
	return procs
}

// Each calls fn for every process currently in the arena.
func (a *Arena) Each(fn func(*Process)) {
	for _, p := range a.processes {
		fn(p)
	}
}
