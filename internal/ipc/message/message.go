// Package message implements the per-process message queue: one FIFO
// per process, delivery by pid or by name, strict-FIFO receive, and
// request-id-matched response waiting. The operation set is the C
// kernel's syscall/message.c (syscall_message_create/destroy/
// send_by_pid/send_by_name/receive/receive_response), adapted from its
// malloc'd message_entry_t nodes pushed onto a generic list_manager_t to
// this tree's internal/container/list, and from direct user-pointer
// out-parameters to Go multi-value returns.
package message

import (
	"github.com/bolthur/kernel/internal/container/list"
	"github.com/bolthur/kernel/internal/kernel"
)

// ID is a message's monotonic identifier. Never reused, scoped to the
// Manager that assigned it.
type ID uint64

// Message is one queued entry: sender, destination (implicit in queue
// membership), a type tag, an owned payload copy, and the id of a prior
// message this one answers (0 if this is not a response).
type Message struct {
	ID        ID
	Sender    kernel.ProcessID
	Type      uint32
	Data      []byte
	RequestID ID
}

// Queue is a single process's message FIFO. Satisfies kernel.MessageQueue
// so it can be stored directly on Process.Queue without that package
// importing this one.
type Queue struct {
	items *list.List
}

// NewQueue constructs an empty queue, mirroring syscall_message_create's
// list_construct(NULL, NULL) (default lookup/cleanup: messages are never
// looked up by identity, and a popped message's payload is simply dropped
// by the garbage collector rather than freed by a cleanup callback).
func NewQueue() *Queue {
	return &Queue{items: list.New(nil, nil)}
}

// Len reports the number of queued messages.
func (q *Queue) Len() int { return q.items.Len() }

// queueOf recovers the concrete *Queue from a Process's opaque
// kernel.MessageQueue field, or nil if Setup was never called.
func queueOf(proc *kernel.Process) *Queue {
	q, _ := proc.Queue.(*Queue)
	return q
}

// Setup installs an empty queue on proc if it does not already have one.
// Idempotent, mirroring syscall_message_create's "handle already set"
// early-out.
func Setup(proc *kernel.Process) *kernel.Error {
	if proc.Queue != nil {
		return nil
	}
	proc.Queue = NewQueue()
	return nil
}

// Destroy frees every queued message and clears proc's queue, mirroring
// syscall_message_destroy's list_destruct call.
func Destroy(proc *kernel.Process) {
	q := queueOf(proc)
	if q == nil {
		return
	}
	q.items.Destruct()
	proc.Queue = nil
}

// Manager implements the send/receive operations, which need the process
// arena (to resolve a destination pid or name) and a monotonic id
// generator shared across every queue in the system.
type Manager struct {
	Arena  *kernel.Arena
	nextID ID

	// OnWake is called whenever Send* transitions a blocked thread back
	// to ready. Wired to the scheduler's reschedule request by whatever
	// constructs the Kernel aggregate; nil is a legal no-op for tests
	// that don't care about the reschedule hint.
	OnWake func(*kernel.Thread)
}

// NewManager constructs a Manager over arena.
func NewManager(arena *kernel.Arena) *Manager {
	return &Manager{Arena: arena}
}

func (m *Manager) nextMessageID() ID {
	m.nextID++
	return m.nextID
}

func copyPayload(data []byte) []byte {
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp
}

// wakeWaiters scans target's threads for one blocked in
// ThreadWaitingForMessage on requestID and marks it ready. requestID==0
// never matches: a plain (non-response) send has nothing to wake, only a
// reply addressed by the request id a wait_for_response call is blocked
// on.
func (m *Manager) wakeWaiters(target *kernel.Process, requestID ID) {
	if requestID == 0 {
		return
	}
	for _, th := range target.Threads {
		if th.State == kernel.ThreadWaitingForMessage && th.StateData == uint64(requestID) {
			th.State = kernel.ThreadReady
			th.StateData = 0
			if m.OnWake != nil {
				m.OnWake(th)
			}
		}
	}
}

// SendByPID validates dst exists and has a queue, copies data, assigns a
// fresh id, enqueues at the tail, and wakes any thread of dst waiting on
// requestID.
func (m *Manager) SendByPID(dst, src kernel.ProcessID, msgType uint32, data []byte, requestID ID) (ID, *kernel.Error) {
	target := m.Arena.Lookup(dst)
	if target == nil {
		return 0, kernel.New("message", kernel.KindNoEntity, "destination process not found")
	}
	q := queueOf(target)
	if q == nil {
		return 0, kernel.New("message", kernel.KindNoEntity, "destination process has no message queue")
	}

	id := m.nextMessageID()
	q.items.PushBack(&Message{
		ID:        id,
		Sender:    src,
		Type:      msgType,
		Data:      copyPayload(data),
		RequestID: requestID,
	})
	m.wakeWaiters(target, requestID)
	return id, nil
}

// SendByName resolves name to every process sharing it and delivers one
// copy to each; all copies share the id assigned on the first successful
// enqueue so a fan-out client can correlate responses against one key.
func (m *Manager) SendByName(name string, src kernel.ProcessID, msgType uint32, data []byte, requestID ID) (ID, *kernel.Error) {
	targets := m.Arena.LookupAllByName(name)
	if len(targets) == 0 {
		return 0, kernel.New("message", kernel.KindNoEntity, "no process registered under name")
	}

	var id ID
	delivered := false
	for _, target := range targets {
		q := queueOf(target)
		if q == nil {
			continue
		}
		if id == 0 {
			id = m.nextMessageID()
		}
		q.items.PushBack(&Message{
			ID:        id,
			Sender:    src,
			Type:      msgType,
			Data:      copyPayload(data),
			RequestID: requestID,
		})
		m.wakeWaiters(target, requestID)
		delivered = true
	}
	if !delivered {
		return 0, kernel.New("message", kernel.KindNoEntity, "no matching process has a message queue")
	}
	return id, nil
}

// Receive dequeues the head message for proc. Fails with KindMessageTooBig
// if its payload exceeds bufLen (without dequeuing), or KindNoMessage if
// the queue is empty.
func Receive(proc *kernel.Process, bufLen int) (data []byte, sender kernel.ProcessID, id ID, err *kernel.Error) {
	q := queueOf(proc)
	if q == nil {
		return nil, 0, 0, kernel.New("message", kernel.KindNoEntity, "process has no message queue")
	}
	head, _ := q.items.PeekFront().(*Message)
	if head == nil {
		return nil, 0, 0, kernel.New("message", kernel.KindNoMessage, "queue is empty")
	}
	if len(head.Data) > bufLen {
		return nil, 0, 0, kernel.New("message", kernel.KindMessageTooBig, "receiver buffer too small")
	}
	q.items.PopFront()
	return head.Data, head.Sender, head.ID, nil
}

// RemoveByID discards the queued message with the given id, if still
// present. Reports whether a message was removed. Used by the RPC engine to
// drop a payload message that was never consumed by its handler, e.g. when
// a raise fails after the message was already sent, or when an entry is
// unregistered out from under a queued backup.
func RemoveByID(proc *kernel.Process, id ID) bool {
	q := queueOf(proc)
	if q == nil {
		return false
	}
	for item := q.items.First; item != nil; item = item.Next {
		if msg, ok := item.Data.(*Message); ok && msg.ID == id {
			q.items.Remove(item)
			return true
		}
	}
	return false
}

// WaitForResponse scans proc's queue linearly for the oldest message whose
// RequestID matches requestID. On a hit, it removes that element (not
// necessarily the head) and returns its payload. On a miss, it blocks
// thread in ThreadWaitingForMessage with StateData=requestID and returns
// KindNoMessage so the caller's trap handler knows to reschedule. thread
// may be nil in contexts that only want
// the scan (e.g. a retry after being woken), in which case a miss simply
// reports KindNoMessage without touching any thread state.
func (m *Manager) WaitForResponse(thread *kernel.Thread, proc *kernel.Process, bufLen int, requestID ID) ([]byte, *kernel.Error) {
	q := queueOf(proc)
	if q == nil {
		return nil, kernel.New("message", kernel.KindNoEntity, "process has no message queue")
	}

	for item := q.items.First; item != nil; item = item.Next {
		msg, ok := item.Data.(*Message)
		if !ok || msg.RequestID != requestID {
			continue
		}
		if len(msg.Data) > bufLen {
			return nil, kernel.New("message", kernel.KindMessageTooBig, "receiver buffer too small")
		}
		q.items.Remove(item)
		return msg.Data, nil
	}

	if thread != nil {
		thread.State = kernel.ThreadWaitingForMessage
		thread.StateData = uint64(requestID)
	}
	return nil, kernel.New("message", kernel.KindNoMessage, "no response queued yet")
}
