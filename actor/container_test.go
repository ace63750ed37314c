package actor

import (
	"testing"
	"time"

	"github.com/nyxmesh/container/mailbox"
)

func mustStart(t *testing.T, c *Container) {
	t.Helper()
	if err := c.Start(nil); err != nil {
		t.Fatalf("start: %v", err)
	}
	t.Cleanup(func() { _ = c.Stop() })
}

// TestInProcessRequestResponse covers the in-process ping scenario: two
// PROCESS-scoped actors in the same container round-trip a request and
// response.
func TestInProcessRequestResponse(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	pong, _ := c.AddActor("pong", func(ctx *Context) {
		ctx.Reply(nil, "pong:"+ctx.Request().Content.(string), nil)
	}, mailbox.Options{})

	done := make(chan *Response, 1)
	c.Send("", pong, "ping", nil, func(errInfo *ErrInfo, res *Response) {
		if errInfo != nil {
			t.Errorf("unexpected error: %v", errInfo)
		}
		done <- res
	})

	select {
	case res := <-done:
		if res.Content.(string) != "pong:ping" {
			t.Fatalf("unexpected content: %v", res.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

// TestSendFromRegisteredActorRoutesResponse covers the ping/pong
// scenario using the spec's own send(from, to, content) shape: from
// names an actor already hosted by this container, and the responder's
// reply must complete the caller's callback (a same-container reply
// completes through the correlation table) rather than only ever
// completing via TIMEOUT.
func TestSendFromRegisteredActorRoutesResponse(t *testing.T) {
	c := NewContainer("")

	ping, _ := c.AddActor("ping", func(ctx *Context) {}, mailbox.Options{})
	pong, _ := c.AddActor("pong", func(ctx *Context) {
		ctx.Reply(nil, "pong:"+ctx.Request().Content.(string), nil)
	}, mailbox.Options{})
	mustStart(t, c)

	done := make(chan *Response, 1)
	c.Send(ping, pong, "ping", nil, func(errInfo *ErrInfo, res *Response) {
		if errInfo != nil {
			t.Errorf("unexpected error: %v", errInfo)
		}
		done <- res
	})

	select {
	case res := <-done:
		if res.Content.(string) != "pong:ping" {
			t.Fatalf("unexpected content: %v", res.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for response")
	}
}

// TestSendTimeout covers the timeout scenario: a request to an actor
// that never replies resolves TIMEOUT once its deadline passes.
func TestSendTimeout(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	silent, _ := c.AddActor("silent", func(ctx *Context) {}, mailbox.Options{})

	done := make(chan *ErrInfo, 1)
	c.Send("", silent, "hello", &SendOverride{Timeout: 30 * time.Millisecond}, func(errInfo *ErrInfo, res *Response) {
		done <- errInfo
	})

	select {
	case errInfo := <-done:
		if errInfo == nil || errInfo.Code != CodeTimeout {
			t.Fatalf("expected TIMEOUT, got %v", errInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// TestSendUnknownActorRespondsNotFound covers sending to an id nothing
// in this container (and, since no discovery is configured, nothing
// reachable) has ever registered.
func TestSendUnknownActorRespondsNotFound(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	done := make(chan *ErrInfo, 1)
	c.Send("", "ghost", "x", &SendOverride{Timeout: 50 * time.Millisecond}, func(errInfo *ErrInfo, res *Response) {
		done <- errInfo
	})

	select {
	case errInfo := <-done:
		if errInfo == nil || errInfo.Code != CodeNotFound {
			t.Fatalf("expected NOTFOUND, got %v", errInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// TestFireAndForgetNoCallback covers the fire-and-forget path: a nil
// callback must never panic and the handler must still run.
func TestFireAndForgetNoCallback(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	seen := make(chan string, 1)
	target, _ := c.AddActor("sink", func(ctx *Context) {
		seen <- ctx.Request().Content.(string)
		ctx.Reply(nil, "ignored", nil)
	}, mailbox.Options{})

	c.Send("", target, "fire", nil, nil)

	select {
	case v := <-seen:
		if v != "fire" {
			t.Fatalf("unexpected payload: %q", v)
		}
	case <-time.After(time.Second):
		t.Fatal("handler never ran")
	}
}

// TestPickRoundRobinsBareGroup covers the documented pick policy:
// repeated sends to a bare id cycle deterministically across every full
// AID registered under that bare role.
func TestPickRoundRobinsBareGroup(t *testing.T) {
	r := NewRegistry()
	r.Add(&actorEntry{id: "worker/1", scope: ScopeProcess})
	r.Add(&actorEntry{id: "worker/2", scope: ScopeProcess})
	r.Add(&actorEntry{id: "worker/3", scope: ScopeProcess})

	var picks []string
	for i := 0; i < 6; i++ {
		full, _, ok := r.Pick("worker")
		if !ok {
			t.Fatalf("pick failed on iteration %d", i)
		}
		picks = append(picks, full)
	}
	want := []string{"worker/1", "worker/2", "worker/3", "worker/1", "worker/2", "worker/3"}
	for i, w := range want {
		if picks[i] != w {
			t.Fatalf("pick[%d] = %q, want %q (full sequence %v)", i, picks[i], w, picks)
		}
	}
}

// TestPickPrefersExactFullAID covers the case where the caller already
// named a full AID: pick must return it unchanged rather than
// round-robin the bare group.
func TestPickPrefersExactFullAID(t *testing.T) {
	r := NewRegistry()
	r.Add(&actorEntry{id: "worker/1", scope: ScopeProcess})
	r.Add(&actorEntry{id: "worker/2", scope: ScopeProcess})

	full, scope, ok := r.Pick("worker/2")
	if !ok || full != "worker/2" || scope != ScopeProcess {
		t.Fatalf("got (%q, %v, %v), want (worker/2, ScopeProcess, true)", full, scope, ok)
	}
}

// TestRegistryScopePreference covers the PROCESS > LOCAL > REMOTE lookup
// preference when a bare id resolves to no exact full AID and several
// scopes hold entries.
func TestRegistryScopePreference(t *testing.T) {
	r := NewRegistry()
	r.Add(&actorEntry{id: "svc/remote-1", scope: ScopeRemote})
	r.Add(&actorEntry{id: "svc/local-1", scope: ScopeLocal})
	r.Add(&actorEntry{id: "svc/proc-1", scope: ScopeProcess})

	full, scope, ok := r.Pick("svc")
	if !ok || full != "svc/proc-1" || scope != ScopeProcess {
		t.Fatalf("got (%q, %v, %v), want (svc/proc-1, ScopeProcess, true)", full, scope, ok)
	}
}

// TestRegistryRemoveAlwaysEmitsAID guards against an "actor removed"
// event losing its aid: even removing an id that was never added must
// still emit an event carrying that id.
func TestRegistryRemoveAlwaysEmitsAID(t *testing.T) {
	r := NewRegistry()
	var gotAID string
	var gotAdded bool
	r.Subscribe(func(added bool, aid string, scope Scope) {
		gotAID, gotAdded = aid, added
	})
	r.Remove("never-added/1", ScopeProcess)
	if gotAdded || gotAID != "never-added/1" {
		t.Fatalf("got (%v, %q), want (false, never-added/1)", gotAdded, gotAID)
	}
}

// TestResponseDateAlwaysFromRequest guards against onReq stamping a
// response's own send time: Response.Date must equal the originating
// Request.Date, regardless of when the reply was actually sent.
func TestResponseDateAlwaysFromRequest(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	target, _ := c.AddActor("slow", func(ctx *Context) {
		time.Sleep(20 * time.Millisecond)
		ctx.Reply(nil, "done", nil)
	}, mailbox.Options{})

	before := time.Now().UnixMilli()
	done := make(chan *Response, 1)
	c.Send("", target, "go", nil, func(errInfo *ErrInfo, res *Response) { done <- res })

	select {
	case res := <-done:
		if res.Date != before && res.Date < before {
			t.Fatalf("response date %d predates send %d", res.Date, before)
		}
		if res.Date > time.Now().UnixMilli() {
			t.Fatalf("response date %d is in the future", res.Date)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}

// TestMiddlewareShortCircuit covers the REQ_OUT station: a middleware
// that never calls next must prevent the request from being routed at
// all.
func TestMiddlewareShortCircuit(t *testing.T) {
	c := NewContainer("")
	var handlerRan bool
	target, _ := c.AddActor("blocked", func(ctx *Context) {
		handlerRan = true
		ctx.Reply(nil, "should not happen", nil)
	}, mailbox.Options{})
	mustStart(t, c)

	c.Use(ReqOut, func(kind MessageKind, env *Envelope, reply ReplyFunc, next func()) {
		// Deny everything; never call next.
	})

	done := make(chan bool, 1)
	c.Send("", target, "x", &SendOverride{Timeout: 40 * time.Millisecond}, func(errInfo *ErrInfo, res *Response) {
		done <- errInfo != nil && errInfo.Code == CodeTimeout
	})

	select {
	case timedOut := <-done:
		if !timedOut {
			t.Fatalf("expected timeout from a short-circuited request")
		}
		if handlerRan {
			t.Fatalf("handler should never have run")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}
}

// TestStartingQueueDrainsOnStart covers the starting queue: an actor
// added before Start must still be reachable once Start returns.
func TestStartingQueueDrainsOnStart(t *testing.T) {
	c := NewContainer("")
	early, _ := c.AddActor("early", func(ctx *Context) {
		ctx.Reply(nil, "hi", nil)
	}, mailbox.Options{})
	mustStart(t, c)

	done := make(chan *Response, 1)
	c.Send("", early, "x", nil, func(errInfo *ErrInfo, res *Response) { done <- res })
	select {
	case res := <-done:
		if res.Content.(string) != "hi" {
			t.Fatalf("unexpected content %v", res.Content)
		}
	case <-time.After(time.Second):
		t.Fatal("early actor never responded")
	}
}

// TestStartTwiceFails covers the container lifecycle guard.
func TestStartTwiceFails(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)
	if err := c.Start(nil); err != ErrAlreadyStarted {
		t.Fatalf("expected ErrAlreadyStarted, got %v", err)
	}
}

// TestStartRejectsInvalidParams covers start-param validation: an
// unrecognised key fails the startParams schema (additionalProperties
// false) and Start must return TECHERR without touching any transport,
// leaving the container idle so a corrected Start can still succeed.
func TestStartRejectsInvalidParams(t *testing.T) {
	c := NewContainer("")
	err := c.Start(map[string]any{"bogus": true})
	if err == nil {
		t.Fatalf("expected an error for an unrecognised start param")
	}
	errInfo, ok := err.(*ErrInfo)
	if !ok || errInfo.Code != CodeTechErr {
		t.Fatalf("expected TECHERR, got %v", err)
	}
	if c.state != stateIdle {
		t.Fatalf("expected container to remain idle after rejected start, got state %v", c.state)
	}
	if err := c.Start(nil); err != nil {
		t.Fatalf("expected a subsequent valid Start to succeed: %v", err)
	}
	_ = c.Stop()
}

// TestStartAppliesIPOverride covers the "ip" start param: it must win
// over the resolved local address in NetInfo.
func TestStartAppliesIPOverride(t *testing.T) {
	c := NewContainer("")
	if err := c.Start(map[string]any{"ip": "203.0.113.7"}); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer c.Stop()
	if c.netInfo.IP != "203.0.113.7" {
		t.Fatalf("netInfo.IP = %q, want overridden ip", c.netInfo.IP)
	}
}

// TestStopNotRunningFails covers the container lifecycle guard.
func TestStopNotRunningFails(t *testing.T) {
	c := NewContainer("")
	if err := c.Stop(); err != ErrNotRunning {
		t.Fatalf("expected ErrNotRunning, got %v", err)
	}
}

// TestOnDropPastDeadlineFailsDropped covers the DROPPED terminal case: a
// drop notification arriving for a request already past its own
// absolute deadline resolves DROPPED rather than scheduling another
// retry.
func TestOnDropPastDeadlineFailsDropped(t *testing.T) {
	c := NewContainer("")
	req := &Request{ID: "r1", To: "x", Date: time.Now().Add(-time.Hour).UnixMilli(), Timeout: time.Millisecond, CB: true}
	done := make(chan *ErrInfo, 1)
	c.registerCorrelation(req, func(errInfo *ErrInfo, res *Response) { done <- errInfo })

	c.onDrop(req, ErrCircuitOpen)

	select {
	case errInfo := <-done:
		if errInfo == nil || errInfo.Code != CodeDropped {
			t.Fatalf("expected DROPPED, got %v", errInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for drop resolution")
	}
}

// TestOnDropUnknownCorrelationIsNoop covers a drop notification arriving
// for a request that already resolved (e.g. timed out first): it must
// not panic or invoke a callback twice.
func TestOnDropUnknownCorrelationIsNoop(t *testing.T) {
	c := NewContainer("")
	req := &Request{ID: "gone", To: "x", Date: time.Now().UnixMilli(), Timeout: time.Second, CB: true}
	c.onDrop(req, ErrCircuitOpen) // no correlation registered; must be a no-op
}

// TestAddActorRejectsInvalidAID covers the "no state change on
// failure" boundary: a malformed aid must not reach the registry or the
// starting queue.
func TestAddActorRejectsInvalidAID(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	if _, err := c.AddActor("worker/", func(ctx *Context) {}, mailbox.Options{}); err == nil {
		t.Fatalf("expected an error for a trailing-slash aid")
	}
	if _, err := c.AddActor("", func(ctx *Context) {}, mailbox.Options{}); err == nil {
		t.Fatalf("expected an error for an empty aid")
	}
	if len(c.registry.Snapshot()) != 0 {
		t.Fatalf("expected no actor registered after rejected AddActor calls")
	}
}

// TestRemoveActorRejectsInvalidAID mirrors TestAddActorRejectsInvalidAID
// for the remove path.
func TestRemoveActorRejectsInvalidAID(t *testing.T) {
	c := NewContainer("")
	if err := c.RemoveActor("worker/"); err == nil {
		t.Fatalf("expected an error for a trailing-slash aid")
	}
}

// TestSendRejectsInvalidAID covers Send's own AID validation: an
// invalid to or from must resolve TECHERR without registering a
// correlation or routing anything.
func TestSendRejectsInvalidAID(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)

	done := make(chan *ErrInfo, 1)
	c.Send("", "ghost/", "x", nil, func(errInfo *ErrInfo, res *Response) { done <- errInfo })
	select {
	case errInfo := <-done:
		if errInfo == nil || errInfo.Code != CodeTechErr {
			t.Fatalf("expected TECHERR for invalid to, got %v", errInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}

	done = make(chan *ErrInfo, 1)
	c.Send("badfrom/", "ghost", "x", nil, func(errInfo *ErrInfo, res *Response) { done <- errInfo })
	select {
	case errInfo := <-done:
		if errInfo == nil || errInfo.Code != CodeTechErr {
			t.Fatalf("expected TECHERR for invalid from, got %v", errInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for callback")
	}

	if len(c.correlations) != 0 {
		t.Fatalf("expected no correlation registered for a rejected send")
	}
}

// TestRemoveActorThenSendNotFound covers the remove-actor operation:
// once an actor is removed, sends to it resolve NOTFOUND.
func TestRemoveActorThenSendNotFound(t *testing.T) {
	c := NewContainer("")
	mustStart(t, c)
	full, _ := c.AddActor("temp", func(ctx *Context) { ctx.Reply(nil, "ok", nil) }, mailbox.Options{})
	_ = c.RemoveActor(full)

	done := make(chan *ErrInfo, 1)
	c.Send("", full, "x", &SendOverride{Timeout: 50 * time.Millisecond}, func(errInfo *ErrInfo, res *Response) {
		done <- errInfo
	})
	select {
	case errInfo := <-done:
		if errInfo == nil || errInfo.Code != CodeNotFound {
			t.Fatalf("expected NOTFOUND, got %v", errInfo)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
