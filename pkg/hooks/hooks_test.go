package hooks

import (
	"context"
	"testing"
	"time"
)

type addRequest struct {
	Target   string
	Priority int
}

func TestRunWithNoHooksReturnsInputUnchanged(t *testing.T) {
	c := NewChain[addRequest](0)
	out, rej := c.Run(context.Background(), addRequest{Target: "/a", Priority: 1})
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if out.Target != "/a" || out.Priority != 1 {
		t.Fatalf("input was mutated: %+v", out)
	}
}

func TestHooksRunInRegistrationOrderAndTransform(t *testing.T) {
	c := NewChain[addRequest](0)
	var order []string

	c.Register("first", func(ctx context.Context, in addRequest) (*addRequest, *Rejection) {
		order = append(order, "first")
		in.Priority = 5
		return &in, nil
	})
	c.Register("second", func(ctx context.Context, in addRequest) (*addRequest, *Rejection) {
		order = append(order, "second")
		in.Target = "/overridden"
		return &in, nil
	})

	out, rej := c.Run(context.Background(), addRequest{Target: "/a", Priority: 1})
	if rej != nil {
		t.Fatalf("unexpected rejection: %v", rej)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected order: %v", order)
	}
	if out.Priority != 5 || out.Target != "/overridden" {
		t.Fatalf("transformations did not chain: %+v", out)
	}
}

func TestRejectionAbortsChain(t *testing.T) {
	c := NewChain[addRequest](0)
	var secondCalled bool

	c.Register("skiplist", func(ctx context.Context, in addRequest) (*addRequest, *Rejection) {
		return nil, &Rejection{HookID: "skiplist", RejectID: "forbidden-extension", Message: "blocked"}
	})
	c.Register("never", func(ctx context.Context, in addRequest) (*addRequest, *Rejection) {
		secondCalled = true
		return nil, nil
	})

	_, rej := c.Run(context.Background(), addRequest{Target: "/a"})
	if rej == nil {
		t.Fatal("expected a rejection")
	}
	if rej.HookID != "skiplist" || rej.RejectID != "forbidden-extension" {
		t.Fatalf("unexpected rejection: %+v", rej)
	}
	if secondCalled {
		t.Fatal("hook chain did not stop after a rejection")
	}
}

func TestSlowHookTimesOut(t *testing.T) {
	c := NewChain[addRequest](10 * time.Millisecond)
	c.Register("slow", func(ctx context.Context, in addRequest) (*addRequest, *Rejection) {
		select {
		case <-time.After(time.Second):
			return &in, nil
		case <-ctx.Done():
			return nil, nil
		}
	})

	_, rej := c.Run(context.Background(), addRequest{Target: "/a"})
	if rej == nil {
		t.Fatal("expected a timeout rejection")
	}
	if rej.RejectID != "timeout" {
		t.Fatalf("unexpected reject id: %s", rej.RejectID)
	}
}

func TestRejectionErrorMessage(t *testing.T) {
	rej := &Rejection{HookID: "h1", RejectID: "r1", Message: "nope"}
	if rej.Error() == "" {
		t.Fatal("Error() should not be empty")
	}
}
