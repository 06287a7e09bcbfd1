package chat

import "testing"

func TestSessionGateAdmitsOncePerSession(t *testing.T) {
	gate := NewSessionGate()

	if !gate.TryAdmit("sess-1") {
		t.Fatal("first admission must succeed")
	}
	if gate.TryAdmit("sess-1") {
		t.Fatal("second admission for a busy session must be rejected")
	}
	if !gate.TryAdmit("sess-2") {
		t.Fatal("a different session must not be affected")
	}

	gate.Release("sess-1")
	if !gate.TryAdmit("sess-1") {
		t.Fatal("admission must succeed again after release")
	}
}

func TestSessionGateReleaseUnknownSession(t *testing.T) {
	gate := NewSessionGate()
	gate.Release("never-admitted")
	if !gate.TryAdmit("never-admitted") {
		t.Fatal("release of an unknown session must not poison the gate")
	}
}
