package batches

import (
	"testing"

	"github.com/Spok95/cargoflow/internal/domain/users"
)

func TestCanTransition_Pipeline(t *testing.T) {
	order := []Status{StatusDraft, StatusSenderSealed, StatusInTransit, StatusTransitSealed, StatusReceived, StatusCompleted}
	for i := 0; i < len(order)-1; i++ {
		if !CanTransition(order[i], order[i+1]) {
			t.Fatalf("%s -> %s must be allowed", order[i], order[i+1])
		}
	}

	// прыжок через этап запрещён
	if CanTransition(StatusDraft, StatusReceived) {
		t.Fatalf("draft -> received must be rejected")
	}
	if CanTransition(StatusSenderSealed, StatusTransitSealed) {
		t.Fatalf("sender_sealed -> transit_sealed must be rejected")
	}
	// обратных переходов нет
	if CanTransition(StatusInTransit, StatusSenderSealed) {
		t.Fatalf("reverse transition must be rejected")
	}
}

func TestCanTransition_Cancel(t *testing.T) {
	for _, from := range []Status{StatusDraft, StatusSenderSealed, StatusInTransit, StatusTransitSealed, StatusReceived} {
		if !CanTransition(from, StatusCancelled) {
			t.Fatalf("%s -> cancelled must be allowed", from)
		}
	}
	if CanTransition(StatusCompleted, StatusCancelled) {
		t.Fatalf("completed is terminal")
	}
	if CanTransition(StatusCancelled, StatusDraft) {
		t.Fatalf("cancelled is terminal")
	}
}

func TestRoleFor(t *testing.T) {
	cases := map[Status]users.Role{
		StatusSenderSealed:  users.RoleSender,
		StatusInTransit:     users.RoleTransit,
		StatusTransitSealed: users.RoleTransit,
		StatusReceived:      users.RoleReceiver,
		StatusCompleted:     users.RoleReceiver,
		StatusCancelled:     users.RoleAdmin,
	}
	for target, want := range cases {
		got, ok := RoleFor(target)
		if !ok || got != want {
			t.Fatalf("RoleFor(%s) = %s,%v, want %s", target, got, ok, want)
		}
	}
	if _, ok := RoleFor(StatusDraft); ok {
		t.Fatalf("draft is not a transition target")
	}
}

func TestTerminal(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatalf("completed and cancelled are terminal")
	}
	if StatusDraft.Terminal() || StatusReceived.Terminal() {
		t.Fatalf("pipeline states are not terminal")
	}
}
