package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/iliyamo/staymarket/internal/model"
	"github.com/iliyamo/staymarket/internal/queue"
)

func newAppealFixture(t *testing.T) (*AppealService, *memDB, *recorder) {
	t.Helper()
	db := newMemDB()
	db.addUser("u1", "u1@example.com", false)
	rec := &recorder{}
	svc := NewAppealService(appealView{db}, profileView{db}, rec, eventSink{rec}, quietLog(),
		fixedClock(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)))
	return svc, db, rec
}

func TestAppealApproveGrantsHost(t *testing.T) {
	svc, db, rec := newAppealFixture(t)
	ctx := context.Background()
	user := actorFor("u1", model.RoleGuest)
	admin := actorFor("admin", model.RoleAdmin)

	a, err := svc.Submit(ctx, user, SubmitInput{Message: "  I host cabins  "})
	if err != nil {
		t.Fatal(err)
	}
	if a.Status != model.AppealPending || a.Message != "I host cabins" || a.ID != "u1" {
		t.Fatalf("unexpected appeal %+v", a)
	}

	got, err := svc.Decide(ctx, admin, "u1", model.DecisionApprove)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != model.AppealApproved || got.ReviewedBy == nil || *got.ReviewedBy != "admin" {
		t.Fatalf("unexpected decided appeal %+v", got)
	}
	if !db.users["u1"].IsHost {
		t.Fatal("approval did not grant host")
	}
	types := rec.eventTypes()
	if len(types) != 2 || types[0] != queue.TypeAppealSubmitted || types[1] != queue.TypeAppealDecided {
		t.Fatalf("events = %v", types)
	}

	if _, err := svc.Decide(ctx, admin, "u1", model.DecisionDeny); !errors.Is(err, ErrAlreadyDecided) {
		t.Fatalf("second decision: got %v, want ErrAlreadyDecided", err)
	}
	if db.appeals["u1"].Status != model.AppealApproved {
		t.Fatal("second decision changed the appeal")
	}
}

func TestAppealDecideRequiresAdmin(t *testing.T) {
	svc, db, _ := newAppealFixture(t)
	ctx := context.Background()
	if _, err := svc.Submit(ctx, actorFor("u1", model.RoleGuest), SubmitInput{Message: "hi"}); err != nil {
		t.Fatal(err)
	}
	for _, role := range []model.Role{model.RoleGuest, model.RoleHost} {
		_, err := svc.Decide(ctx, actorFor("x", role), "u1", model.DecisionApprove)
		if !errors.Is(err, ErrPermissionDenied) {
			t.Fatalf("%s: got %v, want ErrPermissionDenied", role, err)
		}
	}
	if _, err := svc.Decide(ctx, Guest, "u1", model.DecisionApprove); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("anonymous: got %v", err)
	}
	if db.appeals["u1"].Status != model.AppealPending || db.users["u1"].IsHost {
		t.Fatal("denied decision mutated state")
	}
}

func TestAppealDeniedCanBeResubmitted(t *testing.T) {
	svc, db, _ := newAppealFixture(t)
	ctx := context.Background()
	user := actorFor("u1", model.RoleGuest)
	first, err := svc.Submit(ctx, user, SubmitInput{Message: "first"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Submit(ctx, user, SubmitInput{Message: "again"}); !errors.Is(err, ErrAppealPending) {
		t.Fatalf("resubmit while pending: got %v", err)
	}
	if _, err := svc.Decide(ctx, actorFor("admin", model.RoleAdmin), "u1", model.DecisionDeny); err != nil {
		t.Fatal(err)
	}
	if db.users["u1"].IsHost {
		t.Fatal("deny granted host")
	}
	again, err := svc.Submit(ctx, user, SubmitInput{Message: "second"})
	if err != nil {
		t.Fatal(err)
	}
	if again.Status != model.AppealPending || !again.CreatedAt.Equal(first.CreatedAt) || again.ReviewedBy == nil {
		t.Fatalf("resubmission lost history: %+v", again)
	}
}

func TestAppealValidation(t *testing.T) {
	svc, _, _ := newAppealFixture(t)
	ctx := context.Background()
	_, err := svc.Submit(ctx, actorFor("u1", model.RoleGuest), SubmitInput{Message: strings.Repeat("x", 2001)})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "message" || !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want message validation error", err)
	}
	if _, err := svc.Decide(ctx, actorFor("admin", model.RoleAdmin), "u1", model.Decision("maybe")); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad decision: got %v", err)
	}
	if _, err := svc.Submit(ctx, Guest, SubmitInput{Message: "hi"}); !errors.Is(err, ErrAuthenticationRequired) {
		t.Fatalf("anonymous submit: got %v", err)
	}
	if _, err := svc.Submit(ctx, actorFor("h", model.RoleHost), SubmitInput{}); !errors.Is(err, ErrAppealApproved) {
		t.Fatalf("host submit: got %v", err)
	}
}

func TestAppealGetAndListPending(t *testing.T) {
	svc, db, _ := newAppealFixture(t)
	db.addUser("u2", "u2@example.com", false)
	ctx := context.Background()
	for _, id := range []string{"u1", "u2"} {
		if _, err := svc.Submit(ctx, actorFor(id, model.RoleGuest), SubmitInput{Message: id}); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := svc.Get(ctx, actorFor("u2", model.RoleGuest), "u1"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("foreign get: got %v", err)
	}
	if a, err := svc.Get(ctx, actorFor("u1", model.RoleGuest), "u1"); err != nil || a.UID != "u1" {
		t.Fatalf("own get: %v %+v", err, a)
	}
	if _, err := svc.ListPending(ctx, actorFor("u1", model.RoleHost)); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-admin list: got %v", err)
	}
	list, err := svc.ListPending(ctx, actorFor("admin", model.RoleAdmin))
	if err != nil || len(list) != 2 {
		t.Fatalf("ListPending = %v, %v", list, err)
	}
	if _, err := svc.PendingQuery(actorFor("u1", model.RoleGuest)); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-admin live query: got %v", err)
	}
}
