package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/iliyamo/staymarket/internal/feed"
	"github.com/iliyamo/staymarket/internal/model"
)

func nextEvent(t *testing.T, sub *feed.Subscription) feed.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		if !ok {
			t.Fatal("stream closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return feed.Event{}
}

func TestRevokedAdminLosesLiveAppealQueue(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	clock := func() time.Time { return *f.now }
	f.db.addUser("u1", "u1@example.com", false)

	res, err := f.svc.Register(ctx, "root@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	admin := NewAdminService(accountView{f.db}, profileView{f.db}, nil, nil, quietLog(), clock)
	f.advance(time.Second)
	if _, err := admin.GrantAdmin(ctx, res.User.ID); err != nil {
		t.Fatal(err)
	}
	f.advance(time.Second)
	login, err := f.svc.Login(ctx, "root@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	sess, err := f.svc.VerifyToken(ctx, login.Access.Token)
	if err != nil {
		t.Fatal(err)
	}

	hub := feed.NewHub(feed.NewLocalBus(), quietLog())
	appeals := NewAppealService(appealView{f.db}, profileView{f.db}, hub, nil, quietLog(), clock)
	appeals.Guard = f.svc
	q, err := appeals.PendingQuery(Actor{Session: sess, Role: model.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	sub, err := hub.Subscribe(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	if ev := nextEvent(t, sub); ev.Type != feed.EventSnapshot {
		t.Fatalf("want snapshot, got %+v", ev)
	}

	f.advance(time.Second)
	if _, err := admin.RevokeAdmin(ctx, res.User.ID); err != nil {
		t.Fatal(err)
	}
	if _, err := appeals.Submit(ctx, actorFor("u1", model.RoleGuest), SubmitInput{Message: "I host cabins"}); err != nil {
		t.Fatal(err)
	}
	ev := nextEvent(t, sub)
	if ev.Type != feed.EventError || ev.Error != ErrAuthenticationRequired.Error() {
		t.Fatalf("want error event after revocation, got %+v", ev)
	}
	if _, ok := <-sub.Events(); ok {
		t.Fatal("stream should be closed after error event")
	}
}

func TestLiveAppealQueueStaysOpenForAdmin(t *testing.T) {
	f := newAccountFixture(t)
	ctx := context.Background()
	clock := func() time.Time { return *f.now }
	f.db.addUser("u1", "u1@example.com", false)

	res, err := f.svc.Register(ctx, "root@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	admin := NewAdminService(accountView{f.db}, profileView{f.db}, nil, nil, quietLog(), clock)
	f.advance(time.Second)
	if _, err := admin.GrantAdmin(ctx, res.User.ID); err != nil {
		t.Fatal(err)
	}
	f.advance(time.Second)
	login, err := f.svc.Login(ctx, "root@example.com", "secret1")
	if err != nil {
		t.Fatal(err)
	}
	sess, err := f.svc.VerifyToken(ctx, login.Access.Token)
	if err != nil {
		t.Fatal(err)
	}

	hub := feed.NewHub(feed.NewLocalBus(), quietLog())
	appeals := NewAppealService(appealView{f.db}, profileView{f.db}, hub, nil, quietLog(), clock)
	appeals.Guard = f.svc
	q, err := appeals.PendingQuery(Actor{Session: sess, Role: model.RoleAdmin})
	if err != nil {
		t.Fatal(err)
	}
	sub, err := hub.Subscribe(ctx, q)
	if err != nil {
		t.Fatal(err)
	}
	defer sub.Cancel()
	nextEvent(t, sub)

	if _, err := appeals.Submit(ctx, actorFor("u1", model.RoleGuest), SubmitInput{Message: "I host cabins"}); err != nil {
		t.Fatal(err)
	}
	if ev := nextEvent(t, sub); ev.Type != feed.EventAdded || ev.ID != "u1" {
		t.Fatalf("want added u1, got %+v", ev)
	}
}

func TestLiveQueriesNeedGuard(t *testing.T) {
	db := newMemDB()
	appeals := NewAppealService(appealView{db}, profileView{db}, nil, nil, quietLog(), nil)
	if _, err := appeals.PendingQuery(actorFor("a", model.RoleAdmin)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("PendingQuery without guard: %v", err)
	}
	admin := NewAdminService(accountView{db}, profileView{db}, nil, nil, quietLog(), nil)
	if _, err := admin.UsersQuery(actorFor("a", model.RoleAdmin)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("UsersQuery without guard: %v", err)
	}
	catalog := NewCatalogService(listingView{db}, bookingView{db}, nil, nil, quietLog(), nil)
	if _, err := catalog.MyBookingsQuery(actorFor("g", model.RoleGuest)); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("MyBookingsQuery without guard: %v", err)
	}
}
