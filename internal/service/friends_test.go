package service

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/repository"
)

var requestColumns = []string{"requester", "requestee", "status", "created_at"}

func TestAcceptRequestCreatesFriendshipAtomically(t *testing.T) {
	ex, mock := newMockExecutor(t)
	events := &recordedEvents{}
	svc := NewFriendService(ex, repository.NewFriendRepo(ex), repository.NewFriendRequestRepo(ex), events, nil)
	sent := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(selectReq).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow("alice", "bob", "pending", sent))
	mock.ExpectExec(updateReq).WithArgs("accepted", "alice", "bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectReq).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow("alice", "bob", "accepted", sent))
	mock.ExpectExec(insertFriend).WithArgs("alice", "bob", sqlmock.AnyArg()).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	fr, friend, err := svc.EngageRequest(context.Background(), repository.FriendRequestKey{Requester: "alice", Requestee: "bob"}, ActionAccept)
	if err != nil {
		t.Fatal(err)
	}
	if fr.Status != model.FriendRequestAccepted || friend == nil || friend.UserIDRight != "bob" {
		t.Fatalf("unexpected result %+v %+v", fr, friend)
	}
	if len(events.friends) != 1 {
		t.Fatalf("want one friendship event, got %d", len(events.friends))
	}
}

func TestAcceptRequestRollsBackOnDuplicateFriendship(t *testing.T) {
	ex, mock := newMockExecutor(t)
	events := &recordedEvents{}
	svc := NewFriendService(ex, repository.NewFriendRepo(ex), repository.NewFriendRequestRepo(ex), events, nil)
	sent := time.Now().Add(-time.Hour)

	mock.ExpectBegin()
	mock.ExpectQuery(selectReq).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow("alice", "bob", "pending", sent))
	mock.ExpectExec(updateReq).WithArgs("accepted", "alice", "bob").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(selectReq).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow("alice", "bob", "accepted", sent))
	mock.ExpectExec(insertFriend).WithArgs("alice", "bob", sqlmock.AnyArg()).
		WillReturnError(&mysql.MySQLError{Number: 1062})
	mock.ExpectRollback()

	_, _, err := svc.EngageRequest(context.Background(), repository.FriendRequestKey{Requester: "alice", Requestee: "bob"}, ActionAccept)
	if !errors.Is(err, repository.ErrFriendAlreadyExists) {
		t.Fatalf("want ErrFriendAlreadyExists, got %v", err)
	}
	if len(events.friends) != 0 {
		t.Fatal("no event for a rolled back friendship")
	}
}

func TestEngageAnsweredRequestConflicts(t *testing.T) {
	ex, mock := newMockExecutor(t)
	svc := NewFriendService(ex, repository.NewFriendRepo(ex), repository.NewFriendRequestRepo(ex), nil, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(selectReq).WithArgs("alice", "bob").
		WillReturnRows(sqlmock.NewRows(requestColumns).AddRow("alice", "bob", "rejected", time.Now()))
	mock.ExpectRollback()

	_, _, err := svc.EngageRequest(context.Background(), repository.FriendRequestKey{Requester: "alice", Requestee: "bob"}, ActionReject)
	if !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("want ErrConflict, got %v", err)
	}
}

func TestFriendServiceValidatesInput(t *testing.T) {
	ex, _ := newMockExecutor(t)
	svc := NewFriendService(ex, repository.NewFriendRepo(ex), repository.NewFriendRequestRepo(ex), nil, nil)
	ctx := context.Background()

	if _, err := svc.CreateRequest(ctx, "alice", "alice"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("self request: got %v", err)
	}
	if _, _, err := svc.EngageRequest(ctx, repository.FriendRequestKey{Requester: "a", Requestee: "b"}, "maybe"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad action: got %v", err)
	}
	if _, err := svc.ListRequests(ctx, "alice", "sideways", model.FriendRequestPending); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("bad mode: got %v", err)
	}
}
