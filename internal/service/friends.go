package service

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/anythought/internal/logging"
	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/queue"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/tracing"
)

type EngageAction string

const (
	ActionAccept EngageAction = "accept"
	ActionReject EngageAction = "reject"
)

type RequestMode string

const (
	RequestsTo   RequestMode = "to"
	RequestsFrom RequestMode = "from"
)

type FriendService struct {
	tx       Transactor
	friends  *repository.FriendRepo
	requests *repository.FriendRequestRepo
	events   EventPublisher
	now      func() time.Time
	log      logrus.FieldLogger
}

func NewFriendService(tx Transactor, friends *repository.FriendRepo, requests *repository.FriendRequestRepo, events EventPublisher, log logrus.FieldLogger) *FriendService {
	if events == nil {
		events = NopPublisher{}
	}
	return &FriendService{
		tx:       tx,
		friends:  friends,
		requests: requests,
		events:   events,
		now:      time.Now,
		log:      logging.Component(log, "friends"),
	}
}

// CreateRequest records a pending request from requester to requestee.
func (s *FriendService) CreateRequest(ctx context.Context, requester, requestee string) (model.FriendRequest, error) {
	if requester == requestee {
		return model.FriendRequest{}, errors.Wrap(ErrInvalidArgument, "cannot befriend yourself")
	}
	return s.requests.Create(ctx, model.FriendRequest{
		Requester: requester,
		Requestee: requestee,
		Status:    model.FriendRequestPending,
		CreatedAt: s.now(),
	})
}

// EngageRequest answers a pending request addressed to key.Requestee.
// Accepting updates the request and creates the friendship in one
// transaction; if either write fails neither is kept.
func (s *FriendService) EngageRequest(ctx context.Context, key repository.FriendRequestKey, action EngageAction) (fr model.FriendRequest, friend *model.FriendRelationship, err error) {
	ctx, span := tracing.Start(ctx, "FriendService.EngageRequest")
	defer func() { tracing.End(span, err) }()

	var status model.FriendRequestStatus
	switch action {
	case ActionAccept:
		status = model.FriendRequestAccepted
	case ActionReject:
		status = model.FriendRequestRejected
	default:
		return model.FriendRequest{}, nil, errors.Wrapf(ErrInvalidArgument, "action %q", action)
	}

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		cur, err := s.requests.Find(ctx, key)
		if err != nil {
			return err
		}
		if cur.Status != model.FriendRequestPending {
			return errors.Wrapf(repository.ErrConflict, "request is %s", cur.Status)
		}
		if fr, err = s.requests.UpdateStatus(ctx, repository.FriendRequestUpdate{FriendRequestKey: key, Status: status}); err != nil {
			return err
		}
		if status != model.FriendRequestAccepted {
			return nil
		}
		created, err := s.friends.Create(ctx, model.FriendRelationship{
			UserIDLeft:  key.Requester,
			UserIDRight: key.Requestee,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return err
		}
		friend = &created
		return nil
	})
	if err != nil {
		return model.FriendRequest{}, nil, err
	}

	if friend != nil {
		f := *friend
		publishAfterCommit(ctx, s.log, queue.FriendshipCreatedQueue, func(ctx context.Context) error {
			return s.events.FriendshipCreated(ctx, queue.FriendshipCreatedEvent{
				UserIDLeft:  f.UserIDLeft,
				UserIDRight: f.UserIDRight,
				CreatedAt:   f.CreatedAt,
			})
		})
	}
	return fr, friend, nil
}

// DeleteRequest withdraws a request.
func (s *FriendService) DeleteRequest(ctx context.Context, key repository.FriendRequestKey) error {
	return s.requests.Delete(ctx, key)
}

// ListRequests returns requests to or from userID with the given status.
func (s *FriendService) ListRequests(ctx context.Context, userID string, mode RequestMode, status model.FriendRequestStatus) ([]model.FriendRequest, error) {
	if !status.Valid() {
		return nil, errors.Wrapf(ErrInvalidArgument, "status %q", status)
	}
	in := repository.UserRequests{UserID: userID, Status: status}
	switch mode {
	case RequestsTo:
		return s.requests.FindToUser(ctx, in)
	case RequestsFrom:
		return s.requests.FindFromUser(ctx, in)
	}
	return nil, errors.Wrapf(ErrInvalidArgument, "mode %q", mode)
}

func (s *FriendService) ListFriends(ctx context.Context, userID string) ([]model.FriendRelationship, error) {
	return s.friends.FindForUser(ctx, userID)
}

// RemoveFriend ends the friendship between caller and other, whichever way
// it was stored.
func (s *FriendService) RemoveFriend(ctx context.Context, caller, other string) error {
	return s.friends.Delete(ctx, repository.FriendPair{UserA: caller, UserB: other})
}
