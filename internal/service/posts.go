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
	"github.com/iliyamo/anythought/internal/utils"
)

type PostService struct {
	tx      Transactor
	posts   *repository.PostRepo
	assets  *repository.AssetRepo
	friends *repository.FriendRepo
	events  EventPublisher
	now     func() time.Time
	log     logrus.FieldLogger
}

func NewPostService(tx Transactor, posts *repository.PostRepo, assets *repository.AssetRepo, friends *repository.FriendRepo, events EventPublisher, log logrus.FieldLogger) *PostService {
	if events == nil {
		events = NopPublisher{}
	}
	return &PostService{
		tx:      tx,
		posts:   posts,
		assets:  assets,
		friends: friends,
		events:  events,
		now:     time.Now,
		log:     logging.Component(log, "posts"),
	}
}

type CreatePostInput struct {
	Author  string
	Caption *string
	AssetID string
}

// CreatePost inserts the post and attaches the asset to it in one
// transaction.  When the asset cannot be attached the post is not kept.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (p model.Post, err error) {
	ctx, span := tracing.Start(ctx, "PostService.CreatePost")
	defer func() { tracing.End(span, err) }()

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		var err error
		p, err = s.posts.Insert(ctx, model.Post{
			ID:        utils.NewEntityID(),
			Author:    in.Author,
			Caption:   in.Caption,
			CreatedAt: s.now(),
		})
		if err != nil {
			return err
		}
		return s.assets.AttachToPost(ctx, repository.AssetAttachment{AssetID: in.AssetID, PostID: p.ID, UserID: in.Author})
	})
	if err != nil {
		return model.Post{}, err
	}

	publishAfterCommit(ctx, s.log, queue.PostCreatedQueue, func(ctx context.Context) error {
		return s.events.PostCreated(ctx, queue.PostCreatedEvent{
			PostID:    p.ID,
			Author:    p.Author,
			AssetID:   in.AssetID,
			CreatedAt: p.CreatedAt,
		})
	})
	return p, nil
}

// UpdatePost changes caption and likes of a post owned by caller.
func (s *PostService) UpdatePost(ctx context.Context, caller string, in model.PostUpdate) (p model.Post, err error) {
	if in.Likes != nil && *in.Likes < 0 {
		return model.Post{}, errors.Wrap(ErrInvalidArgument, "likes must not be negative")
	}
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		cur, err := s.posts.FindByID(ctx, in.ID)
		if err != nil {
			return err
		}
		if cur.Author != caller {
			return errors.Wrapf(repository.ErrForbidden, "post %s", in.ID)
		}
		p, err = s.posts.Update(ctx, in)
		return err
	})
	if err != nil {
		return model.Post{}, err
	}
	return p, nil
}

func (s *PostService) GetPost(ctx context.Context, id string) (model.Post, error) {
	return s.posts.FindByID(ctx, id)
}

func (s *PostService) ListPosts(ctx context.Context, author string) ([]model.Post, error) {
	return s.posts.FindByAuthor(ctx, author)
}

// Feed returns the posts of userID's friends, newest first.
func (s *PostService) Feed(ctx context.Context, userID string) (posts []model.Post, err error) {
	ctx, span := tracing.Start(ctx, "PostService.Feed")
	defer func() { tracing.End(span, err) }()

	friends, err := s.friends.FindForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	authors := make([]string, 0, len(friends))
	for _, f := range friends {
		authors = append(authors, f.Other(userID))
	}
	return s.posts.FindForAuthors(ctx, authors)
}

// DeletePost removes a post owned by caller.  Its assets stay, detached.
func (s *PostService) DeletePost(ctx context.Context, caller, id string) error {
	return s.tx.Transaction(ctx, func(ctx context.Context) error {
		cur, err := s.posts.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if cur.Author != caller {
			return errors.Wrapf(repository.ErrForbidden, "post %s", id)
		}
		return s.posts.Delete(ctx, id)
	})
}
