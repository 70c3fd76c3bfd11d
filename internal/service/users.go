package service

import (
	"context"

	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/tracing"
)

type UserService struct {
	tx    Transactor
	users *repository.UserRepo
}

func NewUserService(tx Transactor, users *repository.UserRepo) *UserService {
	return &UserService{tx: tx, users: users}
}

func (s *UserService) Get(ctx context.Context, id string) (model.User, error) {
	return s.users.FindByID(ctx, id)
}

func (s *UserService) GetByUsername(ctx context.Context, username string) (model.User, error) {
	return s.users.FindByUsername(ctx, username)
}

func (s *UserService) List(ctx context.Context) ([]model.User, error) {
	return s.users.FindAll(ctx, struct{}{})
}

// ProfileUpdate lists the fields a user may change; nil keeps the value.
type ProfileUpdate struct {
	Username *string
	Name     *string
	Email    *string
	Image    *string
}

// UpdateProfile applies in to the user's row as one read-modify-write.
func (s *UserService) UpdateProfile(ctx context.Context, userID string, in ProfileUpdate) (u model.User, err error) {
	ctx, span := tracing.Start(ctx, "UserService.UpdateProfile")
	defer func() { tracing.End(span, err) }()

	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		cur, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		if in.Username != nil {
			cur.Username = *in.Username
		}
		if in.Name != nil {
			cur.Name = *in.Name
		}
		if in.Email != nil {
			cur.Email = in.Email
		}
		if in.Image != nil {
			cur.Image = *in.Image
		}
		u, err = s.users.Update(ctx, cur)
		return err
	})
	if err != nil {
		return model.User{}, err
	}
	return u, nil
}
