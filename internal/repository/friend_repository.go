package repository

import (
	"context"

	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/model"
)

// FriendPair names two users regardless of the stored orientation.
type FriendPair struct {
	UserA string
	UserB string
}

type FriendRepo struct {
	Create      database.Query[model.FriendRelationship, model.FriendRelationship]
	FindAll     database.Query[struct{}, []model.FriendRelationship]
	FindForUser database.Query[string, []model.FriendRelationship]
	Delete      database.Command[FriendPair]
}

func NewFriendRepo(ex *database.Executor) *FriendRepo {
	list := func(where string, args ...any) queryFunc[struct{}, []model.FriendRelationship] {
		return func(ctx context.Context, execute database.ExecuteFunc, _ struct{}) ([]model.FriendRelationship, error) {
			var out []model.FriendRelationship
			err := execute(ctx, func(q database.DBTX) error {
				rows, err := q.QueryContext(ctx,
					"SELECT user_id_left, user_id_right, created_at FROM friends"+where+" ORDER BY created_at", args...)
				if err != nil {
					return err
				}
				defer rows.Close()
				for rows.Next() {
					var f model.FriendRelationship
					if err := rows.Scan(&f.UserIDLeft, &f.UserIDRight, &f.CreatedAt); err != nil {
						return err
					}
					f.CreatedAt = f.CreatedAt.UTC()
					out = append(out, f)
				}
				return rows.Err()
			})
			return out, err
		}
	}

	r := &FriendRepo{}
	r.Create = database.MakeQuery(ex, traced("FriendRepo.Create",
		func(ctx context.Context, execute database.ExecuteFunc, in model.FriendRelationship) (model.FriendRelationship, error) {
			in.CreatedAt = stamp(in.CreatedAt)
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"INSERT INTO friends (user_id_left, user_id_right, created_at) VALUES (?, ?, ?)",
					in.UserIDLeft, in.UserIDRight, in.CreatedAt)
				return err
			})
			switch {
			case database.IsKind(err, database.UniqueViolation):
				return model.FriendRelationship{}, errors.Wrapf(ErrFriendAlreadyExists, "%s and %s", in.UserIDLeft, in.UserIDRight)
			case database.IsKind(err, database.ForeignKeyViolation):
				return model.FriendRelationship{}, errors.Wrap(ErrUserNotFound, "friend")
			case err != nil:
				return model.FriendRelationship{}, err
			}
			return in, nil
		}))

	r.FindAll = database.MakeQuery(ex, traced("FriendRepo.FindAll", list("")))

	r.FindForUser = database.MakeQuery(ex, traced("FriendRepo.FindForUser",
		func(ctx context.Context, execute database.ExecuteFunc, userID string) ([]model.FriendRelationship, error) {
			return list(" WHERE user_id_left = ? OR user_id_right = ?", userID, userID)(ctx, execute, struct{}{})
		}))

	r.Delete = database.MakeCommand(ex, tracedCmd("FriendRepo.Delete",
		func(ctx context.Context, execute database.ExecuteFunc, in FriendPair) error {
			var n int64
			err := execute(ctx, func(q database.DBTX) error {
				res, err := q.ExecContext(ctx,
					"DELETE FROM friends WHERE (user_id_left = ? AND user_id_right = ?) OR (user_id_left = ? AND user_id_right = ?)",
					in.UserA, in.UserB, in.UserB, in.UserA)
				if err != nil {
					return err
				}
				n, err = res.RowsAffected()
				return err
			})
			if err != nil {
				return err
			}
			if n == 0 {
				return errors.Wrapf(ErrFriendNotFound, "%s and %s", in.UserA, in.UserB)
			}
			return nil
		}))
	return r
}
