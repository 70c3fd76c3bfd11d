package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/model"
)

// FriendRequestKey identifies a request.
type FriendRequestKey struct {
	Requester string
	Requestee string
}

// FriendRequestUpdate sets the status of the request identified by its key.
type FriendRequestUpdate struct {
	FriendRequestKey
	Status model.FriendRequestStatus
}

// UserRequests selects requests involving UserID with the given status.
type UserRequests struct {
	UserID string
	Status model.FriendRequestStatus
}

type FriendRequestRepo struct {
	Create       database.Query[model.FriendRequest, model.FriendRequest]
	Find         database.Query[FriendRequestKey, model.FriendRequest]
	UpdateStatus database.Query[FriendRequestUpdate, model.FriendRequest]
	FindAll      database.Query[struct{}, []model.FriendRequest]
	FindToUser   database.Query[UserRequests, []model.FriendRequest]
	FindFromUser database.Query[UserRequests, []model.FriendRequest]
	Delete       database.Command[FriendRequestKey]
}

const friendRequestColumns = "requester, requestee, status, created_at"

func NewFriendRequestRepo(ex *database.Executor) *FriendRequestRepo {
	find := func(ctx context.Context, execute database.ExecuteFunc, in FriendRequestKey) (model.FriendRequest, error) {
		var fr model.FriendRequest
		err := execute(ctx, func(q database.DBTX) error {
			var err error
			fr, err = scanFriendRequest(q.QueryRowContext(ctx,
				"SELECT "+friendRequestColumns+" FROM friend_requests WHERE requester = ? AND requestee = ?",
				in.Requester, in.Requestee))
			return err
		})
		if errors.Is(err, sql.ErrNoRows) {
			return model.FriendRequest{}, errors.Wrapf(ErrFriendRequestNotFound, "from %s to %s", in.Requester, in.Requestee)
		}
		return fr, err
	}
	list := func(column string) queryFunc[UserRequests, []model.FriendRequest] {
		return func(ctx context.Context, execute database.ExecuteFunc, in UserRequests) ([]model.FriendRequest, error) {
			query := "SELECT " + friendRequestColumns + " FROM friend_requests"
			var args []any
			if column != "" {
				query += " WHERE " + column + " = ? AND status = ?"
				args = append(args, in.UserID, in.Status)
			}
			var out []model.FriendRequest
			err := execute(ctx, func(q database.DBTX) error {
				rows, err := q.QueryContext(ctx, query+" ORDER BY created_at", args...)
				if err != nil {
					return err
				}
				defer rows.Close()
				for rows.Next() {
					fr, err := scanFriendRequest(rows)
					if err != nil {
						return err
					}
					out = append(out, fr)
				}
				return rows.Err()
			})
			return out, err
		}
	}

	r := &FriendRequestRepo{}
	r.Create = database.MakeQuery(ex, traced("FriendRequestRepo.Create",
		func(ctx context.Context, execute database.ExecuteFunc, in model.FriendRequest) (model.FriendRequest, error) {
			in.CreatedAt = stamp(in.CreatedAt)
			if in.Status == "" {
				in.Status = model.FriendRequestPending
			}
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"INSERT INTO friend_requests (requester, requestee, status, created_at) VALUES (?, ?, ?, ?)",
					in.Requester, in.Requestee, in.Status, in.CreatedAt)
				return err
			})
			switch {
			case database.IsKind(err, database.UniqueViolation):
				return model.FriendRequest{}, errors.Wrapf(ErrFriendRequestAlreadyExists, "from %s to %s", in.Requester, in.Requestee)
			case database.IsKind(err, database.ForeignKeyViolation):
				return model.FriendRequest{}, errors.Wrap(ErrUserNotFound, "friend request")
			case err != nil:
				return model.FriendRequest{}, err
			}
			return in, nil
		}))

	r.Find = database.MakeQuery(ex, traced("FriendRequestRepo.Find", find))

	r.UpdateStatus = database.MakeQuery(ex, traced("FriendRequestRepo.UpdateStatus",
		func(ctx context.Context, execute database.ExecuteFunc, in FriendRequestUpdate) (model.FriendRequest, error) {
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"UPDATE friend_requests SET status = ? WHERE requester = ? AND requestee = ?",
					in.Status, in.Requester, in.Requestee)
				return err
			})
			if err != nil {
				return model.FriendRequest{}, err
			}
			return find(ctx, execute, in.FriendRequestKey)
		}))

	r.FindAll = database.MakeQuery(ex, traced("FriendRequestRepo.FindAll",
		func(ctx context.Context, execute database.ExecuteFunc, _ struct{}) ([]model.FriendRequest, error) {
			return list("")(ctx, execute, UserRequests{})
		}))
	r.FindToUser = database.MakeQuery(ex, traced("FriendRequestRepo.FindToUser", list("requestee")))
	r.FindFromUser = database.MakeQuery(ex, traced("FriendRequestRepo.FindFromUser", list("requester")))

	r.Delete = database.MakeCommand(ex, tracedCmd("FriendRequestRepo.Delete",
		func(ctx context.Context, execute database.ExecuteFunc, in FriendRequestKey) error {
			var n int64
			err := execute(ctx, func(q database.DBTX) error {
				res, err := q.ExecContext(ctx,
					"DELETE FROM friend_requests WHERE requester = ? AND requestee = ?", in.Requester, in.Requestee)
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
				return errors.Wrapf(ErrFriendRequestNotFound, "from %s to %s", in.Requester, in.Requestee)
			}
			return nil
		}))
	return r
}

func scanFriendRequest(row rowScanner) (model.FriendRequest, error) {
	var fr model.FriendRequest
	if err := row.Scan(&fr.Requester, &fr.Requestee, &fr.Status, &fr.CreatedAt); err != nil {
		return model.FriendRequest{}, err
	}
	fr.CreatedAt = fr.CreatedAt.UTC()
	return fr, nil
}
