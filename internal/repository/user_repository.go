package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/model"
)

const (
	userColumns     = "id, username, name, email, image, created_at"
	authUserColumns = userColumns + ", password, salt"
)

// UserRepo holds the `users` queries.  Each works standalone or inside a
// transaction opened by the caller.
type UserRepo struct {
	Create             database.Query[model.AuthUser, model.User]
	Update             database.Query[model.User, model.User]
	FindByID           database.Query[string, model.User]
	FindByUsername     database.Query[string, model.User]
	FindAuthByID       database.Query[string, model.AuthUser]
	FindAuthByUsername database.Query[string, model.AuthUser]
	FindAll            database.Query[struct{}, []model.User]
	Delete             database.Command[string]
}

func NewUserRepo(ex *database.Executor) *UserRepo {
	r := &UserRepo{}
	findBy := func(column string) queryFunc[string, model.User] {
		return func(ctx context.Context, execute database.ExecuteFunc, v string) (model.User, error) {
			var u model.User
			err := execute(ctx, func(q database.DBTX) error {
				var err error
				u, err = scanUser(q.QueryRowContext(ctx,
					"SELECT "+userColumns+" FROM users WHERE "+column+" = ? LIMIT 1", v))
				return err
			})
			if errors.Is(err, sql.ErrNoRows) {
				return model.User{}, errors.Wrapf(ErrUserNotFound, "%s %s", column, v)
			}
			return u, err
		}
	}
	findAuthBy := func(column string) queryFunc[string, model.AuthUser] {
		return func(ctx context.Context, execute database.ExecuteFunc, v string) (model.AuthUser, error) {
			var u model.AuthUser
			err := execute(ctx, func(q database.DBTX) error {
				var err error
				u, err = scanAuthUser(q.QueryRowContext(ctx,
					"SELECT "+authUserColumns+" FROM users WHERE "+column+" = ? LIMIT 1", v))
				return err
			})
			if errors.Is(err, sql.ErrNoRows) {
				return model.AuthUser{}, errors.Wrapf(ErrUserNotFound, "%s %s", column, v)
			}
			return u, err
		}
	}

	r.FindByID = database.MakeQuery(ex, traced("UserRepo.FindByID", findBy("id")))
	r.FindByUsername = database.MakeQuery(ex, traced("UserRepo.FindByUsername", findBy("username")))
	r.FindAuthByID = database.MakeQuery(ex, traced("UserRepo.FindAuthByID", findAuthBy("id")))
	r.FindAuthByUsername = database.MakeQuery(ex, traced("UserRepo.FindAuthByUsername", findAuthBy("username")))

	r.Create = database.MakeQuery(ex, traced("UserRepo.Create",
		func(ctx context.Context, execute database.ExecuteFunc, in model.AuthUser) (model.User, error) {
			in.CreatedAt = stamp(in.CreatedAt)
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"INSERT INTO users (id, username, name, email, password, salt, image, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
					in.ID, in.Username, in.Name, in.Email, in.Password, in.Salt, in.Image, in.CreatedAt)
				return err
			})
			if database.IsKind(err, database.UniqueViolation) {
				return model.User{}, errors.Wrapf(ErrUsernameTaken, "username %s", in.Username)
			}
			if err != nil {
				return model.User{}, err
			}
			return in.User, nil
		}))

	r.Update = database.MakeQuery(ex, traced("UserRepo.Update",
		func(ctx context.Context, execute database.ExecuteFunc, in model.User) (model.User, error) {
			var u model.User
			err := execute(ctx, func(q database.DBTX) error {
				if _, err := q.ExecContext(ctx,
					"UPDATE users SET username = ?, name = ?, email = ?, image = ? WHERE id = ?",
					in.Username, in.Name, in.Email, in.Image, in.ID); err != nil {
					return err
				}
				var err error
				u, err = scanUser(q.QueryRowContext(ctx,
					"SELECT "+userColumns+" FROM users WHERE id = ? LIMIT 1", in.ID))
				return err
			})
			switch {
			case database.IsKind(err, database.UniqueViolation):
				return model.User{}, errors.Wrapf(ErrUsernameTaken, "username %s", in.Username)
			case errors.Is(err, sql.ErrNoRows):
				return model.User{}, errors.Wrapf(ErrUserNotFound, "id %s", in.ID)
			}
			return u, err
		}))

	r.FindAll = database.MakeQuery(ex, traced("UserRepo.FindAll",
		func(ctx context.Context, execute database.ExecuteFunc, _ struct{}) ([]model.User, error) {
			var out []model.User
			err := execute(ctx, func(q database.DBTX) error {
				rows, err := q.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at")
				if err != nil {
					return err
				}
				defer rows.Close()
				for rows.Next() {
					u, err := scanUser(rows)
					if err != nil {
						return err
					}
					out = append(out, u)
				}
				return rows.Err()
			})
			return out, err
		}))

	r.Delete = database.MakeCommand(ex, tracedCmd("UserRepo.Delete",
		func(ctx context.Context, execute database.ExecuteFunc, id string) error {
			var n int64
			err := execute(ctx, func(q database.DBTX) error {
				res, err := q.ExecContext(ctx, "DELETE FROM users WHERE id = ?", id)
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
				return errors.Wrapf(ErrUserNotFound, "id %s", id)
			}
			return nil
		}))
	return r
}

func scanUser(row rowScanner) (model.User, error) {
	var (
		u     model.User
		email sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &email, &u.Image, &u.CreatedAt); err != nil {
		return model.User{}, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}

func scanAuthUser(row rowScanner) (model.AuthUser, error) {
	var (
		u     model.AuthUser
		email sql.NullString
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Name, &email, &u.Image, &u.CreatedAt, &u.Password, &u.Salt); err != nil {
		return model.AuthUser{}, err
	}
	if email.Valid {
		u.Email = &email.String
	}
	u.CreatedAt = u.CreatedAt.UTC()
	return u, nil
}
