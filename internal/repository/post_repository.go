package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/model"
)

const postColumns = "id, author, caption, likes, created_at"

type PostRepo struct {
	Insert         database.Query[model.Post, model.Post]
	Update         database.Query[model.PostUpdate, model.Post]
	FindByID       database.Query[string, model.Post]
	FindByAuthor   database.Query[string, []model.Post]
	FindForAuthors database.Query[[]string, []model.Post]
	Delete         database.Command[string]
}

func NewPostRepo(ex *database.Executor) *PostRepo {
	findByID := func(ctx context.Context, execute database.ExecuteFunc, id string) (model.Post, error) {
		var p model.Post
		err := execute(ctx, func(q database.DBTX) error {
			var err error
			p, err = scanPost(q.QueryRowContext(ctx, "SELECT "+postColumns+" FROM posts WHERE id = ?", id))
			return err
		})
		if errors.Is(err, sql.ErrNoRows) {
			return model.Post{}, errors.Wrapf(ErrPostNotFound, "id %s", id)
		}
		return p, err
	}
	list := func(ctx context.Context, execute database.ExecuteFunc, where string, args ...any) ([]model.Post, error) {
		var out []model.Post
		err := execute(ctx, func(q database.DBTX) error {
			rows, err := q.QueryContext(ctx,
				"SELECT "+postColumns+" FROM posts WHERE "+where+" ORDER BY created_at DESC", args...)
			if err != nil {
				return err
			}
			defer rows.Close()
			for rows.Next() {
				p, err := scanPost(rows)
				if err != nil {
					return err
				}
				out = append(out, p)
			}
			return rows.Err()
		})
		return out, err
	}

	r := &PostRepo{}
	r.Insert = database.MakeQuery(ex, traced("PostRepo.Insert",
		func(ctx context.Context, execute database.ExecuteFunc, in model.Post) (model.Post, error) {
			in.CreatedAt = stamp(in.CreatedAt)
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"INSERT INTO posts (id, author, caption, likes, created_at) VALUES (?, ?, ?, ?, ?)",
					in.ID, in.Author, in.Caption, in.Likes, in.CreatedAt)
				return err
			})
			if database.IsKind(err, database.ForeignKeyViolation) {
				return model.Post{}, errors.Wrapf(ErrUserNotFound, "author %s", in.Author)
			}
			if err != nil {
				return model.Post{}, err
			}
			return in, nil
		}))

	r.Update = database.MakeQuery(ex, traced("PostRepo.Update",
		func(ctx context.Context, execute database.ExecuteFunc, in model.PostUpdate) (model.Post, error) {
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"UPDATE posts SET caption = ?, likes = COALESCE(?, likes) WHERE id = ?",
					in.Caption, in.Likes, in.ID)
				return err
			})
			if err != nil {
				return model.Post{}, err
			}
			return findByID(ctx, execute, in.ID)
		}))

	r.FindByID = database.MakeQuery(ex, traced("PostRepo.FindByID", findByID))

	r.FindByAuthor = database.MakeQuery(ex, traced("PostRepo.FindByAuthor",
		func(ctx context.Context, execute database.ExecuteFunc, author string) ([]model.Post, error) {
			return list(ctx, execute, "author = ?", author)
		}))

	r.FindForAuthors = database.MakeQuery(ex, traced("PostRepo.FindForAuthors",
		func(ctx context.Context, execute database.ExecuteFunc, authors []string) ([]model.Post, error) {
			if len(authors) == 0 {
				return nil, nil
			}
			args := make([]any, len(authors))
			for i, a := range authors {
				args[i] = a
			}
			return list(ctx, execute, "author IN ("+database.Placeholders(len(authors))+")", args...)
		}))

	r.Delete = database.MakeCommand(ex, tracedCmd("PostRepo.Delete",
		func(ctx context.Context, execute database.ExecuteFunc, id string) error {
			var n int64
			err := execute(ctx, func(q database.DBTX) error {
				res, err := q.ExecContext(ctx, "DELETE FROM posts WHERE id = ?", id)
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
				return errors.Wrapf(ErrPostNotFound, "id %s", id)
			}
			return nil
		}))
	return r
}

func scanPost(row rowScanner) (model.Post, error) {
	var (
		p       model.Post
		caption sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Author, &caption, &p.Likes, &p.CreatedAt); err != nil {
		return model.Post{}, err
	}
	if caption.Valid {
		p.Caption = &caption.String
	}
	p.CreatedAt = p.CreatedAt.UTC()
	return p, nil
}
