package repository

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/database"
	"github.com/iliyamo/anythought/internal/model"
)

const assetColumns = "id, user_id, post_id, url, status, created_at"

// AssetAttachment links an unattached asset owned by UserID to PostID.
type AssetAttachment struct {
	AssetID string
	PostID  string
	UserID  string
}

type AssetRepo struct {
	Insert       database.Query[model.Asset, model.Asset]
	Update       database.Query[model.AssetUpdate, model.Asset]
	AttachToPost database.Command[AssetAttachment]
	FindByID     database.Query[string, model.Asset]
	Delete       database.Command[string]
}

func NewAssetRepo(ex *database.Executor) *AssetRepo {
	findByID := func(ctx context.Context, execute database.ExecuteFunc, id string) (model.Asset, error) {
		var a model.Asset
		err := execute(ctx, func(q database.DBTX) error {
			var err error
			a, err = scanAsset(q.QueryRowContext(ctx, "SELECT "+assetColumns+" FROM assets WHERE id = ?", id))
			return err
		})
		if errors.Is(err, sql.ErrNoRows) {
			return model.Asset{}, errors.Wrapf(ErrAssetNotFound, "id %s", id)
		}
		return a, err
	}

	r := &AssetRepo{}
	r.Insert = database.MakeQuery(ex, traced("AssetRepo.Insert",
		func(ctx context.Context, execute database.ExecuteFunc, in model.Asset) (model.Asset, error) {
			in.CreatedAt = stamp(in.CreatedAt)
			if in.Status == "" {
				in.Status = model.AssetProcessing
			}
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"INSERT INTO assets (id, user_id, post_id, url, status, created_at) VALUES (?, ?, ?, ?, ?, ?)",
					in.ID, in.UserID, in.PostID, in.URL, in.Status, in.CreatedAt)
				return err
			})
			if database.IsKind(err, database.ForeignKeyViolation) {
				return model.Asset{}, errors.Wrapf(ErrUserNotFound, "asset owner %s", in.UserID)
			}
			if err != nil {
				return model.Asset{}, err
			}
			return in, nil
		}))

	r.Update = database.MakeQuery(ex, traced("AssetRepo.Update",
		func(ctx context.Context, execute database.ExecuteFunc, in model.AssetUpdate) (model.Asset, error) {
			err := execute(ctx, func(q database.DBTX) error {
				_, err := q.ExecContext(ctx,
					"UPDATE assets SET post_id = COALESCE(?, post_id), url = COALESCE(?, url), status = COALESCE(?, status) WHERE id = ?",
					in.PostID, in.URL, in.Status, in.ID)
				return err
			})
			if database.IsKind(err, database.ForeignKeyViolation) {
				return model.Asset{}, errors.Wrap(ErrPostNotFound, "asset update")
			}
			if err != nil {
				return model.Asset{}, err
			}
			return findByID(ctx, execute, in.ID)
		}))

	r.AttachToPost = database.MakeCommand(ex, tracedCmd("AssetRepo.AttachToPost",
		func(ctx context.Context, execute database.ExecuteFunc, in AssetAttachment) error {
			var (
				owner  string
				postID sql.NullString
			)
			err := execute(ctx, func(q database.DBTX) error {
				if err := q.QueryRowContext(ctx,
					"SELECT user_id, post_id FROM assets WHERE id = ? FOR UPDATE", in.AssetID).Scan(&owner, &postID); err != nil {
					return err
				}
				if owner != in.UserID || postID.Valid {
					return nil
				}
				_, err := q.ExecContext(ctx, "UPDATE assets SET post_id = ? WHERE id = ?", in.PostID, in.AssetID)
				return err
			})
			switch {
			case errors.Is(err, sql.ErrNoRows):
				return errors.Wrapf(ErrAssetNotFound, "id %s", in.AssetID)
			case database.IsKind(err, database.ForeignKeyViolation):
				return errors.Wrapf(ErrPostNotFound, "id %s", in.PostID)
			case err != nil:
				return err
			case owner != in.UserID:
				return errors.Wrapf(ErrForbidden, "asset %s", in.AssetID)
			case postID.Valid:
				return errors.Wrapf(ErrConflict, "asset %s already attached", in.AssetID)
			}
			return nil
		}))

	r.FindByID = database.MakeQuery(ex, traced("AssetRepo.FindByID", findByID))

	r.Delete = database.MakeCommand(ex, tracedCmd("AssetRepo.Delete",
		func(ctx context.Context, execute database.ExecuteFunc, id string) error {
			var n int64
			err := execute(ctx, func(q database.DBTX) error {
				res, err := q.ExecContext(ctx, "DELETE FROM assets WHERE id = ?", id)
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
				return errors.Wrapf(ErrAssetNotFound, "id %s", id)
			}
			return nil
		}))
	return r
}

func scanAsset(row rowScanner) (model.Asset, error) {
	var (
		a      model.Asset
		postID sql.NullString
	)
	if err := row.Scan(&a.ID, &a.UserID, &postID, &a.URL, &a.Status, &a.CreatedAt); err != nil {
		return model.Asset{}, err
	}
	if postID.Valid {
		a.PostID = &postID.String
	}
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}
