package service

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/iliyamo/anythought/internal/model"
	"github.com/iliyamo/anythought/internal/repository"
	"github.com/iliyamo/anythought/internal/utils"
)

// AssetService tracks uploads.  The bytes go straight to object storage;
// only the record lives here.
type AssetService struct {
	tx      Transactor
	assets  *repository.AssetRepo
	cdnBase string
	now     func() time.Time
}

func NewAssetService(tx Transactor, assets *repository.AssetRepo, cdnBase string) *AssetService {
	return &AssetService{tx: tx, assets: assets, cdnBase: cdnBase, now: time.Now}
}

// NewAsset registers an upload in the processing state.
func (s *AssetService) NewAsset(ctx context.Context, userID string) (model.Asset, error) {
	id := utils.NewEntityID()
	return s.assets.Insert(ctx, model.Asset{
		ID:        id,
		UserID:    userID,
		URL:       s.cdnBase + "/" + userID + "/" + id,
		Status:    model.AssetProcessing,
		CreatedAt: s.now(),
	})
}

// CompleteUpload marks an asset owned by caller as active.
func (s *AssetService) CompleteUpload(ctx context.Context, caller, assetID string) (a model.Asset, err error) {
	err = s.tx.Transaction(ctx, func(ctx context.Context) error {
		cur, err := s.assets.FindByID(ctx, assetID)
		if err != nil {
			return err
		}
		if cur.UserID != caller {
			return errors.Wrapf(repository.ErrForbidden, "asset %s", assetID)
		}
		active := model.AssetActive
		a, err = s.assets.Update(ctx, model.AssetUpdate{ID: assetID, Status: &active})
		return err
	})
	if err != nil {
		return model.Asset{}, err
	}
	return a, nil
}

func (s *AssetService) Get(ctx context.Context, id string) (model.Asset, error) {
	return s.assets.FindByID(ctx, id)
}
