package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/anythought/internal/service"
)

type AssetHandler struct {
	assets *service.AssetService
}

func NewAssetHandler(assets *service.AssetService) *AssetHandler {
	return &AssetHandler{assets: assets}
}

// Create registers an upload.  The client PUTs the bytes to the returned
// URL and then calls Complete.
func (h *AssetHandler) Create(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.assets.NewAsset(ctx, caller(c).ID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *AssetHandler) Complete(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	a, err := h.assets.CompleteUpload(ctx, caller(c).ID, c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}
