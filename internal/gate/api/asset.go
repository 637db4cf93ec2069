package api

import (
	"github.com/Borislavv/presentation-gate/pkg/view/notfound"
	"github.com/fasthttp/router"
)

// AssetController serves the not found illustration regardless of the restriction,
// the page would render a broken image otherwise.
type AssetController struct {
	view *notfound.View
}

func NewAssetController(view *notfound.View) *AssetController {
	return &AssetController{view: view}
}

func (c *AssetController) AddRoute(r *router.Router) {
	r.GET(notfound.ImagePath, c.view.HandleImage)
	r.HEAD(notfound.ImagePath, c.view.HandleImage)
}
