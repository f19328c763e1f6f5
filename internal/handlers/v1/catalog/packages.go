package catalog

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/shopspring/decimal"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type CreatePackageBody struct {
	Name           string `json:"name" minLength:"1"`
	DisplaySeconds int    `json:"displaySeconds" minimum:"1"`
	Price          string `json:"price" doc:"Decimal price"`
	Active         *bool  `json:"active,omitempty" doc:"Offered to customers, defaults to true"`
}

type CreatePackageInput struct {
	Body CreatePackageBody
}

type PackageOutput struct {
	Body Package
}

type ListPackagesOutput struct {
	Body struct {
		Packages []Package `json:"packages"`
	}
}

// PackagesHandler handles POST /packages and GET /public/packages.
type PackagesHandler struct {
	CatalogService catalogService
}

func NewPackagesHandler(svc catalogService) *PackagesHandler {
	return &PackagesHandler{CatalogService: svc}
}

func (h *PackagesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-package",
		Method:        http.MethodPost,
		Path:          "/packages",
		Summary:       "Create package",
		Description:   "Creates a purchasable bundle of display seconds.",
		Tags:          []string{"Catalog"},
		DefaultStatus: http.StatusCreated,
		Security:      auth.Admin,
	}, h.handleCreate)

	huma.Register(api, huma.Operation{
		OperationID: "list-packages",
		Method:      http.MethodGet,
		Path:        "/public/packages",
		Summary:     "List packages",
		Description: "Lists active packages, cheapest first.",
		Tags:        []string{"Catalog"},
	}, h.handleList)
}

func (h *PackagesHandler) handleCreate(ctx context.Context, input *CreatePackageInput) (*PackageOutput, error) {
	price, err := decimal.NewFromString(input.Body.Price)
	if err != nil {
		return nil, huma.NewError(http.StatusBadRequest, "invalid price", err)
	}
	active := true
	if input.Body.Active != nil {
		active = *input.Body.Active
	}

	pkg, err := h.CatalogService.CreatePackage(ctx, sqlconfig.PackageCreate{
		Name:           input.Body.Name,
		DisplaySeconds: input.Body.DisplaySeconds,
		Price:          price,
		Active:         active,
	})
	if err != nil {
		return nil, httperror.From(err, "failed to create package")
	}
	return &PackageOutput{Body: toPackage(pkg)}, nil
}

func (h *PackagesHandler) handleList(ctx context.Context, _ *struct{}) (*ListPackagesOutput, error) {
	packages, err := h.CatalogService.ListPackages(ctx)
	if err != nil {
		return nil, httperror.From(err, "failed to list packages")
	}
	out := &ListPackagesOutput{}
	out.Body.Packages = make([]Package, len(packages))
	for i, p := range packages {
		out.Body.Packages[i] = toPackage(p)
	}
	return out, nil
}
