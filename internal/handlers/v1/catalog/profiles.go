package catalog

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/carson-networks/warp-server/internal/handlers/v1/auth"
	"github.com/carson-networks/warp-server/internal/handlers/v1/httperror"
	"github.com/carson-networks/warp-server/internal/storage/sqlconfig"
)

type CreateProfileBody struct {
	Code        string `json:"code" doc:"2-32 letters, digits, '-' or '_'"`
	DisplayName string `json:"displayName" minLength:"1"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

type CreateProfileInput struct {
	Body CreateProfileBody
}

type GetProfileInput struct {
	Code string `path:"code"`
}

type ProfileOutput struct {
	Body Profile
}

// ProfilesHandler handles POST /profiles and GET /profiles/{code}.
type ProfilesHandler struct {
	CatalogService catalogService
}

func NewProfilesHandler(svc catalogService) *ProfilesHandler {
	return &ProfilesHandler{CatalogService: svc}
}

func (h *ProfilesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-profile",
		Method:        http.MethodPost,
		Path:          "/profiles",
		Summary:       "Create warp profile",
		Description:   "Creates a warp profile that transactions reference by code.",
		Tags:          []string{"Catalog"},
		DefaultStatus: http.StatusCreated,
		Security:      auth.Admin,
	}, h.handleCreate)

	huma.Register(api, huma.Operation{
		OperationID: "get-profile",
		Method:      http.MethodGet,
		Path:        "/profiles/{code}",
		Summary:     "Get warp profile",
		Tags:        []string{"Catalog"},
	}, h.handleGet)
}

func (h *ProfilesHandler) handleCreate(ctx context.Context, input *CreateProfileInput) (*ProfileOutput, error) {
	profile, err := h.CatalogService.CreateProfile(ctx, sqlconfig.ProfileCreate{
		Code:        input.Body.Code,
		DisplayName: input.Body.DisplayName,
		AvatarURL:   input.Body.AvatarURL,
	})
	if err != nil {
		return nil, httperror.From(err, "failed to create profile")
	}
	return &ProfileOutput{Body: toProfile(profile)}, nil
}

func (h *ProfilesHandler) handleGet(ctx context.Context, input *GetProfileInput) (*ProfileOutput, error) {
	profile, err := h.CatalogService.GetProfile(ctx, input.Code)
	if err != nil {
		return nil, httperror.From(err, "failed to get profile")
	}
	return &ProfileOutput{Body: toProfile(profile)}, nil
}
