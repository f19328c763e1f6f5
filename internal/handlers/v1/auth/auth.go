// Package auth guards admin operations with a static bearer token.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
)

// SchemeName is the OpenAPI security scheme admin operations reference.
const SchemeName = "bearer"

// Admin is the Security requirement for admin operations.
var Admin = []map[string][]string{{SchemeName: {}}}

// Scheme describes the bearer token in the OpenAPI document.
func Scheme() *huma.SecurityScheme {
	return &huma.SecurityScheme{
		Type:        "http",
		Scheme:      "bearer",
		Description: "ADMIN_API_TOKEN",
	}
}

// Middleware rejects admin operations whose Authorization header does not
// carry token. An empty token leaves every operation open.
func Middleware(api huma.API, token string) func(ctx huma.Context, next func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		if token == "" || !requiresAdmin(ctx.Operation()) {
			next(ctx)
			return
		}

		presented, ok := strings.CutPrefix(ctx.Header("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			_ = huma.WriteErr(api, ctx, http.StatusUnauthorized, "missing or invalid admin token")
			return
		}
		next(ctx)
	}
}

func requiresAdmin(op *huma.Operation) bool {
	if op == nil {
		return false
	}
	for _, requirement := range op.Security {
		if _, ok := requirement[SchemeName]; ok {
			return true
		}
	}
	return false
}
