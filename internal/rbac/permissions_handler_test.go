package rbac_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bizgate/bizgate/internal/auth"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/shared"
	"github.com/bizgate/bizgate/internal/testing/memstore"
)

type ruleBody struct {
	ID            int64  `json:"id"`
	Module        string `json:"module"`
	EndpointName  string `json:"endpoint_name"`
	AllowedGroups string `json:"allowed_groups"`
}

func newPermissionsServer(t *testing.T, who *auth.Identity) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := memstore.New()
	svc := rbac.NewService(store.Rules(), nil, logger)
	handler := rbac.NewPermissionsHandler(logger, svc, rbac.Middleware{Logger: logger})

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), who)))
		})
	})
	r.Route("/permissions", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method, path, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, srv.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	res, err := srv.Client().Do(req)
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func TestPermissionsAPILifecycle(t *testing.T) {
	srv := newPermissionsServer(t, identity(shared.RoleAdmin))

	res, body := call(t, srv, http.MethodPost, "/permissions/", `{"module":"customer","endpoint_name":"create-customer","allowed_groups":"staff, admin,staff"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	var created ruleBody
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "staff,admin", created.AllowedGroups)

	res, body = call(t, srv, http.MethodPost, "/permissions/", `{"module":"customer","endpoint_name":"create-customer","allowed_groups":"staff"}`)
	require.Equal(t, http.StatusConflict, res.StatusCode)
	assert.Contains(t, string(body), "duplicate_endpoint")

	res, body = call(t, srv, http.MethodPut, "/permissions/create-customer", `{"allowed_groups":"admin"}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var updated ruleBody
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.Equal(t, "customer", updated.Module)
	assert.Equal(t, "admin", updated.AllowedGroups)

	res, body = call(t, srv, http.MethodGet, "/permissions/create-customer", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, string(body), `"allowed_groups":"admin"`)

	res, _ = call(t, srv, http.MethodDelete, "/permissions/create-customer", "")
	require.Equal(t, http.StatusNoContent, res.StatusCode)

	res, body = call(t, srv, http.MethodGet, "/permissions/create-customer", "")
	require.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Contains(t, string(body), "not_found")
}

func TestPermissionsAPIBulkAndList(t *testing.T) {
	srv := newPermissionsServer(t, identity(shared.RoleSuperadmin))

	res, body := call(t, srv, http.MethodPost, "/permissions/bulk", `{"permissions":[
		{"module":"item","endpoint_name":"create-item","allowed_groups":"admin,officer"},
		{"module":"customer","endpoint_name":"create-customer","allowed_groups":"staff,admin,officer"},
		{"module":"item","endpoint_name":"item-upload-images","allowed_groups":"admin,officer"}
	]}`)
	require.Equal(t, http.StatusOK, res.StatusCode, string(body))
	var upserted []ruleBody
	require.NoError(t, json.Unmarshal(body, &upserted))
	require.Len(t, upserted, 3)
	assert.Equal(t, "create-item", upserted[0].EndpointName)

	res, body = call(t, srv, http.MethodGet, "/permissions/?module=item&q=IMAGES", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	var listed []ruleBody
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, "item-upload-images", listed[0].EndpointName)

	res, body = call(t, srv, http.MethodGet, "/permissions/", "")
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.NoError(t, json.Unmarshal(body, &listed))
	require.Len(t, listed, 3)
	assert.Equal(t, "create-customer", listed[0].EndpointName)

	res, _ = call(t, srv, http.MethodPost, "/permissions/bulk", `{"permissions":[]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPermissionsAPIValidation(t *testing.T) {
	srv := newPermissionsServer(t, identity(shared.RoleAdmin))

	res, body := call(t, srv, http.MethodPost, "/permissions/", `{"module":"customer"}`)
	require.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Contains(t, string(body), "EndpointName")

	res, _ = call(t, srv, http.MethodPost, "/permissions/", `{"module":"customer","endpoint_name":"x","extra":1}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestPermissionsAPIRequiresAdminRole(t *testing.T) {
	srv := newPermissionsServer(t, identity(shared.RoleUser, "admin"))
	res, body := call(t, srv, http.MethodGet, "/permissions/", "")
	require.Equal(t, http.StatusForbidden, res.StatusCode)
	assert.Contains(t, string(body), "forbidden")
}
