package items

import (
	"context"
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

	"github.com/bizgate/bizgate/internal/platform/storage"
	"github.com/bizgate/bizgate/internal/rbac"
	"github.com/bizgate/bizgate/internal/shared"
)

type member struct{ groups []string }

func (member) GetID() int64        { return 1 }
func (member) GetUsername() string { return "bob" }
func (member) GetRole() string     { return shared.RoleUser }

type memberGroups struct{}

func (memberGroups) GroupNames(_ context.Context, p shared.Principal) ([]string, error) {
	return p.(member).groups, nil
}

type oneRule struct{ rbac.Rule }

func (o oneRule) RuleFor(_ context.Context, endpoint string) (rbac.Rule, bool, error) {
	if endpoint != o.EndpointName {
		return rbac.Rule{}, false, nil
	}
	return o.Rule, true, nil
}

func newItemServer(t *testing.T, groups ...string) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(newMockRepository(), storage.NewMemory(), logger)
	rules := oneRule{rbac.Rule{EndpointName: shared.EndpointCreateItem, AllowedGroups: []string{"officer"}}}
	handler := NewHandler(logger, svc, rbac.Middleware{Resolver: rbac.NewResolver(memberGroups{}, rules), Logger: logger}, 1<<20)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), member{groups: groups})))
		})
	})
	r.Route("/items", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestItemsAPI(t *testing.T) {
	srv := newItemServer(t, "officer")

	res, err := srv.Client().Post(srv.URL+"/items/", "application/json", strings.NewReader(`{"name":"Widget","sku":"W-1","price":"19.90"}`))
	require.NoError(t, err)
	body, _ := io.ReadAll(res.Body)
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	assert.Contains(t, string(body), `"price":19.90`)

	res, err = srv.Client().Post(srv.URL+"/items/", "application/json", strings.NewReader(`{"name":"Again","sku":"W-1","price":1}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusConflict, res.StatusCode)

	res, err = srv.Client().Post(srv.URL+"/items/", "application/json", strings.NewReader(`{"name":"Bad","price":1.999}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = srv.Client().Post(srv.URL+"/items/", "application/json", strings.NewReader(`{"name":"Huge","price":184467440737095517}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	res, err = srv.Client().Get(srv.URL + "/items/")
	require.NoError(t, err)
	var list []Item
	require.NoError(t, json.NewDecoder(res.Body).Decode(&list))
	res.Body.Close()
	require.Len(t, list, 1)
	assert.Equal(t, shared.Cents(1990), list[0].Price)

	res, err = srv.Client().Post(srv.URL+"/items/1/images/upload", "multipart/form-data; boundary=x", strings.NewReader(""))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "no rule for item-upload-images")
}

func TestCreateItemWithImageURLs(t *testing.T) {
	srv := newItemServer(t, "officer")

	res, err := srv.Client().Post(srv.URL+"/items/", "application/json",
		strings.NewReader(`{"name":"Widget","price":"2.50","images":[{"image_url":"https://cdn.acme.test/w.jpg"},{"image_url":"https://cdn.acme.test/w2.jpg"}]}`))
	require.NoError(t, err)
	var created Item
	require.NoError(t, json.NewDecoder(res.Body).Decode(&created))
	res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)
	assert.Equal(t, []string{"https://cdn.acme.test/w.jpg", "https://cdn.acme.test/w2.jpg"}, created.Images)

	res, err = srv.Client().Post(srv.URL+"/items/", "application/json", strings.NewReader(`{"name":"Widget","images":[{}]}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestCreateItemForbiddenOutsideGroup(t *testing.T) {
	srv := newItemServer(t, "staff")
	res, err := srv.Client().Post(srv.URL+"/items/", "application/json", strings.NewReader(`{"name":"Widget"}`))
	require.NoError(t, err)
	res.Body.Close()
	assert.Equal(t, http.StatusForbidden, res.StatusCode)
}
