package customers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"mime/multipart"
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

type testPrincipal struct {
	role   string
	groups []string
}

func (p testPrincipal) GetID() int64        { return 7 }
func (p testPrincipal) GetUsername() string { return "alice" }
func (p testPrincipal) GetRole() string     { return p.role }

type principalGroups struct{}

func (principalGroups) GroupNames(_ context.Context, p shared.Principal) ([]string, error) {
	return p.(testPrincipal).groups, nil
}

type staticRules map[string][]string

func (s staticRules) RuleFor(_ context.Context, endpoint string) (rbac.Rule, bool, error) {
	groups, ok := s[endpoint]
	if !ok {
		return rbac.Rule{}, false, nil
	}
	return rbac.Rule{EndpointName: endpoint, AllowedGroups: groups}, true, nil
}

func newCustomerServer(t *testing.T, who testPrincipal, rules staticRules) (*httptest.Server, *storage.Memory) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	objects := storage.NewMemory()
	svc := NewService(newMockRepository(), objects, logger)
	mw := rbac.Middleware{Resolver: rbac.NewResolver(principalGroups{}, rules), Logger: logger}
	handler := NewHandler(logger, svc, mw, 1<<20)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(shared.ContextWithPrincipal(req.Context(), who)))
		})
	})
	r.Route("/customers", handler.MountRoutes)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, objects
}

func postJSON(t *testing.T, srv *httptest.Server, path, body string) (*http.Response, []byte) {
	t.Helper()
	res, err := srv.Client().Post(srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	return res, data
}

func TestCreateCustomerAuthorization(t *testing.T) {
	rules := staticRules{shared.EndpointCreateCustomer: {"staff"}}

	srv, _ := newCustomerServer(t, testPrincipal{role: shared.RoleUser, groups: []string{"staff"}}, rules)
	res, body := postJSON(t, srv, "/customers/", `{"name":"Acme","email":"ops@acme.test"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	var created Customer
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, "Acme", created.Name)

	res, _ = postJSON(t, srv, "/customers/", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)

	srv, _ = newCustomerServer(t, testPrincipal{role: shared.RoleUser, groups: []string{"officer"}}, rules)
	res, _ = postJSON(t, srv, "/customers/", `{"name":"Acme"}`)
	assert.Equal(t, http.StatusForbidden, res.StatusCode)

	srv, _ = newCustomerServer(t, testPrincipal{role: shared.RoleUser, groups: []string{"staff"}}, staticRules{})
	res, _ = postJSON(t, srv, "/customers/", `{"name":"Acme"}`)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)

	srv, _ = newCustomerServer(t, testPrincipal{role: shared.RoleSuperadmin}, staticRules{})
	res, _ = postJSON(t, srv, "/customers/", `{"name":"Acme"}`)
	assert.Equal(t, http.StatusCreated, res.StatusCode)
}

func TestUploadCustomerImages(t *testing.T) {
	rules := staticRules{
		shared.EndpointCreateCustomer:       {"staff"},
		shared.EndpointCustomerUploadImages: {"staff"},
	}
	srv, objects := newCustomerServer(t, testPrincipal{role: shared.RoleUser, groups: []string{"staff"}}, rules)
	res, body := postJSON(t, srv, "/customers/", `{"name":"Acme"}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("files", "logo.PNG")
	require.NoError(t, err)
	_, err = part.Write([]byte("png-bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	res, err = srv.Client().Post(srv.URL+"/customers/1/images/upload", mw.FormDataContentType(), &buf)
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusCreated, res.StatusCode)
	var uploaded Customer
	require.NoError(t, json.NewDecoder(res.Body).Decode(&uploaded))
	assert.Equal(t, "Acme", uploaded.Name)
	require.Len(t, uploaded.Images, 1)
	assert.True(t, strings.HasSuffix(uploaded.Images[0], ".png"))

	keys := objects.Keys()
	require.Len(t, keys, 1)
	obj, ok := objects.Get(keys[0])
	require.True(t, ok)
	assert.Equal(t, "png-bytes", string(obj.Data))

	res, err = srv.Client().Get(srv.URL + "/customers/1")
	require.NoError(t, err)
	defer res.Body.Close()
	var shown Customer
	require.NoError(t, json.NewDecoder(res.Body).Decode(&shown))
	assert.Equal(t, uploaded.Images, shown.Images)
}

func TestCreateCustomerWithImageURLs(t *testing.T) {
	rules := staticRules{shared.EndpointCreateCustomer: {"staff"}}
	srv, _ := newCustomerServer(t, testPrincipal{role: shared.RoleUser, groups: []string{"staff"}}, rules)

	res, body := postJSON(t, srv, "/customers/", `{"name":"Acme","images":[{"image_url":"https://cdn.acme.test/logo.png"}]}`)
	require.Equal(t, http.StatusCreated, res.StatusCode, string(body))
	var created Customer
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, []string{"https://cdn.acme.test/logo.png"}, created.Images)

	res, _ = postJSON(t, srv, "/customers/", `{"name":"Acme","images":[{"image_url":"not a url"}]}`)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
}

func TestShowCustomerBadID(t *testing.T) {
	srv, _ := newCustomerServer(t, testPrincipal{role: shared.RoleUser}, staticRules{})
	res, err := srv.Client().Get(srv.URL + "/customers/abc")
	require.NoError(t, err)
	defer res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}
