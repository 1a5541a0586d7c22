package keycloak

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
)

const testRealm = "datamed"

// fakeKeycloak serves the realm metadata, OIDC discovery for the master realm,
// the password grant and a small in-memory users API.
type fakeKeycloak struct {
	t      *testing.T
	srv    *httptest.Server
	key    *rsa.PrivateKey
	pubB64 string

	realmHits atomic.Int32
	tokenHits atomic.Int32
	realmCode atomic.Int32

	mu          sync.Mutex
	users       map[string]userRepresentation
	nextID      int
	createCode  int
	rejectToken string
	lastCreate  userRepresentation
}

func newFakeKeycloak(t *testing.T) *fakeKeycloak {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	f := &fakeKeycloak{
		t:      t,
		key:    key,
		pubB64: base64.StdEncoding.EncodeToString(der),
		users:  map[string]userRepresentation{},
	}
	f.realmCode.Store(http.StatusOK)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /auth/realms/"+testRealm, f.handleRealm)
	mux.HandleFunc("GET /auth/realms/master/.well-known/openid-configuration", f.handleDiscovery)
	mux.HandleFunc("POST /auth/realms/master/protocol/openid-connect/token", f.handleToken)
	mux.HandleFunc("POST /auth/admin/realms/"+testRealm+"/users", f.handleCreate)
	mux.HandleFunc("GET /auth/admin/realms/"+testRealm+"/users", f.handleSearch)
	mux.HandleFunc("DELETE /auth/admin/realms/"+testRealm+"/users/{id}", f.handleDelete)

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeKeycloak) baseURL() string { return f.srv.URL + "/auth" }

func (f *fakeKeycloak) handleRealm(w http.ResponseWriter, _ *http.Request) {
	f.realmHits.Add(1)
	code := int(f.realmCode.Load())
	if code != http.StatusOK {
		w.WriteHeader(code)
		return
	}
	writeTestJSON(w, http.StatusOK, map[string]any{"realm": testRealm, "public_key": f.pubB64})
}

func (f *fakeKeycloak) handleDiscovery(w http.ResponseWriter, _ *http.Request) {
	issuer := f.baseURL() + "/realms/master"
	writeTestJSON(w, http.StatusOK, map[string]any{
		"issuer":                 issuer,
		"authorization_endpoint": issuer + "/protocol/openid-connect/auth",
		"token_endpoint":         issuer + "/protocol/openid-connect/token",
		"jwks_uri":               issuer + "/protocol/openid-connect/certs",
	})
}

func (f *fakeKeycloak) handleToken(w http.ResponseWriter, r *http.Request) {
	f.tokenHits.Add(1)
	if err := r.ParseForm(); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "password" ||
		r.PostForm.Get("username") != "admin" || r.PostForm.Get("password") != "secret" {
		writeTestJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid_grant"})
		return
	}
	writeTestJSON(w, http.StatusOK, map[string]any{
		"access_token": "admin-token-" + string(rune('0'+f.tokenHits.Load())),
		"token_type":   "Bearer",
		"expires_in":   300,
	})
}

func (f *fakeKeycloak) authorized(w http.ResponseWriter, r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	f.mu.Lock()
	reject := f.rejectToken
	f.mu.Unlock()
	if !strings.HasPrefix(auth, "Bearer admin-token-") || (reject != "" && auth == "Bearer "+reject) {
		w.WriteHeader(http.StatusUnauthorized)
		return false
	}
	return true
}

func (f *fakeKeycloak) handleCreate(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	var u userRepresentation
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastCreate = u
	if f.createCode != 0 {
		w.WriteHeader(f.createCode)
		return
	}
	for _, existing := range f.users {
		if existing.Email == u.Email {
			writeTestJSON(w, http.StatusConflict, map[string]any{"errorMessage": "User exists with same email"})
			return
		}
	}
	f.nextID++
	u.ID = "kc-" + string(rune('0'+f.nextID))
	f.users[u.ID] = u
	w.Header().Set("Location", f.baseURL()+"/admin/realms/"+testRealm+"/users/"+u.ID)
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeKeycloak) handleSearch(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	email := r.URL.Query().Get("email")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []userRepresentation{}
	for _, u := range f.users {
		if u.Email == email {
			out = append(out, userRepresentation{ID: u.ID, Email: u.Email})
		}
	}
	writeTestJSON(w, http.StatusOK, out)
}

func (f *fakeKeycloak) handleDelete(w http.ResponseWriter, r *http.Request) {
	if !f.authorized(w, r) {
		return
	}
	id := r.PathValue("id")
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.users[id]; !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	delete(f.users, id)
	w.WriteHeader(http.StatusNoContent)
}

func writeTestJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
