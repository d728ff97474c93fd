package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/models"
)

type MockOrganisationRepository struct {
	mock.Mock
}

func (m *MockOrganisationRepository) Create(ctx context.Context, org *models.Organisation) error {
	return m.Called(ctx, org).Error(0)
}

func (m *MockOrganisationRepository) GetByID(ctx context.Context, id string) (*models.Organisation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Organisation), args.Error(1)
}

func (m *MockOrganisationRepository) GetAll(ctx context.Context) ([]*models.Organisation, error) {
	args := m.Called(ctx)
	return args.Get(0).([]*models.Organisation), args.Error(1)
}

func (m *MockOrganisationRepository) Update(ctx context.Context, org *models.Organisation) error {
	return m.Called(ctx, org).Error(0)
}

func (m *MockOrganisationRepository) Delete(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

const accountPrefix = "/records/Account/"

// fakeInstance is an in-memory organisation instance serving the records API
type fakeInstance struct {
	mu        sync.Mutex
	apiKey    string
	pages     map[string]recordPage
	stored    map[string]recordEnvelope
	writes    map[string]map[string]interface{}
	writeCode int

	allowAnonymous bool
	sessions       []string
}

func newFakeInstance() *fakeInstance {
	return &fakeInstance{
		apiKey: "secret-key",
		pages: map[string]recordPage{
			"":   {Records: []SourceRecord{{"Id": "001", "Name": "Acme"}}, Next: "c2"},
			"c2": {Records: []SourceRecord{{"Id": "002", "Name": "Globex"}}},
		},
		stored: map[string]recordEnvelope{
			"001": {Key: "001", Fields: map[string]interface{}{"Name": "ACME Corp"}},
		},
		writes: make(map[string]map[string]interface{}),
	}
}

func (f *fakeInstance) authorised(r *http.Request) bool {
	if f.allowAnonymous {
		return true
	}
	return r.Header.Get("X-API-Key") == f.apiKey && r.Header.Get(sessionTokenHeader) != ""
}

func (f *fakeInstance) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.sessions = append(f.sessions, r.Header.Get(sessionTokenHeader))
	if !f.authorised(r) {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	switch {
	case r.Method == http.MethodGet && r.URL.Path == "/records":
		w.Write([]byte(`{}`))

	case r.Method == http.MethodGet && r.URL.Path == "/records/Account":
		json.NewEncoder(w).Encode(f.pages[r.URL.Query().Get("cursor")])

	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, accountPrefix):
		key := strings.TrimPrefix(r.URL.Path, accountPrefix)
		envelope, ok := f.stored[key]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(envelope)

	case r.Method == http.MethodPut || r.Method == http.MethodPost:
		if f.writeCode >= 300 {
			w.WriteHeader(f.writeCode)
			w.Write([]byte(`{"error":"rejected"}`))
			return
		}
		var fields map[string]interface{}
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &fields)
		key := "new-1"
		status := http.StatusCreated
		if r.Method == http.MethodPut {
			key = strings.TrimPrefix(r.URL.Path, accountPrefix)
			status = http.StatusOK
		}
		f.writes[key] = fields
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(recordEnvelope{Key: key})

	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestConnector(t *testing.T, instance *fakeInstance) (*RESTConnector, *MockOrganisationRepository, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(instance)
	t.Cleanup(server.Close)

	orgs := &MockOrganisationRepository{}
	orgs.On("GetByID", mock.Anything, "org-b").Return(&models.Organisation{
		ID:          "org-b",
		Name:        "Org B",
		InstanceURL: server.URL + "/",
		IsActive:    true,
		Authentication: models.AuthenticationConfig{
			Type:       models.AuthTypeAPIKey,
			Parameters: map[string]string{"api_key": "secret-key"},
		},
	}, nil)

	cfg := &config.Config{
		Auth: config.AuthConfig{SessionSecret: "session-secret", SessionTTLSeconds: 60, VerifyConnection: true},
		Sync: config.SyncConfig{RequestTimeout: 5},
	}
	connector := NewRESTConnector(createTestLogger(), cfg, orgs, fastErrorHandler())
	return connector, orgs, server
}

func TestRESTConnector_Authenticate(t *testing.T) {
	connector, _, server := newTestConnector(t, newFakeInstance())

	cred, err := connector.Authenticate(context.Background(), "org-b")

	require.NoError(t, err)
	assert.Equal(t, server.URL, cred.BaseURL)
	assert.Equal(t, "secret-key", cred.Headers["X-API-Key"])

	claims, err := connector.ParseSessionToken(cred.Token)
	require.NoError(t, err)
	assert.Equal(t, "org-b", claims.OrganisationID)
	assert.Equal(t, sessionTokenIssuer, claims.Issuer)
}

func TestRESTConnector_AuthenticateWithoutSessionSecret(t *testing.T) {
	instance := newFakeInstance()
	instance.allowAnonymous = true
	server := httptest.NewServer(instance)
	t.Cleanup(server.Close)

	orgs := &MockOrganisationRepository{}
	orgs.On("GetByID", mock.Anything, "org-a").Return(&models.Organisation{
		ID:             "org-a",
		Name:           "Org A",
		InstanceURL:    server.URL,
		IsActive:       true,
		Authentication: models.AuthenticationConfig{Type: models.AuthTypeNone},
	}, nil)
	cfg := &config.Config{
		Auth: config.AuthConfig{VerifyConnection: true},
		Sync: config.SyncConfig{RequestTimeout: 5},
	}
	connector := NewRESTConnector(createTestLogger(), cfg, orgs, fastErrorHandler())

	cred, err := connector.Authenticate(context.Background(), "org-a")

	require.NoError(t, err)
	assert.Empty(t, cred.Token)
	assert.NotContains(t, cred.Headers, sessionTokenHeader)
	require.NotEmpty(t, instance.sessions)
	for _, session := range instance.sessions {
		assert.Empty(t, session)
	}
}

func TestRESTConnector_AuthenticateRejected(t *testing.T) {
	instance := newFakeInstance()
	instance.apiKey = "rotated"
	connector, _, _ := newTestConnector(t, instance)

	_, err := connector.Authenticate(context.Background(), "org-b")

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "org-b", authErr.OrganisationID)
}

func TestRESTConnector_AuthenticateInactiveOrganisation(t *testing.T) {
	connector, _, _ := newTestConnector(t, newFakeInstance())
	orgs := &MockOrganisationRepository{}
	orgs.On("GetByID", mock.Anything, "org-c").Return(&models.Organisation{ID: "org-c", InstanceURL: "http://example.invalid", IsActive: false}, nil)
	connector.organisations = orgs

	_, err := connector.Authenticate(context.Background(), "org-c")

	var authErr *AuthError
	assert.ErrorAs(t, err, &authErr)
}

func TestAuthenticationHeaders(t *testing.T) {
	headers, err := authenticationHeaders(models.AuthenticationConfig{
		Type:       models.AuthTypeBasic,
		Parameters: map[string]string{"username": "sync", "password": "pw"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Basic c3luYzpwdw==", headers["Authorization"])

	headers, err = authenticationHeaders(models.AuthenticationConfig{
		Type:       models.AuthTypeBearer,
		Parameters: map[string]string{"token": "t0k"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Bearer t0k", headers["Authorization"])

	_, err = authenticationHeaders(models.AuthenticationConfig{Type: models.AuthTypeAPIKey})
	assert.Error(t, err)

	_, err = authenticationHeaders(models.AuthenticationConfig{Type: "oauth1"})
	assert.Error(t, err)
}

func TestRESTConnector_FetchFollowsCursor(t *testing.T) {
	connector, _, _ := newTestConnector(t, newFakeInstance())
	cred, err := connector.Authenticate(context.Background(), "org-b")
	require.NoError(t, err)

	records, err := connector.Fetch(context.Background(), "Account", cred)

	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "001", records[0]["Id"])
	assert.Equal(t, "Globex", records[1]["Name"])
}

func TestRESTConnector_FetchUnknownSchema(t *testing.T) {
	connector, _, _ := newTestConnector(t, newFakeInstance())
	cred, err := connector.Authenticate(context.Background(), "org-b")
	require.NoError(t, err)

	_, err = connector.Fetch(context.Background(), "Spaceship", cred)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, "Spaceship", fetchErr.Schema)
}

func TestRESTConnector_Lookup(t *testing.T) {
	connector, _, _ := newTestConnector(t, newFakeInstance())
	cred, err := connector.Authenticate(context.Background(), "org-b")
	require.NoError(t, err)

	existing, err := connector.Lookup(context.Background(), "Account", "001", cred)
	require.NoError(t, err)
	require.NotNil(t, existing)
	assert.Equal(t, "ACME Corp", existing.Fields["Name"])

	missing, err := connector.Lookup(context.Background(), "Account", "999", cred)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRESTConnector_Write(t *testing.T) {
	instance := newFakeInstance()
	connector, _, _ := newTestConnector(t, instance)
	cred, err := connector.Authenticate(context.Background(), "org-b")
	require.NoError(t, err)

	updated, err := connector.Write(context.Background(), "Account", MappedRecord{"Id": "001", "Name": "Acme"}, cred)
	require.NoError(t, err)
	assert.Equal(t, "001", updated.Key)
	assert.False(t, updated.Created)

	created, err := connector.Write(context.Background(), "Account", MappedRecord{"Name": "Initech"}, cred)
	require.NoError(t, err)
	assert.Equal(t, "new-1", created.Key)
	assert.True(t, created.Created)

	assert.Equal(t, "Acme", instance.writes["001"]["Name"])
	assert.Equal(t, "Initech", instance.writes["new-1"]["Name"])
}

func TestRESTConnector_WriteFailures(t *testing.T) {
	t.Run("outage marks the destination unavailable", func(t *testing.T) {
		instance := newFakeInstance()
		connector, _, _ := newTestConnector(t, instance)
		cred, err := connector.Authenticate(context.Background(), "org-b")
		require.NoError(t, err)
		instance.writeCode = http.StatusServiceUnavailable

		_, err = connector.Write(context.Background(), "Account", MappedRecord{"Id": "001"}, cred)

		assert.ErrorIs(t, err, ErrDestinationUnavailable)
	})

	t.Run("rejected record is a record error", func(t *testing.T) {
		instance := newFakeInstance()
		connector, _, _ := newTestConnector(t, instance)
		cred, err := connector.Authenticate(context.Background(), "org-b")
		require.NoError(t, err)
		instance.writeCode = http.StatusUnprocessableEntity

		_, err = connector.Write(context.Background(), "Account", MappedRecord{"Id": "001"}, cred)

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrDestinationUnavailable)
		var statusErr *HTTPStatusError
		require.ErrorAs(t, err, &statusErr)
		assert.Contains(t, statusErr.Body, "rejected")
	})
}

func TestRESTConnector_FetchRejectsCursorCycle(t *testing.T) {
	instance := newFakeInstance()
	instance.pages = map[string]recordPage{
		"":   {Records: []SourceRecord{{"Id": "001"}}, Next: "c2"},
		"c2": {Records: []SourceRecord{{"Id": "002"}}, Next: "c3"},
		"c3": {Records: []SourceRecord{{"Id": "003"}}, Next: "c2"},
	}
	connector, _, _ := newTestConnector(t, instance)
	cred, err := connector.Authenticate(context.Background(), "org-b")
	require.NoError(t, err)

	records, err := connector.Fetch(context.Background(), "Account", cred)

	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Contains(t, err.Error(), `"c2" repeated`)
	assert.Nil(t, records)
}
