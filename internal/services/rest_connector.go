package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"multi-org-integration-platform/internal/config"
	"multi-org-integration-platform/internal/logger"
	"multi-org-integration-platform/internal/models"
	"multi-org-integration-platform/internal/repositories"

	"github.com/golang-jwt/jwt/v5"
)

// Organisation instances expose their records under /records/{schema}
const (
	recordsPath         = "records"
	sessionTokenHeader  = "X-Sync-Session"
	maxErrorBodyLength  = 512
	sessionTokenIssuer  = "multi-org-integration-platform"
	defaultPageSizeHint = 200
	maxFetchPages       = 10000
)

// HTTPClientPool keeps one pooled client per organisation instance
type HTTPClientPool struct {
	clients map[string]*http.Client
	timeout time.Duration
	mutex   sync.RWMutex
}

// NewHTTPClientPool creates a new HTTP client pool
func NewHTTPClientPool(timeout time.Duration) *HTTPClientPool {
	return &HTTPClientPool{
		clients: make(map[string]*http.Client),
		timeout: timeout,
	}
}

// GetClient returns the client for baseURL, creating it on first use
func (p *HTTPClientPool) GetClient(baseURL string) *http.Client {
	p.mutex.RLock()
	client, exists := p.clients[baseURL]
	p.mutex.RUnlock()

	if exists {
		return client
	}

	p.mutex.Lock()
	defer p.mutex.Unlock()

	if client, exists := p.clients[baseURL]; exists {
		return client
	}

	client = &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
		Timeout: p.timeout,
	}
	p.clients[baseURL] = client
	return client
}

// SessionClaims identify the sync platform to an organisation instance
type SessionClaims struct {
	OrganisationID string `json:"organisation_id"`
	jwt.RegisteredClaims
}

type recordPage struct {
	Records []SourceRecord `json:"records"`
	Next    string         `json:"next,omitempty"`
}

type recordEnvelope struct {
	Key       string                 `json:"key"`
	Fields    map[string]interface{} `json:"fields"`
	UpdatedAt *time.Time             `json:"updated_at,omitempty"`
}

// RESTConnector talks to organisation instances over their REST records API.
// It implements Authenticator, SourceReader, DestinationReader and DestinationWriter.
type RESTConnector struct {
	logger        *logger.Logger
	organisations repositories.OrganisationRepository
	clientPool    *HTTPClientPool
	errorHandler  *ErrorHandler
	sessionSecret []byte
	sessionTTL    time.Duration
	verify        bool
	keyField      string
}

// NewRESTConnector creates a new REST connector
func NewRESTConnector(
	logger *logger.Logger,
	cfg *config.Config,
	organisations repositories.OrganisationRepository,
	errorHandler *ErrorHandler,
) *RESTConnector {
	timeout := time.Duration(cfg.Sync.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ttl := time.Duration(cfg.Auth.SessionTTLSeconds) * time.Second
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	keyField := cfg.Sync.DefaultKeyField
	if keyField == "" {
		keyField = "Id"
	}

	return &RESTConnector{
		logger:        logger,
		organisations: organisations,
		clientPool:    NewHTTPClientPool(timeout),
		errorHandler:  errorHandler,
		sessionSecret: []byte(cfg.Auth.SessionSecret),
		sessionTTL:    ttl,
		verify:        cfg.Auth.VerifyConnection,
		keyField:      keyField,
	}
}

// Authenticate builds a credential from the organisation's stored authentication
// settings. With auth.session_secret set it also mints a short-lived HS256 session
// token, sent as X-Sync-Session, which instances holding the same secret can
// verify to identify the run's platform and organisation. Without a secret the
// header is omitted and the organisation's own credentials stand alone.
func (c *RESTConnector) Authenticate(ctx context.Context, orgID string) (*Credential, error) {
	org, err := c.organisations.GetByID(ctx, orgID)
	if err != nil {
		return nil, &AuthError{OrganisationID: orgID, Err: fmt.Errorf("failed to load organisation: %w", err)}
	}
	if !org.IsActive {
		return nil, &AuthError{OrganisationID: orgID, Err: errors.New("organisation is inactive")}
	}
	if org.InstanceURL == "" {
		return nil, &AuthError{OrganisationID: orgID, Err: errors.New("organisation has no instance URL")}
	}

	headers, err := authenticationHeaders(org.Authentication)
	if err != nil {
		return nil, &AuthError{OrganisationID: orgID, Err: err}
	}

	expiresAt := time.Now().Add(c.sessionTTL)
	var token string
	if len(c.sessionSecret) > 0 {
		token, err = c.mintSessionToken(orgID, expiresAt)
		if err != nil {
			return nil, &AuthError{OrganisationID: orgID, Err: err}
		}
		headers[sessionTokenHeader] = token
	}

	cred := &Credential{
		OrganisationID: orgID,
		BaseURL:        strings.TrimRight(org.InstanceURL, "/"),
		Token:          token,
		Headers:        headers,
		ExpiresAt:      expiresAt,
	}

	if c.verify {
		if err := c.verifyCredential(ctx, cred); err != nil {
			return nil, &AuthError{OrganisationID: orgID, Err: err}
		}
	}

	c.logger.WithOrganisation(orgID).Debug("Authenticated organisation")
	return cred, nil
}

func (c *RESTConnector) mintSessionToken(orgID string, expiresAt time.Time) (string, error) {
	if len(c.sessionSecret) == 0 {
		return "", errors.New("session secret is not configured")
	}

	now := time.Now()
	claims := SessionClaims{
		OrganisationID: orgID,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    sessionTokenIssuer,
			Subject:   orgID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.sessionSecret)
	if err != nil {
		return "", fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, nil
}

// ParseSessionToken validates a session token minted by this connector
func (c *RESTConnector) ParseSessionToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.sessionSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid session token")
	}
	return claims, nil
}

func authenticationHeaders(auth models.AuthenticationConfig) (map[string]string, error) {
	headers := make(map[string]string)

	switch auth.Type {
	case models.AuthTypeAPIKey:
		headerName := auth.Parameters["header_name"]
		if headerName == "" {
			headerName = "X-API-Key"
		}
		apiKey := auth.Parameters["api_key"]
		if apiKey == "" {
			return nil, errors.New("api_key parameter is required for api_key authentication")
		}
		headers[headerName] = apiKey

	case models.AuthTypeBearer:
		token := auth.Parameters["token"]
		if token == "" {
			return nil, errors.New("token parameter is required for bearer authentication")
		}
		headers["Authorization"] = "Bearer " + token

	case models.AuthTypeBasic:
		username := auth.Parameters["username"]
		password := auth.Parameters["password"]
		if username == "" || password == "" {
			return nil, errors.New("username and password parameters are required for basic authentication")
		}
		headers["Authorization"] = "Basic " + base64.StdEncoding.EncodeToString([]byte(username+":"+password))

	case models.AuthTypeNone, "":

	default:
		return nil, fmt.Errorf("unsupported authentication type: %s", auth.Type)
	}

	return headers, nil
}

func (c *RESTConnector) verifyCredential(ctx context.Context, cred *Credential) error {
	resp, err := c.do(ctx, cred, http.MethodGet, cred.BaseURL+"/"+recordsPath, nil, "verify")
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Fetch reads every record of schema, following pagination cursors
func (c *RESTConnector) Fetch(ctx context.Context, schema string, cred *Credential) ([]SourceRecord, error) {
	var records []SourceRecord
	cursor := ""
	seen := map[string]bool{"": true}

	for pages := 1; ; pages++ {
		if pages > maxFetchPages {
			return nil, &FetchError{Schema: schema, Err: fmt.Errorf("more than %d pages", maxFetchPages)}
		}
		endpoint := c.schemaURL(cred, schema)
		query := url.Values{}
		query.Set("limit", fmt.Sprint(defaultPageSizeHint))
		if cursor != "" {
			query.Set("cursor", cursor)
		}

		var page recordPage
		if err := c.getJSON(ctx, cred, endpoint+"?"+query.Encode(), "fetch", &page); err != nil {
			return nil, &FetchError{Schema: schema, Err: err}
		}
		records = append(records, page.Records...)

		if page.Next == "" || page.Next == cursor {
			break
		}
		if seen[page.Next] {
			return nil, &FetchError{Schema: schema, Err: fmt.Errorf("pagination cursor %q repeated", page.Next)}
		}
		seen[page.Next] = true
		cursor = page.Next
	}

	c.logger.WithOrganisation(cred.OrganisationID).
		WithField("schema", schema).
		WithField("records", len(records)).
		Info("Fetched source records")

	return records, nil
}

// Lookup returns the destination record stored under recordKey, or nil if there is none
func (c *RESTConnector) Lookup(ctx context.Context, schema, recordKey string, cred *Credential) (*ExistingRecord, error) {
	var envelope recordEnvelope
	err := c.getJSON(ctx, cred, c.recordURL(cred, schema, recordKey), "lookup", &envelope)

	var statusErr *HTTPStatusError
	if errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, c.wrapUnavailable(err)
	}

	if envelope.Key == "" {
		envelope.Key = recordKey
	}
	return &ExistingRecord{Key: envelope.Key, Fields: envelope.Fields, UpdatedAt: envelope.UpdatedAt}, nil
}

// Write upserts record; records carrying the key field are written in place
func (c *RESTConnector) Write(ctx context.Context, schema string, record MappedRecord, cred *Credential) (*WriteResult, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}

	key := keyOf(record[c.keyField])
	method, endpoint := http.MethodPost, c.schemaURL(cred, schema)
	if key != "" {
		method, endpoint = http.MethodPut, c.recordURL(cred, schema, key)
	}

	resp, err := c.do(ctx, cred, method, endpoint, body, "write")
	if err != nil {
		return nil, c.wrapUnavailable(err)
	}
	defer resp.Body.Close()

	result := &WriteResult{Key: key, Created: resp.StatusCode == http.StatusCreated}
	var envelope recordEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil && envelope.Key != "" {
		result.Key = envelope.Key
	}
	return result, nil
}

// wrapUnavailable marks errors meaning the instance is down so the sync engine
// fails the whole batch instead of retrying every record
func (c *RESTConnector) wrapUnavailable(err error) error {
	if c.errorHandler.IsUnavailable(err) {
		return fmt.Errorf("%w: %v", ErrDestinationUnavailable, err)
	}
	return err
}

func (c *RESTConnector) schemaURL(cred *Credential, schema string) string {
	return fmt.Sprintf("%s/%s/%s", cred.BaseURL, recordsPath, url.PathEscape(schema))
}

func (c *RESTConnector) recordURL(cred *Credential, schema, key string) string {
	return c.schemaURL(cred, schema) + "/" + url.PathEscape(key)
}

func (c *RESTConnector) getJSON(ctx context.Context, cred *Credential, endpoint, operation string, out interface{}) error {
	resp, err := c.do(ctx, cred, http.MethodGet, endpoint, nil, operation)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", operation, err)
	}
	return nil
}

// do sends one request through the retry policy and the instance's circuit
// breaker. Non-2xx responses are returned as *HTTPStatusError.
func (c *RESTConnector) do(ctx context.Context, cred *Credential, method, endpoint string, body []byte, operation string) (*http.Response, error) {
	client := c.clientPool.GetClient(cred.BaseURL)

	var response *http.Response
	err := c.errorHandler.ExecuteWithFullProtection(ctx, func() error {
		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
		if err != nil {
			return fmt.Errorf("failed to create HTTP request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for key, value := range cred.Headers {
			req.Header.Set(key, value)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyLength))
			return &HTTPStatusError{
				StatusCode: resp.StatusCode,
				Method:     method,
				URL:        endpoint,
				Body:       strings.TrimSpace(string(snippet)),
			}
		}

		response = resp
		return nil
	}, "instance:"+cred.BaseURL)

	if err != nil {
		c.logger.WithOrganisation(cred.OrganisationID).
			WithError(err).
			WithField("operation", operation).
			WithField("method", method).
			Debug("Instance request failed")
		return nil, err
	}

	return response, nil
}
