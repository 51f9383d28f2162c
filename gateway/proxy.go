package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/pavitra93/go-apartment-rentals/shared/middleware"
	"github.com/pavitra93/go-apartment-rentals/shared/utils"
)

// ServiceClient handles HTTP communication with microservices
type ServiceClient struct {
	name       string
	baseURL    string
	httpClient *http.Client
}

// ServiceClients holds all service clients
type ServiceClients struct {
	ListingService *ServiceClient
	RentalService  *ServiceClient
	OutboxRelay    *ServiceClient
	Notifier       *ServiceClient
}

// NewServiceClient creates a new service client
func NewServiceClient(name, baseURL string) *ServiceClient {
	return &ServiceClient{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ProxyRequest proxies requests to the appropriate microservice. The bearer
// token is forwarded unchanged; each service validates it again.
func (sc *ServiceClient) ProxyRequest(c *gin.Context) {
	// Build target URL
	targetURL := sc.baseURL + c.Request.URL.Path
	if c.Request.URL.RawQuery != "" {
		targetURL += "?" + c.Request.URL.RawQuery
	}

	var body io.Reader
	if c.Request.Body != nil {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			utils.InternalServerErrorResponse(c, "Failed to read request body")
			return
		}
		body = bytes.NewReader(bodyBytes)
	}

	req, err := http.NewRequestWithContext(c.Request.Context(), c.Request.Method, targetURL, body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to create request")
		return
	}

	// Copy headers
	for key, values := range c.Request.Header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}

	// Add user context headers
	if user, err := middleware.GetUserInfoFromContext(c); err == nil {
		req.Header.Set("X-User-ID", user.UserID)
		req.Header.Set("X-User-Role", string(user.Role))
		if user.Email != "" {
			req.Header.Set("X-User-Email", user.Email)
		}
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadGateway, fmt.Sprintf("Failed to communicate with %s", sc.name))
		return
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		utils.InternalServerErrorResponse(c, "Failed to read response")
		return
	}

	// Copy response headers
	for key, values := range resp.Header {
		for _, value := range values {
			c.Header(key, value)
		}
	}

	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), responseBody)
}

// HealthCheck checks if a service is healthy
func (sc *ServiceClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("failed to create health check request: %w", err)
	}

	resp, err := sc.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("service returned status %d", resp.StatusCode)
	}

	return nil
}

func (scs *ServiceClients) all() []*ServiceClient {
	return []*ServiceClient{scs.ListingService, scs.RentalService, scs.OutboxRelay, scs.Notifier}
}

// GetServiceStatus returns the status of all services
func (scs *ServiceClients) GetServiceStatus(ctx context.Context) map[string]interface{} {
	status := make(map[string]interface{})

	for _, sc := range scs.all() {
		entry := map[string]interface{}{"healthy": true}
		if err := sc.HealthCheck(ctx); err != nil {
			entry["healthy"] = false
			entry["error"] = err.Error()
		}
		if sc == scs.OutboxRelay || sc == scs.Notifier {
			entry["note"] = "Background Kafka worker"
		}
		status[sc.name] = entry
	}

	return status
}
