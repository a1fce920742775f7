package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"
)

// Demo client: walks one seat through the borrow/status/return lifecycle
// against a running license server. The tenant is selected the same way the
// dashboards select it, via the Host header subdomain.

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type grantData struct {
	GrantID   string `json:"grant_id"`
	ProductID string `json:"product_id"`
	User      string `json:"user"`
}

type statusData struct {
	Tool       string `json:"tool"`
	Total      int    `json:"total"`
	Borrowed   int    `json:"borrowed"`
	Available  int    `json:"available"`
	Commit     int    `json:"commit"`
	MaxOverage int    `json:"max_overage"`
	Status     string `json:"status"`
}

// LicenseClient is a minimal HTTP client for the license server.
type LicenseClient struct {
	baseURL    string
	host       string
	httpClient *http.Client
}

// NewLicenseClient creates a client that acts as the given tenant.
func NewLicenseClient(baseURL, tenant string) *LicenseClient {
	return &LicenseClient{
		baseURL: baseURL,
		host:    tenant + ".localhost",
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (lc *LicenseClient) do(method, path string, payload interface{}) (*apiResponse, int, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, 0, err
		}
		body = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, lc.baseURL+path, body)
	if err != nil {
		return nil, 0, err
	}
	req.Host = lc.host
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := lc.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return &parsed, resp.StatusCode, nil
}

// Borrow borrows one seat and returns the grant id.
func (lc *LicenseClient) Borrow(tool, user string) (string, error) {
	resp, code, err := lc.do(http.MethodPost, "/licenses/borrow", map[string]string{
		"tool": tool,
		"user": user,
	})
	if err != nil {
		return "", err
	}
	if code == http.StatusConflict {
		return "", fmt.Errorf("no licenses available for %s", tool)
	}
	if !resp.Success {
		return "", fmt.Errorf("borrow failed: %s", resp.Error)
	}

	var grant grantData
	if err := json.Unmarshal(resp.Data, &grant); err != nil {
		return "", err
	}
	return grant.GrantID, nil
}

// Return gives a borrowed seat back.
func (lc *LicenseClient) Return(licenseID string) error {
	resp, _, err := lc.do(http.MethodPost, "/licenses/return", map[string]string{
		"license_id": licenseID,
	})
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("return failed: %s", resp.Error)
	}
	return nil
}

// Status fetches occupancy for one tool.
func (lc *LicenseClient) Status(tool string) (*statusData, error) {
	resp, _, err := lc.do(http.MethodGet, "/licenses/status/"+tool, nil)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("status failed: %s", resp.Error)
	}

	var status statusData
	if err := json.Unmarshal(resp.Data, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func printStatus(status *statusData) {
	fmt.Printf("  %s: %d/%d borrowed, %d available, tier=%s\n",
		status.Tool, status.Borrowed, status.Total, status.Available, status.Status)
}

func main() {
	url := flag.String("url", "http://localhost:8001", "license server base URL")
	tenant := flag.String("tenant", "bmw", "tenant subdomain to act as")
	user := flag.String("user", "demo-user", "borrowing user")
	tool := flag.String("tool", "davinci-se", "product id to borrow")
	count := flag.Int("count", 3, "number of seats to borrow")
	hold := flag.Duration("hold", 2*time.Second, "how long to hold the seats")
	flag.Parse()

	client := NewLicenseClient(*url, *tenant)

	status, err := client.Status(*tool)
	if err != nil {
		log.Fatalf("Initial status check failed: %v", err)
	}
	fmt.Println("Before borrowing:")
	printStatus(status)

	var borrowed []string
	for i := 0; i < *count; i++ {
		licenseID, err := client.Borrow(*tool, *user)
		if err != nil {
			fmt.Printf("Borrow %d failed: %v\n", i+1, err)
			break
		}
		fmt.Printf("Borrowed seat %d (license %s)\n", i+1, licenseID)
		borrowed = append(borrowed, licenseID)
	}

	if status, err = client.Status(*tool); err == nil {
		fmt.Println("While holding:")
		printStatus(status)
	}

	time.Sleep(*hold)

	for _, licenseID := range borrowed {
		if err := client.Return(licenseID); err != nil {
			fmt.Printf("Return of %s failed: %v\n", licenseID, err)
			continue
		}
		fmt.Printf("Returned license %s\n", licenseID)
	}

	if status, err = client.Status(*tool); err == nil {
		fmt.Println("After returning:")
		printStatus(status)
	}
}
