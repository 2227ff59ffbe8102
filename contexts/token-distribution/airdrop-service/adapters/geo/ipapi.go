package geo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/netip"
	"net/url"
	"strings"
	"time"

	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	"faucet/contexts/token-distribution/airdrop-service/ports"
)

var ErrNotRoutable = errors.New("ip address is not publicly routable")

// IPAPIClient looks request origins up against an ip-api.com compatible
// JSON endpoint.
type IPAPIClient struct {
	BaseURL    string
	HTTPClient *http.Client
}

func NewIPAPIClient(baseURL string, timeout time.Duration) IPAPIClient {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return IPAPIClient{
		BaseURL:    baseURL,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type ipAPIResponse struct {
	Status      string  `json:"status"`
	Message     string  `json:"message"`
	Country     string  `json:"country"`
	CountryCode string  `json:"countryCode"`
	Region      string  `json:"region"`
	RegionName  string  `json:"regionName"`
	City        string  `json:"city"`
	Zip         string  `json:"zip"`
	Lat         float64 `json:"lat"`
	Lon         float64 `json:"lon"`
	Timezone    string  `json:"timezone"`
	ISP         string  `json:"isp"`
}

func (c IPAPIClient) Lookup(ctx context.Context, ip string) (entities.Metadata, error) {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return entities.Metadata{}, fmt.Errorf("parse ip %q: %w", ip, err)
	}
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsLinkLocalUnicast() || addr.IsUnspecified() {
		return entities.Metadata{}, ErrNotRoutable
	}

	base := strings.TrimRight(c.BaseURL, "/")
	if base == "" {
		base = "http://ip-api.com/json"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/"+url.PathEscape(addr.String()), nil)
	if err != nil {
		return entities.Metadata{}, err
	}
	client := c.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return entities.Metadata{}, fmt.Errorf("geo lookup: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return entities.Metadata{}, fmt.Errorf("geo lookup: unexpected status %d", resp.StatusCode)
	}

	var payload ipAPIResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return entities.Metadata{}, fmt.Errorf("decode geo response: %w", err)
	}
	if payload.Status != "" && payload.Status != "success" {
		return entities.Metadata{}, fmt.Errorf("geo lookup failed: %s", payload.Message)
	}

	return entities.Metadata{
		IPAddress:   addr.String(),
		Country:     payload.Country,
		CountryCode: payload.CountryCode,
		Region:      payload.Region,
		RegionName:  payload.RegionName,
		City:        payload.City,
		Zip:         payload.Zip,
		Latitude:    payload.Lat,
		Longitude:   payload.Lon,
		Timezone:    payload.Timezone,
		ISP:         payload.ISP,
	}, nil
}

var _ ports.GeoLocator = IPAPIClient{}
