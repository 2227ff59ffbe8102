package http

import "encoding/json"

// ErrorResponse is the failure body for every airdrop route.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// DisburseResponse is returned by GET /?to=<address>. Amount is a decimal
// JSON number in the token's smallest unit.
type DisburseResponse struct {
	Success bool        `json:"success"`
	Amount  json.Number `json:"amount" swaggertype:"number"`
	TxHash  string      `json:"txHash"`
}

type GeoResponse struct {
	IPAddress   string  `json:"ip_address,omitempty"`
	Country     string  `json:"country,omitempty"`
	CountryCode string  `json:"country_code,omitempty"`
	Region      string  `json:"region,omitempty"`
	RegionName  string  `json:"region_name,omitempty"`
	City        string  `json:"city,omitempty"`
	Zip         string  `json:"zip,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Timezone    string  `json:"timezone,omitempty"`
	ISP         string  `json:"isp,omitempty"`
}

type DisbursementResponse struct {
	Recipient     string      `json:"recipient"`
	Status        string      `json:"status"`
	Amount        json.Number `json:"amount,omitempty" swaggertype:"number"`
	TxHash        string      `json:"txHash,omitempty"`
	BlockHash     string      `json:"blockHash,omitempty"`
	Nonce         *uint64     `json:"nonce,omitempty"`
	FailureReason string      `json:"failureReason,omitempty"`
	Geo           GeoResponse `json:"geo"`
	CreatedAt     string      `json:"createdAt"`
	UpdatedAt     string      `json:"updatedAt"`
}

type HealthResponse struct {
	Status string `json:"status"`
	Chain  string `json:"chain"`
}
