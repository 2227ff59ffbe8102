package httpadapter

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	application "faucet/contexts/token-distribution/airdrop-service/application"
	"faucet/contexts/token-distribution/airdrop-service/application/commands"
	"faucet/contexts/token-distribution/airdrop-service/application/queries"
	"faucet/contexts/token-distribution/airdrop-service/domain/entities"
	httptransport "faucet/contexts/token-distribution/airdrop-service/transport/http"
)

type Handler struct {
	Disburse      commands.DisburseUseCase
	Reopen        commands.ReopenUseCase
	Disbursements queries.GetDisbursementUseCase
	Logger        *slog.Logger
}

// DisburseHandler godoc
// @Summary Request the airdrop
// @Description Sends the fixed grant to the address once. The response is written after the transfer is finalized.
// @Tags airdrop
// @Produce json
// @Param to query string true "SS58 recipient address"
// @Param token query string false "Auth token, also accepted as a bearer token"
// @Success 200 {object} httptransport.DisburseResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 401 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router / [get]
func (h Handler) DisburseHandler(ctx context.Context, recipient string, ipAddress string) (httptransport.DisburseResponse, error) {
	logger := application.ResolveLogger(h.Logger)
	logger.Info("airdrop request received",
		"event", "http_airdrop_received",
		"module", "token-distribution/airdrop-service",
		"layer", "transport",
		"recipient", recipient,
	)

	result, err := h.Disburse.Execute(ctx, commands.DisburseCommand{
		Recipient: recipient,
		IPAddress: ipAddress,
	})
	if err != nil {
		logger.Warn("airdrop request failed",
			"event", "http_airdrop_failed",
			"module", "token-distribution/airdrop-service",
			"layer", "transport",
			"recipient", recipient,
			"error", err.Error(),
		)
		return httptransport.DisburseResponse{}, err
	}
	return httptransport.DisburseResponse{
		Success: true,
		Amount:  json.Number(result.Amount.String()),
		TxHash:  result.TxHash,
	}, nil
}

// GetDisbursementHandler godoc
// @Summary Get the disbursement record for an address
// @Tags airdrop
// @Produce json
// @Param address path string true "SS58 recipient address"
// @Param token query string false "Auth token, also accepted as a bearer token"
// @Success 200 {object} httptransport.DisbursementResponse
// @Failure 400 {object} httptransport.ErrorResponse
// @Failure 404 {object} httptransport.ErrorResponse
// @Failure 500 {object} httptransport.ErrorResponse
// @Router /airdrops/{address} [get]
func (h Handler) GetDisbursementHandler(ctx context.Context, recipient string) (httptransport.DisbursementResponse, error) {
	result, err := h.Disbursements.Execute(ctx, queries.GetDisbursementQuery{Recipient: recipient})
	if err != nil {
		return httptransport.DisbursementResponse{}, err
	}
	return toDisbursementResponse(result.Disbursement), nil
}

func (h Handler) ReopenHandler(ctx context.Context, recipient string, operator string) error {
	return h.Reopen.Execute(ctx, commands.ReopenCommand{
		Recipient: recipient,
		Operator:  operator,
	})
}

func toDisbursementResponse(record entities.Disbursement) httptransport.DisbursementResponse {
	resp := httptransport.DisbursementResponse{
		Recipient:     record.Recipient,
		Status:        string(record.Status),
		TxHash:        record.TxHash,
		BlockHash:     record.BlockHash,
		Nonce:         record.Nonce,
		FailureReason: record.FailureReason,
		Geo: httptransport.GeoResponse{
			IPAddress:   record.Metadata.IPAddress,
			Country:     record.Metadata.Country,
			CountryCode: record.Metadata.CountryCode,
			Region:      record.Metadata.Region,
			RegionName:  record.Metadata.RegionName,
			City:        record.Metadata.City,
			Zip:         record.Metadata.Zip,
			Latitude:    record.Metadata.Latitude,
			Longitude:   record.Metadata.Longitude,
			Timezone:    record.Metadata.Timezone,
			ISP:         record.Metadata.ISP,
		},
		CreatedAt: record.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: record.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if record.Amount != nil {
		resp.Amount = json.Number(record.Amount.String())
	}
	return resp
}
