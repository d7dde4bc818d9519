package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/ringgate/ringgate/src/config"
	"github.com/ringgate/ringgate/src/domain"
)

type TelemetryService interface {
	// RingSuccessRate fetches the observed success rate of deployments
	// to the given ring. Nil when the collaborator has no history yet.
	RingSuccessRate(context.Context, domain.Ring) (*float64, error)
}

type telemetryService struct {
	logger  zerolog.Logger
	client  *retryablehttp.Client
	baseUrl string
}

func NewTelemetryService(web config.WebConfig, logger *zerolog.Logger) TelemetryService {
	client := retryablehttp.NewClient()
	client.HTTPClient.Timeout = web.CollaboratorTimeout
	client.Logger = nil

	return &telemetryService{
		logger:  logger.With().Str("component", "TelemetryService").Logger(),
		client:  client,
		baseUrl: web.TelemetryAddr,
	}
}

func (self *telemetryService) RingSuccessRate(ctx context.Context, ring domain.Ring) (*float64, error) {
	ringStr, err := ring.String()
	if err != nil {
		return nil, err
	}

	self.logger.Trace().Str("ring", ringStr).Msg("Fetching ring success rate")

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, self.baseUrl+"/api/ring/"+ringStr+"/success-rate", nil)
	if err != nil {
		return nil, errors.WithMessage(err, "Could not build telemetry request")
	}

	res, err := self.client.Do(req)
	if err != nil {
		// Collaborator calls are retry-safe under the same correlation ID.
		return nil, domain.StorageUnavailableError{Cause: errors.WithMessagef(err, "Could not reach telemetry at %q", self.baseUrl)}
	}
	defer func() { _ = res.Body.Close() }()

	switch res.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, domain.StorageUnavailableError{Cause: fmt.Errorf("Telemetry returned status %d", res.StatusCode)}
	}

	result := struct {
		SuccessRate float64 `json:"success_rate"`
	}{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.WithMessage(err, "Could not decode telemetry response")
	}

	return &result.SuccessRate, nil
}
