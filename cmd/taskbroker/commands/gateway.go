package commands

import (
	"fmt"

	"github.com/alecthomas/kingpin/v2"

	"github.com/slok/taskbroker/internal/gateway"
	"github.com/slok/taskbroker/internal/gateway/fake"
	"github.com/slok/taskbroker/internal/gateway/httpgateway"
	"github.com/slok/taskbroker/internal/log"
	"github.com/slok/taskbroker/internal/model"
)

const (
	gatewayFake = "fake"
	gatewayHTTP = "http"
)

// gatewayFlags are the payment gateway flags shared by the commands that move money.
type gatewayFlags struct {
	kind              string
	url               string
	apiKey            string
	fakeAutoAuthorize bool
}

func registerGatewayFlags(cmd *kingpin.CmdClause, defaultKind string) *gatewayFlags {
	f := &gatewayFlags{}
	cmd.Flag("gateway", "Payment gateway implementation.").Default(defaultKind).EnumVar(&f.kind, gatewayFake, gatewayHTTP)
	cmd.Flag("gateway-url", "Base URL of the payment gateway API.").StringVar(&f.url)
	cmd.Flag("gateway-api-key", "API key of the payment gateway.").Envar("TASKBROKER_GATEWAY_API_KEY").StringVar(&f.apiKey)
	cmd.Flag("fake-gateway-auto-authorize", "Authorize the fake gateway holds on creation.").Default("true").BoolVar(&f.fakeAutoAuthorize)
	return f
}

func (f gatewayFlags) build(platform model.PlatformConfig, logger log.Logger) (gateway.Gateway, error) {
	switch f.kind {
	case gatewayHTTP:
		gw, err := httpgateway.NewGateway(httpgateway.GatewayConfig{
			BaseURL:    f.url,
			APIKey:     f.apiKey,
			Timeout:    platform.GatewayTimeout,
			MaxRetries: platform.GatewayMaxRetries,
			Logger:     logger,
		})
		if err != nil {
			return nil, fmt.Errorf("could not create http gateway: %w", err)
		}
		return gw, nil
	default:
		logger.Warningf("Using the fake payment gateway, no real money will move")
		gw, err := fake.NewGateway(fake.GatewayConfig{AutoAuthorize: f.fakeAutoAuthorize, Logger: logger})
		if err != nil {
			return nil, fmt.Errorf("could not create fake gateway: %w", err)
		}
		return gw, nil
	}
}
