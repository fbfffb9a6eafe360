package v16

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/volthu/csms/internal/observability/telemetry"
	"github.com/volthu/csms/internal/ports"
)

// Commander issues server-initiated calls over registered transports.
// It is the payment bridge's only path to the stations.
type Commander struct {
	registry *Registry
	log      *zap.Logger
}

func NewCommander(registry *Registry, log *zap.Logger) ports.RemoteCommander {
	return &Commander{
		registry: registry,
		log:      log,
	}
}

func (c *Commander) RemoteStartTransaction(ctx context.Context, ocppID string, connectorID int, idTag string) (*ports.RemoteResult, error) {
	payload := map[string]interface{}{
		"connectorId": connectorID,
		"idTag":       idTag,
	}
	return c.call(ctx, ocppID, "RemoteStartTransaction", payload)
}

func (c *Commander) RemoteStopTransaction(ctx context.Context, ocppID string, transactionID int) (*ports.RemoteResult, error) {
	payload := map[string]interface{}{
		"transactionId": transactionID,
	}
	return c.call(ctx, ocppID, "RemoteStopTransaction", payload)
}

func (c *Commander) call(ctx context.Context, ocppID, action string, payload map[string]interface{}) (*ports.RemoteResult, error) {
	raw, err := c.registry.Call(ctx, ocppID, action, payload)
	if err != nil {
		telemetry.OCPPRemoteCallsTotal.WithLabelValues(action, "failed").Inc()
		c.log.Warn("Remote call failed",
			zap.String("charge_point_id", ocppID),
			zap.String("action", action),
			zap.Error(err),
		)
		return nil, err
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		telemetry.OCPPRemoteCallsTotal.WithLabelValues(action, "failed").Inc()
		return nil, fmt.Errorf("parse %s result: %w", action, err)
	}

	status, _ := fields["status"].(string)
	result := &ports.RemoteResult{Status: status, Raw: fields}
	if result.Accepted() {
		telemetry.OCPPRemoteCallsTotal.WithLabelValues(action, "accepted").Inc()
	} else {
		telemetry.OCPPRemoteCallsTotal.WithLabelValues(action, "rejected").Inc()
	}
	return result, nil
}
