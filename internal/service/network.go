package service

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
)

// NetworkIDSource reports the connected network id.
type NetworkIDSource interface {
	NetworkID(ctx context.Context) (*big.Int, error)
}

var networkNames = map[string]string{
	"1":  "Ethereum mainnet",
	"3":  "Ropsten test network",
	"4":  "Rinkeby test network",
	"42": "Kovan test network",
}

// NetworkChecker tells the user when the node is on the wrong network. It
// never blocks anything; the advisory is for display.
type NetworkChecker struct {
	source   NetworkIDSource
	expected string
	logger   *slog.Logger
}

// NewNetworkChecker creates a checker expecting network id expected
// (e.g. "42").
func NewNetworkChecker(source NetworkIDSource, expected string, logger *slog.Logger) *NetworkChecker {
	return &NetworkChecker{
		source:   source,
		expected: expected,
		logger:   logger.With(slog.String("component", "network_checker")),
	}
}

// Check returns "" when the node is on the expected network and an advisory
// otherwise. An unreachable node is reported as an advisory, not an error;
// only cancellation of ctx is returned as an error.
func (c *NetworkChecker) Check(ctx context.Context) (string, error) {
	if c.source == nil {
		return c.noProvider(), nil
	}

	id, err := c.source.NetworkID(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		c.logger.WarnContext(ctx, "network check: node unreachable", slog.String("error", err.Error()))
		return c.noProvider(), nil
	}

	got := id.String()
	if got == c.expected {
		return "", nil
	}
	if name, ok := networkNames[got]; ok {
		return fmt.Sprintf("You are connected to the %s. Switch to the %s to continue.", name, c.expectedName()), nil
	}
	return fmt.Sprintf("You are connected to an unrecognized network (id %s). Switch to the %s to continue.", got, c.expectedName()), nil
}

func (c *NetworkChecker) noProvider() string {
	return fmt.Sprintf("No Ethereum node is reachable. Connect to the %s to continue.", c.expectedName())
}

func (c *NetworkChecker) expectedName() string {
	if name, ok := networkNames[c.expected]; ok {
		return name
	}
	return "network with id " + c.expected
}
