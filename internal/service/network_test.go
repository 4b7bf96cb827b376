package service

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestNetworkCheck(t *testing.T) {
	ctx := context.Background()
	check := func(src NetworkIDSource) string {
		t.Helper()
		msg, err := NewNetworkChecker(src, "42", testLogger()).Check(ctx)
		if err != nil {
			t.Fatalf("Check: %v", err)
		}
		return msg
	}

	if msg := check(fakeNetwork{id: 42}); msg != "" {
		t.Errorf("expected network: advisory %q", msg)
	}

	mainnet := check(fakeNetwork{id: 1})
	ropsten := check(fakeNetwork{id: 3})
	unknown := check(fakeNetwork{id: 1337})
	noNode := check(fakeNetwork{err: errors.New("dial tcp: connection refused")})
	nilSource := check(nil)

	for name, msg := range map[string]string{"mainnet": mainnet, "ropsten": ropsten, "unknown": unknown, "unreachable": noNode} {
		if msg == "" {
			t.Errorf("%s: empty advisory", name)
		}
		if !strings.Contains(msg, "Kovan") {
			t.Errorf("%s: advisory %q does not name the expected network", name, msg)
		}
	}
	if mainnet == ropsten || mainnet == unknown || ropsten == unknown {
		t.Error("advisories for mainnet, ropsten and unknown networks must differ")
	}
	if !strings.Contains(unknown, "1337") {
		t.Errorf("unknown advisory %q should include the id", unknown)
	}
	if noNode != nilSource {
		t.Errorf("unreachable node and missing provider should read the same: %q vs %q", noNode, nilSource)
	}
}

func TestNetworkCheckCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewNetworkChecker(fakeNetwork{err: context.Canceled}, "42", testLogger()).Check(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestNetworkCheckLogsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	checker := NewNetworkChecker(fakeNetwork{err: errors.New("dial tcp: connection refused")}, "42", logger)
	if _, err := checker.Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"component":"network_checker"`) {
		t.Errorf("log line missing component: %s", out)
	}
	if !strings.Contains(out, "node unreachable") {
		t.Errorf("unreachable node not logged: %s", out)
	}
}
