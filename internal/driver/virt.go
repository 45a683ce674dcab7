package driver

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nite-io/wakeproxy/internal/config"
)

// VirtualizationDriver drives Proxmox LXC instances over the node's
// REST API, authenticated by a static API-token header. TLS transport
// setup follows the teacher's createTLSConfig shape in tls.go, adapted
// here to a client-side transport rather than a server one.
type VirtualizationDriver struct {
	logger     *logrus.Logger
	httpClient *http.Client
	baseURL    string
	authHeader string
}

// NewVirtualizationDriver returns nil, nil when keys are not
// configured — spec.md §6: "absent → driver disabled".
func NewVirtualizationDriver(keys config.PVEKeys, logger *logrus.Logger) (*VirtualizationDriver, error) {
	if !keys.Enabled() {
		return nil, nil
	}

	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: false},
	}

	return &VirtualizationDriver{
		logger:     logger,
		httpClient: &http.Client{Transport: transport},
		baseURL:    fmt.Sprintf("https://%s:%d/api2/json", keys.Hostname, keys.Port),
		authHeader: fmt.Sprintf("PVEAPIToken=%s!%s=%s", keys.User, keys.TokenID, keys.Token),
	}, nil
}

type pveStatusResponse struct {
	Data struct {
		Status string  `json:"status"`
		Uptime float64 `json:"uptime"`
	} `json:"data"`
}

func (d *VirtualizationDriver) currentStatus(ctx context.Context, node, vmid string) (*pveStatusResponse, error) {
	url := fmt.Sprintf("%s/nodes/%s/lxc/%s/status/current", d.baseURL, node, vmid)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", d.authHeader)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("driver: pve status %s returned %d", url, resp.StatusCode)
	}

	var out pveStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (d *VirtualizationDriver) action(ctx context.Context, node, vmid, verb string) error {
	url := fmt.Sprintf("%s/nodes/%s/lxc/%s/status/%s", d.baseURL, node, vmid, verb)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", d.authHeader)

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("driver: pve %s %s returned %d", verb, url, resp.StatusCode)
	}
	return nil
}

func (d *VirtualizationDriver) IsRunning(ctx context.Context, name string) (bool, error) {
	_, vmid, node, ok := ParseVirtualizationName(name)
	if !ok {
		return false, fmt.Errorf("driver: %q is not a virtualization name", name)
	}

	ctx, cancel := context.WithTimeout(ctx, StatusDeadline)
	defer cancel()

	status, err := d.currentStatus(ctx, node, vmid)
	if err != nil {
		return false, err
	}
	return status.Data.Status == "running", nil
}

// Start issues the LXC start endpoint and polls status/current for up
// to 30 iterations at 1 Hz to confirm the transition, per spec.md
// §4.1 and scenario 5. An already-running LXC is a no-op success,
// mirroring runtime.go's errdefs.IsNotModified handling: Proxmox
// answers status/start against a running LXC with a non-OK error
// rather than a silent no-op.
func (d *VirtualizationDriver) Start(ctx context.Context, name string) error {
	_, vmid, node, ok := ParseVirtualizationName(name)
	if !ok {
		return fmt.Errorf("driver: %q is not a virtualization name", name)
	}

	statusCtx, cancel := context.WithTimeout(ctx, StatusDeadline)
	status, err := d.currentStatus(statusCtx, node, vmid)
	cancel()
	if err == nil && status.Data.Status == "running" {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, ActionInitDeadline)
	err = d.action(initCtx, node, vmid, "start")
	cancel()
	if err != nil {
		return err
	}

	return d.pollUntil(ctx, node, vmid, "running")
}

// Stop is the mirror of Start: an already-stopped LXC is a no-op
// success rather than a surfaced error.
func (d *VirtualizationDriver) Stop(ctx context.Context, name string) error {
	_, vmid, node, ok := ParseVirtualizationName(name)
	if !ok {
		return fmt.Errorf("driver: %q is not a virtualization name", name)
	}

	statusCtx, cancel := context.WithTimeout(ctx, StatusDeadline)
	status, err := d.currentStatus(statusCtx, node, vmid)
	cancel()
	if err == nil && status.Data.Status == "stopped" {
		return nil
	}

	initCtx, cancel := context.WithTimeout(ctx, ActionInitDeadline)
	err = d.action(initCtx, node, vmid, "stop")
	cancel()
	if err != nil {
		return err
	}

	return d.pollUntil(ctx, node, vmid, "stopped")
}

func (d *VirtualizationDriver) pollUntil(ctx context.Context, node, vmid, wantStatus string) error {
	ctx, cancel := context.WithTimeout(ctx, ActionPollDeadline)
	defer cancel()

	ticker := time.NewTicker(ActionPollInterval)
	defer ticker.Stop()

	for i := 0; i < maxActionPollCycles; i++ {
		status, err := d.currentStatus(ctx, node, vmid)
		if err == nil && status.Data.Status == wantStatus {
			return nil
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("driver: timed out waiting for %s@%s to reach %q", vmid, node, wantStatus)
		case <-ticker.C:
		}
	}

	return fmt.Errorf("driver: %s@%s did not reach %q after %d polls", vmid, node, wantStatus, maxActionPollCycles)
}

// List is unsupported for the virtualization driver: names are
// declared explicitly by the config document, not discovered.
func (d *VirtualizationDriver) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

// StartedAt derives the start instant from now-uptime, per spec.md §4.1.
func (d *VirtualizationDriver) StartedAt(ctx context.Context, name string) (time.Time, bool) {
	_, vmid, node, ok := ParseVirtualizationName(name)
	if !ok {
		return time.Time{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, StatusDeadline)
	defer cancel()

	status, err := d.currentStatus(ctx, node, vmid)
	if err != nil || status.Data.Status != "running" || status.Data.Uptime <= 0 {
		return time.Time{}, false
	}

	return time.Now().Add(-time.Duration(status.Data.Uptime) * time.Second), true
}
