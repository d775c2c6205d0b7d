package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/dcwire/aircore/internal/cliutil"
	"github.com/dcwire/aircore/internal/prompt"
	"github.com/dcwire/aircore/pkg/config"
)

var (
	statusPidFile  string
	statusDetailed bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host status",
	Long: `Display the current status of the aircore host.

This checks for a running process via PID file, then probes the API's
health endpoint if the API is configured and enabled. --detailed logs
into the API and additionally reports run id, uptime, joined hubs,
indexed file count and upload queue depth.`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusPidFile, "pid-file", "", "Path to PID file (default: $XDG_STATE_HOME/aircore/aircored.pid)")
	statusCmd.Flags().BoolVar(&statusDetailed, "detailed", false, "Log into the API and show index/queue/hub detail")
}

type apiStatus struct {
	RunID      string    `json:"run_id"`
	StartedAt  time.Time `json:"started_at"`
	Hubs       []string  `json:"hubs"`
	FileCount  int       `json:"file_count"`
	UploadWait int       `json:"upload_waiting"`
}

type healthResponse struct {
	Status string `json:"status"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	pidPath := statusPidFile
	if pidPath == "" {
		pidPath = GetDefaultPidFile()
	}

	running := false
	pid := 0
	if pidData, err := os.ReadFile(pidPath); err == nil {
		if p, err := strconv.Atoi(strings.TrimSpace(string(pidData))); err == nil {
			if process, err := os.FindProcess(p); err == nil {
				if err := process.Signal(syscall.Signal(0)); err == nil {
					running = true
					pid = p
				}
			}
		}
	}

	healthy := false
	healthMsg := "no API configured"
	cfg, err := config.Load(GetConfigFile())
	if err == nil && cfg.API.Enabled {
		client := &http.Client{Timeout: 2 * time.Second}
		resp, err := client.Get(fmt.Sprintf("http://%s/health", cfg.API.Listen))
		if err != nil {
			healthMsg = fmt.Sprintf("health check failed: %v", err)
		} else {
			defer func() { _ = resp.Body.Close() }()
			var h healthResponse
			if err := json.NewDecoder(resp.Body).Decode(&h); err == nil && h.Status == "ok" {
				healthy = true
				running = true
				healthMsg = "healthy"
			} else {
				healthMsg = "responded but unhealthy"
			}
		}
	}

	statusLine := "stopped"
	if running {
		statusLine = "running"
		if healthy {
			statusLine = "running (healthy)"
		}
	}

	pairs := [][2]string{
		{"Status", statusLine},
	}
	if pid != 0 {
		pairs = append(pairs, [2]string{"PID", strconv.Itoa(pid)})
	}
	pairs = append(pairs, [2]string{"Health", healthMsg})

	if statusDetailed && healthy && cfg != nil {
		detail, err := fetchDetailedStatus(cfg)
		if err != nil {
			pairs = append(pairs, [2]string{"Detail", fmt.Sprintf("unavailable: %v", err)})
		} else {
			pairs = append(pairs,
				[2]string{"Run ID", detail.RunID},
				[2]string{"Uptime", humanize.Time(detail.StartedAt)},
				[2]string{"Hubs joined", humanize.Comma(int64(len(detail.Hubs)))},
				[2]string{"Files indexed", humanize.Comma(int64(detail.FileCount))},
				[2]string{"Uploads waiting", humanize.Comma(int64(detail.UploadWait))},
			)
		}
	}

	cliutil.KeyValueTable(os.Stdout, pairs)
	return nil
}

func fetchDetailedStatus(cfg *config.Config) (*apiStatus, error) {
	if !cfg.API.Enabled {
		return nil, fmt.Errorf("api is not enabled in this configuration")
	}

	username := cfg.API.OperatorUsername
	password, err := prompt.Password(fmt.Sprintf("Password for %s", username))
	if err != nil {
		return nil, fmt.Errorf("failed to read password: %w", err)
	}

	baseURL := fmt.Sprintf("http://%s", cfg.API.Listen)
	client := &http.Client{Timeout: 5 * time.Second}

	token, err := apiLogin(client, baseURL, username, password)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/status", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status request failed: %s", resp.Status)
	}

	var detail apiStatus
	if err := json.NewDecoder(resp.Body).Decode(&detail); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &detail, nil
}
