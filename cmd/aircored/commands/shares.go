package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dcwire/aircore/internal/cliutil"
	"github.com/dcwire/aircore/internal/prompt"
	"github.com/dcwire/aircore/pkg/config"
)

var sharesUsername string

var sharesCmd = &cobra.Command{
	Use:   "shares",
	Short: "List shared roots known to a running host",
	Long: `List the share roots a running aircore host currently serves,
fetched over the host's API.`,
	RunE: runShares,
}

func init() {
	sharesCmd.Flags().StringVar(&sharesUsername, "username", "", "API operator username (default: the host's configured operator_username)")
}

type apiRoot struct {
	VirtualName string `json:"virtual_name"`
	RealPath    string `json:"real_path"`
	Incoming    bool   `json:"incoming"`
}

func runShares(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}
	if !cfg.API.Enabled {
		return fmt.Errorf("api is not enabled in this configuration")
	}

	username := sharesUsername
	if username == "" {
		username = cfg.API.OperatorUsername
	}
	password, err := prompt.Password(fmt.Sprintf("Password for %s", username))
	if err != nil {
		return fmt.Errorf("failed to read password: %w", err)
	}

	baseURL := fmt.Sprintf("http://%s", cfg.API.Listen)
	client := &http.Client{Timeout: 5 * time.Second}

	token, err := apiLogin(client, baseURL, username, password)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(http.MethodGet, baseURL+"/api/v1/shares", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch shares: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("shares request failed: %s: %s", resp.Status, string(body))
	}

	var roots []apiRoot
	if err := json.NewDecoder(resp.Body).Decode(&roots); err != nil {
		return fmt.Errorf("failed to decode shares response: %w", err)
	}

	table := cliutil.NewTableData("NAME", "PATH", "INCOMING")
	for _, root := range roots {
		incoming := "no"
		if root.Incoming {
			incoming = "yes"
		}
		table.AddRow(root.VirtualName, root.RealPath, incoming)
	}
	cliutil.PrintTable(os.Stdout, table)
	return nil
}

func apiLogin(client *http.Client, baseURL, username, password string) (string, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return "", err
	}

	resp, err := client.Post(baseURL+"/api/v1/auth/login", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("login request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("login failed: %s", resp.Status)
	}

	var loginResp struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&loginResp); err != nil {
		return "", fmt.Errorf("failed to decode login response: %w", err)
	}
	return loginResp.Token, nil
}
