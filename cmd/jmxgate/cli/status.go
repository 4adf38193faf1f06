package cli

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmxgate/jmxgate/internal/model"
)

func newStatusCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check if the jmxgate server is running",
		Long:  "Query the readiness endpoint of a running jmxgate server and report its RBAC state.",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr == "" {
				addr = defaultStatusAddr()
			}
			return runStatus(cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Server base URL (default from server.host and server.port)")

	return cmd
}

func defaultStatusAddr() string {
	port := viper.GetInt("server.port")
	if port == 0 {
		port = 8443
	}
	host := viper.GetString("server.host")
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}
	scheme := "http"
	if viper.GetString("server.tls.cert_file") != "" {
		scheme = "https"
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(port))
}

func runStatus(cmd *cobra.Command, addr string) error {
	out := cmd.OutOrStdout()
	readyAddr := addr + "/readyz"
	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(readyAddr)
	if err != nil {
		fmt.Fprintf(out, "Server is not responding at %s\n", addr)
		return fmt.Errorf("status: %w", err)
	}
	defer resp.Body.Close()

	var ready model.ReadyResponse
	if err := json.NewDecoder(resp.Body).Decode(&ready); err != nil {
		return fmt.Errorf("status: decode %s: %w", readyAddr, err)
	}

	fmt.Fprintf(out, "Server is running at %s\n", addr)
	fmt.Fprintf(out, "  Ready:   %s (%d)\n", ready.Status, resp.StatusCode)
	if ready.Version != "" {
		fmt.Fprintf(out, "  Version: %s\n", ready.Version)
	}
	if ready.RBAC {
		fmt.Fprintf(out, "  RBAC:    enabled (%d rules)\n", ready.ACLRules)
	} else {
		fmt.Fprintln(out, "  RBAC:    disabled")
	}
	return nil
}
