package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var healthcheckAddress string
var healthcheckPort int
var healthcheckTimeout time.Duration

// healthcheckCmd probes a running instance. The endpoint answers 503 with
// status "degraded" when the store or database is unreachable, so both the
// HTTP status and the body are checked.
var healthcheckCmd = &cobra.Command{
	Use:   "healthcheck [url]",
	Short: "Check that a running instance is healthy",
	Long:  `Probe the health endpoint of a running instance and exit non-zero when it is unreachable or degraded.`,
	Run: func(cmd *cobra.Command, args []string) {
		baseURL := fmt.Sprintf("http://%s:%d", healthcheckAddress, healthcheckPort)
		if len(args) > 0 {
			baseURL = args[0]
		}

		client := http.Client{
			Timeout: healthcheckTimeout,
		}

		resp, err := client.Get(baseURL + "/api/health")
		if err != nil {
			log.Fatal().Err(err).Str("url", baseURL).Msg("Health endpoint unreachable")
		}
		defer resp.Body.Close()

		var health struct {
			Status  string `json:"status"`
			Message string `json:"message"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
			log.Fatal().Err(err).Msg("Malformed health response")
		}

		if resp.StatusCode != http.StatusOK || health.Status != "ok" {
			log.Fatal().Int("status", resp.StatusCode).Str("state", health.Status).Str("message", health.Message).Msg("Instance is not healthy")
		}

		log.Info().Str("url", baseURL).Msg("Instance is healthy")
	},
}

func init() {
	healthcheckCmd.Flags().StringVar(&healthcheckAddress, "address", "127.0.0.1", "Address the instance listens on")
	healthcheckCmd.Flags().IntVar(&healthcheckPort, "port", 3000, "Port the instance listens on")
	healthcheckCmd.Flags().DurationVar(&healthcheckTimeout, "timeout", 5*time.Second, "Request timeout")
}
