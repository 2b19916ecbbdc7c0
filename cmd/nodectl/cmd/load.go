package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/psantana5/nodehost/pkg/models"
	"github.com/psantana5/nodehost/pkg/retry"
	"github.com/spf13/cobra"
)

var (
	loadRemaps            []string
	loadArgs              []string
	loadAttach            bool
	loadHeartbeatInterval time.Duration
)

var loadCmd = &cobra.Command{
	Use:   "load <name> <type>",
	Short: "Load a plugin instance into the manager",
	Long: `Load instantiates a registered plugin type under a unique instance name.

With --attach the command mints a liveness bond, keeps heartbeating it and
blocks until interrupted. When the heartbeats stop (Ctrl+C, crash, network
partition) the manager notices the missed deadline and unloads the instance.

Example:
  nodectl load cam camera_driver
  nodectl load cam camera_driver --remap image_raw=/sensors/cam/image --args --fps=30
  nodectl load cam camera_driver --attach`,
	Args: cobra.ExactArgs(2),
	RunE: runLoad,
}

func init() {
	rootCmd.AddCommand(loadCmd)

	loadCmd.Flags().StringArrayVar(&loadRemaps, "remap", nil, "name remapping as source=target (repeatable)")
	loadCmd.Flags().StringArrayVar(&loadArgs, "args", nil, "argument passed to the instance (repeatable)")
	loadCmd.Flags().BoolVar(&loadAttach, "attach", false, "hold a liveness bond until interrupted")
	loadCmd.Flags().DurationVar(&loadHeartbeatInterval, "heartbeat-interval", time.Second, "interval between liveness heartbeats with --attach")
}

func runLoad(cmd *cobra.Command, args []string) error {
	name, typeName := args[0], args[1]

	sources, targets, err := splitRemaps(loadRemaps)
	if err != nil {
		return err
	}

	loadReq := models.LoadRequest{
		Name:        name,
		Type:        typeName,
		RemapSource: sources,
		RemapTarget: targets,
		Args:        loadArgs,
	}
	if loadAttach {
		loadReq.LivenessID = uuid.New().String()
	}

	body, err := json.Marshal(loadReq)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := CreateAuthenticatedRequest("POST", GetHostURL()+"/nodelets", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to host API: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var result models.LoadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if !result.Success {
		if result.Error != "" {
			return fmt.Errorf("load failed: %s", result.Error)
		}
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Loaded %s (type %s)\n", name, typeName)
	}

	if !loadAttach {
		return nil
	}
	return heartbeatLoop(name, loadReq.LivenessID)
}

// splitRemaps turns repeated source=target flags into the parallel arrays
// the load request carries.
func splitRemaps(pairs []string) ([]string, []string, error) {
	var sources, targets []string
	for _, pair := range pairs {
		source, target, ok := strings.Cut(pair, "=")
		if !ok || source == "" || target == "" {
			return nil, nil, fmt.Errorf("invalid remap %q, expected source=target", pair)
		}
		sources = append(sources, source)
		targets = append(targets, target)
	}
	return sources, targets, nil
}

var errBondGone = errors.New("bond no longer known to the host")

// heartbeatLoop posts liveness heartbeats until the process is interrupted.
// Stopping is the release mechanism: once the heartbeats cease the manager
// breaks the bond and unloads the instance on its own.
func heartbeatLoop(name, bondID string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		fmt.Printf("\nReceived %v, releasing bond for %s\n", sig, name)
		cancel()
	}()

	fmt.Printf("Holding liveness bond %s for %s. Press Ctrl+C to release.\n", bondID, name)

	client := &http.Client{Timeout: 5 * time.Second}
	url := fmt.Sprintf("%s/bonds/%s/heartbeat", GetHostURL(), bondID)

	// The retry burst must finish well inside the manager's heartbeat
	// timeout (4s default) or the bond breaks while we are still backing off.
	burst := retry.Config{
		MaxRetries:     3,
		InitialBackoff: 200 * time.Millisecond,
		MaxBackoff:     time.Second,
		Multiplier:     2.0,
	}

	ticker := time.NewTicker(loadHeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			err := postHeartbeat(client, url)
			if err == nil {
				continue
			}
			if errors.Is(err, errBondGone) {
				return fmt.Errorf("bond %s was dropped by the host, instance %s is gone", bondID, name)
			}
			if !retry.IsRetryable(err) {
				return fmt.Errorf("heartbeat failed: %w", err)
			}
			if err := retry.Do(ctx, burst, func() error { return postHeartbeat(client, url) }); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("lost contact with host: %w", err)
			}
		}
	}
}

func postHeartbeat(client *http.Client, url string) error {
	req, err := CreateAuthenticatedRequest("POST", url, nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		return errBondGone
	default:
		return fmt.Errorf("heartbeat rejected (status %d)", resp.StatusCode)
	}
}
