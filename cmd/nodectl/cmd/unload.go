package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/psantana5/nodehost/pkg/models"
	"github.com/spf13/cobra"
)

var unloadCmd = &cobra.Command{
	Use:   "unload <name>",
	Short: "Unload a plugin instance from the manager",
	Args:  cobra.ExactArgs(1),
	RunE:  runUnload,
}

func init() {
	rootCmd.AddCommand(unloadCmd)
}

func runUnload(cmd *cobra.Command, args []string) error {
	name := args[0]

	req, err := CreateAuthenticatedRequest("DELETE", GetHostURL()+"/nodelets/"+name, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

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

	var result models.UnloadResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}
	if !result.Success {
		if resp.StatusCode == http.StatusNotFound {
			return fmt.Errorf("instance %s is not loaded", name)
		}
		if result.Error != "" {
			return fmt.Errorf("unload failed: %s", result.Error)
		}
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
	} else {
		fmt.Printf("Unloaded %s\n", name)
	}
	return nil
}
