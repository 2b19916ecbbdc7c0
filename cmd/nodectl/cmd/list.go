package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/psantana5/nodehost/pkg/models"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List loaded plugin instances",
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	req, err := CreateAuthenticatedRequest("GET", GetHostURL()+"/instances", nil)
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
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result models.InstanceListResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if result.Count == 0 {
		fmt.Println("No instances loaded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Name", "Type", "Bond", "Queued", "Loaded")

	for _, inst := range result.Instances {
		bond := inst.BondID
		if bond == "" {
			bond = "-"
		}
		table.Append(
			inst.Name,
			inst.Type,
			bond,
			fmt.Sprintf("%d", inst.QueueDepth),
			inst.LoadedAt.Format("2006-01-02 15:04"),
		)
	}

	table.Render()
	fmt.Printf("\nTotal instances: %d\n", result.Count)
	return nil
}
