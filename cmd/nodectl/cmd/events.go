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

var eventsLimit int

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Show recent host activity from the journal",
	RunE:  runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 20, "maximum number of events to show")
}

func runEvents(cmd *cobra.Command, args []string) error {
	url := fmt.Sprintf("%s/events?limit=%d", GetHostURL(), eventsLimit)
	req, err := CreateAuthenticatedRequest("GET", url, nil)
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

	var result models.EventsResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	if IsJSONOutput() {
		output, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(output))
		return nil
	}

	if result.Count == 0 {
		fmt.Println("No events recorded")
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Time", "Event", "Instance", "Detail")

	for _, ev := range result.Events {
		name := ev.Name
		if name == "" {
			name = "-"
		}
		table.Append(
			ev.Time.Local().Format("2006-01-02 15:04:05"),
			string(ev.Type),
			name,
			ev.Detail,
		)
	}

	table.Render()
	fmt.Printf("\nTotal events: %d\n", result.Count)
	return nil
}
