package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"github.com/psantana5/nodehost/pkg/models"
	"github.com/spf13/cobra"
)

var statusWithMetrics bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show manager status and health",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().BoolVar(&statusWithMetrics, "metrics", false, "also fetch and display host metrics")
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	req, err := CreateAuthenticatedRequest("GET", GetHostURL()+"/status", nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

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

	var status models.StatusResponse
	if err := json.Unmarshal(respBody, &status); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}

	var samples []metricSample
	if statusWithMetrics {
		samples, err = fetchMetrics(client)
		if err != nil {
			return err
		}
	}

	if IsJSONOutput() {
		if statusWithMetrics {
			output, _ := json.MarshalIndent(struct {
				Status  models.StatusResponse `json:"status"`
				Metrics []metricSample        `json:"metrics"`
			}{status, samples}, "", "  ")
			fmt.Println(string(output))
		} else {
			output, _ := json.MarshalIndent(status, "", "  ")
			fmt.Println(string(output))
		}
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Property", "Value")

	table.Append([]string{"State", status.State})
	table.Append([]string{"Uptime", (time.Duration(status.UptimeSeconds) * time.Second).String()})
	table.Append([]string{"Worker Threads", fmt.Sprintf("%d", status.WorkerThreads)})
	table.Append([]string{"Instances", fmt.Sprintf("%d", status.Instances)})
	table.Append([]string{"Active Bonds", fmt.Sprintf("%d", status.ActiveBonds)})
	table.Append([]string{"Queue Depth", fmt.Sprintf("%d", status.QueueDepth)})
	table.Append([]string{"Tasks In Flight", fmt.Sprintf("%d", status.TasksInFlight)})
	table.Append([]string{"Hostname", status.System.Hostname})
	if status.System.CPUModel != "" {
		table.Append([]string{"CPU", fmt.Sprintf("%s (%d threads)", status.System.CPUModel, status.System.CPUThreads)})
	} else {
		table.Append([]string{"CPU Threads", fmt.Sprintf("%d", status.System.CPUThreads)})
	}
	if status.System.RAMBytes > 0 {
		totalGB := float64(status.System.RAMBytes) / (1024 * 1024 * 1024)
		table.Append([]string{"Total RAM", fmt.Sprintf("%.2f GB", totalGB)})
	}
	table.Append([]string{"Go Version", status.System.GoVersion})

	table.Render()

	if statusWithMetrics {
		fmt.Println()
		metricsTable := tablewriter.NewWriter(os.Stdout)
		metricsTable.Header("Metric", "Labels", "Value")
		for _, s := range samples {
			labels := s.Labels
			if labels == "" {
				labels = "-"
			}
			metricsTable.Append(s.Name, labels, s.Value)
		}
		metricsTable.Render()
	}
	return nil
}

type metricSample struct {
	Name   string `json:"name"`
	Labels string `json:"labels,omitempty"`
	Value  string `json:"value"`
}

// fetchMetrics scrapes the manager's Prometheus endpoint and keeps the
// nodehost families, skipping the Go runtime and process noise.
func fetchMetrics(client *http.Client) ([]metricSample, error) {
	req, err := CreateAuthenticatedRequest("GET", GetHostURL()+"/metrics", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to host API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse metrics: %w", err)
	}

	var samples []metricSample
	for name, mf := range families {
		if !strings.HasPrefix(name, "nodehost_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			value, ok := sampleValue(mf.GetType(), m)
			if !ok {
				continue
			}
			samples = append(samples, metricSample{
				Name:   name,
				Labels: formatLabels(m.GetLabel()),
				Value:  value,
			})
		}
	}

	sort.Slice(samples, func(i, j int) bool {
		if samples[i].Name != samples[j].Name {
			return samples[i].Name < samples[j].Name
		}
		return samples[i].Labels < samples[j].Labels
	})
	return samples, nil
}

func sampleValue(t dto.MetricType, m *dto.Metric) (string, bool) {
	switch t {
	case dto.MetricType_COUNTER:
		return formatSampleFloat(m.GetCounter().GetValue()), true
	case dto.MetricType_GAUGE:
		return formatSampleFloat(m.GetGauge().GetValue()), true
	case dto.MetricType_UNTYPED:
		return formatSampleFloat(m.GetUntyped().GetValue()), true
	default:
		return "", false
	}
}

func formatSampleFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatLabels(pairs []*dto.LabelPair) string {
	if len(pairs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(pairs))
	for _, lp := range pairs {
		parts = append(parts, lp.GetName()+"="+lp.GetValue())
	}
	return strings.Join(parts, ",")
}
