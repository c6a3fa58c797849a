// Package report renders pool status snapshots for operators
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/opscart/agent-resource-manager/pkg/facade"
	"github.com/opscart/agent-resource-manager/pkg/models"
)

// Format represents the output format
type Format string

const (
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
)

// Renderer writes health reports in a fixed format
type Renderer struct {
	format Format
}

// New creates a renderer. Unknown formats fall back to plain text.
func New(format Format) *Renderer {
	if format != FormatMarkdown {
		format = FormatText
	}
	return &Renderer{format: format}
}

// Render writes the report with optional recent scaling events per agent
func (r *Renderer) Render(w io.Writer, report facade.HealthReport, events map[string][]models.ScalingEvent) error {
	if r.format == FormatMarkdown {
		return renderMarkdown(w, report, events)
	}
	return renderText(w, report, events)
}

func renderText(w io.Writer, report facade.HealthReport, events map[string][]models.ScalingEvent) error {
	fmt.Fprintf(w, "Agent Resource Manager - status at %s\n\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "System:   %s\n", report.SystemStatus)
	fmt.Fprintf(w, "Pressure: %s (score %.1f, trend %s)\n",
		report.PressureLevel, report.PressureScore, trendOrDash(report.PressureTrend))
	fmt.Fprintf(w, "Agents:   %d registered\n", report.RegisteredAgents)
	fmt.Fprintf(w, "Capacity: %s committed, %s available, %d active allocations\n\n",
		formatQuantity(report.Committed), formatQuantity(report.Available), report.ActiveAllocations)

	if len(report.Agents) > 0 {
		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "AGENT\tSTATUS\tCPU%\tMEM%\tREPLICAS")
		for _, agent := range report.Agents {
			fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%d/%d\n",
				agent.AgentID, agent.Status,
				agent.CPUUtilizationPercent, agent.MemoryUtilizationPercent,
				agent.Replicas.Current, agent.Replicas.Desired)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	for agentID, agentEvents := range events {
		if len(agentEvents) == 0 {
			continue
		}
		fmt.Fprintf(w, "\nRecent scaling events for %s:\n", agentID)
		for _, event := range agentEvents {
			outcome := "ok"
			if !event.Success {
				outcome = "FAILED: " + event.Error
			}
			fmt.Fprintf(w, "  %s  %s %d->%d (%s) %s\n",
				event.Timestamp.Format(time.RFC3339), event.Type,
				event.FromReplicas, event.ToReplicas, event.Trigger, outcome)
		}
	}
	return nil
}

func renderMarkdown(w io.Writer, report facade.HealthReport, events map[string][]models.ScalingEvent) error {
	fmt.Fprintf(w, "# Agent Resource Manager Status\n\n")
	fmt.Fprintf(w, "Generated at %s\n\n", report.Timestamp.Format(time.RFC3339))
	fmt.Fprintf(w, "| | |\n|---|---|\n")
	fmt.Fprintf(w, "| System | %s |\n", report.SystemStatus)
	fmt.Fprintf(w, "| Pressure | %s (score %.1f, trend %s) |\n",
		report.PressureLevel, report.PressureScore, trendOrDash(report.PressureTrend))
	fmt.Fprintf(w, "| Registered agents | %d |\n", report.RegisteredAgents)
	fmt.Fprintf(w, "| Committed | %s |\n", formatQuantity(report.Committed))
	fmt.Fprintf(w, "| Available | %s |\n", formatQuantity(report.Available))
	fmt.Fprintf(w, "| Active allocations | %d |\n\n", report.ActiveAllocations)

	if len(report.Agents) > 0 {
		fmt.Fprintf(w, "## Agents\n\n")
		fmt.Fprintf(w, "| Agent | Status | CPU %% | Memory %% | Replicas |\n")
		fmt.Fprintf(w, "|---|---|---|---|---|\n")
		for _, agent := range report.Agents {
			fmt.Fprintf(w, "| %s | %s | %.1f | %.1f | %d/%d |\n",
				agent.AgentID, agent.Status,
				agent.CPUUtilizationPercent, agent.MemoryUtilizationPercent,
				agent.Replicas.Current, agent.Replicas.Desired)
		}
		fmt.Fprintln(w)
	}

	for agentID, agentEvents := range events {
		if len(agentEvents) == 0 {
			continue
		}
		fmt.Fprintf(w, "## Scaling events: %s\n\n", agentID)
		for _, event := range agentEvents {
			outcome := "ok"
			if !event.Success {
				outcome = "**failed**: " + event.Error
			}
			fmt.Fprintf(w, "- %s %s %d->%d (%s) %s\n",
				event.Timestamp.Format(time.RFC3339), event.Type,
				event.FromReplicas, event.ToReplicas, event.Trigger, outcome)
		}
		fmt.Fprintln(w)
	}
	return nil
}

func formatQuantity(q models.ResourceQuantity) string {
	parts := []string{
		fmt.Sprintf("%dm CPU", q.CPUMillicores),
		fmt.Sprintf("%s memory", formatBytes(q.MemoryBytes)),
	}
	if q.DiskBytes > 0 {
		parts = append(parts, fmt.Sprintf("%s disk", formatBytes(q.DiskBytes)))
	}
	if q.NetworkMbps > 0 {
		parts = append(parts, fmt.Sprintf("%d Mbps network", q.NetworkMbps))
	}
	return strings.Join(parts, ", ")
}

func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1fGi", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1fMi", float64(b)/float64(1<<20))
	default:
		return fmt.Sprintf("%dB", b)
	}
}

func trendOrDash(trend models.PressureTrend) string {
	if trend == "" {
		return "-"
	}
	return string(trend)
}
