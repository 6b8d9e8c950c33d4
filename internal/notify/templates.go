package notify

import (
	"fmt"
	"html"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/tis24dev/drivesave/internal/report"
	"github.com/tis24dev/drivesave/pkg/utils"
)

// SubjectTimeLayout formats the run start in the subject line.
const SubjectTimeLayout = "02.01.2006 15:04"

var printer = message.NewPrinter(language.English)

// BuildEmailSubject returns "Backup report - {kind} - {02.01.2006 15:04}".
func BuildEmailSubject(s report.Summary) string {
	subject := fmt.Sprintf("Backup report - %s - %s", s.Kind, s.StartTime.Format(SubjectTimeLayout))
	if s.Status == report.StatusFailure {
		subject += " - FAILED"
	}
	return subject
}

func filesLine(s report.Summary) string {
	return printer.Sprintf("%d / %d", s.Files.Succeeded, s.Files.Total)
}

// BuildEmailPlainText builds a plain text email body
func BuildEmailPlainText(s report.Summary) string {
	var body strings.Builder

	fmt.Fprintf(&body, "%s %s BACKUP REPORT - %s\n", GetStatusEmoji(s.Status), strings.ToUpper(s.Kind.String()), strings.ToUpper(StatusLabel(s.Status)))
	fmt.Fprintf(&body, "Started: %s\n", s.StartTime.Format("02.01.2006 15:04:05"))
	if !s.EndTime.IsZero() {
		fmt.Fprintf(&body, "Finished: %s\n", s.EndTime.Format("02.01.2006 15:04:05"))
	}
	body.WriteString("\n")

	if s.FatalError != "" {
		fmt.Fprintf(&body, "ERROR: %s\n\n", s.FatalError)
	}

	body.WriteString("SUMMARY:\n")
	fmt.Fprintf(&body, "  Duration:       %s\n", utils.FormatClock(s.Duration))
	fmt.Fprintf(&body, "  Files:          %s\n", filesLine(s))
	fmt.Fprintf(&body, "  Failed files:   %s\n", printer.Sprintf("%d", s.Files.Failed))
	fmt.Fprintf(&body, "  Total size:     %s\n", utils.FormatBytes(s.TotalBytes))
	fmt.Fprintf(&body, "  Average speed:  %s\n", utils.FormatMBps(s.AvgThroughputMBps))
	fmt.Fprintf(&body, "  Peak speed:     %s\n", utils.FormatMBps(s.PeakThroughputMBps))
	if s.Destination != "" {
		fmt.Fprintf(&body, "  Destination:    %s\n", s.Destination)
	}
	if s.NothingToDo {
		body.WriteString("  No files needed copying.\n")
	}
	if s.Interrupted {
		body.WriteString("  The run was interrupted before all files were copied.\n")
	}

	if len(s.ErrorSample) > 0 {
		fmt.Fprintf(&body, "\nFAILED FILES (%d):\n", s.Files.Failed)
		for _, e := range s.ErrorSample {
			fmt.Fprintf(&body, "  - %s\n", e.String())
		}
		if s.ErrorOverflow > 0 {
			fmt.Fprintf(&body, "  And %d more...\n", s.ErrorOverflow)
		}
	}

	if s.RunID != "" {
		fmt.Fprintf(&body, "\nRun ID: %s\n", s.RunID)
	}
	return body.String()
}

// BuildEmailHTML builds the HTML email body.
func BuildEmailHTML(s report.Summary) string {
	statusColor := getStatusColor(s.Status)

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n")
	b.WriteString("    <meta charset=\"UTF-8\">\n")
	fmt.Fprintf(&b, "    <title>%s Backup Report</title>\n", escapeHTML(s.Kind.String()))
	b.WriteString("    <style>\n")
	b.WriteString(getEmbeddedCSS())
	b.WriteString("    </style>\n</head>\n<body>\n")
	b.WriteString("    <div class=\"container\">\n")

	fmt.Fprintf(&b, "        <div class=\"header\" style=\"background-color: %s;\">\n", statusColor)
	fmt.Fprintf(&b, "            <h1>%s Backup Report</h1>\n", escapeHTML(s.Kind.String()))
	fmt.Fprintf(&b, "            <p>%s</p>\n", s.StartTime.Format("02.01.2006 15:04:05"))
	b.WriteString("        </div>\n")

	b.WriteString("        <div class=\"content\">\n")
	if s.FatalError != "" {
		fmt.Fprintf(&b, "            <div class=\"metric-box error\"><div class=\"metric-title\">Error</div>%s</div>\n", escapeHTML(s.FatalError))
	}

	b.WriteString("            <div class=\"metric-grid\">\n")
	boxClass := "success"
	if s.Status != report.StatusSuccess {
		boxClass = "warning"
	}
	b.WriteString(buildMetricBox(boxClass, "Status", GetStatusEmoji(s.Status)+" "+StatusLabel(s.Status)))
	b.WriteString(buildMetricBox("", "Duration", "⏱️ "+utils.FormatClock(s.Duration)))
	b.WriteString(buildMetricBox("", "Files Processed", "📁 "+filesLine(s)+progressBar(s)))
	b.WriteString(buildMetricBox("", "Total Size", "💾 "+utils.FormatBytes(s.TotalBytes)))
	b.WriteString(buildMetricBox("", "Average Speed", "⚡ "+utils.FormatMBps(s.AvgThroughputMBps)))
	b.WriteString(buildMetricBox("", "Peak Speed", "🚀 "+utils.FormatMBps(s.PeakThroughputMBps)))
	b.WriteString("            </div>\n")

	if len(s.ErrorSample) > 0 {
		b.WriteString("            <div class=\"metric-box error\" style=\"margin-top: 20px;\">\n")
		fmt.Fprintf(&b, "                <div class=\"metric-title\">Failed Files (%d)</div>\n", s.Files.Failed)
		b.WriteString("                <div style=\"margin-top: 10px; font-size: 14px;\">\n")
		for _, e := range s.ErrorSample {
			fmt.Fprintf(&b, "                    ❌ %s<br>\n", escapeHTML(e.String()))
		}
		if s.ErrorOverflow > 0 {
			fmt.Fprintf(&b, "                    <div style=\"color: #666;\">And %d more...</div>\n", s.ErrorOverflow)
		}
		b.WriteString("                </div>\n            </div>\n")
	}

	if s.Destination != "" {
		b.WriteString("            <table class=\"info-table\">\n")
		b.WriteString(buildInfoTableRow("Destination", s.Destination))
		b.WriteString(buildInfoTableRow("Run ID", valueOrNA(s.RunID)))
		b.WriteString("            </table>\n")
	}

	b.WriteString("        </div>\n")
	b.WriteString("        <div class=\"footer\">Generated by drivesave</div>\n")
	b.WriteString("    </div>\n</body>\n</html>")
	return b.String()
}

func progressBar(s report.Summary) string {
	pct := 0.0
	if s.Files.Total > 0 {
		pct = float64(s.Files.Succeeded) * 100 / float64(s.Files.Total)
	}
	return fmt.Sprintf("<div class=\"progress-bar\"><div class=\"progress-value\" style=\"width: %.0f%%;\"></div></div>", pct)
}

func buildMetricBox(class, title, value string) string {
	cls := "metric-box"
	if class != "" {
		cls += " " + class
	}
	return fmt.Sprintf("                <div class=\"%s\">\n                    <div class=\"metric-title\">%s</div>\n                    <div class=\"metric-value\">%s</div>\n                </div>\n", cls, escapeHTML(title), value)
}

// buildInfoTableRow builds a table row for the info table
func buildInfoTableRow(label, value string) string {
	return fmt.Sprintf("                <tr>\n                    <td>%s</td>\n                    <td>%s</td>\n                </tr>\n", escapeHTML(label), escapeHTML(value))
}

func valueOrNA(value string) string {
	if strings.TrimSpace(value) == "" {
		return "N/A"
	}
	return value
}

func escapeHTML(value string) string {
	return html.EscapeString(value)
}

// getStatusColor returns the header color for a given status
func getStatusColor(status report.Status) string {
	switch status {
	case report.StatusSuccess:
		return "#4CAF50"
	case report.StatusPartial:
		return "#FF9800"
	case report.StatusFailure:
		return "#F44336"
	default:
		return "#9E9E9E"
	}
}

func getEmbeddedCSS() string {
	return `        body {
            font-family: 'Segoe UI', Arial, sans-serif;
            margin: 0;
            padding: 0;
            color: #333;
            background-color: #f5f5f5;
        }
        .container {
            max-width: 800px;
            margin: 0 auto;
            background-color: #fff;
            border-radius: 8px;
            overflow: hidden;
        }
        .header {
            color: white;
            padding: 20px 30px;
        }
        .header h1 {
            margin: 0;
            font-weight: 500;
            font-size: 24px;
        }
        .content {
            padding: 30px;
        }
        .metric-grid {
            display: grid;
            grid-template-columns: repeat(2, 1fr);
            gap: 15px;
        }
        .metric-box {
            background-color: #f9f9f9;
            border-radius: 6px;
            padding: 15px;
            border-left: 4px solid #2196F3;
        }
        .metric-box.success { border-left-color: #4CAF50; }
        .metric-box.warning { border-left-color: #FF9800; }
        .metric-box.error { border-left-color: #F44336; }
        .metric-title {
            font-size: 13px;
            color: #777;
            text-transform: uppercase;
        }
        .metric-value {
            font-size: 18px;
            margin-top: 5px;
        }
        .progress-bar {
            height: 6px;
            background-color: #eee;
            border-radius: 3px;
            margin-top: 8px;
            overflow: hidden;
        }
        .progress-value {
            height: 100%;
            background-color: #4CAF50;
        }
        .info-table {
            width: 100%;
            border-collapse: collapse;
            margin-top: 20px;
        }
        .info-table td {
            padding: 8px;
            border-bottom: 1px solid #eee;
        }
        .footer {
            background-color: #f8f8f8;
            padding: 15px 30px;
            text-align: center;
            font-size: 13px;
            color: #777;
        }
`
}
