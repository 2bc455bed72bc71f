package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"sitepilot/internal/deploy"
	"sitepilot/internal/session"
)

// chromeHeight is the number of rows around the transcript viewport:
// header, tab bar, input frame (3), footer.
const chromeHeight = 6

func (m Model) View() string {
	if !m.ready {
		return "starting…"
	}

	var b strings.Builder
	b.WriteString(m.theme.header.Width(m.width).Render("sitepilot"))
	b.WriteString("\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n")
	b.WriteString(m.transcript.View())
	b.WriteString("\n")
	b.WriteString(m.theme.inputFrame.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderTabs() string {
	order := m.store.Order()
	active := m.store.ActiveID()

	parts := make([]string, 0, len(order))
	for i, id := range order {
		sess, ok := m.store.Get(id)
		if !ok {
			continue
		}
		label := fmt.Sprintf("%d %s", i+1, sess.Title)
		if sess.IsStreaming {
			label += " " + m.spin.View()
		}
		switch {
		case id == active:
			parts = append(parts, m.theme.tabActive.Render(label))
		case sess.IsStreaming:
			parts = append(parts, m.theme.tabBusy.Render(label))
		default:
			parts = append(parts, m.theme.tabInactive.Render(label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, parts...)
}

func (m Model) renderFooter() string {
	var status []string

	if m.noAuth {
		status = append(status, m.theme.statusBad.Render("signed out"))
	} else if m.healthy {
		status = append(status, m.theme.statusGood.Render("online"))
	} else {
		status = append(status, m.theme.statusBad.Render("offline"))
	}

	switch m.deployState {
	case deploy.StatePolling:
		status = append(status, m.theme.statusBusy.Render("publishing "+m.spin.View()))
	case deploy.StateDeployed:
		status = append(status, m.theme.statusGood.Render("live!"))
	}

	if m.usage != nil && m.usage.Limit > 0 {
		status = append(status, m.theme.footer.Render(fmt.Sprintf("usage %d/%d", m.usage.Used, m.usage.Limit)))
	}

	help := m.theme.helpText.Render("enter send · esc stop · ctrl+n new tab · ctrl+w close · tab switch · ctrl+c quit")
	left := strings.Join(status, m.theme.footer.Render(" │ "))

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(help)
	if gap < 1 {
		return left
	}
	return left + strings.Repeat(" ", gap) + help
}

// renderTranscript builds the viewport content for one session snapshot
func renderTranscript(th theme, sess session.Session, spinFrame string, width int) string {
	if width < 10 {
		width = 10
	}
	body := th.messageBody.Width(width)

	var b strings.Builder
	for _, msg := range sess.Messages {
		switch msg.Role {
		case session.RoleUser:
			b.WriteString(th.userLabel.Render("You"))
		default:
			b.WriteString(th.assistantLabel.Render("Sitepilot"))
		}
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Content))
		b.WriteString("\n\n")
	}

	for _, tool := range sess.ActiveTools {
		b.WriteString(renderTool(th, tool, spinFrame))
		b.WriteString("\n")
	}
	if len(sess.ActiveTools) > 0 {
		b.WriteString("\n")
	}

	if sess.IsStreaming {
		b.WriteString(th.assistantLabel.Render("Sitepilot"))
		b.WriteString(" ")
		b.WriteString(spinFrame)
		b.WriteString("\n")
		if sess.StreamingText != "" {
			b.WriteString(th.streamingBody.Width(width).Render(sess.StreamingText))
			b.WriteString("\n")
		}
	}

	return strings.TrimRight(b.String(), "\n")
}

func renderTool(th theme, tool session.ToolActivity, spinFrame string) string {
	label := toolLabel(tool.Tool)
	switch tool.Status {
	case session.ToolRunning:
		return th.toolRunning.Render(spinFrame + " " + label)
	case session.ToolError:
		return th.toolError.Render("✗ " + label)
	default:
		return th.toolDone.Render("✓ " + label)
	}
}

// toolLabel humanizes a snake_case tool name
func toolLabel(name string) string {
	name = strings.ReplaceAll(name, "_", " ")
	if name == "" {
		return "working"
	}
	return name
}
