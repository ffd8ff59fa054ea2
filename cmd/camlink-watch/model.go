package main

import (
	"fmt"
	"sort"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/trailcam/camlink"
)

// Style definitions
var (
	headerStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("62")).
			Foreground(lipgloss.Color("230")).
			Padding(0, 1)

	hostStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("81"))

	connectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	downStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("203"))

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))
)

type tickMsg time.Time

// frameMsg carries the metadata of the most recent frame for one host.
type frameMsg struct {
	host string
	info camlink.FrameInfo
}

type hostView struct {
	stats     camlink.HandleStats
	lastInfo  camlink.FrameInfo
	haveFrame bool
}

type model struct {
	registry *camlink.Registry
	handles  []*camlink.Handle
	hosts    []string
	views    map[string]*hostView
	width    int
}

func newModel(registry *camlink.Registry, hosts []string) (*model, error) {
	m := &model{
		registry: registry,
		hosts:    hosts,
		views:    make(map[string]*hostView),
	}
	sort.Strings(m.hosts)
	for _, host := range m.hosts {
		h, err := registry.GetOrCreate(host)
		if err != nil {
			return nil, fmt.Errorf("handle for %s: %w", host, err)
		}
		m.handles = append(m.handles, h)
		m.views[host] = &hostView{}
	}
	return m, nil
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *model) Init() tea.Cmd {
	return tickCmd()
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tickMsg:
		for _, h := range m.handles {
			m.views[h.Host()].stats = h.Stats()
		}
		return m, tickCmd()

	case frameMsg:
		v := m.views[msg.host]
		v.lastInfo = msg.info
		v.haveFrame = true

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			for _, h := range m.handles {
				if h.IsConnected() {
					h.Toggle()
				}
			}
			return m, tea.Quit
		case "t":
			// Toggle every link, for exercising the reconnect path by hand.
			for _, h := range m.handles {
				h.Toggle()
			}
		}
	}
	return m, nil
}

func (m *model) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf(" camlink-watch %s ", version)))
	b.WriteString("\n\n")

	for _, host := range m.hosts {
		v := m.views[host]
		stats := v.stats.Link

		stateText := stats.State.String()
		if stats.State == camlink.StateConnected {
			stateText = connectedStyle.Render(stateText)
		} else {
			stateText = downStyle.Render(stateText)
		}

		b.WriteString(fmt.Sprintf("%s  %s\n", hostStyle.Render(host), stateText))
		b.WriteString(fmt.Sprintf("  frames %d   decode errors %d   reconnects %d   heartbeats %d\n",
			stats.FramesDecoded, stats.DecodeErrors, stats.Reconnects, stats.HeartbeatsSent))

		if v.haveFrame {
			t := v.lastInfo.Telemetry
			c := v.lastInfo.Camera
			b.WriteString(fmt.Sprintf("  %dx%d @ %d fps   sensor %.1f°C   ffc %s   device frame #%d\n",
				c.ResX, c.ResY, c.FPS, t.TempC, t.FFCState, t.FrameCount))
			if len(v.lastInfo.Tracks) > 0 {
				track := v.lastInfo.Tracks[0]
				if len(track.Predictions) > 0 {
					p := track.Predictions[0]
					b.WriteString(fmt.Sprintf("  detection: %s (%.0f%%)\n", p.Label, p.Confidence*100))
				}
			}
		} else {
			b.WriteString(dimStyle.Render("  waiting for first frame...") + "\n")
		}

		if !stats.LastFrameAt.IsZero() {
			b.WriteString(dimStyle.Render(
				fmt.Sprintf("  last frame %s ago", time.Since(stats.LastFrameAt).Round(time.Second))) + "\n")
		}

		for id, sub := range v.stats.Subscribers {
			b.WriteString(dimStyle.Render(
				fmt.Sprintf("  subscriber %s: sent %d dropped %d", id, sub.Sent, sub.Dropped)) + "\n")
		}
		b.WriteString("\n")
	}

	b.WriteString(dimStyle.Render("q quit · t toggle links"))
	return b.String()
}
