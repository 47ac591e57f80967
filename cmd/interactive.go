package cmd

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/keeferrourke/rhpman-sim/logger"
	"github.com/keeferrourke/rhpman-sim/rhpman"
	"github.com/keeferrourke/rhpman-sim/sim"
	"github.com/keeferrourke/rhpman-sim/wire"
)

var (
	interactiveSeed  uint64
	interactivePart  int
	interactiveNodes int
	interactiveDelay time.Duration
	interactiveLoss  float64
	interactiveSpeed time.Duration
	interactiveCfg   = rhpman.DefaultConfig()
)

var interactiveCmd = &cobra.Command{
	Use:   "interactive",
	Short: "Drive a simulated cluster from a terminal UI",
	Long: `Start an interactive terminal UI over a simulated cluster. Virtual time
advances while the simulation is running and can be stepped by hand.

Keyboard shortcuts:
  C - Create a non-replicating node
  R - Create a replicating node
  D - Delete a node (shows selection menu)
  S - Save a new item on the selected node
  L - Look up a content ID from the selected node
  E - Run an election on the selected node
  B - Redraw the links between partitions
  T - Step virtual time by one second
  P - Pause or resume the clock
  ←/→ - Select a node
  Q - Quit

Examples:
  rhpman interactive
  rhpman interactive --nodes=8 --nodes-per-partition=4`,
	Run: runInteractive,
}

func init() {
	rootCmd.AddCommand(interactiveCmd)

	f := interactiveCmd.Flags()
	f.Uint64Var(&interactiveSeed, "seed", 1, "Random seed")
	f.IntVar(&interactiveNodes, "nodes", 0, "Nodes to create at start")
	f.IntVar(&interactivePart, "nodes-per-partition", 4, "Nodes in each partition")
	f.DurationVar(&interactiveDelay, "delay", 5*time.Millisecond, "Per-delivery latency")
	f.Float64Var(&interactiveLoss, "loss", 0, "Probability that a delivery is lost")
	f.DurationVar(&interactiveSpeed, "speed", time.Second, "Virtual time advanced per wall-clock second")
	addEngineFlags(interactiveCmd, &interactiveCfg)
}

const (
	tickInterval = 200 * time.Millisecond
	logCount     = 15
	firstItemID  = 1000
)

type model struct {
	cluster      *sim.Cluster
	members      []*sim.Member
	cursor       int // selected node in normal mode
	deleteMode   bool
	lookupMode   bool
	selected     int
	paused       bool
	nextItem     uint64
	err          error
	logBuffer    *logger.LogBuffer
	logWriter    *logger.LogBufferWriter
	logScroll    int // for scrolling logs
	width        int
	height       int
	lastCommand  string // Track last command for repeat (Enter key)
	numericInput string // Buffer for multi-digit numeric input in delete and lookup mode
}

func initialModel() (model, error) {
	// Initialize logger for interactive mode (no stdout, only log buffer)
	logBuffer := logger.GetGlobalLogBuffer()
	logger.Init("", false) // No prefix, no stdout
	logWriter := logger.NewLogBufferWriter(logBuffer)
	if err := logger.AddOutput(logWriter); err != nil {
		return model{}, err
	}
	if err := logger.SetDebug(debug); err != nil {
		return model{}, err
	}
	if err := interactiveCfg.Validate(); err != nil {
		return model{}, err
	}

	m := model{
		cluster: sim.NewCluster(sim.ClusterOptions{
			Seed:              interactiveSeed,
			NodesPerPartition: interactivePart,
			LossRate:          interactiveLoss,
			Delay:             interactiveDelay,
			Engine:            interactiveCfg,
		}),
		nextItem:  firstItemID,
		logBuffer: logBuffer,
		logWriter: logWriter,
	}
	for i := 0; i < interactiveNodes; i++ {
		if _, err := m.cluster.AddNode(rhpman.NonReplicating); err != nil {
			return model{}, err
		}
	}
	m.members = m.cluster.Members()
	return m, nil
}

func (m model) Init() tea.Cmd {
	return tick()
}

func tick() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg {
		return tickMsg{}
	})
}

type tickMsg struct{}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		// Handle quit
		if msg.String() == "q" || msg.String() == "ctrl+c" {
			m.cluster.StopAll()
			return m, tea.Quit
		}

		if m.deleteMode {
			return m.handleDeleteMode(msg)
		}
		if m.lookupMode {
			return m.handleLookupMode(msg)
		}

		switch msg.String() {
		case "c", "C":
			m.lastCommand = "create"
			return m.run(m.lastCommand), nil

		case "r", "R":
			m.lastCommand = "create-replicating"
			return m.run(m.lastCommand), nil

		case "s", "S":
			m.lastCommand = "save"
			return m.run(m.lastCommand), nil

		case "e", "E":
			m.lastCommand = "elect"
			return m.run(m.lastCommand), nil

		case "b", "B":
			m.lastCommand = "bridge"
			return m.run(m.lastCommand), nil

		case "t", "T":
			m.lastCommand = "step"
			return m.run(m.lastCommand), nil

		case "p", "P":
			m.paused = !m.paused
			return m, nil

		case "d", "D":
			// Enter delete mode
			if len(m.members) == 0 {
				m.err = fmt.Errorf("no nodes to delete")
				return m, nil
			}
			m.deleteMode = true
			m.selected = 0
			m.numericInput = ""
			return m, nil

		case "l", "L":
			if len(m.members) == 0 {
				m.err = fmt.Errorf("no node to look up from")
				return m, nil
			}
			m.lookupMode = true
			m.numericInput = ""
			return m, nil

		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
			return m, nil

		case "right":
			if m.cursor < len(m.members)-1 {
				m.cursor++
			}
			return m, nil

		case "enter":
			// Repeat last command/sequence
			if m.lastCommand == "" {
				return m, nil
			}
			return m.run(m.lastCommand), nil

		case "esc":
			m.err = nil
			return m, nil

		case "up", "k":
			// Scroll logs up (show older logs)
			maxScroll := len(m.logBuffer.GetAll()) - logCount
			if maxScroll < 0 {
				maxScroll = 0
			}
			if m.logScroll < maxScroll {
				m.logScroll++
			}
			return m, nil

		case "down", "j":
			// Scroll logs down (show newer logs)
			if m.logScroll > 0 {
				m.logScroll--
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if !m.paused {
			m.cluster.Step(interactiveSpeed / (time.Second / tickInterval))
		}
		return m, tick()
	}

	return m, nil
}

// run executes one command against the cluster. Commands are the strings
// recorded in lastCommand so Enter can replay them.
func (m model) run(command string) model {
	m.err = nil
	name, arg, _ := strings.Cut(command, ":")
	switch name {
	case "create", "create-replicating":
		role := rhpman.NonReplicating
		if name == "create-replicating" {
			role = rhpman.Replicating
		}
		if _, err := m.cluster.AddNode(role); err != nil {
			m.err = err
		}

	case "delete":
		index, err := strconv.Atoi(arg)
		if err != nil {
			m.err = fmt.Errorf("invalid node index: %s", arg)
			break
		}
		if index < 0 || index >= len(m.members) {
			m.err = fmt.Errorf("node index %d no longer exists", index+1)
			break
		}
		m.cluster.RemoveNode(m.members[index].Addr)

	case "save":
		member, ok := m.current()
		if !ok {
			m.err = fmt.Errorf("no node selected")
			break
		}
		id := m.nextItem
		m.nextItem++
		item := wire.NewContentItem(id, member.Addr, []byte(fmt.Sprintf("item %d from %s", id, member.Addr)))
		if !member.Engine.Save(item) {
			m.err = fmt.Errorf("save %d: primary store of %s is full", id, member.Addr)
		}

	case "lookup":
		member, ok := m.current()
		if !ok {
			m.err = fmt.Errorf("no node selected")
			break
		}
		id, err := strconv.ParseUint(arg, 10, 64)
		if err != nil {
			m.err = fmt.Errorf("invalid content id: %s", arg)
			break
		}
		if err := member.Engine.Lookup(id); err != nil {
			m.err = err
		}

	case "elect":
		member, ok := m.current()
		if !ok {
			m.err = fmt.Errorf("no node selected")
			break
		}
		if !member.Engine.RunElection() {
			m.err = fmt.Errorf("%s cannot start an election now", member.Addr)
		}

	case "bridge":
		m.cluster.Rebridge()

	case "step":
		m.cluster.Step(time.Second)
	}

	m.members = m.cluster.Members()
	if m.cursor >= len(m.members) {
		m.cursor = len(m.members) - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
	return m
}

func (m model) current() (*sim.Member, bool) {
	if m.cursor < 0 || m.cursor >= len(m.members) {
		return nil, false
	}
	return m.members[m.cursor], true
}

func (m model) handleDeleteMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.deleteMode = false
		m.selected = 0
		m.err = nil
		m.numericInput = ""
		return m, nil

	case "up", "k":
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case "down", "j":
		if m.selected < len(m.members)-1 {
			m.selected++
		}
		return m, nil

	case "enter", " ":
		index := m.selected
		// If there's numeric input, process that first
		if m.numericInput != "" {
			input := m.numericInput
			m.numericInput = ""
			num, err := strconv.Atoi(input)
			if err != nil || num < 1 || num > len(m.members) {
				m.err = fmt.Errorf("node %s does not exist (max: %d)", input, len(m.members))
				return m, nil
			}
			index = num - 1 // Convert to 0-based index
		}
		m.lastCommand = fmt.Sprintf("delete:%d", index)
		m = m.run(m.lastCommand)
		m.deleteMode = false
		m.selected = 0
		return m, nil

	default:
		m.numericInput = appendDigit(m.numericInput, msg.String())
		return m, nil
	}
}

func (m model) handleLookupMode(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.lookupMode = false
		m.numericInput = ""
		return m, nil

	case "enter":
		m.lookupMode = false
		if m.numericInput == "" {
			return m, nil
		}
		m.lastCommand = "lookup:" + m.numericInput
		m.numericInput = ""
		return m.run(m.lastCommand), nil

	default:
		m.numericInput = appendDigit(m.numericInput, msg.String())
		return m, nil
	}
}

// appendDigit extends a numeric input buffer; any other key clears it.
func appendDigit(buf, key string) string {
	if len(key) == 1 && key >= "0" && key <= "9" {
		return buf + key
	}
	return ""
}

func (m model) View() string {
	var s strings.Builder

	// Title
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Padding(1, 2)
	s.WriteString(titleStyle.Render("RHPMAN Cluster"))
	s.WriteString("\n")

	clock := fmt.Sprintf("  t=%s", m.cluster.Elapsed().Truncate(time.Millisecond))
	if m.paused {
		clock += " (paused)"
	}
	stats := m.cluster.Network().Stats()
	s.WriteString(fmt.Sprintf("%s  partitions=%d  bridges=%d  frames: %d delivered, %d lost\n\n",
		clock, m.cluster.Partitions(), len(m.cluster.Bridges()), stats.Delivered, stats.Lost))

	// Status
	if m.err != nil {
		errorStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
		s.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		s.WriteString("\n\n")
	}

	// Nodes list
	if len(m.members) == 0 {
		s.WriteString("No nodes running.\n\n")
	} else {
		s.WriteString("Nodes:\n\n")
		replicating := lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
		for i, member := range m.members {
			e := member.Engine
			role := e.Role().String()
			if e.Role() == rhpman.Replicating {
				role = replicating.Render(role)
			}
			line := fmt.Sprintf("[%d] %s p%d %-15s profile=%.2f replicators=%d primary=%d transit=%d pending=%d ok=%d fail=%d",
				i+1, member.Addr, member.Partition, role, e.CalculateProfile(), len(e.Replicators()),
				len(e.PrimaryItems()), len(e.TransitItems()), e.PendingLookups(), member.Successes, member.Failures)
			switch {
			case m.deleteMode && i == m.selected:
				// Highlight selected node in delete mode
				nodeStyle := lipgloss.NewStyle().
					PaddingLeft(2).
					Foreground(lipgloss.Color("196")).
					Bold(true)
				s.WriteString(nodeStyle.Render("> " + line))
			case !m.deleteMode && i == m.cursor:
				nodeStyle := lipgloss.NewStyle().
					PaddingLeft(2).
					Foreground(lipgloss.Color("62")).
					Bold(true)
				s.WriteString(nodeStyle.Render("* " + line))
			default:
				s.WriteString("    " + line)
			}
			s.WriteString("\n")
		}
		s.WriteString("\n")
	}

	s.WriteString(m.renderLogs())
	s.WriteString("\n\n")

	// Instructions
	instructionsStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true).
		PaddingTop(1)

	switch {
	case m.deleteMode:
		helpText := fmt.Sprintf("DELETE MODE: Use ↑/↓/j/k or type node number (1-%d), Enter to confirm, Esc to cancel", len(m.members))
		if m.numericInput != "" {
			helpText = fmt.Sprintf("DELETE MODE: Type node number (current: %s) or Enter to confirm, Esc to cancel", m.numericInput)
		}
		s.WriteString(instructionsStyle.Render(helpText))
	case m.lookupMode:
		s.WriteString(instructionsStyle.Render(fmt.Sprintf("LOOKUP: Type a content ID (current: %s), Enter to send, Esc to cancel", m.numericInput)))
	default:
		instructionText := "C/R create | D delete | S save | L lookup | E elect | B bridge | T step | P pause | ←/→ select"
		if m.lastCommand != "" {
			instructionText += fmt.Sprintf(" | Enter to repeat (%s)", formatCommandPreview(m.lastCommand))
		}
		instructionText += " | ↑/↓/j/k scroll logs | Q quit"
		s.WriteString(instructionsStyle.Render(instructionText))
	}

	return s.String()
}

// renderLogs shows the newest entries first, shifted back by logScroll.
func (m model) renderLogs() string {
	allEntries := m.logBuffer.GetAll()
	totalCount := len(allEntries)

	var logLines []string
	if totalCount == 0 {
		logLines = []string{"     | (no logs yet)"}
	} else {
		end := totalCount - m.logScroll
		if end < 0 {
			end = 0
		}
		start := end - logCount
		if start < 0 {
			start = 0
		}
		for i := end - 1; i >= start; i-- {
			// Most recent entry is line 0
			lineNumber := totalCount - 1 - i
			logLines = append(logLines, fmt.Sprintf("%4d | %s", lineNumber, logger.FormatLogEntry(allEntries[i])))
		}
	}

	boxWidth := 100
	if m.width > 0 {
		boxWidth = m.width - 4 // Leave some margin
	}

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("240")).
		Padding(0, 1).
		Height(logCount - 2).
		Width(boxWidth)

	return logStyle.Render("Logs:\n" + strings.Join(logLines, "\n"))
}

// formatCommandPreview formats the last command for display
func formatCommandPreview(lastCommand string) string {
	name, arg, _ := strings.Cut(lastCommand, ":")
	switch name {
	case "delete":
		if index, err := strconv.Atoi(arg); err == nil {
			return fmt.Sprintf("D → %d", index+1)
		}
		return "D → [node]"
	case "lookup":
		return "L → " + arg
	case "create":
		return "C"
	case "create-replicating":
		return "R"
	case "save":
		return "S"
	case "elect":
		return "E"
	case "bridge":
		return "B"
	case "step":
		return "T"
	}
	return lastCommand
}

func runInteractive(cmd *cobra.Command, args []string) {
	m, err := initialModel()
	if err != nil {
		fmt.Printf("Error starting interactive mode: %v\n", err)
		return
	}
	defer func() { _ = logger.RemoveOutput(m.logWriter) }()
	p := tea.NewProgram(m)
	if _, err := p.Run(); err != nil {
		fmt.Printf("Error running interactive mode: %v\n", err)
	}
}
