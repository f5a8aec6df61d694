package main

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/maruel/interrupt"

	"github.com/opd-ai/vidstab"
)

const barWidth = 30

type stageMsg struct {
	stage  vidstab.Stage
	status vidstab.Status
}

type progressMsg struct {
	stage    vidstab.Stage
	fraction float64
}

type doneMsg struct {
	err error
}

// progressModel is the terminal view of a running pipeline.
type progressModel struct {
	input    string
	status   map[vidstab.Stage]vidstab.Status
	fraction map[vidstab.Stage]float64
	stopping bool
	done     bool
	err      error
}

func newProgressModel(input string) progressModel {
	return progressModel{
		input:    input,
		status:   map[vidstab.Stage]vidstab.Status{},
		fraction: map[vidstab.Stage]float64{},
	}
}

// Init implements tea.Model interface.
func (m progressModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model interface.
func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case stageMsg:
		m.status[msg.stage] = msg.status
		if msg.status == vidstab.StatusFinished {
			m.fraction[msg.stage] = 1
		}
	case progressMsg:
		if msg.fraction > m.fraction[msg.stage] {
			m.fraction[msg.stage] = msg.fraction
		}
	case doneMsg:
		m.done, m.err = true, msg.err
		return m, tea.Quit
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			// The pipeline stops before its next stage and reports done.
			m.stopping = true
			interrupt.Set()
		}
	}
	return m, nil
}

// View implements tea.Model interface.
func (m progressModel) View() string {
	var b strings.Builder
	fmt.Fprintf(&b, "vidstab %s\n\n", m.input)
	for _, st := range vidstab.Stages() {
		status, seen := m.status[st]
		label := "pending"
		if seen {
			label = status.String()
		}
		f := m.fraction[st]
		filled := int(f * barWidth)
		fmt.Fprintf(&b, "  %-9s [%s%s] %3.0f%%  %s\n",
			st, strings.Repeat("#", filled), strings.Repeat("-", barWidth-filled), f*100, label)
	}
	b.WriteString("\n")
	switch {
	case m.done && m.err != nil:
		fmt.Fprintf(&b, "failed: %v\n", m.err)
	case m.done:
		b.WriteString("done\n")
	case m.stopping:
		b.WriteString("stopping after the current stage...\n")
	default:
		b.WriteString("q to stop\n")
	}
	return b.String()
}

// programObserver forwards pipeline notifications to a running program.
type programObserver struct {
	p *tea.Program
}

func (o programObserver) StageChanged(stage vidstab.Stage, status vidstab.Status) {
	o.p.Send(stageMsg{stage: stage, status: status})
}

func (o programObserver) ProgressChanged(stage vidstab.Stage, fraction float64) {
	o.p.Send(progressMsg{stage: stage, fraction: fraction})
}

// runWithTUI runs the pipeline while the progress view owns the terminal.
func runWithTUI(ctx context.Context, cfg *CLIConfig, opts *vidstab.Options) error {
	p := tea.NewProgram(newProgressModel(cfg.input))
	errc := make(chan error, 1)
	go func() {
		err := pipeline(ctx, cfg, opts, programObserver{p: p})
		errc <- err
		p.Send(doneMsg{err: err})
	}()
	if _, err := p.Run(); err != nil {
		interrupt.Set()
		<-errc
		return err
	}
	return <-errc
}
