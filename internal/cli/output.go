// Package cli implements the one-shot command runner and the interactive
// console for palrcon.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"

	"github.com/energizer-project/palrcon/internal/protocol"
)

var (
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	failStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAB387"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#6C7086"))
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
)

// PrintJSON writes v as a single JSON line. Raw bytes are base64 encoded.
func PrintJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// Summary describes a response in one line.
func Summary(resp *protocol.Response) string {
	status := okStyle.Render("ok")
	if !resp.Successful {
		status = warnStyle.Render("unexpected reply")
	}
	command := ""
	if resp.Request != nil {
		command = resp.Request.LogMessage()
	}
	return fmt.Sprintf("[%s] %s %s", status, command,
		dimStyle.Render(fmt.Sprintf("(packet_id=%d type=%d bytes=%d)", resp.ID, resp.Type, len(resp.Raw))))
}

// PrintResponse writes the summary line followed by the reply text.
func PrintResponse(w io.Writer, resp *protocol.Response) {
	fmt.Fprintln(w, Summary(resp))
	fmt.Fprintln(w)
	fmt.Fprintln(w, strings.TrimRight(resp.Message, "\n"))
}

// PrintPlayers renders a player list as a table. Unresolved players are
// listed after the others and flagged.
func PrintPlayers(w io.Writer, list *protocol.PlayerList) {
	if list.Count() == 0 {
		fmt.Fprintln(w, dimStyle.Render("No players online."))
		return
	}

	tw := tablewriter.NewWriter(w)
	tw.SetHeader([]string{"Name", "Player UID", "Steam ID", "Note"})
	tw.SetBorder(true)
	tw.SetAutoWrapText(false)

	for _, p := range list.Players {
		tw.Append([]string{p.Name, p.PlayerUID, p.SteamID, ""})
	}
	for _, p := range list.InvalidUIDPlayers {
		tw.Append([]string{p.Name, p.PlayerUID, p.SteamID, "unresolved"})
	}
	tw.Render()

	line := fmt.Sprintf("%d player(s) online", list.Count())
	if n := len(list.InvalidUIDPlayers); n > 0 {
		line += warnStyle.Render(fmt.Sprintf(", %d unresolved", n))
	}
	fmt.Fprintln(w, line)
}

// PrintError writes err in the error style.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, failStyle.Render("Error: "+err.Error()))
}
