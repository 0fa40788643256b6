package protocol

import "strings"

// Command keywords understood by Palworld servers.
const (
	CmdShutdown    = "shutdown"
	CmdDoExit      = "doexit"
	CmdBroadcast   = "broadcast"
	CmdKickPlayer  = "kickplayer"
	CmdBanPlayer   = "banplayer"
	CmdShowPlayers = "showplayers"
	CmdInfo        = "info"
	CmdSave        = "save"
)

// expectedPrefixes maps a command keyword to the text a correct reply starts with.
var expectedPrefixes = map[string]string{
	CmdShutdown:    "The",
	CmdDoExit:      "Shutdown",
	CmdBroadcast:   "Broadcasted:",
	CmdKickPlayer:  "Kicked:",
	CmdBanPlayer:   "Baned:",
	CmdShowPlayers: "name",
	CmdInfo:        "Welcome",
	CmdSave:        "Complete",
}

// ExpectedPrefix returns the reply prefix for keyword. Unknown keywords map
// to the empty prefix, so their replies always classify as successful.
func ExpectedPrefix(keyword string) string {
	return expectedPrefixes[keyword]
}

// NormalizeCommand strips a single leading slash.
func NormalizeCommand(command string) string {
	return strings.TrimPrefix(command, "/")
}

// JoinCommand joins tokens with single spaces and normalizes the result.
func JoinCommand(tokens []string) string {
	return NormalizeCommand(strings.Join(tokens, " "))
}

// CommandKeyword returns the first whitespace-delimited token of command
// with slashes removed, lower-cased.
func CommandKeyword(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToLower(strings.ReplaceAll(fields[0], "/", ""))
}

// Classify sets resp.Successful from the reply prefix expected for keyword.
func Classify(resp *Response, keyword string) *Response {
	resp.Successful = strings.HasPrefix(resp.Message, ExpectedPrefix(keyword))
	return resp
}

// SafeMessage replaces spaces with underscores; the server splits arguments
// on spaces.
func SafeMessage(message string) string {
	return strings.ReplaceAll(message, " ", "_")
}
