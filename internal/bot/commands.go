package bot

import (
	"context"

	"github.com/bwmarrin/discordgo"
)

// Command is the closed set of slash commands the bot serves.
type Command int

const (
	// CommandMove relocates the current forum thread into another forum channel.
	CommandMove Command = iota + 1
)

// optionChannel is the name of the /mv target option.
const optionChannel = "channel"

var commandNames = map[string]Command{
	"mv": CommandMove,
}

// commandFunc executes one command after it has been looked up.
type commandFunc func(g *Gate, ctx context.Context, inv Invocation) (string, error)

var commandHandlers = map[Command]commandFunc{
	CommandMove: (*Gate).move,
}

// String returns the registered name of c.
func (c Command) String() string {
	for name, cmd := range commandNames {
		if cmd == c {
			return name
		}
	}
	return "unknown"
}

// LookupCommand maps a command name to its Command.
func LookupCommand(name string) (Command, bool) {
	c, ok := commandNames[name]
	return c, ok
}

// Definitions returns the application commands registered on the guild.
func Definitions() []*discordgo.ApplicationCommand {
	return []*discordgo.ApplicationCommand{
		{
			Name:        CommandMove.String(),
			Description: "Move a thread to another channel",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:         discordgo.ApplicationCommandOptionChannel,
					Name:         optionChannel,
					Description:  "The target channel you want to move this thread to",
					ChannelTypes: []discordgo.ChannelType{discordgo.ChannelTypeGuildForum},
				},
			},
		},
	}
}
