package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

// addHelpCommands adds help and documentation commands.
func addHelpCommands(rootCmd *cobra.Command, app *App) {
	rootCmd.AddCommand(newCommandsCmd())
	rootCmd.AddCommand(newExamplesCmd())
	rootCmd.AddCommand(newQuickstartCmd(app))
}

type commandEntry struct {
	cmd  string
	desc string
}

type commandCategory struct {
	name     string
	commands []commandEntry
}

var commandCategories = []commandCategory{
	{
		name: "Price Data",
		commands: []commandEntry{
			{"data import [dir]", "Import CSV closes into the local store"},
			{"data list", "List instruments and their date ranges"},
			{"data quote <name> <date>", "As-of closing price on a date"},
		},
	},
	{
		name: "Simulation",
		commands: []commandEntry{
			{"run --start <date> --buy NAME:N", "Batch simulation until the data runs out"},
			{"session", "Interactive simulation from standard input"},
		},
	},
	{
		name: "Saved Runs",
		commands: []commandEntry{
			{"runs list", "List saved runs"},
			{"runs show <id>", "Metrics, trades and closures of a run"},
			{"runs delete <id>", "Delete a saved run"},
			{"export history <id>", "Write a run's daily values to CSV or JSON"},
			{"export series <name>", "Write an instrument's closes to CSV or JSON"},
		},
	},
	{
		name: "Configuration",
		commands: []commandEntry{
			{"config show", "Show current configuration"},
			{"config path", "Show configuration directory"},
			{"config validate", "Validate configuration"},
		},
	},
	{
		name: "Help",
		commands: []commandEntry{
			{"commands", "This list"},
			{"examples", "Common workflows"},
			{"quickstart", "New user guide"},
			{"version", "Version information"},
		},
	},
}

func newCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List all commands by category",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				out := make(map[string][]string, len(commandCategories))
				for _, c := range commandCategories {
					for _, e := range c.commands {
						out[c.name] = append(out[c.name], e.cmd)
					}
				}
				return output.JSON(out)
			}

			output.Bold("gpwsim commands")
			output.Println()

			width := 0
			for _, c := range commandCategories {
				for _, e := range c.commands {
					if len(e.cmd) > width {
						width = len(e.cmd)
					}
				}
			}
			for _, c := range commandCategories {
				output.Printf("%s\n", output.Cyan(c.name))
				for _, e := range c.commands {
					output.Printf("  %s%s  %s\n", e.cmd, strings.Repeat(" ", width-len(e.cmd)), output.DimText(e.desc))
				}
				output.Println()
			}
			return nil
		},
	}
}

var exampleWorkflows = []struct {
	title    string
	commands []string
}{
	{
		title: "Import Stooq Downloads",
		commands: []string{
			"gpwsim data import ~/Downloads/gpw     # every *.csv becomes an instrument",
			"gpwsim data list                       # check date ranges",
			"gpwsim data quote \"CD PROJEKT\" 2024-01-06",
		},
	},
	{
		title: "Batch Simulation",
		commands: []string{
			"gpwsim run --start 2024-01-02 --buy \"PKO BP:100\"",
			"gpwsim run --start 2024-01-02 --buy KGHM:10 --stop KGHM:110 --take KGHM:140",
			"gpwsim run --start 2024-01-02 --buy KGHM:10 --days 60 --chart --save",
		},
	},
	{
		title: "Interactive Session",
		commands: []string{
			"gpwsim session --start 2024-01-02",
			"> buy CD PROJEKT 10                    # first buy starts the run",
			"> orders CD PROJEKT 95 -               # stop-loss only",
			"> next 5                               # five trading days",
			"> auto                                 # advance until the data ends",
			"> chart",
			"> save",
		},
	},
	{
		title: "Review",
		commands: []string{
			"gpwsim runs list --instrument KGHM",
			"gpwsim runs show 1a2b3c4d --chart",
			"gpwsim export history 1a2b3c4d -o run.csv",
		},
	},
}

func newExamplesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "examples",
		Short: "Show common workflow examples",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("Common Workflow Examples")
			output.Println()

			for _, ex := range exampleWorkflows {
				output.Printf("%s\n", output.Cyan(ex.title))
				for _, c := range ex.commands {
					output.Printf("  %s\n", c)
				}
				output.Println()
			}
			return nil
		},
	}
}

func newQuickstartCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "quickstart",
		Short: "New user guide",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)

			output.Bold("gpwsim - Quick Start Guide")
			output.Println()

			steps := []struct {
				title string
				desc  string
				cmd   string
			}{
				{
					title: "Get Price Data",
					desc:  "Download daily quotes (e.g. from stooq.pl) as CSV with a date and a close column.",
					cmd:   "gpwsim config show  # data.dir is " + app.Config.Data.Dir,
				},
				{
					title: "Import",
					desc:  "Load the files into the local store. File names become instrument names.",
					cmd:   "gpwsim data import " + app.Config.Data.Dir,
				},
				{
					title: "Pick a Start Day",
					desc:  "The first purchase must fall on a session day of that instrument.",
					cmd:   "gpwsim data quote KGHM 2024-01-02",
				},
				{
					title: "Simulate",
					desc:  "Buy, set orders, and let the calendar run.",
					cmd:   "gpwsim run --start 2024-01-02 --buy KGHM:10 --stop KGHM:110 --chart",
				},
				{
					title: "Go Interactive",
					desc:  "Trade day by day and watch stop-loss / take-profit fire.",
					cmd:   "gpwsim session --start 2024-01-02",
				},
			}

			for i, s := range steps {
				output.Printf("%s Step %d: %s\n", output.Cyan("→"), i+1, output.BoldText(s.title))
				output.Printf("  %s\n", s.desc)
				output.Printf("  %s\n\n", output.DimText(s.cmd))
			}

			output.Bold("Configuration")
			output.Println()
			output.Printf("  %s - data, store, simulation, log and ui settings\n", output.Cyan("config.toml"))
			output.Printf("  %s - GPWSIM_* overrides in the working directory\n", output.Cyan(".env"))
			output.Println()

			output.Bold("Notes")
			output.Println()
			output.Printf("  %s Days without a session carry the last close forward\n", output.Yellow("⚠"))
			output.Printf("  %s Orders only fire on real sessions of the instrument\n", output.Yellow("⚠"))
			output.Printf("  %s Closed positions leave the portfolio without booking cash\n", output.Yellow("⚠"))
			return nil
		},
	}
}
