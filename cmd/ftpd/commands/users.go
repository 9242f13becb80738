package commands

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpd/auth"
	"github.com/gonzalop/ftpd/config"
	"github.com/gonzalop/ftpd/server"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "List configured users",
	Long: `List the users of the credential table and whether their home
directory exists under root_dir. Users without a home cannot log in.`,
	Args: cobra.NoArgs,
	RunE: runUsers,
}

func runUsers(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	users := cfg.Users
	if cfg.UsersFile != "" {
		if users, err = auth.LoadFile(cfg.UsersFile); err != nil {
			return err
		}
	}
	table := auth.NewTable(users)

	driver, err := server.NewFSDriver(cfg.RootDir, table)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, table.Len())
	for _, user := range table.Users() {
		status := "ok"
		if !driver.HomeExists(user) {
			status = "missing home"
		}
		rows = append(rows, []string{user, driver.HomeDir(user), status})
	}

	printTable(cmd.OutOrStdout(), []string{"User", "Home", "Status"}, rows)
	return nil
}

// printTable writes rows as a borderless, left aligned table.
func printTable(w io.Writer, headers []string, rows [][]string) {
	table := tablewriter.NewWriter(w)
	table.SetHeader(headers)

	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)

	table.AppendBulk(rows)
	table.Render()
}
