package commands

import (
	"errors"
	"fmt"
	"os"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/gonzalop/ftpd/auth"
	"github.com/gonzalop/ftpd/config"
)

var (
	passwdCost  int
	passwdWrite bool

	// readPassword is replaced in tests.
	readPassword = promptPassword
)

var passwdCmd = &cobra.Command{
	Use:   "passwd <user>",
	Short: "Hash a password for a user",
	Long: `Prompt for a password and print the bcrypt hash to put in the users
table. With --write the hash is stored in the configured users_file.

Examples:
  ftpd passwd alice
  ftpd passwd alice --write --config /etc/ftpd/ftpd.yaml`,
	Args: cobra.ExactArgs(1),
	RunE: runPasswd,
}

func init() {
	passwdCmd.Flags().IntVar(&passwdCost, "cost", auth.DefaultCost, "bcrypt cost")
	passwdCmd.Flags().BoolVar(&passwdWrite, "write", false, "store the hash in the configured users_file")
}

func runPasswd(cmd *cobra.Command, args []string) error {
	user := args[0]
	if !auth.ValidUserName(user) {
		return fmt.Errorf("invalid user name %q", user)
	}

	password, err := readPassword()
	if err != nil {
		return err
	}

	hash, err := auth.Hash(password, passwdCost)
	if err != nil {
		return err
	}

	if !passwdWrite {
		fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", user, hash)
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if cfg.UsersFile == "" {
		return errors.New("--write needs users_file in the configuration")
	}

	users, err := auth.LoadFile(cfg.UsersFile)
	if errors.Is(err, os.ErrNotExist) {
		users, err = map[string]string{}, nil
	}
	if err != nil {
		return err
	}

	users[user] = hash
	if err := auth.SaveFile(cfg.UsersFile, users); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Password for %s stored in %s\n", user, cfg.UsersFile)
	return nil
}

// promptPassword asks for the password twice with masked input.
func promptPassword() (string, error) {
	prompt := promptui.Prompt{
		Label: "Password",
		Mask:  '*',
		Validate: func(input string) error {
			if input == "" {
				return auth.ErrEmptyPassword
			}
			if len(input) > auth.MaxPasswordLength {
				return auth.ErrPasswordTooLong
			}
			return nil
		},
	}
	password, err := prompt.Run()
	if err != nil {
		return "", wrapPromptError(err)
	}

	confirm := promptui.Prompt{
		Label: "Confirm password",
		Mask:  '*',
	}
	again, err := confirm.Run()
	if err != nil {
		return "", wrapPromptError(err)
	}
	if again != password {
		return "", errors.New("passwords do not match")
	}
	return password, nil
}

func wrapPromptError(err error) error {
	if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrAbort) {
		return errors.New("aborted")
	}
	return err
}
