package main

import (
	"errors"
	"fmt"

	goAccount "github.com/MrEthical07/goAccount"
	"github.com/spf13/cobra"
)

type tokenFlags struct {
	realm string
	user  string
}

func newTokenCmd(flags *rootFlags) *cobra.Command {
	tf := &tokenFlags{}
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Open a session for a configured user and print its identity token",
		Long: `
Usage: accountd token --config=accountd.yaml --realm=demo --user=u-1

  Opens a session in the session store for a user listed in the configuration
  and prints an identity token bound to it. Send the token as a bearer token
  or in the identity cookie to reach the console without a login server.
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if tf.realm == "" || tf.user == "" {
				return errors.New("--realm and --user are required")
			}

			a, err := newApp(flags, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			uc, ok := a.cfg.findUser(tf.realm, tf.user)
			if !ok {
				return fmt.Errorf("user %s/%s is not in the configuration", tf.realm, tf.user)
			}
			roles := uc.Roles
			if len(roles) == 0 {
				roles = []string{goAccount.PermissionManageAccount}
			}

			ctx := cmd.Context()
			user, err := a.ensureUser(ctx, tf.realm, tf.user)
			if err != nil {
				return err
			}
			token, sid, err := a.console.OpenSession(ctx, tf.realm, user, roles)
			if err != nil {
				return err
			}

			a.logger.Info().Str("realm", tf.realm).Str("user", tf.user).Str("session", sid).Msg("session opened")
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&tf.realm, "realm", "", "Realm of the user")
	cmd.Flags().StringVar(&tf.user, "user", "", "User id")
	return cmd
}
