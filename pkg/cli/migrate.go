package cli

import (
	"context"
	"flag"
	"fmt"
)

func newMigrateCommand(env *Env) *Command {
	cmd := &Command{
		Name:        "migrate",
		Description: "Apply pending schema migrations",
		Flags:       flag.NewFlagSet("migrate", flag.ContinueOnError),
	}

	cmd.Run = func(ctx context.Context, args []string) error {
		if err := cmd.Flags.Parse(args); err != nil {
			return err
		}
		if env.Migrate == nil {
			return fmt.Errorf("migrate: %w", errMissingService)
		}
		if err := env.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate: %w", err)
		}
		fmt.Fprintln(env.Out, "migrations applied")
		return nil
	}
	return cmd
}
