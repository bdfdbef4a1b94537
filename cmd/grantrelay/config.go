package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dpup/grantrelay"
	"github.com/spf13/cobra"
)

const redacted = "<redacted>"

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "List known config keys, their values and config warnings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "KEY\tTYPE\tVALUE\tDESCRIPTION")
		for _, info := range grantrelay.RegisteredConfigKeys() {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", info.Key, info.Type, displayValue(info), info.Description)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
		if w := grantrelay.ConfigWarnings(); w != "" {
			fmt.Fprintln(cmd.OutOrStdout())
			fmt.Fprint(cmd.OutOrStdout(), w)
		}
		return nil
	},
}

func displayValue(info grantrelay.ConfigKeyInfo) string {
	if !grantrelay.Config.Exists(info.Key) {
		return "-"
	}
	if info.Secret {
		if grantrelay.ConfigString(info.Key) == "" {
			return "-"
		}
		return redacted
	}
	return fmt.Sprint(grantrelay.Config.Get(info.Key))
}
