package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run one fetch-and-cache cycle and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			mgr, err := newManager(cmd.Context(), cfg)
			if err != nil {
				return err
			}

			get := mgr.GetEvents
			if force {
				get = mgr.FetchAndCache
			}
			payload, err := get(cmd.Context())
			if err != nil {
				return err
			}

			count := "unknown"
			var records []json.RawMessage
			if json.Unmarshal(payload, &records) == nil {
				count = fmt.Sprint(len(records))
			}
			st := mgr.Status(cmd.Context())
			fmt.Fprintf(cmd.OutOrStdout(), "events: %s (today %s, fresh %t)\n", count, st.Today, st.Fresh)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Fetch from upstream even if the cache is fresh")
	return cmd
}
