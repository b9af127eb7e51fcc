package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/engineercoding/dedupe/internal/ui"
)

func newVerifyCmd(g *globalOptions) *cobra.Command {
	var storeRoot string
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check every stored object against its fingerprint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mgr, err := openManager(g, storeRoot)
			if err != nil {
				return err
			}
			defer mgr.Close()

			pm := newProgress(cmd, g)
			mgr.SetProgressManager(pm)
			ctx := pm.SetupCancellation(cmd.Context())
			defer pm.Cleanup()

			res, err := mgr.Verify(ctx)
			if err != nil {
				return err
			}
			ui.PrintVerify(cmd.OutOrStdout(), res)
			if !res.OK() {
				return fmt.Errorf("%d corrupt and %d unreadable object(s)", len(res.Corrupt), len(res.Unreadable))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&storeRoot, "store", "", "Store directory")
	return cmd
}
