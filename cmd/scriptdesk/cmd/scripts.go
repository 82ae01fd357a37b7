package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/nfrund/scriptdesk/internal/app"
	"github.com/nfrund/scriptdesk/internal/domain"
	"github.com/spf13/cobra"
)

var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Inspect stored scripts",
}

var (
	listOwner  string
	listDesign bool
)

var scriptsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List scripts, newest update first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			stores, err := a.Stores()
			if err != nil {
				return err
			}
			scripts, err := stores.Scripts.List(cmd.Context(), domain.ScriptFilter{Owner: listOwner, DesignOnly: listDesign})
			if err != nil {
				return err
			}
			if len(scripts) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No scripts found.")
				return nil
			}
			printScripts(cmd.OutOrStdout(), scripts)
			return nil
		})
	},
}

var scriptsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print one script as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd.Context(), func(a *app.App) error {
			stores, err := a.Stores()
			if err != nil {
				return err
			}
			s, err := stores.Scripts.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(s)
		})
	},
}

func init() {
	scriptsListCmd.Flags().StringVar(&listOwner, "owner", "", "only list scripts owned by this user")
	scriptsListCmd.Flags().BoolVar(&listDesign, "design", false, "only list drafts")

	scriptsCmd.AddCommand(scriptsListCmd, scriptsShowCmd)
	rootCmd.AddCommand(scriptsCmd)
}

func printScripts(out io.Writer, scripts []*domain.Script) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tOWNER\tLANGUAGE\tDRAFT\tJOB\tUPDATED")
	for _, s := range scripts {
		job := s.JobID
		if job == "" {
			job = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			s.ID, s.Name, s.Owner, s.Language, s.IsDesign, job, s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	w.Flush()
}
