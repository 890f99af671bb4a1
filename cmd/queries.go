package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/serptrend/serptrend/internal/serp"
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Manage the tracked query list",
}

var queriesAddCmd = &cobra.Command{
	Use:   "add <text>",
	Short: "Append a query to the tracked list",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.TrimSpace(args[0])
		if text == "" {
			return fmt.Errorf("query text must not be empty")
		}
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.IDs.NewID()
		if err != nil {
			return fmt.Errorf("generate row id: %w", err)
		}
		q := serp.Query{RowID: id, Text: text}
		if err := a.Admin.AddQuery(cmd.Context(), q); err != nil {
			return err
		}
		cmd.Printf("added %s: %s\n", q.RowID, q.Text)
		return nil
	},
}

var queriesImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Append queries from a file, one per line",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open query file: %w", err)
		}
		defer f.Close()

		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		added := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			text := strings.TrimSpace(scanner.Text())
			if text == "" || strings.HasPrefix(text, "#") {
				continue
			}
			id, err := a.IDs.NewID()
			if err != nil {
				return fmt.Errorf("generate row id: %w", err)
			}
			if err := a.Admin.AddQuery(cmd.Context(), serp.Query{RowID: id, Text: text}); err != nil {
				return err
			}
			added++
		}
		if err := scanner.Err(); err != nil {
			return fmt.Errorf("read query file: %w", err)
		}
		cmd.Printf("imported %d queries\n", added)
		return nil
	},
}

var queriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tracked queries in row order",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rows, err := a.Store.LoadRows(cmd.Context())
		if err != nil {
			return err
		}
		for _, q := range rows {
			cmd.Printf("%s\t%s\n", q.RowID, q.Text)
		}
		return nil
	},
}

var columnsCmd = &cobra.Command{
	Use:   "columns",
	Short: "List committed column dates",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		dates, err := a.Admin.ListColumns(cmd.Context())
		if err != nil {
			return err
		}
		for _, date := range dates {
			cmd.Println(date)
		}
		return nil
	},
}

func init() {
	queriesCmd.AddCommand(queriesAddCmd, queriesImportCmd, queriesListCmd)
	rootCmd.AddCommand(queriesCmd, columnsCmd)
}
