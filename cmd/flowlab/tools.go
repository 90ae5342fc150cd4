package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"flowlab/canon"
	"flowlab/diff"
	"flowlab/graph"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint <graph.json>",
	Short: "Print the semantic fingerprint of a graph file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		fp, err := canon.Fingerprint(json.RawMessage(raw))
		if err != nil {
			return err
		}
		fmt.Println(fp)
		return nil
	},
}

var diffJSON bool

var diffCmd = &cobra.Command{
	Use:   "diff <a.json> <b.json>",
	Short: "Diff two graph files",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		b, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		res, err := diff.Graphs(json.RawMessage(a), json.RawMessage(b))
		if err != nil {
			return err
		}
		if diffJSON {
			out, err := res.FormatJSON()
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		}
		fmt.Print(res.FormatText())
		return nil
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate <graph.json>",
	Short: "Lint a graph file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		var g graph.Graph
		if err := json.Unmarshal(raw, &g); err != nil {
			return fmt.Errorf("parsing graph: %w", err)
		}

		issues := graph.Validate(g)
		if len(issues) == 0 {
			fmt.Println("ok")
			return nil
		}
		hasErrors := false
		for _, iss := range issues {
			fmt.Printf("%s: %s: %s\n", iss.Severity, iss.Code, iss.Message)
			if iss.Severity == graph.SeverityError {
				hasErrors = true
			}
		}
		if hasErrors {
			os.Exit(1)
		}
		return nil
	},
}

func init() {
	diffCmd.Flags().BoolVar(&diffJSON, "json", false, "emit JSON output")
	rootCmd.AddCommand(fingerprintCmd, diffCmd, validateCmd)
}
