package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/raine/didup-famiglia/internal/didup"
	"github.com/raine/didup-famiglia/internal/didup/wire"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and print the account summary",
	RunE: func(c *cobra.Command, args []string) error {
		return withClient(c.Context(), func(client *didup.Client) error {
			profile, err := client.LoadProfile(c.Context())
			if err != nil {
				return err
			}
			fmt.Println(formatLogin(client, profile))
			return nil
		})
	},
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Print subjects, periods, averages and inbox",
	RunE: func(c *cobra.Command, args []string) error {
		return withClient(c.Context(), func(client *didup.Client) error {
			// The profile selects the student's dashboard entry.
			if _, err := client.LoadProfile(c.Context()); err != nil {
				return err
			}
			d, err := client.LoadDashboard(c.Context())
			if err != nil {
				return err
			}
			fmt.Println(formatDashboard(d))
			return nil
		})
	},
}

var (
	rawMethod string
	rawJSON   string
	rawOutput string
)

var rawCmd = &cobra.Command{
	Use:   "raw <endpoint>",
	Short: "Send an authenticated request and print the response",
	Long: `Send an authenticated request to the REST API and print the decoded body.

The endpoint is relative to the API base URL, e.g. "profilo" or
"dashboard/dashboard".`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		var opts []didup.RequestOption
		if rawJSON != "" {
			var body any
			if err := json.Unmarshal([]byte(rawJSON), &body); err != nil {
				return fmt.Errorf("invalid --json body: %w", err)
			}
			opts = append(opts, didup.WithJSON(body))
		}

		return withClient(c.Context(), func(client *didup.Client) error {
			res, err := client.Request(c.Context(), rawMethod, args[0], opts...)
			if err != nil {
				return err
			}
			out, err := render(res, rawOutput)
			if err != nil {
				return err
			}
			fmt.Println(out)
			return nil
		})
	},
}

func render(res *wire.Response, format string) (string, error) {
	if !res.JSON {
		return res.Text(), nil
	}

	switch strings.ToLower(format) {
	case "json":
		out, err := json.MarshalIndent(res.Data, "", "  ")
		if err != nil {
			return "", err
		}
		return string(out), nil
	case "yaml":
		out, err := yaml.Marshal(res.Data)
		if err != nil {
			return "", err
		}
		return strings.TrimRight(string(out), "\n"), nil
	default:
		return "", fmt.Errorf("unknown output format %q", format)
	}
}

func init() {
	rawCmd.Flags().StringVarP(&rawMethod, "method", "X", http.MethodPost, "HTTP method")
	rawCmd.Flags().StringVar(&rawJSON, "json", "", "JSON request body")
	rawCmd.Flags().StringVarP(&rawOutput, "output", "o", "json", "output format: json or yaml")

	rootCmd.AddCommand(loginCmd, dashboardCmd, rawCmd)
}
