package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/deploymenttheory/go-api-auth-client/httpclient"
	"github.com/deploymenttheory/go-api-auth-client/response"
	"github.com/spf13/cobra"
)

// requestCmd returns the command sending one request with the given method.
func requestCmd(method string, opts *cliOptions) *cobra.Command {
	var data string
	var module string
	hasBody := method != http.MethodGet

	cmd := &cobra.Command{
		Use:   strings.ToLower(method) + " <path>",
		Short: fmt.Sprintf("Send a %s request", method),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, cleanup, err := buildClient(cmd, opts)
			if err != nil {
				return err
			}
			defer cleanup()

			var body any
			if hasBody && data != "" {
				if err := json.Unmarshal([]byte(data), &body); err != nil {
					return fmt.Errorf("--data is not valid JSON: %w", err)
				}
			}

			var reqOpts []httpclient.RequestOption
			if cmd.Flags().Changed("request-module") {
				reqOpts = append(reqOpts, httpclient.WithModule(module))
			}

			resp, err := send(cmd, client, method, args[0], body, reqOpts)
			if err != nil {
				return err
			}
			if resp == nil {
				cmd.PrintErrln("Request failed and returned no result")
				return nil
			}
			return printResponse(cmd, resp)
		},
	}

	if hasBody {
		cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	}
	cmd.Flags().StringVar(&module, "request-module", "", "Module for this request only, overriding --module")

	return cmd
}

func send(cmd *cobra.Command, client *httpclient.Client, method, path string, body any, opts []httpclient.RequestOption) (*response.Response, error) {
	ctx := cmd.Context()
	switch method {
	case http.MethodGet:
		return client.Get(ctx, path, opts...)
	case http.MethodDelete:
		return client.Delete(ctx, path, body, opts...)
	case http.MethodPost:
		return client.Post(ctx, path, body, opts...)
	case http.MethodPut:
		return client.Put(ctx, path, body, opts...)
	case http.MethodPatch:
		return client.Patch(ctx, path, body, opts...)
	default:
		return nil, fmt.Errorf("unsupported method %s", method)
	}
}

// printResponse writes the status line and body, indenting JSON bodies.
func printResponse(cmd *cobra.Command, resp *response.Response) error {
	out := cmd.OutOrStdout()
	if _, err := fmt.Fprintln(out, resp.StatusCode, http.StatusText(resp.StatusCode)); err != nil {
		return err
	}
	if len(resp.Body) == 0 {
		return nil
	}

	var indented bytes.Buffer
	if json.Indent(&indented, resp.Body, "", "  ") != nil {
		indented.Reset()
		indented.Write(resp.Body)
	}
	_, err := fmt.Fprintln(out, indented.String())
	return err
}
