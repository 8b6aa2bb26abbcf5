package cmd

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/invopop/jsonschema"
	"github.com/spf13/cobra"

	"reliability/internal/errs"
)

var apiSchemaCmd = &cobra.Command{
	Use:   "api-schema",
	Short: "Print the JSON Schema of the API request bodies",
	RunE: func(cmd *cobra.Command, _ []string) error {
		name, _ := cmd.Flags().GetString("request")
		outPath, _ := cmd.Flags().GetString("out")

		payload, err := renderRequestSchemas(name)
		if err != nil {
			return err
		}

		writer, closeFn, err := resolveOutputWriter(cmd, outPath)
		if err != nil {
			return err
		}
		if _, err := writer.Write(payload); err != nil {
			_ = closeFn()
			return errs.Wrap(err, "write api schema")
		}
		return closeFn()
	},
}

func init() {
	rootCmd.AddCommand(apiSchemaCmd)
	apiSchemaCmd.Flags().String("request", "", "Single request body to print (score|verify-checksum|scoring-version)")
	apiSchemaCmd.Flags().String("out", "", "Output file path (default: stdout)")
}

func requestBodies() map[string]any {
	return map[string]any{
		"score":           &scoreRequest{},
		"verify-checksum": &verifyChecksumRequest{},
		"scoring-version": &scoringVersionRequest{},
	}
}

func renderRequestSchemas(name string) ([]byte, error) {
	reflector := &jsonschema.Reflector{
		DoNotReference: true,
	}
	bodies := requestBodies()

	var out any
	if name = strings.TrimSpace(name); name != "" {
		body, ok := bodies[name]
		if !ok {
			names := make([]string, 0, len(bodies))
			for known := range bodies {
				names = append(names, known)
			}
			sort.Strings(names)
			return nil, fmt.Errorf("unknown request %q (expected one of: %s)", name, strings.Join(names, ", "))
		}
		out = reflector.Reflect(body)
	} else {
		schemas := make(map[string]*jsonschema.Schema, len(bodies))
		for key, body := range bodies {
			schemas[key] = reflector.Reflect(body)
		}
		out = schemas
	}

	payload, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, errs.Wrap(err, "marshal api schema")
	}
	return append(payload, '\n'), nil
}
