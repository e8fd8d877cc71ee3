package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

// changesetFile mirrors the server's changeset shape so operators can author
// rollouts in TOML.
type changesetFile struct {
	Label   string `toml:"label" json:"label"`
	Changes []struct {
		Kind   string `toml:"kind" json:"kind"`
		Table  string `toml:"table" json:"table"`
		Column string `toml:"column,omitempty" json:"column,omitempty"`
		Index  string `toml:"index,omitempty" json:"index,omitempty"`
		DDL    string `toml:"ddl" json:"ddl"`
	} `toml:"changes" json:"changes"`
}

type changeResult struct {
	StorageRef string `json:"storageRef"`
	Applied    bool   `json:"applied"`
	Error      string `json:"error,omitempty"`
}

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Roll out schema changes across tenants",
}

var schemaApplyCmd = &cobra.Command{
	Use:   "apply <changeset.toml>",
	Short: "Apply a changeset to every tenant's backing store",
	Long: `Apply a changeset to every tenant's backing store. The changeset is a
TOML file:

  label = "add-product-weight"

  [[changes]]
  kind = "add_column"
  table = "products"
  column = "weight_grams"
  ddl = "ALTER TABLE products ADD COLUMN weight_grams INT"

Tenants that already carry a change skip it; tenants that fail are reported
individually and do not block the rest.`,
	Args: cobra.ExactArgs(1),
	RunE: applySchemaChanges,
}

func applySchemaChanges(cmd *cobra.Command, args []string) error {
	content, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("error reading changeset file: %v", err)
	}
	var cs changesetFile
	if _, err := toml.Decode(string(content), &cs); err != nil {
		return fmt.Errorf("error parsing changeset file: %v", err)
	}
	body, err := json.Marshal(cs)
	if err != nil {
		return err
	}

	client := NewHTTPClient(serverURL)
	rsp, err := client.DoRequest(http.MethodPost, "/admin/schema/changes", body)
	if err != nil {
		return err
	}

	if jsonOutput {
		printJSON(json.RawMessage(rsp))
		return nil
	}
	var results []changeResult
	if err := json.Unmarshal(rsp, &results); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	failed := 0
	for _, r := range results {
		if r.Applied {
			fmt.Printf("- %s: applied\n", r.StorageRef)
		} else {
			failed++
			fmt.Printf("- %s: FAILED: %s\n", r.StorageRef, r.Error)
		}
	}
	if failed > 0 {
		return fmt.Errorf("changeset %q failed for %d of %d tenants", cs.Label, failed, len(results))
	}
	fmt.Printf("Changeset %q applied to %d tenants\n", cs.Label, len(results))
	return nil
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaApplyCmd)
}
