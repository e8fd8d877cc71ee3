package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
)

type tenantRecord struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Domain     string    `json:"domain"`
	StorageRef string    `json:"storageRef"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

var (
	createTenantName string
)

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage storefront tenants",
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <domain>",
	Short: "Create a tenant and provision its backing store",
	Args:  cobra.ExactArgs(1),
	RunE:  createTenant,
}

func createTenant(cmd *cobra.Command, args []string) error {
	domain := args[0]
	name := createTenantName
	if name == "" {
		name = domain
	}
	body, err := json.Marshal(map[string]string{"name": name, "domain": domain})
	if err != nil {
		return err
	}
	client := NewHTTPClient(serverURL)
	rsp, err := client.DoRequest(http.MethodPost, "/admin/tenants", body)
	if err != nil {
		return err
	}
	return printTenant(rsp)
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tenants",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewHTTPClient(serverURL)
		rsp, err := client.DoRequest(http.MethodGet, "/admin/tenants", nil)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(json.RawMessage(rsp))
			return nil
		}
		var tenants []tenantRecord
		if err := json.Unmarshal(rsp, &tenants); err != nil {
			return fmt.Errorf("failed to parse response: %v", err)
		}
		fmt.Println("Tenants:")
		for _, t := range tenants {
			fmt.Printf("- %s  %s  (%s)\n", t.Domain, t.Status, t.ID)
		}
		return nil
	},
}

var tenantDeleteCmd = &cobra.Command{
	Use:   "delete <tenant-id>",
	Short: "Delete a tenant and destroy its backing store",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := NewHTTPClient(serverURL)
		rsp, err := client.DoRequest(http.MethodDelete, "/admin/tenants/"+args[0], nil)
		if err != nil {
			return err
		}
		if jsonOutput {
			printJSON(json.RawMessage(rsp))
		} else {
			fmt.Printf("Deleted tenant %s\n", args[0])
		}
		return nil
	},
}

var tenantStatusCmd = &cobra.Command{
	Use:   "status <tenant-id> <active|inactive|suspended>",
	Short: "Change a tenant's serving status",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := json.Marshal(map[string]string{"status": args[1]})
		if err != nil {
			return err
		}
		client := NewHTTPClient(serverURL)
		rsp, err := client.DoRequest(http.MethodPut, "/admin/tenants/"+args[0]+"/status", body)
		if err != nil {
			return err
		}
		return printTenant(rsp)
	},
}

func printTenant(rsp json.RawMessage) error {
	if jsonOutput {
		printJSON(json.RawMessage(rsp))
		return nil
	}
	var t tenantRecord
	if err := json.Unmarshal(rsp, &t); err != nil {
		return fmt.Errorf("failed to parse response: %v", err)
	}
	fmt.Printf("Tenant: %s\n", t.Domain)
	fmt.Printf("  ID:          %s\n", t.ID)
	fmt.Printf("  Name:        %s\n", t.Name)
	fmt.Printf("  Status:      %s\n", t.Status)
	fmt.Printf("  StorageRef:  %s\n", t.StorageRef)
	return nil
}

func init() {
	rootCmd.AddCommand(tenantCmd)
	tenantCmd.AddCommand(tenantCreateCmd)
	tenantCmd.AddCommand(tenantListCmd)
	tenantCmd.AddCommand(tenantDeleteCmd)
	tenantCmd.AddCommand(tenantStatusCmd)

	tenantCreateCmd.Flags().StringVarP(&createTenantName, "name", "n", "", "Display name for the tenant (defaults to the domain)")
}
