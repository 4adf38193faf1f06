package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/jolokia"
	"github.com/jmxgate/jmxgate/internal/registry"
)

func newRegistryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "registry",
		Short: "Inspect MBean registries offline",
	}

	cmd.AddCommand(newRegistryOptimiseCmd())

	return cmd
}

func newRegistryOptimiseCmd() *cobra.Command {
	var (
		aclFile string
		role    string
		output  string
	)

	cmd := &cobra.Command{
		Use:     "optimise <list.json|->",
		Aliases: []string{"optimize"},
		Short:   "Decorate and deduplicate a Jolokia list response for a role",
		Long: `Read the output of a Jolokia list request, either the full response or its
value, and print the optimised registry the gateway returns from
RBACRegistry.list() for the given role: canInvoke flags on every MBean,
attribute and operation, with structurally identical MBeans collapsed into
the cache.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if aclFile == "" {
				aclFile = viper.GetString("rbac.acl_file")
			}
			if aclFile == "" {
				return fmt.Errorf("no ACL file: use --acl or set rbac.acl_file")
			}
			policy, err := acl.Load(aclFile)
			if err != nil {
				return err
			}
			r, err := acl.ParseRole(role)
			if err != nil {
				return err
			}
			data, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			domains, err := decodeDomains(data)
			if err != nil {
				return err
			}

			snap := registry.NewOptimizer(policy, nil).Optimise(domains, r)
			return writeOutput(cmd.OutOrStdout(), snap, output, false)
		},
	}

	cmd.Flags().StringVar(&aclFile, "acl", "", "ACL file (default rbac.acl_file)")
	cmd.Flags().StringVar(&role, "role", "viewer", "Role to evaluate: admin or viewer")
	cmd.Flags().StringVarP(&output, "output", "o", "json", "Output format: json or yaml")

	return cmd
}

// decodeDomains accepts a full list response or a bare domain map.
func decodeDomains(data []byte) (jolokia.Domains, error) {
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	if _, ok := probe["value"]; ok {
		if _, ok := probe["status"]; ok {
			var resp jolokia.ListResponse
			if err := json.Unmarshal(data, &resp); err != nil {
				return nil, fmt.Errorf("decode list response: %w", err)
			}
			if resp.Status != 200 {
				return nil, fmt.Errorf("list response has status %d: %s", resp.Status, resp.Error)
			}
			return resp.Value, nil
		}
	}
	var domains jolokia.Domains
	if err := json.Unmarshal(data, &domains); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return domains, nil
}
