package cli

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmxgate/jmxgate/internal/acl"
	"github.com/jmxgate/jmxgate/internal/jolokia"
)

func newACLCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acl",
		Short: "Validate ACL files and evaluate requests against them",
	}

	cmd.AddCommand(newACLValidateCmd())
	cmd.AddCommand(newACLCheckCmd())

	return cmd
}

// ---------- acl validate ----------

func newACLValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <file>",
		Short: "Check that an ACL file parses",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			policy, err := acl.Load(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (%d rules)\n", args[0], policy.Rules())
			return nil
		},
	}
}

// ---------- acl check ----------

// checkResult is one row of `acl check` output.
type checkResult struct {
	Index     int    `json:"index"`
	Type      string `json:"type"`
	MBean     string `json:"mbean,omitempty"`
	Target    string `json:"target,omitempty"`
	Allowed   bool   `json:"allowed"`
	Reason    string `json:"reason,omitempty"`
	Intercept string `json:"intercept,omitempty"`
}

func newACLCheckCmd() *cobra.Command {
	var (
		aclFile string
		role    string
		output  string
	)

	cmd := &cobra.Command{
		Use:   "check <request.json|->",
		Short: "Evaluate a Jolokia request body against an ACL",
		Long: `Evaluate a Jolokia POST body, a single request object or a bulk array,
against an ACL for the given role and print the verdict of every request.
Requests the gateway would answer itself are flagged in the intercept column.`,
		Example: `  jmxgate acl check --acl acl.yaml --role viewer request.json
  echo '{"type":"exec","mbean":"java.lang:type=Memory","operation":"gc"}' | jmxgate acl check --role viewer -`,
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
			body, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			payload, err := jolokia.ParseBody(body)
			if err != nil {
				return err
			}

			results := checkRequests(policy, r, payload.Requests())
			if output == "text" {
				return writeCheckTable(cmd, results)
			}
			return writeOutput(cmd.OutOrStdout(), results, output, false)
		},
	}

	cmd.Flags().StringVar(&aclFile, "acl", "", "ACL file (default rbac.acl_file)")
	cmd.Flags().StringVar(&role, "role", "viewer", "Role to evaluate: admin or viewer")
	cmd.Flags().StringVarP(&output, "output", "o", "text", "Output format: text, json or yaml")

	return cmd
}

func checkRequests(policy *acl.Policy, role acl.Role, requests []*jolokia.Request) []checkResult {
	results := make([]checkResult, len(requests))
	for i, r := range requests {
		d := policy.Check(r, role)
		res := checkResult{
			Index:   i,
			Type:    string(r.Type),
			MBean:   r.MBean,
			Allowed: d.Allowed,
			Reason:  d.Reason,
		}
		switch {
		case r.Operation != "":
			res.Target = r.Operation
		case len(r.Attribute) > 0:
			res.Target = strings.Join(r.Attribute, ",")
		}
		if kind := jolokia.Classify(r); d.Allowed && kind != jolokia.NotIntrospection {
			res.Intercept = kind.String()
		}
		results[i] = res
	}
	return results
}

func writeCheckTable(cmd *cobra.Command, results []checkResult) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tVERDICT\tTYPE\tMBEAN\tTARGET\tNOTE")
	for _, r := range results {
		verdict, note := "allow", r.Intercept
		if !r.Allowed {
			verdict, note = "deny", r.Reason
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", r.Index, verdict, r.Type, r.MBean, r.Target, note)
	}
	return tw.Flush()
}
