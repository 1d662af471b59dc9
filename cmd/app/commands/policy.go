package commands

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/allisson/admissions/internal/application/domain"
	"github.com/allisson/admissions/internal/application/http/dto"
)

// RunPolicy prints the transition table in effect, one allowed edge per line.
func RunPolicy(policy *domain.Policy, writer io.Writer, format string) error {
	if err := validateFormat(format); err != nil {
		return err
	}

	rules := policy.Rules()
	if format == FormatJSON {
		return writeJSON(writer, dto.MapRulesToPolicyResponse(rules))
	}

	tw := tabwriter.NewWriter(writer, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FROM\tREASON\tTO\tROLES")
	for _, rule := range rules {
		to := make([]string, 0, len(rule.To))
		for _, status := range rule.To {
			to = append(to, string(status))
		}
		roles := make([]string, 0, len(rule.Roles))
		for _, role := range rule.Roles {
			roles = append(roles, string(role))
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
			rule.From,
			rule.Reason,
			strings.Join(to, ","),
			strings.Join(roles, ","),
		)
	}
	return tw.Flush()
}
