package output

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/telekom/dlctl/pkg/dlctl/auth"
	"github.com/telekom/dlctl/pkg/dlctl/config"
)

func WriteCapabilityTable(w io.Writer, caps auth.Capabilities) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "FLOW\tENABLED\tSERVER RESPONSE")
	for _, c := range caps {
		enabled := "no"
		if c.Enabled {
			enabled = "yes"
		}
		response := string(c.Code)
		if c.ProbeFailed() {
			enabled = "unknown"
			response = "probe failed: " + c.Err.Error()
		}
		if response == "" {
			response = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Flow, enabled, response)
	}
	_ = tw.Flush()
}

// TokenStatus is the printable view of a stored login.
type TokenStatus struct {
	Profile       string    `json:"profile" yaml:"profile"`
	Authenticated bool      `json:"authenticated" yaml:"authenticated"`
	Flow          string    `json:"flow,omitempty" yaml:"flow,omitempty"`
	InstanceURL   string    `json:"instanceURL,omitempty" yaml:"instanceURL,omitempty"`
	AccessToken   string    `json:"accessToken,omitempty" yaml:"accessToken,omitempty"`
	HasRefresh    bool      `json:"hasRefreshToken" yaml:"hasRefreshToken"`
	IssuedAt      time.Time `json:"issuedAt,omitempty" yaml:"issuedAt,omitempty"`
	Scope         string    `json:"scope,omitempty" yaml:"scope,omitempty"`
}

func WriteTokenStatusTable(w io.Writer, statuses []TokenStatus) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "PROFILE\tAUTHENTICATED\tFLOW\tINSTANCE\tISSUED\tREFRESH")
	for _, s := range statuses {
		refresh := "no"
		if s.HasRefresh {
			refresh = "yes"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\t%s\n", s.Profile, s.Authenticated, dash(s.Flow), dash(s.InstanceURL), formatTime(s.IssuedAt), refresh)
	}
	_ = tw.Flush()
}

func WriteProfileTable(w io.Writer, profiles []config.Profile, current string) {
	tw := tabwriter.NewWriter(w, 2, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "CURRENT\tNAME\tLOGIN URL\tCLIENT ID\tFLOW\tLAST FLOW")
	for _, p := range profiles {
		marker := ""
		if p.Name == current {
			marker = "*"
		}
		endpoint := p.LoginURL
		if endpoint == "" {
			endpoint = p.Issuer
		}
		if endpoint == "" {
			endpoint = p.TokenURL
		}
		flow := p.Flow
		if flow == "" {
			flow = string(auth.FlowAuto)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", marker, p.Name, dash(endpoint), p.ClientID, flow, dash(p.LastFlow))
	}
	_ = tw.Flush()
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format(time.RFC3339)
}
