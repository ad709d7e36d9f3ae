package report

import (
	"context"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/bilal/clashstat/internal/controller"
)

type ConnectionSource interface {
	Connections(ctx context.Context) (*controller.Connections, error)
}

type VersionSource interface {
	Version(ctx context.Context) (*controller.Version, error)
}

var now = time.Now

// Connections fetches the active connections from src and writes them to w.
func Connections(ctx context.Context, src ConnectionSource, w io.Writer, format string) error {
	c, err := src.Connections(ctx)
	if err != nil {
		return err
	}
	return WriteConnections(w, c, format)
}

func WriteConnections(w io.Writer, c *controller.Connections, format string) error {
	if format != FormatText {
		return encode(w, c, format)
	}

	if _, err := fmt.Fprintf(w, "Total Uploaded: %d Total Downloaded: %d Active: %d\n",
		c.UploadTotal, c.DownloadTotal, len(c.Connections)); err != nil {
		return outputErr(err)
	}
	for _, conn := range c.Connections {
		line := fmt.Sprintf("Conn: %s -> %s via %s rule %s up %d down %d",
			net.JoinHostPort(conn.Metadata.SourceIP, conn.Metadata.SourcePort),
			destination(conn.Metadata),
			Chain(conn.Chains),
			rule(conn),
			conn.Upload, conn.Download)
		if conn.Metadata.Process != "" {
			line += " process " + conn.Metadata.Process
		}
		if !conn.Start.IsZero() {
			line += " age " + now().Sub(conn.Start).Truncate(time.Second).String()
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return outputErr(err)
		}
	}
	return nil
}

// Chain renders a connection's proxy chain outermost first, e.g. "Auto => node-A".
// The controller lists the chain innermost first.
func Chain(chains []string) string {
	if len(chains) == 0 {
		return "DIRECT"
	}
	parts := make([]string, 0, len(chains))
	for i := len(chains) - 1; i >= 0; i-- {
		parts = append(parts, strings.TrimSpace(chains[i]))
	}
	return strings.Join(parts, " => ")
}

func destination(m controller.ConnectionMetadata) string {
	host := m.Host
	if host == "" {
		host = m.DestinationIP
	}
	return net.JoinHostPort(host, m.DestinationPort)
}

func rule(c controller.Connection) string {
	if c.RulePayload == "" {
		return c.Rule
	}
	return c.Rule + "(" + c.RulePayload + ")"
}

// Version fetches and writes the controller version.
func Version(ctx context.Context, src VersionSource, w io.Writer, format string) error {
	v, err := src.Version(ctx)
	if err != nil {
		return err
	}
	if format != FormatText {
		return encode(w, v, format)
	}

	var flavour []string
	if v.Premium {
		flavour = append(flavour, "premium")
	}
	if v.Meta {
		flavour = append(flavour, "meta")
	}
	version := v.Version
	if version == "" {
		version = Placeholder
	}
	if len(flavour) > 0 {
		version += " (" + strings.Join(flavour, ", ") + ")"
	}
	_, err = fmt.Fprintf(w, "Version: %s\n", version)
	return outputErr(err)
}
