// Package report fetches controller state and renders it for humans or tools.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bilal/clashstat/internal/controller"
	"gopkg.in/yaml.v3"
)

// Placeholder is printed in place of a value the controller did not send.
const Placeholder = "missing"

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ErrOutput marks failures writing the report, as opposed to fetching it.
var ErrOutput = errors.New("write output")

type TrafficSource interface {
	Traffic(ctx context.Context) (*controller.Traffic, error)
}

type ProxySource interface {
	Proxies(ctx context.Context) (controller.Proxies, error)
}

// Traffic fetches one traffic sample from src and writes it to w.
func Traffic(ctx context.Context, src TrafficSource, w io.Writer, format string) error {
	t, err := src.Traffic(ctx)
	if err != nil {
		return err
	}
	return WriteTraffic(w, t, format)
}

func WriteTraffic(w io.Writer, t *controller.Traffic, format string) error {
	if format != FormatText {
		return encode(w, t, format)
	}
	_, err := fmt.Fprintf(w, "Current Upload: %s Current Download: %s\nTotal Uploaded: %s Total Downloaded: %s\n",
		number(t.Up), number(t.Down), number(t.UpTotal), number(t.DownTotal))
	return outputErr(err)
}

// Proxies fetches the proxy table from src and writes one line per entry,
// ordered by name.
func Proxies(ctx context.Context, src ProxySource, w io.Writer, format string) error {
	ps, err := src.Proxies(ctx)
	if err != nil {
		return err
	}
	return WriteProxies(w, ps, format)
}

func WriteProxies(w io.Writer, ps controller.Proxies, format string) error {
	if format != FormatText {
		if ps == nil {
			ps = controller.Proxies{}
		}
		return encode(w, ps, format)
	}
	for _, p := range ps.Sorted() {
		if _, err := fmt.Fprintf(w, "Proxy: %s, Type: %s, Now: %s\n", p.Name, str(p.Type), str(p.Now)); err != nil {
			return outputErr(err)
		}
	}
	return nil
}

func encode(w io.Writer, v any, format string) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return outputErr(enc.Encode(v))
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return outputErr(err)
		}
		return outputErr(enc.Close())
	}
	return fmt.Errorf("unknown output format %q", format)
}

func outputErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrOutput, err)
}

func number(n *json.Number) string {
	if n == nil {
		return Placeholder
	}
	return n.String()
}

func str(s *string) string {
	if s == nil {
		return Placeholder
	}
	return *s
}
