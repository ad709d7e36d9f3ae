package report

import (
	"context"
	"fmt"
	"io"

	"github.com/bilal/clashstat/internal/controller"
)

type ConfigSource interface {
	Configs(ctx context.Context) (*controller.Configs, error)
}

// Groups fetches the proxy table from src and writes every group followed
// by its candidates, the selected one marked with "* => ".
func Groups(ctx context.Context, src ProxySource, w io.Writer, format string) error {
	ps, err := src.Proxies(ctx)
	if err != nil {
		return err
	}
	return WriteGroups(w, ps, format)
}

func WriteGroups(w io.Writer, ps controller.Proxies, format string) error {
	groups := ps.Groups()
	if format != FormatText {
		if groups == nil {
			groups = []controller.Proxy{}
		}
		return encode(w, groups, format)
	}
	for _, g := range groups {
		if _, err := fmt.Fprintf(w, "Group: %s, Type: %s, Now: %s\n", g.Name, str(g.Type), str(g.Now)); err != nil {
			return outputErr(err)
		}
		for _, candidate := range g.All {
			mark := "    "
			if g.Now != nil && *g.Now == candidate {
				mark = "* => "
			}
			if _, err := fmt.Fprintf(w, "  %s%s\n", mark, candidate); err != nil {
				return outputErr(err)
			}
		}
	}
	return nil
}

// Mode fetches /configs and writes the controller's routing mode.
func Mode(ctx context.Context, src ConfigSource, w io.Writer, format string) error {
	cfg, err := src.Configs(ctx)
	if err != nil {
		return err
	}
	if format != FormatText {
		return encode(w, cfg, format)
	}
	_, err = fmt.Fprintf(w, "Mode: %s\n", str(cfg.Mode))
	return outputErr(err)
}
