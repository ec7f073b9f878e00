package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/leegang/WifiConfig/pkg/discovery"
)

// Finder returns the devices currently announced on the network.
type Finder interface {
	Find(ctx context.Context) ([]*discovery.DeviceService, error)
}

// RunDiscover lists announced devices with the boot ID each one is running,
// so a device can be matched to its journal with --boot-id.
func RunDiscover(ctx context.Context, finder Finder, w io.Writer) error {
	found, err := finder.Find(ctx)
	if err != nil {
		return fmt.Errorf("browse: %w", err)
	}
	if len(found) == 0 {
		fmt.Fprintln(w, "No devices found.")
		return nil
	}

	sort.Slice(found, func(i, j int) bool { return found[i].Instance < found[j].Instance })

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "INSTANCE\tMODE\tVERSION\tBOOT\tURL")
	for _, svc := range found {
		boot := "-"
		if svc.BootID != "" {
			boot = shortenID(svc.BootID)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", svc.Instance, svc.Mode, svc.Version, boot, deviceURL(svc))
	}
	return tw.Flush()
}

// deviceURL is the configuration page of svc, preferring IPv4.
func deviceURL(svc *discovery.DeviceService) string {
	host := strings.TrimSuffix(svc.Host, ".")
	for _, addr := range svc.Addresses {
		if !strings.Contains(addr, ":") {
			host = addr
			break
		}
	}
	if host == "" {
		return "-"
	}
	if svc.Port != 0 && svc.Port != 80 {
		host = fmt.Sprintf("%s:%d", host, svc.Port)
	}
	return "http://" + host + svc.Path
}
