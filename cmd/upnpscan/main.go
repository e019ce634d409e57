package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"text/tabwriter"
	"time"

	"upnpscan/internal/discovery"
	"upnpscan/internal/ssdp"
	"upnpscan/internal/webui"
)

const usage = `upnpscan - UPnP/SSDP discovery toolkit

Usage:
  upnpscan open     Open the upnpscan dashboard in a browser.
  upnpscan search   Run a one-shot discovery and print the devices found.

Search flags:
  -source addr      Local address to bind ("ip" or "ip:port").
  -target addr      SSDP group to search ("host" or "host:port").
  -st target        Search target (default ssdp:all).
  -timeout dur      Response collection window (default 5s).
`

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		fmt.Print(usage)
		return nil
	}

	switch args[0] {
	case "open":
		return runOpen()
	case "search":
		return runSearch(args[1:])
	case "help", "--help", "-h":
		fmt.Print(usage)
		return nil
	default:
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func runOpen() error {
	return webui.New(discovery.NewManager(nil)).Run()
}

func runSearch(args []string) error {
	flags := flag.NewFlagSet("search", flag.ContinueOnError)
	sourceFlag := flags.String("source", "", "local address to bind")
	targetFlag := flags.String("target", "", "SSDP group to search")
	searchTarget := flags.String("st", ssdp.SearchTargetAll, "search target")
	timeout := flags.Duration("timeout", 5*time.Second, "response collection window")
	if err := flags.Parse(args); err != nil {
		return err
	}

	target, err := ssdp.ResolveTarget(*targetFlag)
	if err != nil {
		return err
	}
	var source *net.UDPAddr
	if *sourceFlag != "" {
		host, port := *sourceFlag, "0"
		if h, p, splitErr := net.SplitHostPort(*sourceFlag); splitErr == nil {
			host, port = h, p
		}
		if source, err = net.ResolveUDPAddr("udp", net.JoinHostPort(host, port)); err != nil {
			return err
		}
	}

	seen := make(map[string]*ssdp.Packet)
	var order []string
	callback := func(pkt *ssdp.Packet) {
		if pkt.UDN == "" {
			return
		}
		if _, ok := seen[pkt.UDN]; !ok {
			order = append(order, pkt.UDN)
		}
		seen[pkt.UDN] = pkt
	}

	fmt.Printf("Searching %s for %s...\n", ssdp.HostPortString(target), *searchTarget)
	err = ssdp.Search(context.Background(), callback, ssdp.SearchOptions{
		Timeout:      *timeout,
		SearchTarget: *searchTarget,
		Source:       source,
		Target:       target,
	})
	if err != nil {
		return err
	}

	if len(order) == 0 {
		fmt.Println("No devices responded.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "UDN\tHOST\tSERVER\tLOCATION")
	for _, udn := range order {
		pkt := seen[udn]
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
			udn, pkt.Host, pkt.Headers.Get("server"), pkt.Headers.Get("location"))
	}
	return w.Flush()
}

func init() {
	// Ensure usage text ends with a newline so we can safely print it without fmt.Println.
	if len(usage) == 0 || usage[len(usage)-1] != '\n' {
		panic(errors.New("usage string must end with a newline"))
	}
}
