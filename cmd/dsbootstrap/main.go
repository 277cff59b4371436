// Command dsbootstrap reads a stream of scan jobs and bootstraps DS
// records for each, or enumerates signaling children in NSEC-walk mode.
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dsec-tools/dsbootstrap"
	"github.com/dsec-tools/dsbootstrap/config"
	"github.com/dsec-tools/dsbootstrap/events"
	"github.com/miekg/dns"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	cfgFile string
	inFile  string
	outFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "dsbootstrap",
	Short: "Bootstrap DS records from CDS/CDNSKEY signaling",
	Long: "dsbootstrap reads jobs of the form \"[.]child auth1 auth2 ...\", one per line.\n" +
		"A leading \".\" on the child token switches that job to NSEC-walk\n" +
		"discovery mode, treating child as the ancestor to enumerate under.",
	RunE: run,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVarP(&inFile, "input", "i", "", "input job file (default: stdin)")
	rootCmd.PersistentFlags().StringVarP(&outFile, "output", "o", "", "output file (default: stdout)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
}

func main() {
	cobra.CheckErr(rootCmd.Execute())
}

func run(cmd *cobra.Command, args []string) error {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	}

	cfg := config.Default()
	if cfgFile != "" {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	if len(cfg.ResolverAddresses) == 0 {
		rc, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return fmt.Errorf("load system resolvers: %w", err)
		}
		cfg.ResolverAddresses = rc.Servers
	}

	in := io.Reader(os.Stdin)
	if inFile != "" {
		f, err := os.Open(inFile)
		if err != nil {
			return fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		in = f
	}

	out := io.Writer(os.Stdout)
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("open output: %w", err)
		}
		defer f.Close()
		out = f
	}

	sink := events.New(nil)
	querier := dsbootstrap.NewQuerier(cfg, sink)
	auths := dsbootstrap.NewAuthCache()
	engine := dsbootstrap.NewEngine(querier, auths, sink, cfg)
	walker := dsbootstrap.NewWalker(querier, auths, cfg)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		child, nameservers := fields[0], fields[1:]
		if len(nameservers) == 0 {
			logrus.WithField("line", line).Warn("job has no authoritative nameservers, skipping")
			continue
		}

		if strings.HasPrefix(child, ".") {
			ancestor := strings.TrimPrefix(child, ".")
			for _, candidate := range walker.Walk(cmd.Context(), ancestor, nameservers) {
				fmt.Fprintf(out, "%s %s\n", candidate.Child, strings.Join(candidate.Auths, " "))
			}
			continue
		}

		dsRRset, ok := engine.Scan(cmd.Context(), child, nameservers)
		if !ok {
			continue
		}
		for _, rr := range dsRRset {
			fmt.Fprintln(out, rr.String())
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}

	printReport(sink)
	return nil
}

// printReport writes the count-per-event-kind summary to stderr,
// matching original_source/dsbootstrap/stats.py's report_counts shape
// (one fixed-width name, one count, per taxonomy member).
func printReport(sink *events.Sink) {
	counts := sink.Counts()
	for _, event := range []events.Event{
		events.HaveDS, events.HaveCDS,
		events.DNSFailure, events.DNSBogus, events.DNSLame, events.DNSTimeout,
		events.ChildCDSInconsistent, events.ChildCDNSKEYInconsistent, events.ChildDNSKEYInconsistent,
		events.BootCDSInconsistent, events.BootCDNSKEYInconsistent, events.BootNoop,
		events.NoCDS, events.NoCDNSKEY, events.ContinuityErr,
		events.OldSig, events.NotSignedByKSK, events.CDSDelete, events.CDSNoop,
	} {
		fmt.Fprintf(os.Stderr, "%-26s %d\n", event, counts[event])
	}
}
