// Command risksnapshot prints the current district risk table once and checks
// case tables and boundary files for problems the service would trip over.
//
// Usage:
//
//	go run ./cmd/risksnapshot --bias 5 --event-size 50 --format text
//	go run ./cmd/risksnapshot --source testdata/cases.csv --format yaml
//	go run ./cmd/risksnapshot validate --source cases.csv --geometry data/berlin_bezirke.geojson
package main

import (
	"fmt"
	"os"
	"time"

	"github.com/couchcryptid/event-risk-service/internal/config"
	"github.com/couchcryptid/event-risk-service/internal/domain"
	"github.com/spf13/cobra"
)

var (
	sourceFlag  string
	timeoutFlag time.Duration
	verboseFlag bool
)

var rootCmd = &cobra.Command{
	Use:           "risksnapshot",
	Short:         "Print district COVID-19 event risk for Berlin",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runSnapshot,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&sourceFlag, "source", config.DefaultCasesURL, "case table URL or local CSV/JSON file")
	pf.DurationVar(&timeoutFlag, "timeout", 10*time.Second, "HTTP timeout per fetch attempt")
	pf.BoolVarP(&verboseFlag, "verbose", "v", false, "log fetch progress to stderr")

	f := rootCmd.Flags()
	f.Float64Var(&biasFlag, "bias", domain.DefaultBias, "ratio of true to reported infections")
	f.IntVar(&eventSizeFlag, "event-size", domain.DefaultEventSize, "number of event attendees")
	f.StringVarP(&formatFlag, "format", "o", "text", "output format: text, json or yaml")

	rootCmd.AddCommand(validateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
