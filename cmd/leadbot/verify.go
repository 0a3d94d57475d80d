package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jonathan/sponsor-leads/internal/fetch"
	"github.com/jonathan/sponsor-leads/internal/observability"
	"github.com/jonathan/sponsor-leads/internal/types"
	"github.com/jonathan/sponsor-leads/internal/verify"
)

var verifyCommand = &cobra.Command{
	Use:   "verify",
	Short: "Check one website against a company's registry identifiers",
	Long: `Fetches --url once and scores it against the company number, registered
postcode and name, printing the outcome and the fields that matched. Useful
for tuning the verification gate.`,
	RunE: runVerifyCmd,
}

var (
	verifyURL           string
	verifyCompanyNumber string
	verifyPostcode      string
	verifyName          string
	verifyThreshold     int
	verifyUseBrowser    bool
	verifyTimeout       time.Duration
)

func init() {
	verifyCommand.Flags().StringVarP(&verifyURL, "url", "u", "", "Candidate website URL")
	verifyCommand.Flags().StringVarP(&verifyCompanyNumber, "company-number", "c", "", "Registered company number")
	verifyCommand.Flags().StringVar(&verifyPostcode, "postcode", "", "Registered office postcode")
	verifyCommand.Flags().StringVarP(&verifyName, "name", "n", "", "Registered company name")
	verifyCommand.Flags().IntVar(&verifyThreshold, "threshold", verify.DefaultThreshold, "Points required to verify")
	verifyCommand.Flags().BoolVar(&verifyUseBrowser, "use-browser", false, "Re-render thin pages in headless Chrome")
	verifyCommand.Flags().DurationVar(&verifyTimeout, "timeout", fetch.DefaultTimeout, "HTTP timeout")

	_ = verifyCommand.MarkFlagRequired("url")

	rootCmd.AddCommand(verifyCommand)
}

func runVerifyCmd(_ *cobra.Command, _ []string) error {
	if verifyCompanyNumber == "" && verifyPostcode == "" {
		return fmt.Errorf("at least one of --company-number or --postcode is required")
	}
	rec := &types.RegistryRecord{
		Source:        types.SourceCompaniesHouse,
		Name:          verifyName,
		CompanyNumber: verifyCompanyNumber,
		Postcode:      verifyPostcode,
	}

	httpOpts := fetch.DefaultOptions()
	httpOpts.Timeout = verifyTimeout
	opts := verify.Options{Threshold: verifyThreshold}
	if verifyUseBrowser {
		opts.Renderer = &fetch.Browser{Timeout: verifyTimeout}
	}
	v := verify.New(fetch.NewClient(httpOpts), opts, nil)

	match, outcome, err := v.Verify(context.Background(), types.CandidateWebsite{URL: verifyURL}, rec)
	printVerification(os.Stdout, verifyURL, match, outcome, err)
	return nil
}

func printVerification(w io.Writer, url string, match *types.VerifiedMatch, outcome verify.Outcome, err error) {
	fields := []observability.Field{
		{Label: "URL", Value: url},
		{Label: "Outcome", Value: string(outcome)},
	}
	if match != nil {
		fields = append(fields,
			observability.Field{Label: "Score", Value: fmt.Sprintf("%d/%d", match.Score, verify.MaxPoints)},
			observability.Field{Label: "Matched", Value: strings.Join(match.Fields, ", ")},
			observability.Field{Label: "Final URL", Value: match.FinalURL},
		)
	}
	if err != nil {
		fields = append(fields, observability.Field{Label: "Error", Value: err.Error()})
	}
	observability.NewPrinter(w).PrintSummary("VERIFY", fields)
}
