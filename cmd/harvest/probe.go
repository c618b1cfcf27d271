package main

import (
	"fmt"

	"github.com/fwojciec/harvest"
	"github.com/fwojciec/harvest/crawl"
	"github.com/fwojciec/harvest/goquery"
)

// Run executes the probe command.
func (c *ProbeCmd) Run(deps *Dependencies) error {
	logger := newLogger(deps.Stderr, false)
	static, err := deps.NewFetcher(false, c.Headless, logger)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}
	defer static.Close()

	profile, err := resolveProfile(deps.Ctx, deps.Profiles, static, c.Profile, c.URL)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	browser, err := deps.NewFetcher(true, c.Headless, logger)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}
	defer browser.Close()

	staticListing, err := goquery.NewListing(static, c.URL, profile)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}
	browserListing, err := goquery.NewListing(browser, c.URL, profile)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	_, rendered, err := crawl.Probe(deps.Ctx, staticListing, browserListing)
	if err != nil {
		fmt.Fprintf(deps.Stderr, "error: %s\n", harvest.ErrorMessage(err))
		return err
	}

	fmt.Fprintf(deps.Stdout, "profile: %s\n", profile.Name)
	if rendered {
		fmt.Fprintln(deps.Stdout, "browser: required (use --browser)")
	} else {
		fmt.Fprintln(deps.Stdout, "browser: not required")
	}
	return nil
}
