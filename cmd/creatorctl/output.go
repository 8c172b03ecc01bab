package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/tjfontaine/creatorlink/internal/platform"
	"github.com/tjfontaine/creatorlink/pkg/creatorlink"
)

func (a *app) table() *tabwriter.Writer {
	return tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (a *app) printCampaigns(list []creatorlink.Campaign) error {
	if a.asJSON {
		return a.printJSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No campaigns yet")
		return nil
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tTITLE\tSTATUS\tBUDGET\tREACHED\tDATES")
	for _, c := range list {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.2f\t%d\t%s - %s\n",
			c.ID, c.Title, c.Status, c.Budget, c.InfluencersReached, c.StartDate, c.EndDate)
	}
	return tw.Flush()
}

func (a *app) printCampaign(c creatorlink.Campaign) error {
	if a.asJSON {
		return a.printJSON(c)
	}
	tw := a.table()
	fmt.Fprintf(tw, "ID\t%s\n", c.ID)
	fmt.Fprintf(tw, "Title\t%s\n", c.Title)
	fmt.Fprintf(tw, "Status\t%s\n", c.Status)
	fmt.Fprintf(tw, "Type\t%s\n", c.CampaignType)
	fmt.Fprintf(tw, "Budget\t%.2f\n", c.Budget)
	fmt.Fprintf(tw, "Dates\t%s - %s\n", c.StartDate, c.EndDate)
	if c.Description != "" {
		fmt.Fprintf(tw, "Description\t%s\n", c.Description)
	}
	if c.TargetAudience != "" {
		fmt.Fprintf(tw, "Audience\t%s\n", c.TargetAudience)
	}
	return tw.Flush()
}

func (a *app) printCreators(list []creatorlink.Creator) error {
	if a.asJSON {
		return a.printJSON(list)
	}
	if len(list) == 0 {
		fmt.Fprintln(a.out, "No creators matched")
		return nil
	}
	tw := a.table()
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tLOCATION\tAUDIENCE\tMATCH")
	for _, c := range list {
		match := "-"
		if c.MatchScore != nil {
			match = fmt.Sprintf("%d%%", *c.MatchScore)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			c.ID, c.FullName, c.Category, c.Location, platform.FormatCount(audience(c)), match)
	}
	return tw.Flush()
}

// audience is the creator's largest following across platforms.
func audience(c creatorlink.Creator) int64 {
	var top int64
	for _, n := range []*int64{c.InstagramFollowers, c.YouTubeSubscribers, c.TikTokFollowers, c.TwitterFollowers} {
		if n != nil && *n > top {
			top = *n
		}
	}
	return top
}
