package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/tjfontaine/creatorlink/internal/platform"
	"github.com/tjfontaine/creatorlink/pkg/creatorlink"
)

func (a *app) loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "sign in and store the session token",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{
				Name:     "password",
				Required: true,
				Sources:  cli.EnvVars("CREATORLINK_PASSWORD"),
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			id, err := a.client.SignIn(ctx, cmd.String("email"), cmd.String("password"))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Signed in as %s (%s)\n", id.Email, id.Kind)
			return nil
		},
	}
}

func (a *app) registerCommand() *cli.Command {
	return &cli.Command{
		Name:  "register",
		Usage: "create a brand or creator account",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: "brand", Usage: "brand or creator"},
			&cli.StringFlag{Name: "email", Required: true},
			&cli.StringFlag{Name: "password", Required: true, Sources: cli.EnvVars("CREATORLINK_PASSWORD")},
			&cli.StringFlag{Name: "name", Usage: "full name"},
			&cli.StringFlag{Name: "company", Usage: "company name (brands)"},
			&cli.StringFlag{Name: "username", Usage: "username (creators)"},
			&cli.StringFlag{Name: "category", Usage: "content category (creators)"},
			&cli.StringFlag{Name: "location", Usage: "location (creators)"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			var (
				id  *creatorlink.Identity
				err error
			)
			switch cmd.String("kind") {
			case "brand":
				id, err = a.client.Register(ctx, creatorlink.BrandRegistration{
					Email:       cmd.String("email"),
					FullName:    cmd.String("name"),
					CompanyName: cmd.String("company"),
					Password:    cmd.String("password"),
				})
			case "creator":
				id, err = a.client.Register(ctx, creatorlink.CreatorRegistration{
					Email:    cmd.String("email"),
					Username: cmd.String("username"),
					FullName: cmd.String("name"),
					Category: cmd.String("category"),
					Location: cmd.String("location"),
					Password: cmd.String("password"),
				})
			default:
				return fmt.Errorf("unknown account kind %q", cmd.String("kind"))
			}
			if err != nil {
				return err
			}
			if id == nil {
				fmt.Fprintln(a.out, "Account created, sign in with `creatorctl login`")
				return nil
			}
			fmt.Fprintf(a.out, "Account created, signed in as %s\n", id.Email)
			return nil
		},
	}
}

func (a *app) logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "sign out and forget the stored token",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := a.client.Logout(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Signed out")
			return nil
		},
	}
}

func (a *app) whoamiCommand() *cli.Command {
	return &cli.Command{
		Name:  "whoami",
		Usage: "show the signed in account",
		Action: func(_ context.Context, _ *cli.Command) error {
			state, id := a.client.Session.Session()
			if id == nil {
				fmt.Fprintf(a.out, "Not signed in (%s)\n", state)
				return nil
			}
			if a.asJSON {
				return a.printJSON(map[string]any{
					"uid":        id.UID,
					"email":      id.Email,
					"name":       id.DisplayName,
					"kind":       id.Kind,
					"expires_at": id.ExpiresAt,
				})
			}
			tw := a.table()
			fmt.Fprintf(tw, "Email\t%s\n", id.Email)
			fmt.Fprintf(tw, "Name\t%s\n", id.DisplayName)
			fmt.Fprintf(tw, "Kind\t%s\n", id.Kind)
			if !id.ExpiresAt.IsZero() {
				fmt.Fprintf(tw, "Expires\t%s\n", id.ExpiresAt.Local().Format(time.RFC1123))
			}
			return tw.Flush()
		},
	}
}

func (a *app) campaignsCommand() *cli.Command {
	return &cli.Command{
		Name:  "campaigns",
		Usage: "manage campaigns",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "list your campaigns",
				Action: func(ctx context.Context, _ *cli.Command) error {
					if err := a.requireSession("/campaigns"); err != nil {
						return err
					}
					list, err := a.client.Platform.Campaigns.List(ctx)
					if err != nil {
						return err
					}
					return a.printCampaigns(list)
				},
			},
			{
				Name:      "get",
				Usage:     "show one campaign",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					if err := a.requireSession("/campaigns/" + id.String()); err != nil {
						return err
					}
					c, err := a.client.Platform.Campaigns.Get(ctx, id)
					if err != nil {
						return err
					}
					return a.printCampaign(c)
				},
			},
			{
				Name:  "create",
				Usage: "create a campaign",
				Flags: campaignFlags(true),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := a.requireSession("/campaigns/new"); err != nil {
						return err
					}
					c, err := a.client.Platform.Campaigns.Create(ctx, campaignInput(cmd))
					if err != nil {
						return err
					}
					return a.printCampaign(c)
				},
			},
			{
				Name:      "update",
				Usage:     "replace a campaign's details",
				ArgsUsage: "<id>",
				Flags:     campaignFlags(false),
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					if err := a.requireSession("/campaigns/" + id.String() + "/edit"); err != nil {
						return err
					}
					current, err := a.client.Platform.Campaigns.Get(ctx, id)
					if err != nil {
						return err
					}
					c, err := a.client.Platform.Campaigns.Update(ctx, id, mergeInput(current, cmd))
					if err != nil {
						return err
					}
					return a.printCampaign(c)
				},
			},
			{
				Name:      "delete",
				Usage:     "delete a campaign",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					if err := a.requireSession("/campaigns"); err != nil {
						return err
					}
					if err := a.client.Platform.Campaigns.Delete(ctx, id); err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Deleted campaign %s\n", id)
					return nil
				},
			},
			{
				Name:      "status",
				Usage:     "change a campaign's status",
				ArgsUsage: "<id> <draft|active|paused|completed|cancelled>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					status := cmd.Args().Get(1)
					if status == "" {
						return fmt.Errorf("missing status")
					}
					if err := a.requireSession("/campaigns/" + id.String()); err != nil {
						return err
					}
					c, err := a.client.Platform.Campaigns.UpdateStatus(ctx, id, creatorlink.CampaignStatus(status))
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Campaign %s is now %s\n", c.ID, c.Status)
					return nil
				},
			},
			{
				Name:      "roster",
				Usage:     "list the creators in a campaign",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					if err := a.requireSession("/campaigns/" + id.String()); err != nil {
						return err
					}
					roster, err := a.client.Platform.Campaigns.Creators(ctx, id)
					if err != nil {
						return err
					}
					if a.asJSON {
						return a.printJSON(roster)
					}
					tw := a.table()
					fmt.Fprintln(tw, "CREATOR\tSTATUS\tOFFERED\tDELIVERABLES\tINVITED")
					for _, cc := range roster {
						fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d/%d\t%s\n",
							cc.CreatorID, cc.Status, cc.OfferedRate,
							cc.DeliverablesCompleted, cc.DeliverablesTotal, cc.InvitedAt)
					}
					return tw.Flush()
				},
			},
			{
				Name:      "invite",
				Usage:     "invite creators to a campaign",
				ArgsUsage: "<id> <creator-id>...",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					rest := cmd.Args().Slice()[1:]
					if len(rest) == 0 {
						return fmt.Errorf("at least one creator id is required")
					}
					creators := make([]platform.ID, len(rest))
					for i, s := range rest {
						creators[i] = platform.ID(s)
					}
					if err := a.requireSession("/campaigns/" + id.String()); err != nil {
						return err
					}
					roster, err := a.client.Platform.Campaigns.Invite(ctx, id, creators)
					if err != nil {
						return err
					}
					fmt.Fprintf(a.out, "Campaign %s now has %d creators\n", id, len(roster))
					return nil
				},
			},
			{
				Name:      "chat",
				Usage:     "show the conversation with a creator",
				ArgsUsage: "<id> <creator-id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					creator, err := argID(cmd, 1)
					if err != nil {
						return err
					}
					if err := a.requireSession("/campaigns/" + id.String()); err != nil {
						return err
					}
					msgs, err := a.client.Platform.Campaigns.Chat(ctx, id, creator)
					if err != nil {
						return err
					}
					if a.asJSON {
						return a.printJSON(msgs)
					}
					for _, m := range msgs {
						fmt.Fprintf(a.out, "[%s] %s: %s\n", m.Time().Local().Format(time.Kitchen), m.Role, m.Content)
					}
					return nil
				},
			},
		},
	}
}

func campaignFlags(required bool) []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "title", Required: required},
		&cli.StringFlag{Name: "description"},
		&cli.StringFlag{Name: "brand", Usage: "brand name shown to creators"},
		&cli.StringFlag{Name: "type", Value: "sponsored_post", Usage: "campaign type"},
		&cli.FloatFlag{Name: "budget", Required: required},
		&cli.StringFlag{Name: "start", Usage: "start date (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "end", Usage: "end date (YYYY-MM-DD)"},
		&cli.StringFlag{Name: "audience", Usage: "target audience"},
		&cli.StringFlag{Name: "requirements", Usage: "content requirements"},
		&cli.StringFlag{Name: "deliverables"},
	}
}

func campaignInput(cmd *cli.Command) creatorlink.CampaignInput {
	return creatorlink.CampaignInput{
		Title:               cmd.String("title"),
		Description:         cmd.String("description"),
		BrandName:           cmd.String("brand"),
		CampaignType:        cmd.String("type"),
		Budget:              cmd.Float("budget"),
		StartDate:           cmd.String("start"),
		EndDate:             cmd.String("end"),
		TargetAudience:      platform.TextValue{Value: cmd.String("audience")},
		ContentRequirements: platform.TextValue{Value: cmd.String("requirements")},
		Deliverables:        platform.TextValue{Value: cmd.String("deliverables")},
	}
}

// mergeInput starts from the stored campaign and applies the flags the
// user actually set.
func mergeInput(c creatorlink.Campaign, cmd *cli.Command) creatorlink.CampaignInput {
	in := creatorlink.CampaignInput{
		Title:               c.Title,
		Description:         c.Description,
		BrandName:           c.BrandName,
		CampaignType:        c.CampaignType,
		Budget:              c.Budget,
		StartDate:           c.StartDate,
		EndDate:             c.EndDate,
		TargetAudience:      platform.TextValue{Value: c.TargetAudience},
		ContentRequirements: platform.TextValue{Value: c.ContentRequirements},
		Deliverables:        platform.TextValue{Value: c.Deliverables},
	}
	set := func(name string, dst *string) {
		if cmd.IsSet(name) {
			*dst = cmd.String(name)
		}
	}
	set("title", &in.Title)
	set("description", &in.Description)
	set("brand", &in.BrandName)
	set("type", &in.CampaignType)
	set("start", &in.StartDate)
	set("end", &in.EndDate)
	set("audience", &in.TargetAudience.Value)
	set("requirements", &in.ContentRequirements.Value)
	set("deliverables", &in.Deliverables.Value)
	if cmd.IsSet("budget") {
		in.Budget = cmd.Float("budget")
	}
	return in
}

func (a *app) creatorsCommand() *cli.Command {
	return &cli.Command{
		Name:  "creators",
		Usage: "discover creators",
		Commands: []*cli.Command{
			{
				Name:      "search",
				Usage:     "semantic search over creator profiles",
				ArgsUsage: "[query]",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "category"},
					&cli.StringFlag{Name: "location"},
					&cli.StringFlag{Name: "gender"},
					&cli.Int64Flag{Name: "min-followers"},
					&cli.Int64Flag{Name: "max-followers"},
					&cli.IntFlag{Name: "limit", Value: platform.DefaultSearchLimit},
				},
				Action: func(ctx context.Context, cmd *cli.Command) error {
					if err := a.requireSession("/creators"); err != nil {
						return err
					}
					found, err := a.client.Platform.Creators.Search(ctx, creatorlink.SearchParams{
						Query:        strings.Join(cmd.Args().Slice(), " "),
						Category:     cmd.String("category"),
						Location:     cmd.String("location"),
						Gender:       cmd.String("gender"),
						MinFollowers: cmd.Int64("min-followers"),
						MaxFollowers: cmd.Int64("max-followers"),
						Limit:        cmd.Int("limit"),
					})
					if err != nil {
						return err
					}
					return a.printCreators(found)
				},
			},
		},
	}
}

func (a *app) dashboardCommand() *cli.Command {
	return &cli.Command{
		Name:  "dashboard",
		Usage: "show account totals",
		Action: func(ctx context.Context, _ *cli.Command) error {
			if err := a.requireSession("/dashboard"); err != nil {
				return err
			}
			stats, err := a.client.Platform.Analytics.Dashboard(ctx)
			if err != nil {
				return err
			}
			if a.asJSON {
				return a.printJSON(stats)
			}
			tw := a.table()
			fmt.Fprintf(tw, "Campaigns\t%d\n", stats.TotalCampaigns)
			fmt.Fprintf(tw, "Active\t%d\n", stats.ActiveCampaigns)
			fmt.Fprintf(tw, "Creators\t%d\n", stats.TotalCreators)
			fmt.Fprintf(tw, "Spend\t%.2f\n", stats.TotalSpend)
			fmt.Fprintf(tw, "Avg. engagement\t%.2f%%\n", stats.AvgEngagementRate)
			return tw.Flush()
		},
	}
}

func (a *app) analyticsCommand() *cli.Command {
	return &cli.Command{
		Name:  "analytics",
		Usage: "campaign and creator performance",
		Commands: []*cli.Command{
			{
				Name:      "campaign",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					if err := a.requireSession("/analytics"); err != nil {
						return err
					}
					stats, err := a.client.Platform.Analytics.Campaign(ctx, id)
					if err != nil {
						return err
					}
					if a.asJSON {
						return a.printJSON(stats)
					}
					tw := a.table()
					fmt.Fprintf(tw, "Reach\t%s\n", platform.FormatCount(stats.Reach))
					fmt.Fprintf(tw, "Impressions\t%s\n", platform.FormatCount(stats.Impressions))
					fmt.Fprintf(tw, "Engagements\t%s\n", platform.FormatCount(stats.Engagements))
					fmt.Fprintf(tw, "Engagement rate\t%.2f%%\n", stats.EngagementRate)
					fmt.Fprintf(tw, "Spend\t%.2f\n", stats.Spend)
					return tw.Flush()
				},
			},
			{
				Name:      "creator",
				ArgsUsage: "<id>",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					id, err := argID(cmd, 0)
					if err != nil {
						return err
					}
					if err := a.requireSession("/analytics"); err != nil {
						return err
					}
					stats, err := a.client.Platform.Analytics.Influencer(ctx, id)
					if err != nil {
						return err
					}
					return a.printJSON(stats)
				},
			},
		},
	}
}

func (a *app) payCommand() *cli.Command {
	return &cli.Command{
		Name:  "pay",
		Usage: "create a payment intent for a campaign budget",
		Flags: []cli.Flag{
			&cli.Int64Flag{Name: "amount", Required: true, Usage: "amount in the currency's minor unit"},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if err := a.requireSession("/campaigns/new"); err != nil {
				return err
			}
			intent, err := a.client.Platform.Payments.CreateIntent(ctx, cmd.Int64("amount"))
			if err != nil {
				return err
			}
			cfg := a.client.Platform.Payments.Config()
			if a.asJSON {
				return a.printJSON(map[string]string{
					"client_secret":   intent.ClientSecret,
					"publishable_key": cfg.PublishableKey,
					"currency":        cfg.Currency,
					"mode":            cfg.Mode,
				})
			}
			tw := a.table()
			fmt.Fprintf(tw, "Client secret\t%s\n", intent.ClientSecret)
			fmt.Fprintf(tw, "Publishable key\t%s\n", cfg.PublishableKey)
			fmt.Fprintf(tw, "Currency\t%s\n", cfg.Currency)
			return tw.Flush()
		},
	}
}

func (a *app) voiceCommand() *cli.Command {
	return &cli.Command{
		Name:  "voice",
		Usage: "show the voice assistant configuration id",
		Action: func(_ context.Context, _ *cli.Command) error {
			id := a.client.Platform.VoiceAgentID()
			if a.asJSON {
				return a.printJSON(map[string]string{"agent_id": id})
			}
			if id == "" {
				fmt.Fprintln(a.out, "Voice assistant not configured")
				return nil
			}
			fmt.Fprintf(a.out, "Voice agent %s\n", id)
			return nil
		},
	}
}

func argID(cmd *cli.Command, i int) (platform.ID, error) {
	s := cmd.Args().Get(i)
	if s == "" {
		return "", fmt.Errorf("missing argument %d: id", i+1)
	}
	return platform.ID(s), nil
}
