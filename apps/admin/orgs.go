package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"github.com/trezcool/wellbeing/core/subscription"
)

func (cli *commandLine) listOrgs(ctx context.Context, w io.Writer, search string) error {
	orgs, err := cli.orgSvc.Query(ctx, search)
	if err != nil {
		return errors.Wrap(err, "querying organizations")
	}

	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"ID", "Name", "Slug", "Plan", "Status", "Members", "Created"})
	for _, org := range orgs {
		sub, err := cli.subSvc.Get(ctx, org.ID)
		if err != nil {
			return errors.Wrapf(err, "getting subscription of %s", org.ID)
		}
		usage, err := cli.subSvc.Usage(ctx, org.ID)
		if err != nil {
			return errors.Wrapf(err, "getting usage of %s", org.ID)
		}
		table.Append([]string{
			org.ID,
			org.Name,
			org.Slug,
			string(cli.subSvc.PlanFor(sub).ID),
			string(sub.Status),
			strconv.Itoa(usage.Members),
			org.CreatedAt.Format(time.RFC3339),
		})
	}
	table.Render()
	return nil
}

func (cli *commandLine) setPlan(ctx context.Context, w io.Writer, orgID, plan, status string) error {
	if _, err := cli.orgSvc.Get(ctx, orgID); err != nil {
		return err
	}
	cp := subscription.ChangePlan{Plan: subscription.PlanID(plan), Status: subscription.Status(status)}
	if err := cp.Validate(cli.validate); err != nil {
		return err
	}
	sub, err := cli.subSvc.ChangePlan(ctx, orgID, cp)
	if err != nil {
		return errors.Wrap(err, "changing plan")
	}
	_, _ = fmt.Fprintf(w, "%s is now on the %s plan (%s)\n", orgID, sub.Plan, sub.Status)
	return nil
}
