package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/Guizzs26/go-sync-bridge/internal/models"
	"github.com/Guizzs26/go-sync-bridge/internal/pairing"
	"github.com/Guizzs26/go-sync-bridge/internal/service"
)

var errUsage = errors.New("usage")

type console struct {
	pairing *pairing.Manager
	review  *service.ReviewService
	out     io.Writer
}

func (c *console) run(ctx context.Context, cmd string, args []string) error {
	switch cmd {
	case "status":
		return c.status(ctx)
	case "code":
		return c.issueCode(ctx)
	case "unlink":
		return c.unlink(ctx)
	case "drafts":
		return c.drafts(ctx, args)
	case "approve":
		return c.approve(ctx, args)
	case "reject":
		return c.reject(ctx, args)
	case "subs":
		return c.subscriptions(ctx)
	case "sub-add":
		return c.addSubscription(ctx, args)
	case "pay":
		return c.pay(ctx, args)
	case "sub-delete":
		return c.deleteSubscription(ctx, args)
	case "dead-letters":
		return c.deadLetters(ctx, args)
	default:
		return errUsage
	}
}

func newFlags(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %s", errUsage, err)
	}
	return nil
}

func (c *console) status(ctx context.Context) error {
	snap, err := c.pairing.Status(ctx)
	if err != nil {
		return err
	}
	switch snap.State() {
	case pairing.Paired:
		fmt.Fprintf(c.out, "paired with chat %s\n", snap.Bound)
	case pairing.CodeIssued:
		fmt.Fprintf(c.out, "waiting for code %s\n", snap.Code)
	default:
		fmt.Fprintln(c.out, "not paired")
	}
	return nil
}

func (c *console) issueCode(ctx context.Context) error {
	code, err := c.pairing.IssueCode(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "pairing code: %s\nsend /pair %s to the bot\n", code, code)
	return nil
}

func (c *console) unlink(ctx context.Context) error {
	prev, err := c.pairing.Unlink(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "unlinked chat %s\n", prev)
	return nil
}

func (c *console) drafts(ctx context.Context, args []string) error {
	fs := newFlags("drafts")
	all := fs.Bool("all", false, "include processed drafts")
	if err := parse(fs, args); err != nil {
		return err
	}

	status := models.DraftNew
	if *all {
		status = ""
	}
	drafts, err := c.review.ListDrafts(ctx, status)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAMOUNT\tCHAT\tSTATUS\tRECEIVED")
	for _, d := range drafts {
		fmt.Fprintf(tw, "%d\t%s\t%s %s\t%s\t%s\t%s\n",
			d.ID, d.RawName, formatMoney(d.Amount), d.Currency, d.ChatID, d.Status, d.CreatedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

// subscriptionFlags registers the fields shared by approve and sub-add
func subscriptionFlags(fs *flag.FlagSet) func() (models.SubscriptionInput, error) {
	name := fs.String("name", "", "subscription name")
	cost := fs.Float64("cost", 0, "cost in UAH")
	period := fs.String("period", "", "month, quarter or year")
	date := fs.String("date", "", "next payment, YYYY-MM-DD or DD.MM.YYYY")

	return func() (models.SubscriptionInput, error) {
		p, err := models.ParsePeriod(*period)
		if err != nil {
			return models.SubscriptionInput{}, err
		}
		in := models.SubscriptionInput{Name: *name, CostUAH: *cost, Period: p}
		if *date != "" {
			if in.NextPayment, err = service.ParseDate(*date); err != nil {
				return models.SubscriptionInput{}, err
			}
		}
		return in, nil
	}
}

func (c *console) approve(ctx context.Context, args []string) error {
	fs := newFlags("approve")
	id := fs.Int64("id", 0, "draft id")
	input := subscriptionFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return errUsage
	}
	in, err := input()
	if err != nil {
		return err
	}

	sub, origin, err := c.review.ApproveDraft(ctx, *id, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "subscription #%d %q created, next payment %s\n", sub.ID, sub.Name, sub.NextPayment.Format(models.DateLayout))
	if origin != "" {
		fmt.Fprintf(c.out, "chat %s notified\n", origin)
	}
	return nil
}

func (c *console) reject(ctx context.Context, args []string) error {
	fs := newFlags("reject")
	id := fs.Int64("id", 0, "draft id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return errUsage
	}

	if _, err := c.review.RejectDraft(ctx, *id); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "draft #%d rejected\n", *id)
	return nil
}

func (c *console) subscriptions(ctx context.Context) error {
	subs, err := c.review.ListSubscriptions(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOST UAH\tPERIOD\tNEXT PAYMENT\tSTATE\tREMINDED")
	for _, s := range subs {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
			s.ID, s.Name, formatMoney(s.CostUAH), s.Period, s.NextPayment.Format(models.ReminderDateLayout), s.State, s.ReminderSent)
	}
	return tw.Flush()
}

func (c *console) addSubscription(ctx context.Context, args []string) error {
	fs := newFlags("sub-add")
	input := subscriptionFlags(fs)
	if err := parse(fs, args); err != nil {
		return err
	}
	in, err := input()
	if err != nil {
		return err
	}
	if in.Name == "" || in.CostUAH <= 0 {
		return errUsage
	}

	sub, err := c.review.CreateSubscription(ctx, in)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "subscription #%d %q created\n", sub.ID, sub.Name)
	return nil
}

func (c *console) pay(ctx context.Context, args []string) error {
	fs := newFlags("pay")
	id := fs.Int64("id", 0, "subscription id")
	amount := fs.Float64("amount", 0, "paid amount, defaults to the cost")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return errUsage
	}

	sub, err := c.review.RecordPayment(ctx, *id, *amount)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "payment recorded, next payment %s\n", sub.NextPayment.Format(models.ReminderDateLayout))
	return nil
}

func (c *console) deleteSubscription(ctx context.Context, args []string) error {
	fs := newFlags("sub-delete")
	id := fs.Int64("id", 0, "subscription id")
	if err := parse(fs, args); err != nil {
		return err
	}
	if *id <= 0 {
		return errUsage
	}

	sub, err := c.review.DeleteSubscription(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "subscription %q deleted\n", sub.Name)
	return nil
}

func (c *console) deadLetters(ctx context.Context, args []string) error {
	fs := newFlags("dead-letters")
	limit := fs.Int("limit", 20, "rows to show")
	if err := parse(fs, args); err != nil {
		return err
	}

	letters, err := c.review.DeadLetters(ctx, *limit)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDIRECTION\tREASON\tQUEUED\tFAILED")
	for _, l := range letters {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
			l.ID, l.Direction, l.Reason, l.QueuedAt.Local().Format(time.DateTime), l.FailedAt.Local().Format(time.DateTime))
	}
	return tw.Flush()
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
