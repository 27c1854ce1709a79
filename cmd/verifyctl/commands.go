package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"certverify/internal/document/models"
	"certverify/internal/document/poller"
	id "certverify/pkg/domain"
)

func newUploadCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "upload <aadhaar|pan> <file>",
		Short: "Upload a document image or PDF for extraction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			docType := strings.ToLower(strings.TrimSpace(args[0]))
			if docType != "aadhaar" && docType != "pan" {
				return fmt.Errorf("document type must be aadhaar or pan, got %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			file, err := os.Open(args[1])
			if err != nil {
				return err
			}
			defer file.Close()

			uploaded, err := client.Upload(cmd.Context(), docType, args[1], file)
			if err != nil {
				return err
			}
			if !wait {
				return emit(cmd, ctx.flags.output, uploaded, func() string {
					return renderTable([]string{"Document", "Status"}, [][]string{{uploaded.ID, uploaded.Status}})
				})
			}
			docID, err := id.ParseDocumentID(uploaded.ID)
			if err != nil {
				return fmt.Errorf("server returned invalid document id %q", uploaded.ID)
			}
			return waitAndShow(cmd, ctx, client, docID)
		},
	}
	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for extraction to finish")
	return cmd
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status <document-id>",
		Short: "Show a document's processing status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := id.ParseDocumentID(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			doc, err := client.Document(cmd.Context(), docID)
			if err != nil {
				return err
			}
			return emit(cmd, ctx.flags.output, doc, func() string { return documentTable(doc) })
		},
	}
}

func newWaitCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "wait <document-id>",
		Short: "Poll a document until extraction completes or fails",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			docID, err := id.ParseDocumentID(args[0])
			if err != nil {
				return fmt.Errorf("invalid document id %q", args[0])
			}
			client, err := ctx.client()
			if err != nil {
				return err
			}
			return waitAndShow(cmd, ctx, client, docID)
		},
	}
}

// waitAndShow polls with the configured interval and attempt bound. The last
// observed document is printed even when polling gives up.
func waitAndShow(cmd *cobra.Command, ctx *commandContext, client *apiClient, docID id.DocumentID) error {
	p := poller.New(
		poller.WithInterval(ctx.cfg.Polling.Interval()),
		poller.WithMaxAttempts(ctx.cfg.Polling.MaxAttempts),
	)
	doc, err := p.Wait(cmd.Context(), docID, func(c context.Context, docID id.DocumentID) (*models.Document, error) {
		return client.Document(c, docID)
	})
	if doc != nil {
		if emitErr := emit(cmd, ctx.flags.output, doc, func() string { return documentTable(doc) }); emitErr != nil {
			return emitErr
		}
	}
	return err
}

func newMatchCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Compare extracted documents",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "pan-aadhaar <pan-id> <aadhaar-id>",
		Short: "Match name and date of birth between a PAN and an Aadhaar card",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			result, err := client.MatchPANAadhaar(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			return emit(cmd, ctx.flags.output, result, func() string { return matchTable(result) })
		},
	})
	return cmd
}

func newVerificationCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:     "verification <verification-id>",
		Aliases: []string{"v"},
		Short:   "Show a verification and its steps",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := ctx.client()
			if err != nil {
				return err
			}
			v, err := client.Verification(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return emit(cmd, ctx.flags.output, v, func() string { return verificationTable(v) })
		},
	}
}

func newQueueCommand(ctx *commandContext) *cobra.Command {
	var (
		statuses   []string
		priority   string
		assignedTo string
		mine       bool
		limit      int
	)

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "List the manual review queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if mine {
				if ctx.flags.verifier == "" {
					return fmt.Errorf("--mine requires --verifier")
				}
				assignedTo = ctx.flags.verifier
			}
			query := url.Values{}
			if len(statuses) > 0 {
				query.Set("status", strings.Join(statuses, ","))
			}
			if priority != "" {
				query.Set("priority", priority)
			}
			if assignedTo != "" {
				query.Set("assignedTo", assignedTo)
			}
			if limit > 0 {
				query.Set("limit", strconv.Itoa(limit))
			}

			client, err := ctx.client()
			if err != nil {
				return err
			}
			reviews, err := client.Queue(cmd.Context(), query)
			if err != nil {
				return err
			}
			return emit(cmd, ctx.flags.output, reviews, func() string { return queueTable(reviews, time.Now()) })
		},
	}
	cmd.Flags().StringSliceVar(&statuses, "status", nil, "Filter by status (repeatable)")
	cmd.Flags().StringVar(&priority, "priority", "", "Filter by priority")
	cmd.Flags().StringVar(&assignedTo, "assigned-to", "", "Filter by assignee")
	cmd.Flags().BoolVar(&mine, "mine", false, "Only reviews assigned to --verifier")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum reviews to return")
	return cmd
}
