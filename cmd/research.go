package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/digest-cli/internal/delivery"
	"github.com/sells-group/digest-cli/internal/mail"
	"github.com/sells-group/digest-cli/internal/topic"
)

var (
	researchFile   string
	researchTopics string
	researchTo     string
	researchHTML   bool
)

var researchCmd = &cobra.Command{
	Use:   "research",
	Short: "Research a list of topics once and print or mail the digest",
	Long:  "Reads topics from the topics file (or --topics), researches each in order and renders one digest. With --to the digest is mailed; otherwise it is written to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("research"); err != nil {
			return err
		}

		topics := topic.Split(researchTopics)
		if len(topics) == 0 {
			path := researchFile
			if path == "" {
				path = cfg.Research.TopicsFile
			}
			tf, err := loadTopicsFile(path)
			if err != nil {
				return err
			}
			topics = tf.Topics
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		p, _, err := initPipeline(cfg)
		if err != nil {
			return err
		}
		var sender mail.Sender = mail.LogSender{}
		if researchTo != "" {
			if sender, err = initSender(cfg); err != nil {
				return err
			}
		}

		// The scheduler is only used to compose; it never claims a delivery here.
		sched := initScheduler(cfg, nil, p, sender)
		start := time.Now()
		digest, failures, err := sched.Compose(ctx, topics)
		if err != nil {
			return err
		}

		html, text, err := delivery.NewRenderer("").Render(digest)
		if err != nil {
			return err
		}

		zap.L().Info("research complete",
			zap.Int("topics", len(digest.Sections)),
			zap.Int("failures", failures),
			zap.Duration("elapsed", time.Since(start)),
		)

		if researchTo == "" {
			out := text
			if researchHTML {
				out = html
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), out)
			return err
		}

		return sender.Send(ctx, mail.Message{
			To:      researchTo,
			Subject: fmt.Sprintf("%s: %s", cfg.Delivery.Subject, digest.GeneratedAt.Format("2006-01-02")),
			HTML:    html,
			Text:    text,
		})
	},
}

func init() {
	researchCmd.Flags().StringVar(&researchFile, "file", "", "topics file (default research.topics_file)")
	researchCmd.Flags().StringVar(&researchTopics, "topics", "", "comma separated topics, overrides the file")
	researchCmd.Flags().StringVar(&researchTo, "to", "", "mail the digest to this address instead of printing it")
	researchCmd.Flags().BoolVar(&researchHTML, "html", false, "print HTML instead of text")
	rootCmd.AddCommand(researchCmd)
}
