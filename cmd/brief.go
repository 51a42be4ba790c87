package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/research-brief/internal/model"
)

var (
	briefDepth    int
	briefFollowUp bool
	briefContext  []string
	briefUserID   string
)

var briefCmd = &cobra.Command{
	Use:   "brief <topic>",
	Short: "Generate a research brief for a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		req := model.ResearchRequest{
			Topic:    strings.Join(args, " "),
			Depth:    briefDepth,
			FollowUp: briefFollowUp,
			Context:  briefContext,
			UserID:   briefUserID,
		}
		req.Normalize()
		if err := req.Validate(); err != nil {
			return err
		}

		env, err := initPipeline(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		requestID := uuid.NewString()
		zap.L().Info("generating brief",
			zap.String("request_id", requestID),
			zap.String("topic", req.Topic),
			zap.String("depth", string(req.ResearchDepth())),
		)

		brief, err := env.Orchestrator.Run(cmd.Context(), requestID, req)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(brief, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

func init() {
	briefCmd.Flags().IntVar(&briefDepth, "depth", 0, "research depth: 1 (quick), 2 (medium), 3 (deep)")
	briefCmd.Flags().BoolVar(&briefFollowUp, "follow-up", false, "treat as a follow-up to prior briefs")
	briefCmd.Flags().StringArrayVar(&briefContext, "context", nil, "prior context to carry into a follow-up")
	briefCmd.Flags().StringVar(&briefUserID, "user", "", "user id for context history")
	rootCmd.AddCommand(briefCmd)
}
