package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pactline/internal/app"
	"pactline/internal/config"
	"pactline/internal/db"
	"pactline/internal/domain"
	"pactline/internal/engine"
	"pactline/internal/identity"
	"pactline/internal/migrate"
	"pactline/internal/repo"
	"pactline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "pact",
	Short: "Pactline CLI",
	Long: `Pactline is a two-party agreement ledger.
- Pact: the agreement between exactly two parties; everything is scoped to it.
- Gate: a 2-of-2 approval channel; privileged actions (payouts, assignments,
  resolutions) only happen after both parties approve an operation.
- Treasury: shared funds with append-only deposit and withdrawal journals.
- Acknowledgments: signed statements between participants; two matching
  acknowledgments activate a handshake.
- Tasks: work items that pay the assignee from the treasury on acceptance.
- Proposals: timed votes that can trigger a gate action once quorum passes.
- Disputes: a structured evidence-and-resolution trail.
- Event log: diary of everything, view with 'pact log tail'.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("PACTLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("pact", "", "pact id (overrides config default)")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("pact", rootCmd.PersistentFlags().Lookup("pact"))
}

func registerCommands() {
	rootCmd.AddCommand(pactInitCmd())
	rootCmd.AddCommand(pactListCmd())
	rootCmd.AddCommand(pactShowCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(gateCmd())
	rootCmd.AddCommand(treasuryCmd())
	rootCmd.AddCommand(ackCmd())
	rootCmd.AddCommand(taskCmd())
	rootCmd.AddCommand(proposalCmd())
	rootCmd.AddCommand(disputeCmd())
	rootCmd.AddCommand(logCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(keygenCmd())
	rootCmd.AddCommand(apikeyCmd())
}

func pactInitCmd() *cobra.Command {
	var id, desc string
	var parties []string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a pact from pactline.yml or flags",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			var cfg *config.Config
			if fileCfg, err := config.LoadOptional(workspace); err != nil {
				return err
			} else if fileCfg != nil && id == "" {
				cfg = fileCfg
			} else {
				if id == "" || len(parties) != 2 {
					return fmt.Errorf("--id and exactly two --party flags required (or add pactline.yml)")
				}
				cfg = config.Default(id, parties[0], parties[1])
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			p, err := e.InitPact(cmd.Context(), cfg, desc, viper.GetString("actor-id"))
			if err != nil {
				return err
			}
			return printJSONOrTable(p)
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pact id")
	cmd.Flags().StringArrayVar(&parties, "party", []string{}, "party id (exactly two)")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func pactListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pacts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				items, err := r.ListPacts(ctx)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func pactShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show the current pact",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.GetPact(ctx, pactID)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func configCmd() *cobra.Command {
	cfg := &cobra.Command{
		Use:   "config",
		Short: "Inspect pact config",
		Long:  "Config names the two parties, the gate owner, seeded withdrawers and the governance knobs (voting period, quorum). Stored in the DB at init; pactline.yml seeds it.",
	}
	cfg.AddCommand(configShowCmd())
	cfg.AddCommand(configInitCmd())
	cfg.AddCommand(configValidateCmd())
	return cfg
}

func configShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				return printJSONOrTable(e.Config)
			})
		},
	}
	return cmd
}

func configInitCmd() *cobra.Command {
	var id string
	var parties []string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a pactline.yml template",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || len(parties) != 2 {
				return fmt.Errorf("--id and exactly two --party flags required")
			}
			path := config.Path(viper.GetString("workspace"))
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("%s already exists", path)
			}
			content := config.GenerateDefault(id, parties[0], parties[1])
			if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
				return err
			}
			fmt.Printf("Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "pact id")
	cmd.Flags().StringArrayVar(&parties, "party", []string{}, "party id (exactly two)")
	return cmd
}

func configValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate stored config",
		RunE: func(cmd *cobra.Command, args []string) error {
			err := withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				return e.Config.Validate()
			})
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	}
	return cmd
}

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show pact status",
		Long:  "The scoreboard: pact state, treasury totals and task counts.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.GetPact(ctx, pactID)
				if err != nil {
					return err
				}
				sum, err := e.TreasurySummary(ctx, pactID)
				if err != nil {
					return err
				}
				counts, err := e.TaskCounts(ctx, pactID)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{
						"pact_id":     p.ID,
						"status":      p.Status,
						"treasury":    sum,
						"task_counts": counts,
					})
				}
				fmt.Printf("Pact: %s (%s)\n", p.ID, p.Status)
				fmt.Printf("Parties: %s, %s\n", p.PartyA, p.PartyB)
				fmt.Printf("Treasury: balance=%d deposits=%d withdrawals=%d\n", sum.Balance, sum.TotalDeposits, sum.TotalWithdrawals)
				fmt.Println("Tasks:")
				for status, c := range counts {
					fmt.Printf("  %s: %d\n", status, c)
				}
				return nil
			})
		},
	}
	return cmd
}

func gateCmd() *cobra.Command {
	g := &cobra.Command{
		Use:   "gate",
		Short: "Dual-approval gate operations",
		Long:  "Gate operations need both parties to approve before execute dispatches the action. Targets: treasury.withdraw, treasury.set_withdrawer, tasks.assign, tasks.cancel, proposals.execute, proposals.cancel, disputes.review, disputes.resolve, disputes.cancel.",
	}
	g.AddCommand(gateProposeCmd())
	g.AddCommand(gateApproveCmd())
	g.AddCommand(gateExecuteCmd())
	g.AddCommand(gateShowCmd())
	g.AddCommand(gateListCmd())
	return g
}

func gateProposeCmd() *cobra.Command {
	var target, payload string
	var value int64
	cmd := &cobra.Command{
		Use:   "propose",
		Short: "Propose a gate operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				op, err := e.ProposeOperation(ctx, pactID, viper.GetString("actor-id"), target, value, payload)
				if err != nil {
					return err
				}
				return printJSONOrTable(op)
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "operation target")
	cmd.Flags().Int64Var(&value, "value", 0, "operation value")
	cmd.Flags().StringVar(&payload, "payload-json", "", "target payload JSON")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func gateApproveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a gate operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				op, err := e.ApproveOperation(ctx, pactID, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(op)
			})
		},
	}
	return cmd
}

func gateExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <id>",
		Short: "Execute a fully approved operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				op, err := e.ExecuteOperation(ctx, pactID, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(op)
			})
		},
	}
	return cmd
}

func gateShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a gate operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				op, err := e.GetOperation(ctx, pactID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(op)
			})
		},
	}
	return cmd
}

func gateListCmd() *cobra.Command {
	var pending bool
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List gate operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				ops, err := e.ListOperations(ctx, pactID, pending)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(ops)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Target", "Value", "Approvals", "Executed", "Proposer"})
				for _, op := range ops {
					tw.AppendRow(table.Row{op.ID, op.Target, op.Value, len(op.Approvals), op.Executed, op.Proposer})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&pending, "pending", false, "only unexecuted operations")
	return cmd
}

func treasuryCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "treasury",
		Short: "Shared treasury",
		Long:  "Deposits are open to anyone; withdrawals need gate authority or an authorized withdrawer. Journals are append-only.",
	}
	t.AddCommand(treasuryDepositCmd())
	t.AddCommand(treasuryWithdrawCmd())
	t.AddCommand(treasurySummaryCmd())
	t.AddCommand(treasuryDepositsCmd())
	t.AddCommand(treasuryWithdrawalsCmd())
	t.AddCommand(treasuryWithdrawersCmd())
	t.AddCommand(treasuryAccountCmd())
	return t
}

func treasuryDepositCmd() *cobra.Command {
	var amount int64
	cmd := &cobra.Command{
		Use:   "deposit",
		Short: "Deposit funds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.Deposit(ctx, pactID, viper.GetString("actor-id"), amount)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func treasuryWithdrawCmd() *cobra.Command {
	var recipient string
	var amount int64
	cmd := &cobra.Command{
		Use:   "withdraw",
		Short: "Withdraw funds (gate owner or authorized withdrawer)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				w, err := e.Withdraw(ctx, pactID, viper.GetString("actor-id"), recipient, amount)
				if err != nil {
					return err
				}
				return printJSONOrTable(w)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient participant")
	cmd.Flags().Int64Var(&amount, "amount", 0, "amount")
	_ = cmd.MarkFlagRequired("recipient")
	_ = cmd.MarkFlagRequired("amount")
	return cmd
}

func treasurySummaryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Treasury totals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				sum, err := e.TreasurySummary(ctx, pactID)
				if err != nil {
					return err
				}
				return printJSONOrTable(sum)
			})
		},
	}
	return cmd
}

func treasuryDepositsCmd() *cobra.Command {
	var depositor string
	cmd := &cobra.Command{
		Use:   "deposits",
		Short: "List deposits",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListDeposits(ctx, pactID, depositor)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&depositor, "depositor", "", "depositor filter")
	return cmd
}

func treasuryWithdrawalsCmd() *cobra.Command {
	var recipient string
	cmd := &cobra.Command{
		Use:   "withdrawals",
		Short: "List withdrawals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListWithdrawals(ctx, pactID, recipient)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&recipient, "recipient", "", "recipient filter")
	return cmd
}

func treasuryWithdrawersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "withdrawers",
		Short: "List authorized withdrawers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListWithdrawers(ctx, pactID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func treasuryAccountCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "account <participant>",
		Short: "Show a participant's credited balance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				acct, err := e.Account(ctx, pactID, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(acct)
			})
		},
	}
	return cmd
}

func ackCmd() *cobra.Command {
	a := &cobra.Command{
		Use:   "ack",
		Short: "Acknowledgments and handshakes",
		Long:  "An acknowledgment is a signed statement toward another participant. When both directions exist, the handshake between the two activates.",
	}
	a.AddCommand(ackSubmitCmd())
	a.AddCommand(ackListCmd())
	a.AddCommand(ackHandshakeCmd())
	a.AddCommand(ackHandshakesCmd())
	return a
}

func ackSubmitCmd() *cobra.Command {
	var target, message, signature, signKey, ts string
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a signed acknowledgment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if signature == "" && signKey != "" {
				sig, err := identity.Sign([]byte(message), signKey)
				if err != nil {
					return err
				}
				signature = sig
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				a, err := e.SubmitAcknowledgment(ctx, pactID, viper.GetString("actor-id"), target, message, signature, ts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	cmd.Flags().StringVar(&target, "target", "", "target participant")
	cmd.Flags().StringVar(&message, "message", "", "message being acknowledged")
	cmd.Flags().StringVar(&signature, "signature", "", "hex Schnorr signature over sha256(message)")
	cmd.Flags().StringVar(&signKey, "sign-key", "", "hex private key used to sign locally instead of --signature")
	cmd.Flags().StringVar(&ts, "ts", "", "timestamp (RFC3339, defaults to now)")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func ackListCmd() *cobra.Command {
	var signer string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List acknowledgments",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListAcknowledgments(ctx, pactID, signer)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&signer, "signer", "", "signer filter")
	return cmd
}

func ackHandshakeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "handshake <party-a> <party-b>",
		Short: "Show the handshake between two participants",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				h, err := e.GetMutualHandshake(ctx, pactID, args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(h)
			})
		},
	}
	return cmd
}

func ackHandshakesCmd() *cobra.Command {
	var participant string
	cmd := &cobra.Command{
		Use:   "handshakes",
		Short: "List handshakes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListHandshakes(ctx, pactID, participant)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "participant filter")
	return cmd
}

func taskCmd() *cobra.Command {
	t := &cobra.Command{
		Use:   "task",
		Short: "Manage tasks",
		Long:  "Tasks flow created -> assigned -> in_progress -> under_review -> accepted (or needs_revision and back). Assignment and cancellation go through the gate; acceptance pays the assignee from the treasury.",
	}
	t.AddCommand(taskCreateCmd())
	t.AddCommand(taskAssignCmd())
	t.AddCommand(taskStartCmd())
	t.AddCommand(taskCompleteCmd())
	t.AddCommand(taskAcceptCmd())
	t.AddCommand(taskReviseCmd())
	t.AddCommand(taskCancelCmd())
	t.AddCommand(taskShowCmd())
	t.AddCommand(taskListCmd())
	return t
}

func taskCreateCmd() *cobra.Command {
	var title, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a task",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				t, err := e.CreateTask(ctx, pactID, viper.GetString("actor-id"), title, desc)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func taskAssignCmd() *cobra.Command {
	var assignee string
	var payment int64
	cmd := &cobra.Command{
		Use:   "assign <id>",
		Short: "Assign a task (gate authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				t, err := e.AssignTask(ctx, pactID, viper.GetString("actor-id"), id, assignee, payment)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee participant")
	cmd.Flags().Int64Var(&payment, "payment", 0, "payment amount on acceptance")
	_ = cmd.MarkFlagRequired("assignee")
	_ = cmd.MarkFlagRequired("payment")
	return cmd
}

func taskStartCmd() *cobra.Command {
	return taskActionCmd("start <id>", "Start an assigned task", func(ctx context.Context, e engine.Engine, pactID string, id int64) (any, error) {
		return e.StartTask(ctx, pactID, viper.GetString("actor-id"), id)
	})
}

func taskCompleteCmd() *cobra.Command {
	return taskActionCmd("complete <id>", "Submit a task for review", func(ctx context.Context, e engine.Engine, pactID string, id int64) (any, error) {
		return e.CompleteTask(ctx, pactID, viper.GetString("actor-id"), id)
	})
}

func taskAcceptCmd() *cobra.Command {
	return taskActionCmd("accept <id>", "Accept a task and pay the assignee", func(ctx context.Context, e engine.Engine, pactID string, id int64) (any, error) {
		return e.AcceptTask(ctx, pactID, viper.GetString("actor-id"), id)
	})
}

func taskCancelCmd() *cobra.Command {
	return taskActionCmd("cancel <id>", "Cancel a task (gate authority)", func(ctx context.Context, e engine.Engine, pactID string, id int64) (any, error) {
		return e.CancelTask(ctx, pactID, viper.GetString("actor-id"), id)
	})
}

func taskActionCmd(use, short string, action func(context.Context, engine.Engine, string, int64) (any, error)) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				res, err := action(ctx, e, pactID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	return cmd
}

func taskReviseCmd() *cobra.Command {
	var comment string
	cmd := &cobra.Command{
		Use:   "revise <id>",
		Short: "Request a revision",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				t, err := e.RequestRevision(ctx, pactID, viper.GetString("actor-id"), id, comment)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	cmd.Flags().StringVar(&comment, "comment", "", "review comment")
	_ = cmd.MarkFlagRequired("comment")
	return cmd
}

func taskShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a task",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				t, err := e.GetTask(ctx, pactID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(t)
			})
		},
	}
	return cmd
}

func taskListCmd() *cobra.Command {
	var creator, assignee, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				tasks, err := e.ListTasks(ctx, pactID, creator, assignee, status)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(tasks)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Title", "Status", "Assignee", "Payment"})
				for _, t := range tasks {
					assigned := ""
					if t.Assignee != nil {
						assigned = *t.Assignee
					}
					tw.AppendRow(table.Row{t.ID, t.Title, t.Status, assigned, t.PaymentAmount})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "creator filter")
	cmd.Flags().StringVar(&assignee, "assignee", "", "assignee filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func proposalCmd() *cobra.Command {
	p := &cobra.Command{
		Use:   "proposal",
		Short: "Governance proposals",
		Long:  "Proposals collect party votes inside a fixed window; once quorum and majority are met, execution can dispatch an optional gate target.",
	}
	p.AddCommand(proposalCreateCmd())
	p.AddCommand(proposalVoteCmd())
	p.AddCommand(proposalStatusCmd())
	p.AddCommand(proposalExecuteCmd())
	p.AddCommand(proposalCancelCmd())
	p.AddCommand(proposalShowCmd())
	p.AddCommand(proposalListCmd())
	p.AddCommand(proposalVotesCmd())
	return p
}

func proposalCreateCmd() *cobra.Command {
	var desc, target, payload string
	var value int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a proposal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.CreateProposal(ctx, pactID, viper.GetString("actor-id"), desc, target, value, payload)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&desc, "description", "", "what is being proposed")
	cmd.Flags().StringVar(&target, "target", "", "optional gate target to dispatch on execute")
	cmd.Flags().Int64Var(&value, "value", 0, "value")
	cmd.Flags().StringVar(&payload, "payload-json", "", "target payload JSON")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func proposalVoteCmd() *cobra.Command {
	var against bool
	cmd := &cobra.Command{
		Use:   "vote <id>",
		Short: "Vote on a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.Vote(ctx, pactID, viper.GetString("actor-id"), id, !against)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().BoolVar(&against, "against", false, "vote against instead of for")
	return cmd
}

func proposalStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "can-execute <id>",
		Short: "Check whether a proposal is executable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				ok, reason, err := e.CanExecute(ctx, pactID, id)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"can_execute": ok, "reason": reason})
				}
				if ok {
					fmt.Println("executable")
				} else {
					fmt.Printf("not executable: %s\n", reason)
				}
				return nil
			})
		},
	}
	return cmd
}

func proposalExecuteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <id>",
		Short: "Execute a passed proposal (gate authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.ExecuteProposal(ctx, pactID, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a proposal (gate authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.CancelProposal(ctx, pactID, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				p, err := e.GetProposal(ctx, pactID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	return cmd
}

func proposalListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List proposals",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListProposals(ctx, pactID)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func proposalVotesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "votes <id>",
		Short: "List votes on a proposal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListVotes(ctx, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func disputeCmd() *cobra.Command {
	d := &cobra.Command{
		Use:   "dispute",
		Short: "Disputes",
		Long:  "Disputes carry an evidence slot per side and end in a gate-authored resolution, or cancellation by the initiator.",
	}
	d.AddCommand(disputeCreateCmd())
	d.AddCommand(disputeEvidenceCmd())
	d.AddCommand(disputeReviewCmd())
	d.AddCommand(disputeResolveCmd())
	d.AddCommand(disputeCancelCmd())
	d.AddCommand(disputeShowCmd())
	d.AddCommand(disputeListCmd())
	return d
}

func disputeCreateCmd() *cobra.Command {
	var counterparty, disputeType, desc, evidence string
	var relatedID int64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Open a dispute",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.CreateDispute(ctx, pactID, viper.GetString("actor-id"), counterparty, disputeType, relatedID, desc, evidence)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&counterparty, "counterparty", "", "other participant")
	cmd.Flags().StringVar(&disputeType, "type", "", "dispute type (e.g. task, payment)")
	cmd.Flags().Int64Var(&relatedID, "related-id", 0, "related entity id")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	cmd.Flags().StringVar(&evidence, "evidence", "", "initial evidence")
	_ = cmd.MarkFlagRequired("counterparty")
	_ = cmd.MarkFlagRequired("description")
	return cmd
}

func disputeEvidenceCmd() *cobra.Command {
	var evidence string
	cmd := &cobra.Command{
		Use:   "evidence <id>",
		Short: "Submit evidence",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.SubmitEvidence(ctx, pactID, viper.GetString("actor-id"), id, evidence)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&evidence, "evidence", "", "evidence text")
	_ = cmd.MarkFlagRequired("evidence")
	return cmd
}

func disputeReviewCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "review <id>",
		Short: "Mark a dispute under review (gate authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.MarkUnderReview(ctx, pactID, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func disputeResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <id>",
		Short: "Resolve a dispute (gate authority)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.ResolveDispute(ctx, pactID, viper.GetString("actor-id"), id, resolution)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution text")
	_ = cmd.MarkFlagRequired("resolution")
	return cmd
}

func disputeCancelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.CancelDispute(ctx, pactID, viper.GetString("actor-id"), id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func disputeShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show a dispute",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				d, err := e.GetDispute(ctx, pactID, id)
				if err != nil {
					return err
				}
				return printJSONOrTable(d)
			})
		},
	}
	return cmd
}

func disputeListCmd() *cobra.Command {
	var participant, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List disputes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				items, err := e.ListDisputes(ctx, pactID, participant, status)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	cmd.Flags().StringVar(&participant, "participant", "", "participant filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	return cmd
}

func logCmd() *cobra.Command {
	l := &cobra.Command{
		Use:   "log",
		Short: "Event log",
	}
	l.AddCommand(logTailCmd())
	return l
}

func logTailCmd() *cobra.Command {
	var n int
	var evtType, entityKind, entityID string
	cmd := &cobra.Command{
		Use:   "tail",
		Short: "Tail events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine, pactID string) error {
				events, err := e.Repo.LatestEvents(ctx, n, pactID, evtType, entityKind, entityID)
				if err != nil {
					return err
				}
				return printJSONOrTable(events)
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	cmd.Flags().StringVar(&evtType, "type", "", "event type filter")
	cmd.Flags().StringVar(&entityKind, "entity-kind", "", "entity kind")
	cmd.Flags().StringVar(&entityID, "entity-id", "", "entity id")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	var allowLegacy bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			if _, err := db.EnsureWorkspace(workspace); err != nil {
				return err
			}
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			r := repo.Repo{DB: conn}
			_, cfg, err := app.ResolvePactAndConfig(cmd.Context(), workspace, viper.GetString("pact"), r)
			if err != nil {
				return err
			}
			e := engine.New(conn, cfg)
			authCfg := server.AuthConfig{
				JWTSecret:              os.Getenv("PACTLINE_JWT_SECRET"),
				AllowLegacyActorHeader: allowLegacy,
			}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("PACTLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Pactline API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	cmd.Flags().BoolVar(&allowLegacy, "allow-legacy-actor-header", false, "accept unauthenticated X-Actor-Id (dev only)")
	return cmd
}

func keygenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a participant keypair",
		RunE: func(cmd *cobra.Command, args []string) error {
			participant, priv, err := identity.Keygen()
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{
					"participant_id": participant,
					"private_key":    priv,
				})
			}
			fmt.Printf("participant_id: %s\n", participant)
			fmt.Printf("private_key:    %s\n", priv)
			fmt.Println("Keep the private key safe; the participant id is the public identity.")
			return nil
		},
	}
	return cmd
}

func apikeyCmd() *cobra.Command {
	a := &cobra.Command{Use: "apikey", Short: "Manage API keys"}
	a.AddCommand(apikeyCreateCmd())
	a.AddCommand(apikeyListCmd())
	a.AddCommand(apikeyDeleteCmd())
	return a
}

func apikeyCreateCmd() *cobra.Command {
	var actorID, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an API key",
		RunE: func(cmd *cobra.Command, args []string) error {
			if actorID == "" {
				actorID = viper.GetString("actor-id")
			}
			rawKey := "plk_" + strings.ReplaceAll(uuid.NewString(), "-", "")
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				key := domain.APIKey{
					ID:      uuid.NewString(),
					ActorID: actorID,
					Name:    name,
					KeyHash: repo.HashAPIKey(rawKey),
				}
				if err := r.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]string{"id": key.ID, "actor_id": key.ActorID, "key": rawKey})
				}
				fmt.Printf("id:  %s\n", key.ID)
				fmt.Printf("key: %s\n", rawKey)
				fmt.Println("The key is shown once; only its hash is stored.")
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor the key authenticates as (defaults to --actor-id)")
	cmd.Flags().StringVar(&name, "name", "", "key label")
	return cmd
}

func apikeyListCmd() *cobra.Command {
	var actorID string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List API keys",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				keys, err := r.ListAPIKeys(ctx, actorID)
				if err != nil {
					return err
				}
				for i := range keys {
					keys[i].KeyHash = ""
				}
				return printJSONOrTable(keys)
			})
		},
	}
	cmd.Flags().StringVar(&actorID, "actor", "", "actor filter")
	return cmd
}

func apikeyDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRepo(cmd.Context(), func(ctx context.Context, r repo.Repo) error {
				return r.DeleteAPIKey(ctx, args[0])
			})
		},
	}
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine, string) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	r := repo.Repo{DB: conn}
	pactID, cfg, err := app.ResolvePactAndConfig(ctx, workspace, viper.GetString("pact"), r)
	if err != nil {
		return err
	}
	e := engine.New(conn, cfg)
	return fn(ctx, e, pactID)
}

func withRepo(ctx context.Context, fn func(context.Context, repo.Repo) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	return fn(ctx, repo.Repo{DB: conn})
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return id, nil
}
