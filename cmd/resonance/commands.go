package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/normanking/resonance/internal/phrases"
	"github.com/normanking/resonance/pkg/atoms"
	"github.com/normanking/resonance/pkg/brain"
	"github.com/normanking/resonance/pkg/learning"
	"github.com/normanking/resonance/pkg/safety"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TURN COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func turnCmd() *cobra.Command {
	var (
		priorZone int
		quality   float64
	)
	cmd := &cobra.Command{
		Use:   "turn [text]",
		Short: "Process one turn and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			in := brain.Input{Text: strings.Join(args, " ")}
			if priorZone > 0 {
				in.Prior = &brain.TurnContext{Zone: safety.Zone(priorZone)}
			}
			if cmd.Flags().Changed("quality") {
				in.Quality = &quality
			}

			out, err := rt.brain.ProcessTurn(ctx, in)
			if err != nil {
				return err
			}
			if err := rt.persist(ctx); err != nil {
				return fmt.Errorf("persist memory: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
	cmd.Flags().IntVar(&priorZone, "prior-zone", 0, "zone of the previous turn (1-5)")
	cmd.Flags().Float64Var(&quality, "quality", 0, "reward in [0,1] to learn with this turn")
	return cmd
}

func sessionCmd() *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Process one turn per line from stdin, carrying context between turns",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			n, runErr := runSession(ctx, rt.brain, cmd.InOrStdin(), cmd.OutOrStdout(), asJSON)
			if err := rt.persist(ctx); err != nil {
				return fmt.Errorf("persist memory after %d turns: %w", n, err)
			}
			if runErr != nil && ctx.Err() == nil {
				return runErr
			}

			stats := rt.brain.Stats()
			fmt.Fprintf(cmd.ErrOrStderr(), "%d turns, mean confidence %.2f, override rate %.2f\n",
				stats.Turns, stats.MeanConfidence, stats.OverrideRate)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print each turn as a JSON line")
	return cmd
}

// runSession feeds each non-empty line of r to b as one turn and writes the
// response text, or the full output with asJSON. It returns the number of
// turns processed.
func runSession(ctx context.Context, b *brain.Brain, r io.Reader, w io.Writer, asJSON bool) (int, error) {
	scanner := bufio.NewScanner(r)
	enc := json.NewEncoder(w)

	var prior *brain.TurnContext
	n := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		out, err := b.ProcessTurn(ctx, brain.Input{Text: line, Prior: prior})
		if err != nil {
			return n, err
		}
		n++
		prior = out.Context()

		if asJSON {
			if err := enc.Encode(out); err != nil {
				return n, err
			}
			continue
		}
		fmt.Fprintf(w, "[zone %d %s %.2f] %s\n", out.Zone, out.Candidate.Strategy, out.Candidate.Confidence, out.Candidate.Text)
	}
	if err := scanner.Err(); err != nil {
		return n, fmt.Errorf("read input: %w", err)
	}
	return n, nil
}

// ═══════════════════════════════════════════════════════════════════════════════
// STATE COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func stateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state",
		Short: "Inspect or reset the learned associative memory",
	}

	var top int
	show := &cobra.Command{
		Use:   "show",
		Short: "Summarize the learned memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			printState(cmd.OutOrStdout(), rt.store.Snapshot(), top)
			return nil
		},
	}
	show.Flags().IntVar(&top, "top", 5, "number of couplings and clusters to list")
	cmd.AddCommand(show)

	cmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Discard the learned memory",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			rt, err := openApp(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			rt.store.Reset()
			if err := rt.persist(ctx); err != nil {
				return fmt.Errorf("persist memory: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Memory reset.")
			return nil
		},
	})
	return cmd
}

type coupling struct {
	a, b   atoms.GroupID
	weight float64
}

func printState(w io.Writer, s *learning.State, top int) {
	if top < 0 {
		top = 0
	}
	fmt.Fprintf(w, "Turns:    %d\n", s.Turns)
	fmt.Fprintf(w, "Clusters: %d\n", len(s.Clusters))

	var pairs []coupling
	for i := 0; i < atoms.NumGroups; i++ {
		for j := i + 1; j < atoms.NumGroups; j++ {
			if v := s.Matrix[i][j]; v > 0 {
				pairs = append(pairs, coupling{atoms.GroupID(i), atoms.GroupID(j), v})
			}
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].weight > pairs[j].weight })
	if len(pairs) > top {
		pairs = pairs[:top]
	}
	if len(pairs) > 0 {
		fmt.Fprintln(w, "\nStrongest couplings:")
		for _, p := range pairs {
			fmt.Fprintf(w, "  %-10s %-10s %.3f\n", p.a, p.b, p.weight)
		}
	}

	clusters := append([]learning.FamilyCluster(nil), s.Clusters...)
	sort.Slice(clusters, func(i, j int) bool { return clusters[i].MemberCount > clusters[j].MemberCount })
	if len(clusters) > top {
		clusters = clusters[:top]
	}
	if len(clusters) > 0 {
		fmt.Fprintln(w, "\nLargest clusters:")
		for _, c := range clusters {
			fmt.Fprintf(w, "  %s  members=%d  energy=%.2f  confidence=%.2f\n",
				c.ID, c.MemberCount, c.Stats.MeanEnergy, c.Stats.MeanConfidence)
		}
	}
}

// ═══════════════════════════════════════════════════════════════════════════════
// PHRASES AND CONFIG COMMANDS
// ═══════════════════════════════════════════════════════════════════════════════

func phrasesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "phrases",
		Short: "Work with phrase tables",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check [file]",
		Short: "Validate a phrase table (default: the embedded table)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				table *phrases.Table
				err   error
			)
			if len(args) == 1 {
				table, err = phrases.Load(args[0])
			} else {
				table, err = phrases.Default()
			}
			if err != nil {
				return err
			}
			printPhrases(cmd.OutOrStdout(), table)
			return nil
		},
	})
	return cmd
}

func printPhrases(w io.Writer, t *phrases.Table) {
	fmt.Fprintf(w, "Version: %d\n", t.Version())
	fmt.Fprintf(w, "Entries: %d\n", t.Len())

	perZone := make(map[safety.Zone]int)
	for _, e := range t.Entries() {
		perZone[e.Zone]++
	}
	fmt.Fprintf(w, "  any zone: %d entries\n", perZone[0])
	for z := safety.ZoneOpen; z <= safety.ZonePresence; z++ {
		fmt.Fprintf(w, "  zone %d: %d entries, %d usable safe\n", z, perZone[z], len(t.Safe(z)))
	}
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", getConfigPath(), data)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), getConfigPath())
		},
	})
	return cmd
}
