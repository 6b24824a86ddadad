// Command kubectl-testsys is a kubectl plugin for inspecting Test and
// Resource objects without reading YAML by hand.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/bottlerocket-test-system/testsys/pkg/statusview"
)

var (
	namespace  string
	watch      bool
	interval   time.Duration
	noColor    bool
	kubeconfig string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kubectl-testsys",
	Short: "Inspect Test and Resource status",
	Long: `A kubectl plugin for inspecting testsys Test and Resource objects.

Shows each object's task state and, for a Test, the Resources and
upstream Tests it requires.`,
}

var getTestCmd = &cobra.Command{
	Use:   "get-test <name>",
	Short: "Show a single Test's status tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetTest,
}

var getResourceCmd = &cobra.Command{
	Use:   "get-resource <name>",
	Short: "Show a single Resource's status tree",
	Args:  cobra.ExactArgs(1),
	RunE:  runGetResource,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Summarize all Tests in a namespace",
	RunE:  runList,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "default", "Kubernetes namespace")
	rootCmd.PersistentFlags().StringVar(&kubeconfig, "kubeconfig", "", "Path to kubeconfig file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	getTestCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Watch for changes and refresh")
	getTestCmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "Watch refresh interval")

	rootCmd.AddCommand(getTestCmd)
	rootCmd.AddCommand(getResourceCmd)
	rootCmd.AddCommand(listCmd)
}

func prepare() (*statusview.Client, error) {
	if noColor {
		color.NoColor = true
	}
	if kubeconfig != "" {
		_ = os.Setenv("KUBECONFIG", kubeconfig) // #nosec G104 - env var set failure is extremely rare
	}
	return statusview.NewClient()
}

func runGetTest(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := prepare()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if watch {
		return watchLoop(ctx, client, name)
	}
	return printTestTree(ctx, client, name)
}

func printTestTree(ctx context.Context, client *statusview.Client, name string) error {
	t, err := client.GetTest(ctx, name, namespace)
	if err != nil {
		return err
	}

	tree := statusview.BuildTestTree(t)
	renderer := statusview.NewRenderer(!noColor)
	fmt.Print(renderer.Render(tree))
	return nil
}

func watchLoop(ctx context.Context, client *statusview.Client, name string) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		fmt.Print("\033[H\033[2J")

		if err := printTestTree(ctx, client, name); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}

		fmt.Printf("\nWatching %s/%s (Ctrl+C to exit, refreshing every %s)\n", namespace, name, interval)

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			continue
		}
	}
}

func runGetResource(cmd *cobra.Command, args []string) error {
	name := args[0]

	client, err := prepare()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	r, err := client.GetResource(context.Background(), name, namespace)
	if err != nil {
		return err
	}

	tree := statusview.BuildResourceTree(r)
	renderer := statusview.NewRenderer(!noColor)
	fmt.Print(renderer.Render(tree))
	return nil
}

func runList(cmd *cobra.Command, args []string) error {
	client, err := prepare()
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	list, err := client.ListTests(context.Background(), namespace)
	if err != nil {
		return err
	}

	if len(list.Items) == 0 {
		fmt.Printf("No Tests found in namespace %s\n", namespace)
		return nil
	}

	summary := statusview.BuildSummary(namespace, list)
	fmt.Printf("%-30s %-12s\n", "NAME", "STATE")
	fmt.Printf("%-30s %-12s\n", "----", "-----")

	for i := range list.Items {
		t := &list.Items[i]
		state := "NoStatus"
		if t.Status != nil {
			state = string(t.Status.Agent.TaskState)
		}
		fmt.Printf("%-30s %-12s\n", t.Name, formatState(state))
	}

	fmt.Println()
	fmt.Printf("Total: %d  Running: %d  Completed: %d  Error: %d  Unknown: %d\n",
		summary.Total, summary.Running, summary.Completed, summary.Error, summary.Unknown)
	return nil
}

func formatState(state string) string {
	if noColor {
		return state
	}
	switch state {
	case statusview.StatusCompleted:
		return color.GreenString(state)
	case statusview.StatusRunning:
		return color.YellowString(state)
	case statusview.StatusError, statusview.StatusResourceError:
		return color.RedString(state)
	default:
		return color.HiBlackString(state)
	}
}
